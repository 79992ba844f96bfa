package main

import (
	"fmt"

	"github.com/clearbalance/revcycle-pipeline/consumer"
	"github.com/clearbalance/revcycle-pipeline/internal/cli/runner"
	"github.com/clearbalance/revcycle-pipeline/processor"
)

// Factory functions wired into the CLI runner.

func CreateSourceAdapterFunc(sourceConfig runner.SourceConfig) (runner.SourceAdapter, error) {
	switch sourceConfig.Type {
	case "RegistrySource":
		return NewRegistrySourceAdapter(sourceConfig.Config)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceConfig.Type)
	}
}

func CreateProcessorFunc(processorConfig processor.ProcessorConfig) (processor.Processor, error) {
	switch processorConfig.Type {
	case "CDMMapper":
		return processor.NewCDMMapper(processorConfig.Config)
	case "QualityGate":
		return processor.NewQualityGate(processorConfig.Config)
	default:
		return nil, fmt.Errorf("unsupported processor type: %s", processorConfig.Type)
	}
}

func CreateConsumerFunc(consumerConfig consumer.ConsumerConfig) (processor.Processor, error) {
	switch consumerConfig.Type {
	case "SilverMergeDuckDB":
		return consumer.NewSilverMergeDuckDB(consumerConfig.Config)
	case "StdoutSink":
		return consumer.NewStdoutConsumer(), nil
	default:
		return nil, fmt.Errorf("unsupported consumer type: %s", consumerConfig.Type)
	}
}
