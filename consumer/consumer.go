package consumer

import (
	"context"

	"github.com/clearbalance/revcycle-pipeline/processor"
)

// Consumer is the terminal stage of a pipeline.
type Consumer interface {
	Process(context.Context, processor.Message) error
	Subscribe(processor.Processor)
}

type ConsumerConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}
