package runner

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/clearbalance/revcycle-pipeline/consumer"
	"github.com/clearbalance/revcycle-pipeline/pkg/pipeline"
	"github.com/clearbalance/revcycle-pipeline/processor"
	"gopkg.in/yaml.v2"
)

type Options struct {
	ConfigFile string
	Verbose    bool
}

// Factories create pipeline components from their config blocks; they
// are injected by the main package so this runner stays free of
// component imports.
type Factories struct {
	CreateSourceAdapter func(SourceConfig) (SourceAdapter, error)
	CreateProcessor     func(processor.ProcessorConfig) (processor.Processor, error)
	CreateConsumer      func(consumer.ConsumerConfig) (processor.Processor, error)
}

type Runner struct {
	opts      Options
	factories Factories
}

type Config struct {
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
}

type PipelineConfig struct {
	Name       string                      `yaml:"name"`
	Source     SourceConfig                `yaml:"source"`
	Processors []processor.ProcessorConfig `yaml:"processors"`
	Consumers  []consumer.ConsumerConfig   `yaml:"consumers"`
}

type SourceConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

type SourceAdapter interface {
	Run(context.Context) error
	Subscribe(processor.Processor)
}

func New(opts Options, factories Factories) *Runner {
	return &Runner{
		opts:      opts,
		factories: factories,
	}
}

func (r *Runner) loadConfig() (*Config, error) {
	configBytes, err := os.ReadFile(r.opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", r.opts.ConfigFile, err)
	}

	var config Config
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if len(config.Pipelines) == 0 {
		return nil, fmt.Errorf("config %s defines no pipelines", r.opts.ConfigFile)
	}
	return &config, nil
}

// Validate parses the config and constructs every component without
// running anything, so a bad pipeline fails before extraction starts.
func (r *Runner) Validate() error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	for name, pipelineConfig := range config.Pipelines {
		if _, err := r.factories.CreateSourceAdapter(pipelineConfig.Source); err != nil {
			return fmt.Errorf("pipeline %s: invalid source: %w", name, err)
		}
		for _, procConfig := range pipelineConfig.Processors {
			if _, err := r.factories.CreateProcessor(procConfig); err != nil {
				return fmt.Errorf("pipeline %s: invalid processor %s: %w", name, procConfig.Type, err)
			}
		}
		for _, consConfig := range pipelineConfig.Consumers {
			if _, err := r.factories.CreateConsumer(consConfig); err != nil {
				return fmt.Errorf("pipeline %s: invalid consumer %s: %w", name, consConfig.Type, err)
			}
		}
	}
	return nil
}

func (r *Runner) Run(ctx context.Context) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	var firstErr error
	for name, pipelineConfig := range config.Pipelines {
		log.Printf("[INFO] starting pipeline: %s", name)
		if err := r.setupPipeline(ctx, pipelineConfig); err != nil {
			log.Printf("[ERROR] pipeline %s: %v", name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("pipeline %s: %w", name, err)
			}
		}
	}

	log.Printf("[INFO] all pipelines finished")
	return firstErr
}

func (r *Runner) setupPipeline(ctx context.Context, pipelineConfig PipelineConfig) error {
	source, err := r.factories.CreateSourceAdapter(pipelineConfig.Source)
	if err != nil {
		return fmt.Errorf("error creating source: %w", err)
	}

	processors := make([]processor.Processor, len(pipelineConfig.Processors))
	for i, procConfig := range pipelineConfig.Processors {
		proc, err := r.factories.CreateProcessor(procConfig)
		if err != nil {
			return fmt.Errorf("error creating processor %s: %w", procConfig.Type, err)
		}
		processors[i] = proc
	}

	consumers := make([]processor.Processor, len(pipelineConfig.Consumers))
	for i, consConfig := range pipelineConfig.Consumers {
		cons, err := r.factories.CreateConsumer(consConfig)
		if err != nil {
			return fmt.Errorf("error creating consumer %s: %w", consConfig.Type, err)
		}
		consumers[i] = cons
	}

	pipeline.BuildProcessorChain(processors, consumers)

	if len(processors) > 0 {
		source.Subscribe(processors[0])
	} else if len(consumers) > 0 {
		source.Subscribe(consumers[0])
	}

	err = source.Run(ctx)

	// Consumers may hold open stores; close them even on a failed run.
	for _, cons := range consumers {
		if closer, ok := cons.(interface{ Close() error }); ok {
			if closeErr := closer.Close(); closeErr != nil {
				log.Printf("[WARN] error closing consumer %T: %v", cons, closeErr)
			}
		}
	}

	return err
}
