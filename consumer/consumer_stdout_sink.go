package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clearbalance/revcycle-pipeline/processor"
)

// StdoutConsumer prints every message, useful when debugging a pipeline.
type StdoutConsumer struct {
	processors []processor.Processor
}

func NewStdoutConsumer() *StdoutConsumer {
	return &StdoutConsumer{}
}

func (c *StdoutConsumer) Subscribe(p processor.Processor) {
	c.processors = append(c.processors, p)
}

func (c *StdoutConsumer) Process(ctx context.Context, msg processor.Message) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	fmt.Println(string(data))

	for _, p := range c.processors {
		if err := p.Process(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
