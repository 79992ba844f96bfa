package processor

import (
	"context"
	"time"
)

// Processor defines the interface for processing messages.
type Processor interface {
	Process(context.Context, Message) error
	Subscribe(Processor)
}

type ProcessorConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Message encapsulates the payload to be processed with optional metadata.
type Message struct {
	Payload  interface{}            `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SourceMetadata carries the provenance of a raw row through the chain.
type SourceMetadata struct {
	SourceID    string    `json:"source_id"`
	DatasetName string    `json:"dataset_name"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// GetSourceMetadata extracts provenance metadata from the message.
func (m *Message) GetSourceMetadata() (*SourceMetadata, bool) {
	if m.Metadata == nil {
		return nil, false
	}
	data, exists := m.Metadata["source"]
	if !exists {
		return nil, false
	}
	meta, ok := data.(*SourceMetadata)
	return meta, ok
}

// WithSourceMetadata attaches provenance metadata to a message.
func (m *Message) WithSourceMetadata(meta *SourceMetadata) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata["source"] = meta
}
