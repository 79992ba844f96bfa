package cdm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Mapping declares how one source dataset maps into a common entity.
// Columns maps source column name -> common column name. Mappings are
// declarative operator configuration, never inferred from data.
type Mapping struct {
	SourceID   string            `yaml:"source_id"`
	Dataset    string            `yaml:"dataset"`
	EntityType EntityType        `yaml:"entity_type"`
	Columns    map[string]string `yaml:"columns"`
}

type mappingFile struct {
	Mappings []Mapping `yaml:"mappings"`
}

// MappingSet indexes mappings by (source_id, dataset).
type MappingSet struct {
	byKey map[string]Mapping
}

// ConfigError marks a mapping-table gap. It is a configuration error,
// not a data error: the affected entity type fails closed.
type ConfigError struct {
	SourceID string
	Entity   EntityType
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mapping for source %q entity %q has no source column for required field %q",
		e.SourceID, e.Entity, e.Field)
}

// LoadMappings reads and validates a mapping table file. Every mapping
// must cover all required, non-enriched fields of its entity schema.
func LoadMappings(path string) (*MappingSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file %s: %w", path, err)
	}
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}

	set := &MappingSet{byKey: make(map[string]Mapping)}
	for _, m := range file.Mappings {
		if m.SourceID == "" || m.Dataset == "" {
			return nil, fmt.Errorf("mapping entry missing source_id or dataset")
		}
		schema, ok := SchemaFor(m.EntityType)
		if !ok {
			return nil, fmt.Errorf("mapping for %s/%s references unknown entity type %q",
				m.SourceID, m.Dataset, m.EntityType)
		}
		if err := validateMapping(m, schema); err != nil {
			return nil, err
		}
		set.byKey[mappingKey(m.SourceID, m.Dataset)] = m
	}
	return set, nil
}

// validateMapping fails closed on any required field with no source column.
func validateMapping(m Mapping, schema Schema) error {
	covered := make(map[string]bool, len(m.Columns))
	for src, common := range m.Columns {
		if _, ok := schema.Field(common); !ok {
			return fmt.Errorf("mapping %s/%s: source column %q maps to unknown common field %q",
				m.SourceID, m.Dataset, src, common)
		}
		covered[common] = true
	}
	for _, f := range schema.Fields {
		if f.Required && !f.Enriched && !covered[f.Name] {
			return &ConfigError{SourceID: m.SourceID, Entity: schema.Entity, Field: f.Name}
		}
	}
	return nil
}

// Lookup returns the mapping for a (source, dataset) pair.
func (s *MappingSet) Lookup(sourceID, dataset string) (Mapping, bool) {
	m, ok := s.byKey[mappingKey(sourceID, dataset)]
	return m, ok
}

// SourceColumn returns the source column feeding a common field, if mapped.
func (m Mapping) SourceColumn(commonField string) (string, bool) {
	for src, common := range m.Columns {
		if common == commonField {
			return src, true
		}
	}
	return "", false
}

func mappingKey(sourceID, dataset string) string {
	return sourceID + "/" + dataset
}
