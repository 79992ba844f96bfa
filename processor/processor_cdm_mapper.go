package processor

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/clearbalance/revcycle-pipeline/internal/cdm"
)

// CDMMapper unifies source-native rows into the common data model. It
// renames and casts source columns per the declarative mapping table,
// tags each record with provenance, derives the surrogate key, and
// resolves enrichment fields against the reference lookup service.
//
// Rows from different sources end up with identical column sets: the
// union is by column name, never positional, and unmapped optional
// columns populate as null.
type CDMMapper struct {
	mappings   *cdm.MappingSet
	lookup     cdm.Lookup
	processors []Processor

	// enrichments maps an enriched common field to the common field
	// whose value keys the reference lookup.
	enrichments map[string]string

	stats CDMMapperStats
}

type CDMMapperStats struct {
	TotalMapped   atomic.Uint64
	TotalEnriched atomic.Uint64
}

func NewCDMMapper(config map[string]interface{}) (*CDMMapper, error) {
	mappingFile, ok := config["mapping_file"].(string)
	if !ok || mappingFile == "" {
		return nil, fmt.Errorf("invalid configuration: missing 'mapping_file'")
	}

	mappings, err := cdm.LoadMappings(mappingFile)
	if err != nil {
		return nil, err
	}

	mapper := &CDMMapper{
		mappings: mappings,
		lookup:   cdm.NoopLookup{},
		enrichments: map[string]string{
			// payer display names come from the reference service keyed
			// by the source's payer code
			"payer_name": "payer_code",
		},
	}

	if enrichCfg := stringKeyed(config["enrichment"]); enrichCfg != nil {
		address, _ := enrichCfg["address"].(string)
		password, _ := enrichCfg["password"].(string)
		keyPrefix, _ := enrichCfg["key_prefix"].(string)
		db := 0
		if d, ok := enrichCfg["db"].(int); ok {
			db = d
		}
		if address != "" {
			lookup, err := cdm.NewRedisLookup(address, password, keyPrefix, db)
			if err != nil {
				// Enrichment degrades to null fields, never a hard failure.
				log.Printf("[WARN] CDMMapper: enrichment service unavailable, fields will be null: %v", err)
			} else {
				mapper.lookup = lookup
			}
		}
	}

	return mapper, nil
}

// stringKeyed normalizes a nested YAML config block: yaml.v2 decodes
// nested maps with interface{} keys.
func stringKeyed(raw interface{}) map[string]interface{} {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			if key, ok := k.(string); ok {
				out[key] = v
			}
		}
		return out
	default:
		return nil
	}
}

// NewCDMMapperWithSet builds a mapper over an already-loaded mapping
// set, used by tests and embedded callers.
func NewCDMMapperWithSet(mappings *cdm.MappingSet, lookup cdm.Lookup) *CDMMapper {
	if lookup == nil {
		lookup = cdm.NoopLookup{}
	}
	return &CDMMapper{
		mappings:    mappings,
		lookup:      lookup,
		enrichments: map[string]string{"payer_name": "payer_code"},
	}
}

func (m *CDMMapper) Subscribe(p Processor) {
	m.processors = append(m.processors, p)
}

func (m *CDMMapper) Process(ctx context.Context, msg Message) error {
	payload, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte type for message.Payload, got %T", msg.Payload)
	}
	meta, ok := msg.GetSourceMetadata()
	if !ok {
		return fmt.Errorf("missing source metadata on raw row")
	}

	mapping, ok := m.mappings.Lookup(meta.SourceID, meta.DatasetName)
	if !ok {
		// No mapping entry means this dataset cannot be unified: a
		// configuration gap, not a data error, so it fails closed.
		return fmt.Errorf("no column mapping for source %q dataset %q", meta.SourceID, meta.DatasetName)
	}
	schema, ok := cdm.SchemaFor(mapping.EntityType)
	if !ok {
		return fmt.Errorf("mapping for %s/%s references unknown entity type %q",
			meta.SourceID, meta.DatasetName, mapping.EntityType)
	}

	rec := &cdm.Record{
		Entity:     schema.Entity,
		SourceID:   meta.SourceID,
		Dataset:    meta.DatasetName,
		IngestedAt: meta.IngestedAt,
		Fields:     make(map[string]interface{}, len(schema.Fields)),
	}

	for _, f := range schema.Fields {
		if f.Enriched {
			rec.Fields[f.Name] = m.enrich(ctx, f.Name, rec)
			continue
		}
		srcCol, mapped := mapping.SourceColumn(f.Name)
		if !mapped {
			// Optional column the source does not supply.
			rec.Fields[f.Name] = nil
			continue
		}
		value := gjson.GetBytes(payload, srcCol)
		if !value.Exists() {
			rec.Fields[f.Name] = nil
			continue
		}
		rec.Fields[f.Name] = cdm.NormalizeValue(f, value.String())
	}

	if key, ok := rec.FieldString(schema.NaturalKeyField); ok {
		rec.NaturalKey = key
	}
	rec.SurrogateKey = cdm.SurrogateKey(rec.NaturalKey, rec.SourceID)

	m.stats.TotalMapped.Add(1)

	out := Message{Payload: rec, Metadata: msg.Metadata}
	for _, p := range m.processors {
		if err := p.Process(ctx, out); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}
	return nil
}

// enrich resolves one enriched field from the reference lookup. The key
// field must already be populated, so enriched fields are declared after
// their key fields in the schema.
func (m *CDMMapper) enrich(ctx context.Context, field string, rec *cdm.Record) interface{} {
	keyField, ok := m.enrichments[field]
	if !ok {
		return nil
	}
	key, ok := rec.FieldString(keyField)
	if !ok {
		return nil
	}
	val, found := m.lookup.Get(ctx, key)
	if !found {
		return nil
	}
	m.stats.TotalEnriched.Add(1)
	return val
}
