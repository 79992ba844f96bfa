package processor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbalance/revcycle-pipeline/internal/cdm"
)

type captureProcessor struct {
	messages []Message
}

func (c *captureProcessor) Process(ctx context.Context, msg Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureProcessor) Subscribe(p Processor) {}

type fakeLookup struct {
	values map[string]string
}

func (f *fakeLookup) Get(ctx context.Context, key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func loadTestMappings(t *testing.T) *cdm.MappingSet {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	content := `
mappings:
  - source_id: A
    dataset: patients
    entity_type: patient
    columns:
      PatID: patient_id
      FName: first_name
      LName: last_name
      DOB: date_of_birth
      Payer: payer_code
  - source_id: B
    dataset: patient_extract
    entity_type: patient
    columns:
      id: patient_id
      given_name: first_name
      family_name: last_name
      birth_date: date_of_birth
      sex: gender
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	set, err := cdm.LoadMappings(path)
	require.NoError(t, err)
	return set
}

func rawMessage(t *testing.T, sourceID, dataset string, row map[string]string) Message {
	t.Helper()
	payload, err := json.Marshal(row)
	require.NoError(t, err)
	msg := Message{Payload: payload}
	msg.WithSourceMetadata(&SourceMetadata{
		SourceID:    sourceID,
		DatasetName: dataset,
		IngestedAt:  time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC),
	})
	return msg
}

func TestCDMMapperUnifiesAcrossSources(t *testing.T) {
	mapper := NewCDMMapperWithSet(loadTestMappings(t), nil)
	sink := &captureProcessor{}
	mapper.Subscribe(sink)

	msgA := rawMessage(t, "A", "patients", map[string]string{
		"PatID": "101", "FName": "Ana", "LName": "Silva", "DOB": "1980-04-02", "Payer": "BCBS",
	})
	msgB := rawMessage(t, "B", "patient_extract", map[string]string{
		"id": "101", "given_name": "Bruno", "family_name": "Costa", "birth_date": "1975-01-20", "sex": "M",
	})

	require.NoError(t, mapper.Process(context.Background(), msgA))
	require.NoError(t, mapper.Process(context.Background(), msgB))
	require.Len(t, sink.messages, 2)

	recA := sink.messages[0].Payload.(*cdm.Record)
	recB := sink.messages[1].Payload.(*cdm.Record)

	// Same natural key from different sources: distinct surrogate keys.
	assert.Equal(t, "101-A", recA.SurrogateKey)
	assert.Equal(t, "101-B", recB.SurrogateKey)

	// Identical column sets regardless of which columns each source maps.
	assert.Equal(t, fieldNames(recA), fieldNames(recB))

	// Source A does not map gender: populated as null.
	v, ok := recA.FieldString("gender")
	assert.False(t, ok, "unmapped optional column should be null, got %q", v)
	g, ok := recB.FieldString("gender")
	require.True(t, ok)
	assert.Equal(t, "M", g)
}

func fieldNames(rec *cdm.Record) []string {
	schema, _ := cdm.SchemaFor(rec.Entity)
	var names []string
	for _, f := range schema.Fields {
		if _, exists := rec.Fields[f.Name]; exists {
			names = append(names, f.Name)
		}
	}
	return names
}

func TestCDMMapperProvenance(t *testing.T) {
	mapper := NewCDMMapperWithSet(loadTestMappings(t), nil)
	sink := &captureProcessor{}
	mapper.Subscribe(sink)

	msg := rawMessage(t, "A", "patients", map[string]string{
		"PatID": "101", "FName": "Ana", "LName": "Silva", "DOB": "1980-04-02",
	})
	require.NoError(t, mapper.Process(context.Background(), msg))

	rec := sink.messages[0].Payload.(*cdm.Record)
	assert.Equal(t, "A", rec.SourceID)
	assert.Equal(t, "patients", rec.Dataset)
	assert.Equal(t, "101", rec.NaturalKey)
	assert.False(t, rec.IngestedAt.IsZero())
}

func TestCDMMapperEnrichment(t *testing.T) {
	lookup := &fakeLookup{values: map[string]string{"BCBS": "Blue Cross Blue Shield"}}
	mapper := NewCDMMapperWithSet(loadTestMappings(t), lookup)
	sink := &captureProcessor{}
	mapper.Subscribe(sink)

	msg := rawMessage(t, "A", "patients", map[string]string{
		"PatID": "101", "FName": "Ana", "LName": "Silva", "DOB": "1980-04-02", "Payer": "BCBS",
	})
	require.NoError(t, mapper.Process(context.Background(), msg))

	rec := sink.messages[0].Payload.(*cdm.Record)
	name, ok := rec.FieldString("payer_name")
	require.True(t, ok)
	assert.Equal(t, "Blue Cross Blue Shield", name)
}

func TestCDMMapperEnrichmentMissDegradesToNull(t *testing.T) {
	lookup := &fakeLookup{values: map[string]string{}}
	mapper := NewCDMMapperWithSet(loadTestMappings(t), lookup)
	sink := &captureProcessor{}
	mapper.Subscribe(sink)

	msg := rawMessage(t, "A", "patients", map[string]string{
		"PatID": "101", "FName": "Ana", "LName": "Silva", "DOB": "1980-04-02", "Payer": "UNKNOWN",
	})
	require.NoError(t, mapper.Process(context.Background(), msg))

	rec := sink.messages[0].Payload.(*cdm.Record)
	_, ok := rec.FieldString("payer_name")
	assert.False(t, ok, "enrichment miss must leave the field null, not fail the row")
}

func TestCDMMapperUnmappedDatasetFailsClosed(t *testing.T) {
	mapper := NewCDMMapperWithSet(loadTestMappings(t), nil)

	msg := rawMessage(t, "C", "mystery", map[string]string{"id": "1"})
	err := mapper.Process(context.Background(), msg)
	assert.Error(t, err)
}

func TestCDMMapperNormalizesMoney(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	content := `
mappings:
  - source_id: A
    dataset: charges
    entity_type: transaction
    columns:
      TxID: transaction_id
      PatID: patient_id
      ProvID: provider_id
      SvcDate: transaction_date
      Charge: charge_amt
      Paid: paid_amt
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	set, err := cdm.LoadMappings(path)
	require.NoError(t, err)

	mapper := NewCDMMapperWithSet(set, nil)
	sink := &captureProcessor{}
	mapper.Subscribe(sink)

	msg := rawMessage(t, "A", "charges", map[string]string{
		"TxID": "T1", "PatID": "101", "ProvID": "P1",
		"SvcDate": "2024-03-01", "Charge": "200.00", "Paid": "150.00",
	})
	require.NoError(t, mapper.Process(context.Background(), msg))

	rec := sink.messages[0].Payload.(*cdm.Record)
	charge, ok := rec.MoneyField("charge_amt")
	require.True(t, ok)
	assert.Equal(t, "200", charge.String())
}
