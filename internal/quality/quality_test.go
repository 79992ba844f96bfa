package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clearbalance/revcycle-pipeline/internal/cdm"
)

func patientRecord(fields map[string]interface{}) *cdm.Record {
	return &cdm.Record{
		Entity:       cdm.EntityPatient,
		SourceID:     "A",
		NaturalKey:   "101",
		SurrogateKey: "101-A",
		IngestedAt:   time.Now(),
		Fields:       fields,
	}
}

func TestEvaluateCleanRecord(t *testing.T) {
	rec := patientRecord(map[string]interface{}{
		"patient_id":    "101",
		"first_name":    "Ana",
		"last_name":     "Silva",
		"date_of_birth": "1980-04-02",
		"gender":        "F",
	})

	assert.Empty(t, Evaluate(rec))
}

func TestEvaluatePlaceholderNull(t *testing.T) {
	// The literal string "null" in any case form is a validation failure.
	for _, placeholder := range []string{"null", "NULL", "Null", " null "} {
		rec := patientRecord(map[string]interface{}{
			"patient_id":    "101",
			"first_name":    placeholder,
			"last_name":     "Silva",
			"date_of_birth": "1980-04-02",
		})
		reasons := Evaluate(rec)
		assert.Len(t, reasons, 1, "placeholder %q", placeholder)
		assert.Contains(t, reasons[0], "first_name")
	}
}

func TestEvaluateMissingRequiredField(t *testing.T) {
	rec := patientRecord(map[string]interface{}{
		"patient_id":    "101",
		"first_name":    "Ana",
		"last_name":     nil,
		"date_of_birth": "1980-04-02",
	})

	reasons := Evaluate(rec)
	assert.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "last_name")
}

func TestEvaluateMalformedDate(t *testing.T) {
	rec := patientRecord(map[string]interface{}{
		"patient_id":    "101",
		"first_name":    "Ana",
		"last_name":     "Silva",
		"date_of_birth": "02-04-80??",
	})

	reasons := Evaluate(rec)
	assert.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "date_of_birth")
}

func TestEvaluateMalformedAmount(t *testing.T) {
	rec := &cdm.Record{
		Entity:       cdm.EntityTransaction,
		SourceID:     "A",
		NaturalKey:   "T1",
		SurrogateKey: "T1-A",
		Fields: map[string]interface{}{
			"transaction_id":   "T1",
			"patient_id":       "101",
			"provider_id":      "P1",
			"transaction_date": "2024-03-01",
			"charge_amt":       "two hundred",
			"paid_amt":         "150",
		},
	}

	reasons := Evaluate(rec)
	assert.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "charge_amt")
}

func TestEvaluateOptionalFieldAbsentIsClean(t *testing.T) {
	rec := patientRecord(map[string]interface{}{
		"patient_id":    "101",
		"first_name":    "Ana",
		"last_name":     "Silva",
		"date_of_birth": "1980-04-02",
		// gender, payer_code absent
	})

	assert.Empty(t, Evaluate(rec))
}

func TestEvaluateCollectsAllFailures(t *testing.T) {
	rec := patientRecord(map[string]interface{}{
		"patient_id":    "101",
		"first_name":    "null",
		"last_name":     "",
		"date_of_birth": "not a date",
	})

	reasons := Evaluate(rec)
	assert.Len(t, reasons, 3)
}
