package cdm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValueMoney(t *testing.T) {
	spec := FieldSpec{Name: "charge_amt", Type: FieldMoney}

	tests := []struct {
		raw  string
		want interface{}
	}{
		{"200.00", "200"},
		{"150.50", "150.5"},
		{"0", "0"},
		{"-12.25", "-12.25"},
		{"garbage", "garbage"}, // unparseable passes through for the quality gate
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeValue(spec, tt.raw), "raw=%q", tt.raw)
	}
}

func TestNormalizeValueTextPassthrough(t *testing.T) {
	spec := FieldSpec{Name: "first_name", Type: FieldText}
	assert.Equal(t, "Ana", NormalizeValue(spec, "Ana"))
}

func TestMoneyField(t *testing.T) {
	rec := &Record{Fields: map[string]interface{}{
		"charge_amt": "200",
		"paid_amt":   "150",
		"bad":        "not-a-number",
		"missing":    nil,
	}}

	charge, ok := rec.MoneyField("charge_amt")
	require.True(t, ok)
	assert.True(t, charge.Equal(decimal.NewFromInt(200)))

	_, ok = rec.MoneyField("bad")
	assert.False(t, ok)

	_, ok = rec.MoneyField("missing")
	assert.False(t, ok)

	_, ok = rec.MoneyField("absent")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	for _, valid := range []string{"2024-03-01", "2024-03-01T10:30:00Z", "03/01/2024"} {
		_, ok := ParseDate(valid)
		assert.True(t, ok, "expected %q to parse", valid)
	}

	for _, invalid := range []string{"", "March 1", "2024-13-45"} {
		_, ok := ParseDate(invalid)
		assert.False(t, ok, "expected %q to fail", invalid)
	}
}

func TestSchemaTrackedFieldsDeclared(t *testing.T) {
	// Every tracked field must exist in the schema, and enriched fields
	// must never be tracked.
	for entity := range schemas {
		s, ok := SchemaFor(entity)
		require.True(t, ok)
		for _, name := range s.TrackedFields {
			f, found := s.Field(name)
			require.True(t, found, "%s tracked field %s not in schema", entity, name)
			assert.False(t, f.Enriched, "%s tracked field %s is enrichment-only", entity, name)
		}
	}
}
