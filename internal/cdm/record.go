package cdm

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is a source row mapped into the common data model. Field values
// are canonical strings (or nil for null); money fields are normalized to
// their exact decimal representation so downstream aggregates tie out to
// source amounts.
type Record struct {
	Entity       EntityType
	SourceID     string
	Dataset      string
	NaturalKey   string
	SurrogateKey string
	IngestedAt   time.Time

	Fields map[string]interface{}

	Quarantined       bool
	QuarantineReasons []string
}

// FieldString returns the value of a field as a string, with ok=false
// when the field is null or absent.
func (r *Record) FieldString(name string) (string, bool) {
	v, exists := r.Fields[name]
	if !exists || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// NormalizeValue canonicalizes a raw source value for a common field.
// Money values parse into their exact decimal form; unparseable values
// are passed through untouched so the quality gate can flag them without
// the mapper dropping data.
func NormalizeValue(spec FieldSpec, raw string) interface{} {
	switch spec.Type {
	case FieldMoney:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return raw
		}
		return d.String()
	default:
		return raw
	}
}

// MoneyField parses a money field into a decimal. Absent or unparseable
// values return ok=false.
func (r *Record) MoneyField(name string) (decimal.Decimal, bool) {
	s, ok := r.FieldString(name)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// DateLayouts are the accepted date formats for common date fields,
// tried in order.
var DateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05Z07:00", "01/02/2006"}

// ParseDate parses a common date field value.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
