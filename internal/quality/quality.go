package quality

import (
	"fmt"
	"strings"

	"github.com/clearbalance/revcycle-pipeline/internal/cdm"
)

// Predicate validates one aspect of a unified record. A failure returns
// a reason string; it never mutates the record.
type Predicate func(rec *cdm.Record) (string, bool)

// Evaluate runs the fixed predicate set for the record's entity type and
// returns quarantine reasons. An empty slice means the record is clean.
// Evaluation is advisory only: rows are flagged, never dropped.
func Evaluate(rec *cdm.Record) []string {
	schema, ok := cdm.SchemaFor(rec.Entity)
	if !ok {
		return []string{fmt.Sprintf("unknown entity type %q", rec.Entity)}
	}

	var reasons []string
	for _, f := range schema.Fields {
		if f.Enriched {
			continue
		}
		val, present := rec.FieldString(f.Name)

		if f.Required && (!present || val == "") {
			reasons = append(reasons, fmt.Sprintf("required field %s is null or empty", f.Name))
			continue
		}
		if !present {
			continue
		}

		switch f.Type {
		case cdm.FieldText:
			if isPlaceholderNull(val) {
				reasons = append(reasons, fmt.Sprintf("field %s holds placeholder %q", f.Name, val))
			}
		case cdm.FieldDate:
			if _, ok := cdm.ParseDate(val); !ok {
				reasons = append(reasons, fmt.Sprintf("field %s is not a parseable date: %q", f.Name, val))
			}
		case cdm.FieldMoney:
			if _, ok := rec.MoneyField(f.Name); !ok {
				reasons = append(reasons, fmt.Sprintf("field %s is not a parseable amount: %q", f.Name, val))
			}
		}
	}

	if rec.NaturalKey == "" {
		reasons = append(reasons, "natural key is empty")
	}
	return reasons
}

// isPlaceholderNull catches the literal string "null" in any case form,
// a common export artifact from upstream systems.
func isPlaceholderNull(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "null")
}
