package scheduler

import (
	"github.com/clearbalance/revcycle-pipeline/internal/registry"
	"github.com/clearbalance/revcycle-pipeline/internal/watermark"
)

// Plan is the extraction decision for one dataset in one run: a tagged
// variant computed once per run, not a persistent state machine.
type Plan struct {
	Entry registry.Entry
	// Full scans everything; otherwise rows with watermark column value
	// >= LowerBound are extracted. The bound is inclusive so same-instant
	// re-delivery is tolerated; the downstream merge is keyed, so
	// duplicate extraction never becomes duplicate versions.
	Full       bool
	LowerBound string
}

// BuildPlan decides extraction bounds from the registry entry and the
// latest watermark record. Pure: no I/O, no clock.
func BuildPlan(entry registry.Entry, latest *watermark.Record) Plan {
	if entry.ExtractionMode == registry.ModeFull || latest == nil || latest.LastLoadedValue == "" {
		return Plan{Entry: entry, Full: true}
	}
	return Plan{Entry: entry, LowerBound: latest.LastLoadedValue}
}

// Includes reports whether a row's watermark value falls inside the
// plan's extraction window.
func (p Plan) Includes(watermarkValue string) bool {
	if p.Full {
		return true
	}
	return watermark.Compare(watermarkValue, p.LowerBound) >= 0
}
