package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clearbalance/revcycle-pipeline/internal/registry"
	"github.com/clearbalance/revcycle-pipeline/internal/watermark"
)

func TestBuildPlanFullMode(t *testing.T) {
	entry := registry.Entry{DatasetName: "patients", SourceID: "A", ExtractionMode: registry.ModeFull}
	latest := &watermark.Record{LastLoadedValue: "2024-03-01T00:00:00Z"}

	plan := BuildPlan(entry, latest)
	assert.True(t, plan.Full)
	assert.True(t, plan.Includes("1970-01-01T00:00:00Z"))
}

func TestBuildPlanIncrementalFirstRunIsFull(t *testing.T) {
	entry := registry.Entry{
		DatasetName:     "transactions",
		SourceID:        "A",
		ExtractionMode:  registry.ModeIncremental,
		WatermarkColumn: "modified_at",
	}

	plan := BuildPlan(entry, nil)
	assert.True(t, plan.Full)
}

func TestBuildPlanIncrementalBoundIsInclusive(t *testing.T) {
	entry := registry.Entry{
		DatasetName:     "transactions",
		SourceID:        "A",
		ExtractionMode:  registry.ModeIncremental,
		WatermarkColumn: "modified_at",
	}
	latest := &watermark.Record{
		LastLoadedValue: "2024-03-01T00:00:00Z",
		LoadedAt:        time.Now(),
	}

	plan := BuildPlan(entry, latest)
	assert.False(t, plan.Full)

	// Same-instant re-delivery is inside the window.
	assert.True(t, plan.Includes("2024-03-01T00:00:00Z"))
	assert.True(t, plan.Includes("2024-03-02T00:00:00Z"))
	assert.False(t, plan.Includes("2024-02-29T00:00:00Z"))
}
