package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearbalance/revcycle-pipeline/internal/archive"
	"github.com/clearbalance/revcycle-pipeline/internal/registry"
	"github.com/clearbalance/revcycle-pipeline/internal/watermark"
)

const DefaultWorkers = 5

// Emit hands one extracted raw row to the downstream pipeline.
type Emit func(ctx context.Context, entry registry.Entry, row RawRow, ingestedAt time.Time) error

// Result summarizes one dataset's successful extraction.
type Result struct {
	SourceID      string
	DatasetName   string
	RowsExtracted int64
	Watermark     string
}

// Failure reports which dataset failed, at which stage, and why.
// Failures never mask as success; other datasets are unaffected.
type Failure struct {
	SourceID    string
	DatasetName string
	Stage       string
	Err         error
}

func (f Failure) Error() string {
	return fmt.Sprintf("dataset %s/%s failed at stage %s: %v", f.SourceID, f.DatasetName, f.Stage, f.Err)
}

// Runner drives extraction for all active registry entries over a
// bounded worker pool. Each dataset is an independent unit of work whose
// only shared state is its own watermark row, so datasets run
// concurrently without coordination.
type Runner struct {
	store      *watermark.Store
	archiver   *archive.Archiver
	extractors map[string]Extractor
	workers    int
	now        func() time.Time
}

// NewRunner wires a runner. Extractors are keyed by source_id.
func NewRunner(store *watermark.Store, archiver *archive.Archiver, extractors map[string]Extractor, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{
		store:      store,
		archiver:   archiver,
		extractors: extractors,
		workers:    workers,
		now:        time.Now,
	}
}

// Run extracts every active entry and reports per-dataset results and
// failures. A failed dataset leaves its watermark unchanged, so the next
// run's incremental window is a superset of the unprocessed window.
func (r *Runner) Run(ctx context.Context, entries []registry.Entry, emit Emit) ([]Result, []Failure) {
	runID := uuid.New().String()
	active := registry.Active(entries)
	log.Printf("[INFO] run %s: scheduling %d active dataset(s) across %d worker(s)", runID, len(active), r.workers)

	jobs := make(chan registry.Entry)
	var mu sync.Mutex
	var results []Result
	var failures []Failure

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				res, err := r.runDataset(ctx, entry, emit)
				mu.Lock()
				if err != nil {
					if f, ok := err.(Failure); ok {
						failures = append(failures, f)
					} else {
						failures = append(failures, Failure{SourceID: entry.SourceID, DatasetName: entry.DatasetName, Stage: "run", Err: err})
					}
					log.Printf("[ERROR] run %s: %v", runID, err)
				} else {
					results = append(results, res)
					log.Printf("[INFO] run %s: dataset %s/%s extracted %d row(s), watermark %q",
						runID, entry.SourceID, entry.DatasetName, res.RowsExtracted, res.Watermark)
				}
				mu.Unlock()
			}
		}()
	}

	for _, entry := range active {
		select {
		case jobs <- entry:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	return results, failures
}

// runDataset performs the full lifecycle for one dataset: plan from the
// latest watermark, extract, archive the prior raw snapshot, land the
// new snapshot, push rows downstream, then append the watermark. The
// watermark append is the sole success marker: a crash anywhere earlier
// leaves the last good watermark in place.
func (r *Runner) runDataset(ctx context.Context, entry registry.Entry, emit Emit) (Result, error) {
	fail := func(stage string, err error) (Result, error) {
		return Result{}, Failure{SourceID: entry.SourceID, DatasetName: entry.DatasetName, Stage: stage, Err: err}
	}

	extractor, ok := r.extractors[entry.SourceID]
	if !ok {
		return fail("plan", fmt.Errorf("no extractor configured for source %q", entry.SourceID))
	}

	latest, err := r.store.Latest(ctx, entry.SourceID, entry.DatasetName)
	if err != nil {
		return fail("plan", err)
	}
	plan := BuildPlan(entry, latest)
	if plan.Full {
		log.Printf("[INFO] dataset %s/%s: full extraction", entry.SourceID, entry.DatasetName)
	} else {
		log.Printf("[INFO] dataset %s/%s: incremental extraction from %q (inclusive)",
			entry.SourceID, entry.DatasetName, plan.LowerBound)
	}

	rows, err := extractor.Extract(ctx, plan)
	if err != nil {
		return fail("extract", err)
	}

	// The prior snapshot must be safely out of the way before any new
	// raw output lands; an archiver failure stops this dataset cold.
	if err := r.archiver.ArchivePrior(entry.SourceID, entry.DatasetName); err != nil {
		return fail("archive", err)
	}

	snapshot, err := encodeSnapshot(rows)
	if err != nil {
		return fail("land", err)
	}
	if _, err := r.archiver.WriteSnapshot(entry.SourceID, entry.DatasetName, "data.jsonl", snapshot); err != nil {
		return fail("land", err)
	}

	ingestedAt := r.now().UTC()
	var observed []string
	for _, row := range rows {
		if err := emit(ctx, entry, row, ingestedAt); err != nil {
			return fail("process", err)
		}
		if entry.WatermarkColumn != "" {
			observed = append(observed, row[entry.WatermarkColumn])
		}
	}

	maxWatermark := watermark.Max(observed)
	if maxWatermark == "" && latest != nil {
		// An empty incremental window keeps the previous position.
		maxWatermark = latest.LastLoadedValue
	}
	rec := watermark.Record{
		SourceID:        entry.SourceID,
		DatasetName:     entry.DatasetName,
		LastLoadedValue: maxWatermark,
		RowsLoaded:      int64(len(rows)),
		LoadedAt:        ingestedAt,
	}
	if err := r.store.Append(ctx, rec); err != nil {
		return fail("watermark", err)
	}

	return Result{
		SourceID:      entry.SourceID,
		DatasetName:   entry.DatasetName,
		RowsExtracted: int64(len(rows)),
		Watermark:     maxWatermark,
	}, nil
}

// encodeSnapshot serializes raw rows as JSON lines for the raw landing area.
func encodeSnapshot(rows []RawRow) ([]byte, error) {
	var buf []byte
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encoding raw row: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}
