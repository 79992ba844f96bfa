package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/clearbalance/revcycle-pipeline/internal/archive"
	"github.com/clearbalance/revcycle-pipeline/internal/registry"
	"github.com/clearbalance/revcycle-pipeline/internal/scheduler"
	"github.com/clearbalance/revcycle-pipeline/internal/watermark"
	"github.com/clearbalance/revcycle-pipeline/processor"
)

// RegistrySourceAdapter drives the extraction scheduler from a load
// registry file and feeds every extracted row into the processor chain
// as a JSON payload tagged with source provenance.
type RegistrySourceAdapter struct {
	registryFile string
	store        *watermark.Store
	archiver     *archive.Archiver
	runner       *scheduler.Runner
	extractors   map[string]scheduler.Extractor
	processors   []processor.Processor
}

func NewRegistrySourceAdapter(config map[string]interface{}) (*RegistrySourceAdapter, error) {
	registryFile, ok := config["registry_file"].(string)
	if !ok {
		return nil, errors.New("registry_file must be a string")
	}
	watermarkDB, ok := config["watermark_db"].(string)
	if !ok {
		return nil, errors.New("watermark_db must be a string")
	}
	rawDir, ok := config["raw_dir"].(string)
	if !ok {
		return nil, errors.New("raw_dir must be a string")
	}
	archiveDir, ok := config["archive_dir"].(string)
	if !ok {
		return nil, errors.New("archive_dir must be a string")
	}

	workers := 0
	if w, ok := config["workers"].(int); ok {
		workers = w
	}

	extractors, err := buildExtractors(config["sources"])
	if err != nil {
		return nil, err
	}

	store, err := watermark.NewStore(watermarkDB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open watermark store")
	}

	archiver := archive.New(rawDir, archiveDir)
	return &RegistrySourceAdapter{
		registryFile: registryFile,
		store:        store,
		archiver:     archiver,
		runner:       scheduler.NewRunner(store, archiver, extractors, workers),
		extractors:   extractors,
	}, nil
}

// buildExtractors wires one extractor per source_id from the sources
// map. CSV sources read from a base directory; postgres sources pull
// from a live database.
func buildExtractors(raw interface{}) (map[string]scheduler.Extractor, error) {
	sources, ok := raw.(map[interface{}]interface{})
	if !ok {
		return nil, errors.New("sources must be a map of source_id to source config")
	}

	extractors := make(map[string]scheduler.Extractor, len(sources))
	for idRaw, cfgRaw := range sources {
		id, ok := idRaw.(string)
		if !ok {
			return nil, errors.New("source_id keys must be strings")
		}
		cfg, ok := cfgRaw.(map[interface{}]interface{})
		if !ok {
			return nil, errors.Errorf("source %s config must be a map", id)
		}

		kind, _ := cfg["kind"].(string)
		switch kind {
		case "csv":
			baseDir, ok := cfg["base_dir"].(string)
			if !ok {
				return nil, errors.Errorf("source %s: base_dir must be a string", id)
			}
			extractors[id] = scheduler.NewCSVExtractor(baseDir)
		case "postgres":
			dsn, ok := cfg["dsn"].(string)
			if !ok {
				return nil, errors.Errorf("source %s: dsn must be a string", id)
			}
			ext, err := scheduler.NewPostgresExtractor(dsn)
			if err != nil {
				return nil, errors.Wrapf(err, "source %s", id)
			}
			extractors[id] = ext
		default:
			return nil, errors.Errorf("source %s: unsupported kind %q", id, kind)
		}
	}
	return extractors, nil
}

func (a *RegistrySourceAdapter) Subscribe(p processor.Processor) {
	a.processors = append(a.processors, p)
}

// Run loads the registry, extracts every active dataset, and pushes
// each raw row through the subscribed chain. Dataset failures are
// collected and reported together; they never mask as success.
func (a *RegistrySourceAdapter) Run(ctx context.Context) error {
	defer a.close()

	entries, err := registry.Load(a.registryFile)
	if err != nil {
		return errors.Wrap(err, "failed to load registry")
	}

	results, failures := a.runner.Run(ctx, entries, a.emit)

	var total int64
	for _, res := range results {
		total += res.RowsExtracted
	}
	log.Printf("[INFO] extraction complete: %d dataset(s) succeeded, %d failed, %d row(s) emitted",
		len(results), len(failures), total)

	if len(failures) > 0 {
		return fmt.Errorf("%d dataset(s) failed; first: %v", len(failures), failures[0])
	}
	return nil
}

func (a *RegistrySourceAdapter) emit(ctx context.Context, entry registry.Entry, row scheduler.RawRow, ingestedAt time.Time) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "failed to encode raw row")
	}

	msg := processor.Message{Payload: payload}
	msg.WithSourceMetadata(&processor.SourceMetadata{
		SourceID:    entry.SourceID,
		DatasetName: entry.DatasetName,
		IngestedAt:  ingestedAt,
	})

	for _, p := range a.processors {
		if err := p.Process(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (a *RegistrySourceAdapter) close() {
	if err := a.store.Close(); err != nil {
		log.Printf("[WARN] failed to close watermark store: %v", err)
	}
	for id, ext := range a.extractors {
		if closer, ok := ext.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Printf("[WARN] failed to close extractor for source %s: %v", id, err)
			}
		}
	}
}
