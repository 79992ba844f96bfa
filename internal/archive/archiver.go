package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Archiver relocates prior raw snapshots to a dated retention area
// before an extraction overwrites the raw landing location. Snapshots
// are moved intact, never merged or deleted.
type Archiver struct {
	rawRoot     string
	archiveRoot string
	now         func() time.Time
}

// New creates an archiver over the given raw and retention roots.
func New(rawRoot, archiveRoot string) *Archiver {
	return &Archiver{rawRoot: rawRoot, archiveRoot: archiveRoot, now: time.Now}
}

// RawPath is the current-snapshot location for a dataset:
// <raw>/<source_id>/<dataset_name>/
func (a *Archiver) RawPath(sourceID, datasetName string) string {
	return filepath.Join(a.rawRoot, sourceID, datasetName)
}

// retentionPath is <archive>/<yyyy>/<mm>/<dd>/<source_id>/<dataset_name>/
func (a *Archiver) retentionPath(sourceID, datasetName string, t time.Time) string {
	return filepath.Join(a.archiveRoot,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		sourceID, datasetName)
}

// ArchivePrior moves the existing raw snapshot for a dataset, if any, to
// the dated retention area. The move uses os.Rename so the prior
// snapshot either lands whole at the retention path or stays whole at
// the raw path; a failure here must stop the dataset's extraction so
// old and new raw data are never mixed.
func (a *Archiver) ArchivePrior(sourceID, datasetName string) error {
	rawPath := a.RawPath(sourceID, datasetName)
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to stat raw snapshot %s: %w", rawPath, err)
	}

	dest := a.retentionPath(sourceID, datasetName, a.now())
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return fmt.Errorf("failed to create retention directory: %w", err)
	}

	// A snapshot archived earlier the same day is superseded in place.
	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to clear retention path %s: %w", dest, err)
		}
	}

	if err := os.Rename(rawPath, dest); err != nil {
		return fmt.Errorf("failed to archive raw snapshot %s -> %s: %w", rawPath, dest, err)
	}
	return nil
}

// WriteSnapshot persists new raw output for a dataset at the raw
// location. The write is atomic per file (temp then rename).
func (a *Archiver) WriteSnapshot(sourceID, datasetName, fileName string, data []byte) (string, error) {
	path := filepath.Join(a.RawPath(sourceID, datasetName), fileName)
	if err := WriteAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
