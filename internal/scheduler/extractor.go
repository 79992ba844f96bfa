package scheduler

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// RawRow is a source-native row: source column name -> raw value.
type RawRow map[string]string

// Extractor pulls rows from one source system according to a plan.
// Implementations must return an error without partial side effects so
// a failed extraction is fully retryable from the last good watermark.
type Extractor interface {
	Extract(ctx context.Context, plan Plan) ([]RawRow, error)
}

// CSVExtractor reads flat-file exports dropped by a source system at
// <baseDir>/<dataset_name>.csv, header row first.
type CSVExtractor struct {
	baseDir string
}

func NewCSVExtractor(baseDir string) *CSVExtractor {
	return &CSVExtractor{baseDir: baseDir}
}

func (e *CSVExtractor) Extract(ctx context.Context, plan Plan) ([]RawRow, error) {
	path := filepath.Join(e.baseDir, plan.Entry.DatasetName+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening source export %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "reading header of %s", path)
	}

	wmIdx := -1
	for i, col := range header {
		if col == plan.Entry.WatermarkColumn {
			wmIdx = i
		}
	}
	if !plan.Full && wmIdx < 0 {
		return nil, errors.Errorf("watermark column %q not present in %s",
			plan.Entry.WatermarkColumn, path)
	}

	var rows []RawRow
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		if !plan.Full && !plan.Includes(record[wmIdx]) {
			continue
		}
		row := make(RawRow, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
