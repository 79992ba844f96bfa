package watermark

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one entry of the append-only watermark/audit log. Records
// are keyed by (source_id, dataset_name, loaded_at); there is no global
// counter, so concurrent appends need no coordination.
type Record struct {
	SourceID        string
	DatasetName     string
	LastLoadedValue string
	RowsLoaded      int64
	LoadedAt        time.Time
}

// Store persists watermark records in SQLite. The store is append-only:
// a new run appends a new record, and the effective watermark for a
// dataset is the most recent record's value. The scheduler is the sole
// writer; operators read the history for lineage and troubleshooting.
type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS watermark_log (
    source_id         TEXT NOT NULL,
    dataset_name      TEXT NOT NULL,
    last_loaded_value TEXT NOT NULL,
    rows_loaded       INTEGER NOT NULL,
    loaded_at         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watermark_log_dataset
    ON watermark_log (source_id, dataset_name, loaded_at);
`

// NewStore opens (or creates) the watermark log at the given path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping watermark store: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize watermark_log: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records a successful extraction. It only ever inserts.
func (s *Store) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermark_log (source_id, dataset_name, last_loaded_value, rows_loaded, loaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SourceID, rec.DatasetName, rec.LastLoadedValue, rec.RowsLoaded, rec.LoadedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append watermark for %s/%s: %w", rec.SourceID, rec.DatasetName, err)
	}
	return nil
}

// Latest returns the effective watermark record for a dataset, or nil
// when the dataset has never been loaded.
func (s *Store) Latest(ctx context.Context, sourceID, datasetName string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_id, dataset_name, last_loaded_value, rows_loaded, loaded_at
		 FROM watermark_log
		 WHERE source_id = ? AND dataset_name = ?
		 ORDER BY loaded_at DESC
		 LIMIT 1`,
		sourceID, datasetName)

	var rec Record
	err := row.Scan(&rec.SourceID, &rec.DatasetName, &rec.LastLoadedValue, &rec.RowsLoaded, &rec.LoadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark for %s/%s: %w", sourceID, datasetName, err)
	}
	return &rec, nil
}

// History returns all watermark records for a dataset, newest first.
func (s *Store) History(ctx context.Context, sourceID, datasetName string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, dataset_name, last_loaded_value, rows_loaded, loaded_at
		 FROM watermark_log
		 WHERE source_id = ? AND dataset_name = ?
		 ORDER BY loaded_at DESC`,
		sourceID, datasetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SourceID, &rec.DatasetName, &rec.LastLoadedValue, &rec.RowsLoaded, &rec.LoadedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
