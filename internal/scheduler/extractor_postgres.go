package scheduler

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// PostgresExtractor pulls rows from a source system exposed as a
// Postgres database. Each dataset maps to a table of the same name.
type PostgresExtractor struct {
	db *sql.DB
}

func NewPostgresExtractor(connString string) (*PostgresExtractor, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, errors.Wrap(err, "opening source database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging source database")
	}
	return &PostgresExtractor{db: db}, nil
}

func (e *PostgresExtractor) Extract(ctx context.Context, plan Plan) ([]RawRow, error) {
	query := fmt.Sprintf(`SELECT * FROM %s`, plan.Entry.DatasetName) //nolint:gosec // dataset names come from operator config
	args := []interface{}{}
	if !plan.Full {
		// Inclusive bound: same-instant re-delivery is re-extracted and
		// de-duplicated by the keyed merge downstream.
		query += fmt.Sprintf(` WHERE %s >= $1`, plan.Entry.WatermarkColumn)
		args = append(args, plan.LowerBound)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "extracting %s", plan.Entry.DatasetName)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading result columns")
	}

	var out []RawRow
	values := make([]sql.NullString, len(columns))
	scanArgs := make([]interface{}, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Wrapf(err, "scanning row of %s", plan.Entry.DatasetName)
		}
		row := make(RawRow, len(columns))
		for i, col := range columns {
			if values[i].Valid {
				row[col] = values[i].String
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating %s", plan.Entry.DatasetName)
	}
	return out, nil
}

func (e *PostgresExtractor) Close() error {
	return e.db.Close()
}
