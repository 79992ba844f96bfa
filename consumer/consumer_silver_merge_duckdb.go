package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	duckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/clearbalance/revcycle-pipeline/internal/cdm"
	"github.com/clearbalance/revcycle-pipeline/processor"
)

const mergeLockStripes = 64

// SilverMergeDuckDB maintains the versioned (SCD Type 2) silver tables
// in DuckDB. For every incoming unified record it looks up the current
// version for the surrogate key, compares the entity's tracked fields,
// and either no-ops, inserts a first version, or closes the old version
// and inserts a new current one. Updates for the same key are serialized
// through key-scoped locks; different keys merge concurrently.
//
// Quarantined records version normally. They are retained in silver and
// only excluded later, at gold projection.
type SilverMergeDuckDB struct {
	connector  *duckdb.Connector
	db         *sql.DB
	processors []processor.Processor

	locks [mergeLockStripes]sync.Mutex
	now   func() time.Time

	stats SilverMergeStats
}

type SilverMergeStats struct {
	TotalMerged     atomic.Uint64
	TotalInserted   atomic.Uint64
	TotalSuperseded atomic.Uint64
	TotalUnchanged  atomic.Uint64
}

func NewSilverMergeDuckDB(config map[string]interface{}) (*SilverMergeDuckDB, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok || dbPath == "" {
		return nil, fmt.Errorf("invalid configuration: missing 'db_path'")
	}

	connector, err := duckdb.NewConnector(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}

	c := &SilverMergeDuckDB{
		connector: connector,
		db:        db,
		now:       time.Now,
	}
	if err := c.initializeTables(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("SilverMerge: versioned store ready at %s", dbPath)
	return c, nil
}

// SilverTableName returns the versioned table for an entity type.
func SilverTableName(entity cdm.EntityType) string {
	return "silver_" + string(entity)
}

func (c *SilverMergeDuckDB) initializeTables() error {
	for _, entity := range []cdm.EntityType{cdm.EntityPatient, cdm.EntityProvider, cdm.EntityTransaction} {
		schema, _ := cdm.SchemaFor(entity)
		if _, err := c.db.Exec(createSilverTableSQL(schema)); err != nil {
			return fmt.Errorf("failed to create %s: %w", SilverTableName(entity), err)
		}
	}
	log.Println("SilverMerge: silver tables initialized")
	return nil
}

func createSilverTableSQL(schema cdm.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", SilverTableName(schema.Entity))
	b.WriteString("    surrogate_key VARCHAR NOT NULL,\n")
	b.WriteString("    natural_key VARCHAR,\n")
	b.WriteString("    source_id VARCHAR,\n")
	b.WriteString("    ingested_at TIMESTAMP,\n")
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "    %s VARCHAR,\n", f.Name)
	}
	b.WriteString("    is_quarantined BOOLEAN,\n")
	b.WriteString("    quarantine_reasons VARCHAR,\n")
	b.WriteString("    is_current BOOLEAN,\n")
	b.WriteString("    valid_from TIMESTAMP,\n")
	b.WriteString("    valid_to TIMESTAMP\n")
	b.WriteString(")")
	return b.String()
}

func (c *SilverMergeDuckDB) Subscribe(p processor.Processor) {
	c.processors = append(c.processors, p)
}

// keyLock returns the stripe serializing merges for a surrogate key.
func (c *SilverMergeDuckDB) keyLock(surrogateKey string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(surrogateKey))
	return &c.locks[h.Sum32()%mergeLockStripes]
}

func (c *SilverMergeDuckDB) Process(ctx context.Context, msg processor.Message) error {
	rec, ok := msg.Payload.(*cdm.Record)
	if !ok {
		return fmt.Errorf("expected *cdm.Record type for message.Payload, got %T", msg.Payload)
	}
	schema, ok := cdm.SchemaFor(rec.Entity)
	if !ok {
		return fmt.Errorf("unknown entity type %q", rec.Entity)
	}

	// The lookup-then-write sequence below must not interleave for the
	// same key, or two concurrently-current rows could appear.
	lock := c.keyLock(rec.SurrogateKey)
	lock.Lock()
	defer lock.Unlock()

	c.stats.TotalMerged.Add(1)
	return c.merge(ctx, schema, rec)
}

func (c *SilverMergeDuckDB) merge(ctx context.Context, schema cdm.Schema, rec *cdm.Record) error {
	table := SilverTableName(schema.Entity)

	existing, found, err := c.lookupCurrent(ctx, table, schema, rec.SurrogateKey)
	if err != nil {
		return err
	}

	switch decideMerge(found, existing, rec, schema.TrackedFields) {
	case mergeNoop:
		c.stats.TotalUnchanged.Add(1)
		return nil

	case mergeInsert:
		if err := c.insertVersion(ctx, table, schema, rec, c.now().UTC()); err != nil {
			return err
		}
		c.stats.TotalInserted.Add(1)
		return nil

	case mergeSupersede:
		now := c.now().UTC()
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin merge transaction: %w", err)
		}
		defer tx.Rollback()

		closeSQL := fmt.Sprintf(
			`UPDATE %s SET is_current = FALSE, valid_to = ? WHERE surrogate_key = ? AND is_current`, table)
		if _, err := tx.ExecContext(ctx, closeSQL, now, rec.SurrogateKey); err != nil {
			return fmt.Errorf("failed to close prior version of %s: %w", rec.SurrogateKey, err)
		}
		if err := c.insertVersionTx(ctx, tx, table, schema, rec, now); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit merge for %s: %w", rec.SurrogateKey, err)
		}
		c.stats.TotalSuperseded.Add(1)
		return nil
	}
	return nil
}

// currentVersion is the tracked-field snapshot of the current row.
type currentVersion struct {
	fields      map[string]interface{}
	quarantined bool
}

func (c *SilverMergeDuckDB) lookupCurrent(ctx context.Context, table string, schema cdm.Schema, surrogateKey string) (currentVersion, bool, error) {
	cols := append([]string{}, schema.TrackedFields...)
	query := fmt.Sprintf(
		`SELECT %s, is_quarantined FROM %s WHERE surrogate_key = ? AND is_current`,
		strings.Join(cols, ", "), table)

	values := make([]sql.NullString, len(cols))
	scanArgs := make([]interface{}, 0, len(cols)+1)
	for i := range values {
		scanArgs = append(scanArgs, &values[i])
	}
	var quarantined bool
	scanArgs = append(scanArgs, &quarantined)

	err := c.db.QueryRowContext(ctx, query, surrogateKey).Scan(scanArgs...)
	if err == sql.ErrNoRows {
		return currentVersion{}, false, nil
	}
	if err != nil {
		return currentVersion{}, false, fmt.Errorf("failed to look up current version of %s: %w", surrogateKey, err)
	}

	existing := currentVersion{fields: make(map[string]interface{}, len(cols)), quarantined: quarantined}
	for i, col := range cols {
		if values[i].Valid {
			existing.fields[col] = values[i].String
		} else {
			existing.fields[col] = nil
		}
	}
	return existing, true, nil
}

type mergeAction int

const (
	mergeInsert mergeAction = iota
	mergeNoop
	mergeSupersede
)

// decideMerge compares the incoming record against the current version
// over exactly the entity's tracked fields plus the quarantine flag.
// Identical content must not create a spurious version: re-ingesting
// unchanged data is a no-op.
func decideMerge(found bool, existing currentVersion, rec *cdm.Record, tracked []string) mergeAction {
	if !found {
		return mergeInsert
	}
	if existing.quarantined != rec.Quarantined {
		return mergeSupersede
	}
	for _, field := range tracked {
		if !valuesEqual(existing.fields[field], rec.Fields[field]) {
			return mergeSupersede
		}
	}
	return mergeNoop
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	return aok && bok && as == bs
}

func (c *SilverMergeDuckDB) insertVersion(ctx context.Context, table string, schema cdm.Schema, rec *cdm.Record, now time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()
	if err := c.insertVersionTx(ctx, tx, table, schema, rec, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SilverMergeDuckDB) insertVersionTx(ctx context.Context, tx *sql.Tx, table string, schema cdm.Schema, rec *cdm.Record, now time.Time) error {
	cols := []string{"surrogate_key", "natural_key", "source_id", "ingested_at"}
	args := []interface{}{rec.SurrogateKey, rec.NaturalKey, rec.SourceID, rec.IngestedAt.UTC()}
	for _, f := range schema.Fields {
		cols = append(cols, f.Name)
		args = append(args, fieldArg(rec, f.Name))
	}
	cols = append(cols, "is_quarantined", "quarantine_reasons", "is_current", "valid_from", "valid_to")
	args = append(args, rec.Quarantined, strings.Join(rec.QuarantineReasons, "; "), true, now, nil)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insertSQL := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(cols, ", "), placeholders)
	if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("failed to insert version of %s: %w", rec.SurrogateKey, err)
	}
	return nil
}

func fieldArg(rec *cdm.Record, name string) interface{} {
	v, ok := rec.FieldString(name)
	if !ok {
		return nil
	}
	return v
}

// GetStats returns current merge statistics.
func (c *SilverMergeDuckDB) GetStats() *SilverMergeStats {
	return &c.stats
}

// Close flushes statistics to the log and closes the store.
func (c *SilverMergeDuckDB) Close() error {
	log.Printf("SilverMerge Stats: Merged=%d, Inserted=%d, Superseded=%d, Unchanged=%d",
		c.stats.TotalMerged.Load(),
		c.stats.TotalInserted.Load(),
		c.stats.TotalSuperseded.Load(),
		c.stats.TotalUnchanged.Load())

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	if c.connector != nil {
		if err := c.connector.Close(); err != nil {
			log.Printf("SilverMerge: warning - failed to close connector: %v", err)
		}
	}
	return nil
}

var _ processor.Processor = (*SilverMergeDuckDB)(nil)
