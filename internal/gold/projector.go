package gold

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	duckdb "github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"

	"github.com/clearbalance/revcycle-pipeline/internal/cdm"
)

// SilverRow is one current, non-quarantined versioned record read back
// from the silver store.
type SilverRow struct {
	SurrogateKey string
	NaturalKey   string
	SourceID     string
	Fields       map[string]interface{}
}

// DimensionRow is one row of a gold dimension: exactly one per
// surviving surrogate key.
type DimensionRow struct {
	SurrogateKey string
	NaturalKey   string
	SourceID     string
	Attributes   map[string]interface{}
}

// FactRow is one transaction in the gold fact table with resolved
// dimension keys and derived monetary fields.
type FactRow struct {
	TransactionKey   string
	PatientKey       string
	ProviderKey      string
	Department       string
	TransactionDate  time.Time
	ChargeAmt        decimal.Decimal
	PaidAmt          decimal.Decimal
	RemainingBalance decimal.Decimal
	AgingBucket      string
	SourceID         string
}

// Summary reports what one projection produced.
type Summary struct {
	Patients      int
	Providers     int
	Facts         int
	ExcludedFacts int
}

// Projector builds the dimensional model from the versioned silver
// store. Only current, non-quarantined rows survive; facts referencing
// a dimension key with no surviving dimension row are excluded, so
// referential completeness is enforced here, not assumed.
type Projector struct {
	connector *duckdb.Connector
	db        *sql.DB
}

func NewProjector(dbPath string) (*Projector, error) {
	connector, err := duckdb.NewConnector(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}
	return &Projector{connector: connector, db: db}, nil
}

// Run rebuilds the gold layer as of the given date. The projection is a
// full rebuild from silver, so re-running it is idempotent.
func (p *Projector) Run(ctx context.Context, asOf time.Time) (Summary, error) {
	patients, err := p.readCurrent(ctx, cdm.EntityPatient)
	if err != nil {
		return Summary{}, err
	}
	providers, err := p.readCurrent(ctx, cdm.EntityProvider)
	if err != nil {
		return Summary{}, err
	}
	transactions, err := p.readCurrent(ctx, cdm.EntityTransaction)
	if err != nil {
		return Summary{}, err
	}

	dimPatients := BuildDimension(patients, cdm.EntityPatient)
	dimProviders := BuildDimension(providers, cdm.EntityProvider)
	facts, excluded := BuildFacts(transactions, keySet(dimPatients), keySet(dimProviders), asOf)

	if err := p.writeDimension(ctx, "dim_patient", cdm.EntityPatient, dimPatients); err != nil {
		return Summary{}, err
	}
	if err := p.writeDimension(ctx, "dim_provider", cdm.EntityProvider, dimProviders); err != nil {
		return Summary{}, err
	}
	if err := p.writeFacts(ctx, facts); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Patients:      len(dimPatients),
		Providers:     len(dimProviders),
		Facts:         len(facts),
		ExcludedFacts: excluded,
	}
	log.Printf("[INFO] gold projection: %d patient(s), %d provider(s), %d fact(s), %d excluded",
		summary.Patients, summary.Providers, summary.Facts, summary.ExcludedFacts)
	return summary, nil
}

// readCurrent pulls the current, non-quarantined subset for an entity.
func (p *Projector) readCurrent(ctx context.Context, entity cdm.EntityType) ([]SilverRow, error) {
	schema, _ := cdm.SchemaFor(entity)
	cols := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		cols = append(cols, f.Name)
	}

	query := fmt.Sprintf(
		`SELECT surrogate_key, natural_key, source_id, %s FROM silver_%s WHERE is_current AND NOT is_quarantined`,
		strings.Join(cols, ", "), entity)
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read silver_%s: %w", entity, err)
	}
	defer rows.Close()

	var out []SilverRow
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		scanArgs := []interface{}{}
		var sk, nk, src sql.NullString
		scanArgs = append(scanArgs, &sk, &nk, &src)
		for i := range values {
			scanArgs = append(scanArgs, &values[i])
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		row := SilverRow{
			SurrogateKey: sk.String,
			NaturalKey:   nk.String,
			SourceID:     src.String,
			Fields:       make(map[string]interface{}, len(cols)),
		}
		for i, col := range cols {
			if values[i].Valid {
				row.Fields[col] = values[i].String
			} else {
				row.Fields[col] = nil
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// BuildDimension projects one dimension row per surrogate key. Pure.
func BuildDimension(rows []SilverRow, entity cdm.EntityType) []DimensionRow {
	schema, _ := cdm.SchemaFor(entity)
	out := make([]DimensionRow, 0, len(rows))
	for _, row := range rows {
		dim := DimensionRow{
			SurrogateKey: row.SurrogateKey,
			NaturalKey:   row.NaturalKey,
			SourceID:     row.SourceID,
			Attributes:   make(map[string]interface{}, len(schema.Fields)),
		}
		for _, f := range schema.Fields {
			dim.Attributes[f.Name] = row.Fields[f.Name]
		}
		out = append(out, dim)
	}
	return out
}

// BuildFacts derives fact rows from current transactions, resolving
// foreign keys against the built dimensions. Pure. Returns the facts
// and the count of rows excluded for referential incompleteness.
func BuildFacts(rows []SilverRow, patientKeys, providerKeys map[string]bool, asOf time.Time) ([]FactRow, int) {
	var facts []FactRow
	excluded := 0
	for _, row := range rows {
		fact, ok := buildFact(row, patientKeys, providerKeys, asOf)
		if !ok {
			excluded++
			continue
		}
		facts = append(facts, fact)
	}
	return facts, excluded
}

func buildFact(row SilverRow, patientKeys, providerKeys map[string]bool, asOf time.Time) (FactRow, bool) {
	patientID, _ := stringField(row, "patient_id")
	providerID, _ := stringField(row, "provider_id")
	patientKey := cdm.SurrogateKey(patientID, row.SourceID)
	providerKey := cdm.SurrogateKey(providerID, row.SourceID)
	if !patientKeys[patientKey] || !providerKeys[providerKey] {
		return FactRow{}, false
	}

	dateStr, ok := stringField(row, "transaction_date")
	if !ok {
		return FactRow{}, false
	}
	txDate, ok := cdm.ParseDate(dateStr)
	if !ok {
		return FactRow{}, false
	}

	charge, ok := decimalField(row, "charge_amt")
	if !ok {
		return FactRow{}, false
	}
	paid, ok := decimalField(row, "paid_amt")
	if !ok {
		return FactRow{}, false
	}

	department, _ := stringField(row, "department")
	return FactRow{
		TransactionKey:   row.SurrogateKey,
		PatientKey:       patientKey,
		ProviderKey:      providerKey,
		Department:       department,
		TransactionDate:  txDate,
		ChargeAmt:        charge,
		PaidAmt:          paid,
		RemainingBalance: charge.Sub(paid),
		AgingBucket:      AgingBucket(AgeDays(txDate, asOf)),
		SourceID:         row.SourceID,
	}, true
}

// AgeDays is the elapsed whole days between the transaction date and
// the as-of date.
func AgeDays(txDate, asOf time.Time) int {
	return int(asOf.Sub(txDate).Hours() / 24)
}

// AgingBucket classifies outstanding balance age for AR reporting.
func AgingBucket(ageDays int) string {
	switch {
	case ageDays <= 30:
		return "0-30"
	case ageDays <= 60:
		return "31-60"
	case ageDays <= 90:
		return "61-90"
	default:
		return "90+"
	}
}

func keySet(dims []DimensionRow) map[string]bool {
	set := make(map[string]bool, len(dims))
	for _, d := range dims {
		set[d.SurrogateKey] = true
	}
	return set
}

func stringField(row SilverRow, name string) (string, bool) {
	v, exists := row.Fields[name]
	if !exists || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func decimalField(row SilverRow, name string) (decimal.Decimal, bool) {
	s, ok := stringField(row, name)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (p *Projector) writeDimension(ctx context.Context, table string, entity cdm.EntityType, dims []DimensionRow) error {
	schema, _ := cdm.SchemaFor(entity)
	cols := []string{"surrogate_key", "natural_key", "source_id"}
	for _, f := range schema.Fields {
		cols = append(cols, f.Name)
	}

	var ddl strings.Builder
	fmt.Fprintf(&ddl, "CREATE OR REPLACE TABLE %s (\n", table)
	for i, col := range cols {
		if i > 0 {
			ddl.WriteString(",\n")
		}
		fmt.Fprintf(&ddl, "    %s VARCHAR", col)
	}
	ddl.WriteString("\n)")
	if _, err := p.db.ExecContext(ctx, ddl.String()); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
	for _, dim := range dims {
		args := []interface{}{dim.SurrogateKey, dim.NaturalKey, dim.SourceID}
		for _, f := range schema.Fields {
			args = append(args, dim.Attributes[f.Name])
		}
		if _, err := p.db.ExecContext(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

func (p *Projector) writeFacts(ctx context.Context, facts []FactRow) error {
	ddl := `CREATE OR REPLACE TABLE fact_transaction (
    transaction_key VARCHAR NOT NULL,
    patient_key VARCHAR NOT NULL,
    provider_key VARCHAR NOT NULL,
    department VARCHAR,
    transaction_date DATE,
    charge_amt DECIMAL(18,2),
    paid_amt DECIMAL(18,2),
    remaining_balance DECIMAL(18,2),
    aging_bucket VARCHAR,
    source_id VARCHAR
)`
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create fact_transaction: %w", err)
	}

	insertSQL := `INSERT INTO fact_transaction (transaction_key, patient_key, provider_key, department,
        transaction_date, charge_amt, paid_amt, remaining_balance, aging_bucket, source_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, f := range facts {
		args := []interface{}{
			f.TransactionKey, f.PatientKey, f.ProviderKey, nullableString(f.Department),
			f.TransactionDate, f.ChargeAmt.StringFixed(2), f.PaidAmt.StringFixed(2),
			f.RemainingBalance.StringFixed(2), f.AgingBucket, f.SourceID,
		}
		if _, err := p.db.ExecContext(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("failed to insert fact %s: %w", f.TransactionKey, err)
		}
	}
	return nil
}

// Facts reads the projected fact table back, for KPI computation.
func (p *Projector) Facts(ctx context.Context) ([]FactRow, error) {
	// Decimals come back as VARCHAR so exact values survive the scan.
	rows, err := p.db.QueryContext(ctx, `SELECT transaction_key, patient_key, provider_key, department,
        transaction_date, CAST(charge_amt AS VARCHAR), CAST(paid_amt AS VARCHAR),
        CAST(remaining_balance AS VARCHAR), aging_bucket, source_id
        FROM fact_transaction`)
	if err != nil {
		return nil, fmt.Errorf("failed to read fact_transaction: %w", err)
	}
	defer rows.Close()

	var facts []FactRow
	for rows.Next() {
		var f FactRow
		var department sql.NullString
		var charge, paid, remaining string
		if err := rows.Scan(&f.TransactionKey, &f.PatientKey, &f.ProviderKey, &department,
			&f.TransactionDate, &charge, &paid, &remaining, &f.AgingBucket, &f.SourceID); err != nil {
			return nil, err
		}
		f.Department = department.String
		if f.ChargeAmt, err = decimal.NewFromString(charge); err != nil {
			return nil, fmt.Errorf("bad charge_amt for %s: %w", f.TransactionKey, err)
		}
		if f.PaidAmt, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("bad paid_amt for %s: %w", f.TransactionKey, err)
		}
		if f.RemainingBalance, err = decimal.NewFromString(remaining); err != nil {
			return nil, fmt.Errorf("bad remaining_balance for %s: %w", f.TransactionKey, err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (p *Projector) Close() error {
	if err := p.db.Close(); err != nil {
		return err
	}
	return p.connector.Close()
}
