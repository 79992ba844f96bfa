package kpi

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/clearbalance/revcycle-pipeline/internal/gold"
)

func fact(providerKey, department, date, charge, paid, bucket string) gold.FactRow {
	txDate, _ := time.Parse("2006-01-02", date)
	chargeAmt := decimal.RequireFromString(charge)
	paidAmt := decimal.RequireFromString(paid)
	return gold.FactRow{
		TransactionKey:   "T-" + date,
		PatientKey:       "101-A",
		ProviderKey:      providerKey,
		Department:       department,
		TransactionDate:  txDate,
		ChargeAmt:        chargeAmt,
		PaidAmt:          paidAmt,
		RemainingBalance: chargeAmt.Sub(paidAmt),
		AgingBucket:      bucket,
		SourceID:         "A",
	}
}

func marchWindow() Window {
	return Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestWindowDays(t *testing.T) {
	assert.Equal(t, 31, marchWindow().Days())

	oneDay := Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 1, oneDay.Days())
}

func TestAgingTotals(t *testing.T) {
	facts := []gold.FactRow{
		fact("P9-A", "Cardiology", "2024-03-10", "200.00", "150.00", "0-30"),
		fact("P9-A", "Cardiology", "2024-03-12", "100.00", "0", "0-30"),
		fact("P9-A", "Oncology", "2024-03-05", "300.00", "100.00", "31-60"),
		// Outside the window, must not count.
		fact("P9-A", "Cardiology", "2024-02-01", "999.00", "0", "31-60"),
	}

	totals := AgingTotals(facts, marchWindow())
	require.Len(t, totals, 2)
	assert.True(t, totals["0-30"].Equal(decimal.RequireFromString("150.00")))
	assert.True(t, totals["31-60"].Equal(decimal.RequireFromString("200.00")))
}

func TestDaysInAR(t *testing.T) {
	// Outstanding 150.00, paid 310.00 over 31 days: avg daily paid 10,
	// days in AR = 15.
	facts := []gold.FactRow{
		fact("P9-A", "Cardiology", "2024-03-10", "200.00", "150.00", "0-30"),
		fact("P9-A", "Cardiology", "2024-03-12", "260.00", "160.00", "0-30"),
	}

	dar, err := DaysInAR(facts, marchWindow())
	require.NoError(t, err)
	assert.True(t, dar.Equal(decimal.NewFromInt(15)), "got %s", dar)
}

func TestDaysInARNoPayments(t *testing.T) {
	facts := []gold.FactRow{
		fact("P9-A", "Cardiology", "2024-03-10", "200.00", "0", "0-30"),
	}

	_, err := DaysInAR(facts, marchWindow())
	assert.ErrorIs(t, err, ErrNoPayments)
}

func TestNetCollectionRate(t *testing.T) {
	facts := []gold.FactRow{
		fact("P9-A", "Cardiology", "2024-03-10", "200.00", "150.00", "0-30"),
	}

	rate, err := NetCollectionRate(facts, marchWindow())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.75")), "got %s", rate)
}

func TestCollectionRatesByProvider(t *testing.T) {
	facts := []gold.FactRow{
		fact("P1-A", "Cardiology", "2024-03-10", "200.00", "150.00", "0-30"),
		fact("P1-A", "Cardiology", "2024-03-11", "200.00", "50.00", "0-30"),
		fact("P2-A", "Oncology", "2024-03-12", "100.00", "100.00", "0-30"),
	}

	rates, err := CollectionRates(facts, marchWindow(), ByProvider)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.True(t, rates["P1-A"].Equal(decimal.RequireFromString("0.5")))
	assert.True(t, rates["P2-A"].Equal(decimal.NewFromInt(1)))
}

func TestCollectionRatesZeroChargeGroup(t *testing.T) {
	facts := []gold.FactRow{
		fact("P1-A", "Cardiology", "2024-03-10", "0", "0", "0-30"),
	}

	_, err := CollectionRates(facts, marchWindow(), ByDepartment)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrZeroCharges))
	assert.Contains(t, err.Error(), "Cardiology")
}

func TestBuildReportCarriesUndefinedDaysInAR(t *testing.T) {
	facts := []gold.FactRow{
		fact("P1-A", "Cardiology", "2024-03-10", "200.00", "0", "0-30"),
	}

	report, err := BuildReport(facts, marchWindow())
	require.NoError(t, err)
	assert.False(t, report.DaysInARDefined)
	assert.True(t, report.AgingTotals["0-30"].Equal(decimal.RequireFromString("200.00")))
	require.NotNil(t, report.RatesByProvider)
	assert.True(t, report.RatesByProvider["P1-A"].IsZero())
}

func TestExportExcel(t *testing.T) {
	facts := []gold.FactRow{
		fact("P1-A", "Cardiology", "2024-03-10", "200.00", "150.00", "0-30"),
	}
	report, err := BuildReport(facts, marchWindow())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "kpi.xlsx")
	require.NoError(t, ExportExcel(report, path))

	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("AR Aging")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"aging_bucket", "outstanding_balance"}, rows[0])
	assert.Equal(t, []string{"0-30", "50.00"}, rows[1])

	rows, err = f.GetRows("Collection Rate by Provider")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"P1-A", "0.7500"}, rows[1])
}
