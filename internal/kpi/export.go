package kpi

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/clearbalance/revcycle-pipeline/internal/gold"
)

// Report bundles the computed KPI set for one window.
type Report struct {
	Window           Window
	AgingTotals      map[string]decimal.Decimal
	DaysInAR         decimal.Decimal
	DaysInARDefined  bool
	RatesByProvider  map[string]decimal.Decimal
	RatesByDepartment map[string]decimal.Decimal
}

// BuildReport computes all KPIs over the window. Undefined ratios are
// carried as absent values, not errors: a window with no payments is a
// reportable state of the business, not a failure of the report.
func BuildReport(facts []gold.FactRow, w Window) (Report, error) {
	report := Report{
		Window:      w,
		AgingTotals: AgingTotals(facts, w),
	}

	dar, err := DaysInAR(facts, w)
	switch {
	case err == nil:
		report.DaysInAR = dar
		report.DaysInARDefined = true
	case errors.Is(err, ErrNoPayments):
		// left undefined
	default:
		return Report{}, err
	}

	byProvider, err := CollectionRates(facts, w, ByProvider)
	if err != nil && !errors.Is(err, ErrZeroCharges) {
		return Report{}, err
	}
	report.RatesByProvider = byProvider

	byDepartment, err := CollectionRates(facts, w, ByDepartment)
	if err != nil && !errors.Is(err, ErrZeroCharges) {
		return Report{}, err
	}
	report.RatesByDepartment = byDepartment

	return report, nil
}

var agingBucketOrder = []string{"0-30", "31-60", "61-90", "90+"}

// ExportExcel writes the report as a workbook with one sheet per KPI.
func ExportExcel(report Report, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, "AR Aging", []string{"aging_bucket", "outstanding_balance"}, agingRows(report)); err != nil {
		return err
	}
	if err := writeSheet(f, "Days in AR", []string{"window_start", "window_end", "days_in_ar"}, daysInARRows(report)); err != nil {
		return err
	}
	if err := writeSheet(f, "Collection Rate by Provider", []string{"provider_key", "net_collection_rate"}, rateRows(report.RatesByProvider)); err != nil {
		return err
	}
	if err := writeSheet(f, "Collection Rate by Department", []string{"department", "net_collection_rate"}, rateRows(report.RatesByDepartment)); err != nil {
		return err
	}

	// excelize seeds every new workbook with Sheet1.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("error removing default sheet: %w", err)
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("error saving Excel file: %w", err)
	}
	return nil
}

func agingRows(report Report) [][]interface{} {
	var rows [][]interface{}
	for _, bucket := range agingBucketOrder {
		total, exists := report.AgingTotals[bucket]
		if !exists {
			total = decimal.Zero
		}
		rows = append(rows, []interface{}{bucket, total.StringFixed(2)})
	}
	return rows
}

func daysInARRows(report Report) [][]interface{} {
	value := "undefined"
	if report.DaysInARDefined {
		value = report.DaysInAR.StringFixed(1)
	}
	return [][]interface{}{{
		report.Window.Start.Format("2006-01-02"),
		report.Window.End.Format("2006-01-02"),
		value,
	}}
}

func rateRows(rates map[string]decimal.Decimal) [][]interface{} {
	if rates == nil {
		return [][]interface{}{{"undefined", "undefined"}}
	}
	keys := make([]string, 0, len(rates))
	for key := range rates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var rows [][]interface{}
	for _, key := range keys {
		rows = append(rows, []interface{}{key, rates[key].StringFixed(4)})
	}
	return rows
}

func writeSheet(f *excelize.File, sheetName string, headers []string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", sheetName, err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}
	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}
	return nil
}
