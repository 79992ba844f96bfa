package kpi

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/clearbalance/revcycle-pipeline/internal/gold"
)

// ErrNoPayments signals a days-in-AR computation over a window with no
// paid amounts: the ratio is undefined, not infinite.
var ErrNoPayments = errors.New("no payments in window")

// ErrZeroCharges signals a collection-rate computation over a grouping
// whose charge total is zero.
var ErrZeroCharges = errors.New("zero charges in window")

// Window is an inclusive date range over transaction dates.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days is the window length in whole days, counting both endpoints.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func inWindow(facts []gold.FactRow, w Window) []gold.FactRow {
	var out []gold.FactRow
	for _, f := range facts {
		if w.Contains(f.TransactionDate) {
			out = append(out, f)
		}
	}
	return out
}

// AgingTotals sums outstanding balance per aging bucket over the window.
func AgingTotals(facts []gold.FactRow, w Window) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, f := range inWindow(facts, w) {
		totals[f.AgingBucket] = totals[f.AgingBucket].Add(f.RemainingBalance)
	}
	return totals
}

// DaysInAR divides total outstanding balance by the average daily paid
// amount over the trailing window.
func DaysInAR(facts []gold.FactRow, w Window) (decimal.Decimal, error) {
	outstanding := decimal.Zero
	paid := decimal.Zero
	for _, f := range inWindow(facts, w) {
		outstanding = outstanding.Add(f.RemainingBalance)
		paid = paid.Add(f.PaidAmt)
	}
	if paid.IsZero() {
		return decimal.Zero, ErrNoPayments
	}
	avgDailyPaid := paid.Div(decimal.NewFromInt(int64(w.Days())))
	return outstanding.Div(avgDailyPaid), nil
}

// GroupBy selects the grouping dimension for collection-rate metrics.
type GroupBy func(gold.FactRow) string

func ByProvider(f gold.FactRow) string   { return f.ProviderKey }
func ByDepartment(f gold.FactRow) string { return f.Department }

// NetCollectionRate is sum(paid) / sum(charge) over the window.
func NetCollectionRate(facts []gold.FactRow, w Window) (decimal.Decimal, error) {
	charge := decimal.Zero
	paid := decimal.Zero
	for _, f := range inWindow(facts, w) {
		charge = charge.Add(f.ChargeAmt)
		paid = paid.Add(f.PaidAmt)
	}
	if charge.IsZero() {
		return decimal.Zero, ErrZeroCharges
	}
	return paid.Div(charge), nil
}

// CollectionRates computes the net collection rate per grouping value.
// A group whose charge total is zero fails the whole computation, so an
// undefined ratio is never silently reported as a number.
func CollectionRates(facts []gold.FactRow, w Window, group GroupBy) (map[string]decimal.Decimal, error) {
	charges := make(map[string]decimal.Decimal)
	payments := make(map[string]decimal.Decimal)
	for _, f := range inWindow(facts, w) {
		key := group(f)
		charges[key] = charges[key].Add(f.ChargeAmt)
		payments[key] = payments[key].Add(f.PaidAmt)
	}

	rates := make(map[string]decimal.Decimal, len(charges))
	for key, charge := range charges {
		if charge.IsZero() {
			return nil, errors.Wrapf(ErrZeroCharges, "group %q", key)
		}
		rates[key] = payments[key].Div(charge)
	}
	return rates, nil
}
