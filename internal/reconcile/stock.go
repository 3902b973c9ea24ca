// Package reconcile derives expected stock and payment positions for a shift
// and flags discrepancies. Every function is pure; callers persist results.
package reconcile

import (
	"math"
	"sort"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

const (
	// EntryVarianceThresholdKg absorbs float noise on a single product.
	EntryVarianceThresholdKg = 0.1
	// TotalVarianceThresholdKg is looser since small per-item noise accumulates in sums.
	TotalVarianceThresholdKg = 0.5
)

// ExpectedClosing returns opening + added - sold. Negative results are kept:
// they mean more was sold than the opening snapshot plus deliveries.
func ExpectedClosing(e domain.StockLedgerEntry) float64 {
	return e.OpeningStock + e.AddedStock - e.SoldStock
}

// ComputeVariance returns actual - expected.
func ComputeVariance(e domain.StockLedgerEntry, actualClosing float64) float64 {
	return actualClosing - ExpectedClosing(e)
}

// Variance returns the fixed variance of a finalized entry. ok is false while
// no physical count exists.
func Variance(e domain.StockLedgerEntry) (float64, bool) {
	if e.Variance == nil {
		return 0, false
	}
	return *e.Variance, true
}

func EntryHasVariance(e domain.StockLedgerEntry) bool {
	v, ok := Variance(e)
	return ok && math.Abs(v) > EntryVarianceThresholdKg
}

// Aggregate sums the entries. The fold runs over a sorted copy so the result
// does not depend on input order.
func Aggregate(entries []domain.StockLedgerEntry) domain.StockTotals {
	sorted := make([]domain.StockLedgerEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return sorted[i].ShiftID < sorted[j].ShiftID
	})

	totals := domain.StockTotals{Entries: len(sorted), DiscrepantProducts: []string{}}
	for _, e := range sorted {
		totals.Opening += e.OpeningStock
		totals.Added += e.AddedStock
		totals.Sold += e.SoldStock
		totals.Expected += ExpectedClosing(e)
		totals.Closing += e.ClosingStock
		if v, ok := Variance(e); ok {
			totals.Variance += v
			totals.Counted++
		}
		if EntryHasVariance(e) {
			totals.DiscrepantProducts = append(totals.DiscrepantProducts, e.ProductID)
		}
	}
	totals.HasVariance = math.Abs(totals.Variance) > TotalVarianceThresholdKg
	return totals
}

// ApplySale records weightKg sold and re-derives the running closing value.
func ApplySale(e *domain.StockLedgerEntry, weightKg float64) {
	e.SoldStock += weightKg
	e.ClosingStock = ExpectedClosing(*e)
}

// ApplyAddition records a mid-shift delivery.
func ApplyAddition(e *domain.StockLedgerEntry, quantityKg float64) {
	e.AddedStock += quantityKg
	e.ClosingStock = ExpectedClosing(*e)
}

// Finalize writes the physical count and fixes the variance. It returns the
// variance so callers can post it to the audit trail.
func Finalize(e *domain.StockLedgerEntry, physicalCount float64) float64 {
	v := ComputeVariance(*e, physicalCount)
	e.ClosingStock = physicalCount
	e.Variance = &v
	return v
}

// Rederive resets the running closing value from its components. Used after
// a ledger recompute on an open shift.
func Rederive(e *domain.StockLedgerEntry) {
	if e.Variance != nil {
		return
	}
	e.ClosingStock = ExpectedClosing(*e)
}
