package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/analytics"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

// RollupStarts returns the business-date start of the daily, weekly and
// monthly rollup rows that at falls into.
func RollupStarts(at time.Time) map[string]string {
	return map[string]string{
		BucketDaily:   analytics.BusinessDate(analytics.StartOfDay(at)),
		BucketWeekly:  analytics.BusinessDate(analytics.StartOfWeek(at)),
		BucketMonthly: analytics.BusinessDate(analytics.StartOfMonth(at)),
	}
}

func ValidBucket(bucket string) bool {
	switch bucket {
	case BucketDaily, BucketWeekly, BucketMonthly:
		return true
	}
	return false
}

// CountDelta is 1 for a sale and 0 for a void; voids adjust the takings of
// the bucket but are not sales of their own.
func CountDelta(tx domain.Transaction) int64 {
	if tx.VoidOf != "" {
		return 0
	}
	return 1
}

// MissingCounts lists the products of entries that have no physical count.
func MissingCounts(entries []domain.StockLedgerEntry, counts map[string]float64) []string {
	missing := []string{}
	for _, e := range entries {
		if _, ok := counts[e.ProductID]; !ok {
			missing = append(missing, e.ProductID)
		}
	}
	sort.Strings(missing)
	return missing
}

func MissingCountsError(missing []string) error {
	return domain.Validationf("physical count missing for products: %s", strings.Join(missing, ", "))
}

// NegateItems builds the item lines of a void.
func NegateItems(items []domain.TransactionItem) []domain.TransactionItem {
	out := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.TransactionItem{
			ProductID: item.ProductID,
			WeightKg:  -item.WeightKg,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal.Neg(),
		})
	}
	return out
}

func ValidateVoidable(original domain.Transaction, alreadyVoided bool) error {
	if original.VoidOf != "" {
		return domain.Validationf("transaction %s is itself a void", original.ID)
	}
	if alreadyVoided {
		return domain.Conflictf("transaction %s is already voided", original.ID)
	}
	return nil
}

func shiftNotOpen(shift domain.Shift) error {
	return domain.InvalidStatef("shift %s is %s, not %s", shift.ID, shift.Status, domain.ShiftStatusOpen)
}

// RequireOpen fails with ErrInvalidState unless the shift is OPEN.
func RequireOpen(shift domain.Shift) error {
	if shift.Status != domain.ShiftStatusOpen {
		return shiftNotOpen(shift)
	}
	return nil
}

func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// RequireBranchProduct fails with ErrValidation when product is stocked at a
// branch other than the shift's. Products without a branch are shared.
func RequireBranchProduct(shift domain.Shift, product domain.Product) error {
	if product.BranchID != "" && product.BranchID != shift.BranchID {
		return domain.Validationf("product %s is not stocked at branch %s", product.ID, shift.BranchID)
	}
	return nil
}

// ReplayedSale answers a repeated idempotency key. The key only replays for
// the same shift and cashier; anyone else reusing it gets ErrConflict.
func ReplayedSale(stored domain.Transaction, incoming domain.Transaction) (*domain.Transaction, error) {
	if stored.ShiftID != incoming.ShiftID || stored.CashierID != incoming.CashierID {
		return nil, domain.Conflictf("idempotency key %s belongs to another sale", incoming.IdempotencyKey)
	}
	return &stored, nil
}
