package reconcile

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestExpectedClosing(t *testing.T) {
	tests := []struct {
		name  string
		entry domain.StockLedgerEntry
		want  float64
	}{
		{"untouched", domain.StockLedgerEntry{OpeningStock: 50}, 50},
		{"sold and added", domain.StockLedgerEntry{OpeningStock: 50, AddedStock: 5, SoldStock: 10}, 45},
		{"oversold stays negative", domain.StockLedgerEntry{OpeningStock: 2, SoldStock: 5}, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpectedClosing(tt.entry))
		})
	}
}

func TestLedgerIdentityHoldsWhileOpen(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entry := domain.StockLedgerEntry{OpeningStock: 40, ClosingStock: 40}

	for i := 0; i < 500; i++ {
		qty := float64(rng.Intn(1000)) / 100
		if rng.Intn(2) == 0 {
			ApplySale(&entry, qty)
		} else {
			ApplyAddition(&entry, qty)
		}
		require.InDelta(t, entry.OpeningStock+entry.AddedStock-entry.SoldStock, entry.ClosingStock, 1e-9, "step %d", i)
		require.Nil(t, entry.Variance)
	}
}

func TestVarianceSign(t *testing.T) {
	shortage := domain.StockLedgerEntry{OpeningStock: 50, AddedStock: 5, SoldStock: 10}
	v := Finalize(&shortage, 44)
	assert.Equal(t, -1.0, v)
	assert.Equal(t, 44.0, shortage.ClosingStock)
	got, ok := Variance(shortage)
	require.True(t, ok)
	assert.Equal(t, -1.0, got)

	surplus := domain.StockLedgerEntry{OpeningStock: 10}
	assert.Equal(t, 2.0, Finalize(&surplus, 12))
}

func TestVarianceAbsentBeforeClose(t *testing.T) {
	_, ok := Variance(domain.StockLedgerEntry{OpeningStock: 3})
	assert.False(t, ok)
	assert.False(t, EntryHasVariance(domain.StockLedgerEntry{OpeningStock: 3}))
}

func TestEntryHasVarianceThreshold(t *testing.T) {
	assert.False(t, EntryHasVariance(domain.StockLedgerEntry{Variance: floatPtr(0.1)}))
	assert.False(t, EntryHasVariance(domain.StockLedgerEntry{Variance: floatPtr(-0.05)}))
	assert.True(t, EntryHasVariance(domain.StockLedgerEntry{Variance: floatPtr(0.11)}))
	assert.True(t, EntryHasVariance(domain.StockLedgerEntry{Variance: floatPtr(-2)}))
}

func TestAggregate(t *testing.T) {
	entries := []domain.StockLedgerEntry{
		{ProductID: "beef", OpeningStock: 50, AddedStock: 5, SoldStock: 10, ClosingStock: 44, Variance: floatPtr(-1)},
		{ProductID: "goat", OpeningStock: 20, SoldStock: 4, ClosingStock: 16.05, Variance: floatPtr(0.05)},
		{ProductID: "liver", OpeningStock: 3, ClosingStock: 3},
	}
	totals := Aggregate(entries)

	assert.Equal(t, 3, totals.Entries)
	assert.Equal(t, 2, totals.Counted)
	assert.InDelta(t, 73, totals.Opening, 1e-9)
	assert.InDelta(t, 5, totals.Added, 1e-9)
	assert.InDelta(t, 14, totals.Sold, 1e-9)
	assert.InDelta(t, 64, totals.Expected, 1e-9)
	assert.InDelta(t, -0.95, totals.Variance, 1e-9)
	assert.True(t, totals.HasVariance)
	assert.Equal(t, []string{"beef"}, totals.DiscrepantProducts)
}

func TestAggregateSmallNoiseIsNotFlagged(t *testing.T) {
	entries := []domain.StockLedgerEntry{
		{ProductID: "a", Variance: floatPtr(0.09)},
		{ProductID: "b", Variance: floatPtr(0.09)},
		{ProductID: "c", Variance: floatPtr(0.09)},
	}
	totals := Aggregate(entries)
	assert.False(t, totals.HasVariance)
	assert.Empty(t, totals.DiscrepantProducts)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entries := make([]domain.StockLedgerEntry, 0, 40)
	for i := 0; i < 40; i++ {
		e := domain.StockLedgerEntry{
			ProductID:    fmt.Sprintf("p%02d", i),
			OpeningStock: rng.Float64() * 100,
			AddedStock:   rng.Float64() * 10,
			SoldStock:    rng.Float64() * 30,
		}
		Finalize(&e, rng.Float64()*80)
		entries = append(entries, e)
	}
	want := Aggregate(entries)

	for round := 0; round < 10; round++ {
		shuffled := make([]domain.StockLedgerEntry, len(entries))
		copy(shuffled, entries)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Aggregate(shuffled))
	}
}

func TestRederiveLeavesFinalizedEntriesAlone(t *testing.T) {
	e := domain.StockLedgerEntry{OpeningStock: 10, SoldStock: 2}
	Finalize(&e, 7)
	e.SoldStock = 1
	Rederive(&e)
	assert.Equal(t, 7.0, e.ClosingStock)

	open := domain.StockLedgerEntry{OpeningStock: 10, SoldStock: 2, ClosingStock: 0}
	Rederive(&open)
	assert.Equal(t, 8.0, open.ClosingStock)
}
