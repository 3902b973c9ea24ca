package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func shiftTxs() []domain.Transaction {
	return []domain.Transaction{
		{PaymentMethod: domain.PaymentCash, Total: dec("600")},
		{PaymentMethod: domain.PaymentCash, Total: dec("450")},
		{PaymentMethod: domain.PaymentCash, Total: dec("-50"), VoidOf: "tx_1"},
		{PaymentMethod: domain.PaymentMpesa, Total: dec("500")},
		{PaymentMethod: domain.PaymentCard, Total: dec("120")},
	}
}

func TestExpectedByMethod(t *testing.T) {
	got := ExpectedByMethod(shiftTxs())
	assert.True(t, got[domain.PaymentCash].Equal(dec("1000")), "cash %s", got[domain.PaymentCash])
	assert.True(t, got[domain.PaymentMpesa].Equal(dec("500")))
	assert.True(t, got[domain.PaymentCard].Equal(dec("120")))
	assert.True(t, ExpectedCash(shiftTxs()).Equal(dec("1000")))
	assert.True(t, ExpectedMpesa(shiftTxs()).Equal(dec("500")))
}

func TestReconcilePaymentsBeforeClose(t *testing.T) {
	rec := ReconcilePayments(domain.Shift{ID: "shf_1", Status: domain.ShiftStatusOpen}, shiftTxs())

	assert.Equal(t, "shf_1", rec.ShiftID)
	assert.Equal(t, 5, rec.Transactions)
	assert.True(t, rec.ExpectedCash.Equal(dec("1000")))
	assert.Nil(t, rec.ReportedCash)
	assert.Nil(t, rec.ReportedMpesa)
	assert.Nil(t, rec.CashVariance)
	assert.Nil(t, rec.TotalVariance)
	assert.Nil(t, rec.HasVariance)
}

func TestReconcilePaymentsShortCash(t *testing.T) {
	shift := domain.Shift{
		ID:           "shf_1",
		Status:       domain.ShiftStatusPendingReview,
		ClosingCash:  decPtr("950"),
		ClosingMpesa: decPtr("500"),
	}
	rec := ReconcilePayments(shift, shiftTxs())

	require.NotNil(t, rec.CashVariance)
	assert.True(t, rec.CashVariance.Equal(dec("-50")))
	assert.True(t, rec.MpesaVariance.Equal(decimal.Zero))
	assert.True(t, rec.TotalVariance.Equal(dec("-50")))
	require.NotNil(t, rec.HasVariance)
	assert.True(t, *rec.HasVariance)
}

func TestReconcilePaymentsWithinThreshold(t *testing.T) {
	tests := []struct {
		name  string
		cash  string
		mpesa string
		want  bool
	}{
		{"balanced", "1000", "500", false},
		{"exactly one over", "1001", "500", false},
		{"offsetting methods", "1020", "480", false},
		{"just over", "1000.01", "501", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shift := domain.Shift{ClosingCash: decPtr(tt.cash), ClosingMpesa: decPtr(tt.mpesa)}
			rec := ReconcilePayments(shift, shiftTxs())
			require.NotNil(t, rec.HasVariance)
			assert.Equal(t, tt.want, *rec.HasVariance)
		})
	}
}
