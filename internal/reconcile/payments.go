package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

// PaymentVarianceThreshold is in currency units.
var PaymentVarianceThreshold = decimal.NewFromInt(1)

// ExpectedByMethod sums transaction totals per payment method. Voids carry a
// negative total and reduce the sum.
func ExpectedByMethod(txs []domain.Transaction) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{
		domain.PaymentCash:  decimal.Zero,
		domain.PaymentMpesa: decimal.Zero,
		domain.PaymentCard:  decimal.Zero,
	}
	for _, tx := range txs {
		out[tx.PaymentMethod] = out[tx.PaymentMethod].Add(tx.Total)
	}
	return out
}

func ExpectedCash(txs []domain.Transaction) decimal.Decimal {
	return ExpectedByMethod(txs)[domain.PaymentCash]
}

func ExpectedMpesa(txs []domain.Transaction) decimal.Decimal {
	return ExpectedByMethod(txs)[domain.PaymentMpesa]
}

// ReconcilePayments compares expected takings with the shift's reported
// closing figures. Until both figures are on the shift, only expected values
// are filled in.
func ReconcilePayments(shift domain.Shift, txs []domain.Transaction) domain.PaymentReconciliation {
	expected := ExpectedByMethod(txs)
	out := domain.PaymentReconciliation{
		ShiftID:       shift.ID,
		Transactions:  len(txs),
		ExpectedCash:  expected[domain.PaymentCash],
		ExpectedMpesa: expected[domain.PaymentMpesa],
		ExpectedCard:  expected[domain.PaymentCard],
	}
	if shift.ClosingCash == nil || shift.ClosingMpesa == nil {
		return out
	}

	cash := *shift.ClosingCash
	mpesa := *shift.ClosingMpesa
	cashVar := cash.Sub(out.ExpectedCash)
	mpesaVar := mpesa.Sub(out.ExpectedMpesa)
	total := cashVar.Add(mpesaVar)
	has := total.Abs().GreaterThan(PaymentVarianceThreshold)

	out.ReportedCash = &cash
	out.ReportedMpesa = &mpesa
	out.CashVariance = &cashVar
	out.MpesaVariance = &mpesaVar
	out.TotalVariance = &total
	out.HasVariance = &has
	return out
}
