package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

// RecordSale prices the items from the catalogue and applies the sale to the
// shift. A repeated idempotency key returns the stored sale unchanged.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if strings.TrimSpace(req.ShiftID) == "" {
		return domain.SaleResponse{}, domain.Validationf("shift_id is required")
	}
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, domain.Validationf("a sale needs at least one item")
	}
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !domain.IsPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, domain.Validationf("unsupported payment method %q", req.PaymentMethod)
	}

	shift, err := s.repo.GetShift(ctx, req.ShiftID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return domain.SaleResponse{}, err
	}

	items := make([]domain.TransactionItem, 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		line, err := s.priceItem(ctx, actor, shift.BranchID, item)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		items = append(items, line)
		total = total.Add(line.LineTotal)
	}

	stored, duplicate, err := s.repo.RecordSale(ctx, domain.Transaction{
		ShiftID:        shift.ID,
		CashierID:      actor.ID,
		BranchID:       shift.BranchID,
		Items:          items,
		PaymentMethod:  req.PaymentMethod,
		Total:          total,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		CreatedAt:      s.now(),
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if !duplicate {
		s.publish(ctx, domain.EventSale, stored.BranchID, stored.ShiftID, stored.ID)
	}
	return domain.SaleResponse{Transaction: *stored, Duplicate: duplicate}, nil
}

// priceItem uses the catalogue price per kg. Supervisors may override it.
func (s *Service) priceItem(ctx context.Context, actor domain.Actor, branchID string, item domain.SaleItemRequest) (domain.TransactionItem, error) {
	if strings.TrimSpace(item.ProductID) == "" {
		return domain.TransactionItem{}, domain.Validationf("product_id is required on every item")
	}
	if item.WeightKg <= 0 {
		return domain.TransactionItem{}, domain.Validationf("weight_kg for %s must be positive", item.ProductID)
	}
	product, err := s.repo.GetProduct(ctx, item.ProductID)
	if err != nil {
		return domain.TransactionItem{}, err
	}
	if !product.Active {
		return domain.TransactionItem{}, domain.Validationf("product %s is inactive", product.ID)
	}
	if product.BranchID != "" && product.BranchID != branchID {
		return domain.TransactionItem{}, domain.Validationf("product %s is not sold at branch %s", product.ID, branchID)
	}

	price := product.PricePerKg
	if item.UnitPrice != nil && !item.UnitPrice.Equal(price) {
		if !domain.IsSupervisor(actor.Role) {
			return domain.TransactionItem{}, domain.Forbiddenf("price override on %s requires a manager", product.ID)
		}
		if item.UnitPrice.IsNegative() {
			return domain.TransactionItem{}, domain.Validationf("unit_price for %s must not be negative", product.ID)
		}
		price = *item.UnitPrice
	}

	return domain.TransactionItem{
		ProductID: product.ID,
		WeightKg:  item.WeightKg,
		UnitPrice: price,
		LineTotal: price.Mul(decimal.NewFromFloat(item.WeightKg)).Round(2),
	}, nil
}

// VoidTransaction reverses a sale. Supervisors void directly within their
// branch; a cashier needs a manager PIN, checked by the transport before the
// call, and can only void sales of their own shift.
func (s *Service) VoidTransaction(ctx context.Context, transactionID string, req domain.VoidRequest) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !domain.IsSupervisor(actor.Role) && !req.ManagerApproved {
		return domain.Transaction{}, domain.Forbiddenf("voiding a sale requires a manager")
	}
	if strings.TrimSpace(transactionID) == "" {
		return domain.Transaction{}, domain.Validationf("transaction id is required")
	}
	reason := defaultString(strings.TrimSpace(req.Reason), "unspecified")

	original, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	shift, err := s.repo.GetShift(ctx, original.ShiftID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return domain.Transaction{}, err
	}

	void, err := s.repo.VoidTransaction(ctx, original.ID, domain.Transaction{
		CashierID: actor.ID,
		Reason:    reason,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, void.BranchID, "void_transaction", "transaction", transactionID, fmt.Sprintf("void=%s,reason=%s", void.ID, reason))
	s.publish(ctx, domain.EventVoid, void.BranchID, void.ShiftID, void.ID)
	return *void, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !domain.IsSupervisor(actor.Role) && tx.CashierID != actor.ID {
		return domain.Transaction{}, domain.Forbiddenf("transaction %s belongs to another cashier", id)
	}
	if err := requireBranchAccess(actor, tx.BranchID); err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// ListTransactions lists by shift, or by branch and time range. Cashiers are
// limited to their own shifts.
func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, domain.Validationf("from must be before to")
	}
	if filter.Limit < 1 || filter.Limit > 1000 {
		filter.Limit = 500
	}

	if !domain.IsSupervisor(actor.Role) {
		if filter.ShiftID == "" {
			return nil, domain.Validationf("shift_id is required")
		}
		shift, err := s.repo.GetShift(ctx, filter.ShiftID)
		if err != nil {
			return nil, err
		}
		if err := requireShiftAccess(actor, *shift); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleAdmin {
		if filter.BranchID, err = s.branchFor(actor, filter.BranchID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListTransactions(ctx, filter)
}
