package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/analytics"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/reconcile"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
)

// OpenShift starts a shift and seeds one ledger entry per active product of
// the branch. Opening stock is the last physical count before today, or the
// live stock when the product has never been counted.
func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	cashierID := defaultString(strings.TrimSpace(req.CashierID), actor.ID)
	cashierName := actor.Name
	if cashierID != actor.ID {
		if !domain.IsSupervisor(actor.Role) {
			return domain.ShiftResponse{}, domain.Forbiddenf("cashiers can only open their own shift")
		}
		cashier, err := s.repo.GetUserByID(ctx, cashierID)
		if err != nil {
			return domain.ShiftResponse{}, err
		}
		cashierName = cashier.Name
		if req.BranchID == "" {
			req.BranchID = cashier.BranchID
		}
	}
	branchID, err := s.branchFor(actor, req.BranchID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	if existing, err := s.repo.GetOpenShiftByCashier(ctx, cashierID); err == nil {
		return domain.ShiftResponse{}, domain.Conflictf("cashier %s already has open shift %s", cashierID, existing.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.ShiftResponse{}, err
	}

	now := s.now()
	shiftDate := analytics.BusinessDate(now)
	products, err := s.repo.ListProducts(ctx, branchID, true)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	prior, err := s.repo.PriorClosingStock(ctx, branchID, shiftDate)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	entries := make([]domain.StockLedgerEntry, 0, len(products))
	lines := make([]domain.LedgerLine, 0, len(products))
	for _, p := range products {
		opening, ok := prior[p.ID]
		if !ok {
			opening = p.StockKg
		}
		entries = append(entries, domain.StockLedgerEntry{
			ProductID:    p.ID,
			ProductName:  p.Name,
			BranchID:     branchID,
			ShiftDate:    shiftDate,
			OpeningStock: opening,
			ClosingStock: opening,
			UpdatedAt:    now,
		})
		lines = append(lines, domain.LedgerLine{
			BranchID:   branchID,
			ProductID:  p.ID,
			Kind:       domain.LedgerOpeningSnapshot,
			QuantityKg: opening,
			CreatedBy:  actor.ID,
			CreatedAt:  now,
		})
	}

	shift, err := s.repo.CreateShift(ctx, domain.Shift{
		CashierID:   cashierID,
		CashierName: cashierName,
		BranchID:    branchID,
		ShiftDate:   shiftDate,
		OpenedAt:    now,
	}, entries, lines)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	for i := range entries {
		entries[i].ShiftID = shift.ID
	}

	s.logAudit(ctx, branchID, "shift_open", "shift", shift.ID, fmt.Sprintf("cashier=%s,products=%d", cashierID, len(entries)))
	s.publish(ctx, domain.EventShiftOpened, branchID, shift.ID, shift.ID)
	s.logger.Info().Str("shift_id", shift.ID).Str("cashier_id", cashierID).Str("branch_id", branchID).Msg("shift opened")

	return domain.ShiftResponse{Shift: *shift, Entries: entries}, nil
}

// AddStock records a delivery straight onto an open shift. Cashiers use it on
// their own shift; the ledger moves at once, with no approval step.
func (s *Service) AddStock(ctx context.Context, shiftID string, req domain.AddStockRequest) (domain.StockLedgerEntry, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.StockLedgerEntry{}, err
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return domain.StockLedgerEntry{}, domain.Validationf("product_id is required")
	}
	if req.QuantityKg <= 0 {
		return domain.StockLedgerEntry{}, domain.Validationf("quantity_kg must be positive")
	}

	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.StockLedgerEntry{}, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return domain.StockLedgerEntry{}, err
	}
	if err := store.RequireOpen(*shift); err != nil {
		return domain.StockLedgerEntry{}, err
	}

	entry, err := s.repo.AddShiftStock(ctx, shift.ID, req.ProductID, req.QuantityKg, req.Note, actor.ID, s.now())
	if err != nil {
		return domain.StockLedgerEntry{}, err
	}

	s.logAudit(ctx, shift.BranchID, "shift_stock_add", "shift", shift.ID, fmt.Sprintf("product=%s,kg=%.3f", req.ProductID, req.QuantityKg))
	s.publish(ctx, domain.EventStockAdded, shift.BranchID, shift.ID, req.ProductID)
	return *entry, nil
}

func (s *Service) CloseShift(ctx context.Context, shiftID string, req domain.ShiftCloseRequest) (domain.ShiftReconciliation, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}
	if len(req.PhysicalCounts) == 0 {
		return domain.ShiftReconciliation{}, domain.Validationf("physical_counts must not be empty")
	}
	for productID, kg := range req.PhysicalCounts {
		if kg < 0 {
			return domain.ShiftReconciliation{}, domain.Validationf("physical count for %s must not be negative", productID)
		}
	}
	if req.ClosingCash == nil || req.ClosingMpesa == nil {
		return domain.ShiftReconciliation{}, domain.Validationf("closing_cash and closing_mpesa are required")
	}
	if req.ClosingCash.IsNegative() || req.ClosingMpesa.IsNegative() {
		return domain.ShiftReconciliation{}, domain.Validationf("closing totals must not be negative")
	}

	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return domain.ShiftReconciliation{}, err
	}

	closed, entries, err := s.repo.CloseShift(ctx, domain.ShiftClosing{
		ShiftID:       shift.ID,
		Counts:        req.PhysicalCounts,
		ClosingCash:   *req.ClosingCash,
		ClosingMpesa:  *req.ClosingMpesa,
		Notes:         strings.TrimSpace(req.Notes),
		ClosedBy:      actor.ID,
		ClosedAt:      s.now(),
		MissingAsZero: s.missingAsZero,
	})
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}

	report, err := s.reconciliation(ctx, *closed, entries)
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}

	s.logAudit(ctx, closed.BranchID, "shift_close", "shift", closed.ID,
		fmt.Sprintf("stock_variance=%.3f,cash=%s,mpesa=%s", report.Stock.Variance, req.ClosingCash.StringFixed(2), req.ClosingMpesa.StringFixed(2)))
	s.publish(ctx, domain.EventShiftClosed, closed.BranchID, closed.ID, closed.ID)
	s.logger.Info().
		Str("shift_id", closed.ID).
		Float64("stock_variance", report.Stock.Variance).
		Bool("stock_discrepancy", report.Stock.HasVariance).
		Msg("shift closed")

	return report, nil
}

func (s *Service) ApproveShift(ctx context.Context, shiftID string, req domain.ShiftReviewRequest) (domain.Shift, error) {
	return s.reviewShift(ctx, shiftID, domain.ShiftStatusApproved, req)
}

// RejectShift sends a PENDING_REVIEW shift to REJECTED. A note is required
// so the cashier can see why.
func (s *Service) RejectShift(ctx context.Context, shiftID string, req domain.ShiftReviewRequest) (domain.Shift, error) {
	if strings.TrimSpace(req.Note) == "" {
		return domain.Shift{}, domain.Validationf("a note is required to reject a shift")
	}
	return s.reviewShift(ctx, shiftID, domain.ShiftStatusRejected, req)
}

func (s *Service) reviewShift(ctx context.Context, shiftID string, to string, req domain.ShiftReviewRequest) (domain.Shift, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	current, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	if err := requireShiftAccess(actor, *current); err != nil {
		return domain.Shift{}, err
	}

	shift, err := s.repo.UpdateShiftReview(ctx, domain.ShiftReview{
		ShiftID:    current.ID,
		To:         to,
		ReviewedBy: actor.ID,
		Note:       strings.TrimSpace(req.Note),
		At:         s.now(),
	})
	if err != nil {
		return domain.Shift{}, err
	}

	action, event := "shift_approve", domain.EventShiftApproved
	if to == domain.ShiftStatusRejected {
		action, event = "shift_reject", domain.EventShiftRejected
	}
	s.logAudit(ctx, shift.BranchID, action, "shift", shift.ID, shift.ReviewNote)
	s.publish(ctx, event, shift.BranchID, shift.ID, shift.ID)
	return *shift, nil
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (domain.ShiftResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return domain.ShiftResponse{}, err
	}
	entries, err := s.repo.ListLedgerEntries(ctx, shift.ID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift, Entries: entries}, nil
}

// GetActiveShift returns the caller's open shift; supervisors may ask for
// any cashier's.
func (s *Service) GetActiveShift(ctx context.Context, cashierID string) (domain.ShiftResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	cashierID = defaultString(strings.TrimSpace(cashierID), actor.ID)
	if cashierID != actor.ID && !domain.IsSupervisor(actor.Role) {
		return domain.ShiftResponse{}, domain.Forbiddenf("cashiers can only view their own shift")
	}

	shift, err := s.repo.GetOpenShiftByCashier(ctx, cashierID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return domain.ShiftResponse{}, err
	}
	entries, err := s.repo.ListLedgerEntries(ctx, shift.ID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift, Entries: entries}, nil
}

// ListShifts lists shifts for review. Managers see their own branch; admins
// see every branch unless they name one.
func (s *Service) ListShifts(ctx context.Context, status string, branchID string, limit int) ([]domain.Shift, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return nil, err
	}
	branchID = strings.TrimSpace(branchID)
	if actor.Role != domain.RoleAdmin {
		if branchID, err = s.branchFor(actor, branchID); err != nil {
			return nil, err
		}
	}
	status = strings.TrimSpace(status)
	if status != "" {
		status = domain.NormalizeShiftStatus(status)
		switch status {
		case domain.ShiftStatusOpen, domain.ShiftStatusPendingReview, domain.ShiftStatusApproved, domain.ShiftStatusRejected:
		default:
			return nil, domain.Validationf("unknown shift status %q", status)
		}
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListShifts(ctx, domain.ShiftFilter{Status: status, BranchID: branchID, Limit: limit})
}

func (s *Service) ShiftLedger(ctx context.Context, shiftID string) ([]domain.StockLedgerEntry, error) {
	resp, err := s.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ShiftLedgerLines returns the inventory audit trail written for a shift.
func (s *Service) ShiftLedgerLines(ctx context.Context, shiftID string) ([]domain.LedgerLine, error) {
	if _, err := s.GetShift(ctx, shiftID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerLines(ctx, shiftID)
}

func (s *Service) ShiftReconciliation(ctx context.Context, shiftID string) (domain.ShiftReconciliation, error) {
	resp, err := s.GetShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}
	return s.reconciliation(ctx, resp.Shift, resp.Entries)
}

// RecomputeLedger rebuilds an open shift's sold and added totals from its
// transactions and delivery lines.
func (s *Service) RecomputeLedger(ctx context.Context, shiftID string) ([]domain.StockLedgerEntry, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return nil, err
	}
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return nil, err
	}
	entries, err := s.repo.RecomputeLedger(ctx, shift.ID)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, shift.BranchID, "ledger_recompute", "shift", shift.ID, fmt.Sprintf("entries=%d", len(entries)))
	return entries, nil
}

func (s *Service) reconciliation(ctx context.Context, shift domain.Shift, entries []domain.StockLedgerEntry) (domain.ShiftReconciliation, error) {
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{ShiftID: shift.ID})
	if err != nil {
		return domain.ShiftReconciliation{}, err
	}
	return domain.ShiftReconciliation{
		Shift:    shift,
		Entries:  entries,
		Stock:    reconcile.Aggregate(entries),
		Payments: reconcile.ReconcilePayments(shift, txs),
	}, nil
}
