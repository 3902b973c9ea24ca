package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
)

// RequestStockAddition records a delivery for a manager to approve. Nothing
// touches the ledger until approval.
func (s *Service) RequestStockAddition(ctx context.Context, req domain.StockAdditionRequest) (domain.StockAddition, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.StockAddition{}, err
	}
	if strings.TrimSpace(req.ShiftID) == "" || strings.TrimSpace(req.ProductID) == "" {
		return domain.StockAddition{}, domain.Validationf("shift_id and product_id are required")
	}
	if req.QuantityKg <= 0 {
		return domain.StockAddition{}, domain.Validationf("quantity_kg must be positive")
	}

	shift, err := s.repo.GetShift(ctx, req.ShiftID)
	if err != nil {
		return domain.StockAddition{}, err
	}
	if err := requireShiftAccess(actor, *shift); err != nil {
		return domain.StockAddition{}, err
	}
	if err := store.RequireOpen(*shift); err != nil {
		return domain.StockAddition{}, err
	}

	addition, err := s.repo.CreateStockAddition(ctx, domain.StockAddition{
		ShiftID:     shift.ID,
		ProductID:   req.ProductID,
		QuantityKg:  req.QuantityKg,
		Note:        strings.TrimSpace(req.Note),
		RequestedBy: actor.ID,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.StockAddition{}, err
	}
	s.publish(ctx, domain.EventAdditionRequest, addition.BranchID, addition.ShiftID, addition.ID)
	return *addition, nil
}

func (s *Service) ApproveStockAddition(ctx context.Context, id string) (domain.StockAddition, error) {
	return s.decideStockAddition(ctx, id, domain.AdditionApproved)
}

func (s *Service) RejectStockAddition(ctx context.Context, id string) (domain.StockAddition, error) {
	return s.decideStockAddition(ctx, id, domain.AdditionRejected)
}

func (s *Service) decideStockAddition(ctx context.Context, id string, status string) (domain.StockAddition, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return domain.StockAddition{}, err
	}
	pending, err := s.repo.GetStockAddition(ctx, id)
	if err != nil {
		return domain.StockAddition{}, err
	}
	if err := requireBranchAccess(actor, pending.BranchID); err != nil {
		return domain.StockAddition{}, err
	}
	addition, err := s.repo.DecideStockAddition(ctx, domain.StockAdditionDecision{
		ID:        pending.ID,
		Status:    status,
		DecidedBy: actor.ID,
		At:        s.now(),
	})
	if err != nil {
		return domain.StockAddition{}, err
	}

	s.logAudit(ctx, addition.BranchID, "stock_addition_"+strings.ToLower(status), "stock_addition", addition.ID,
		fmt.Sprintf("shift=%s,product=%s,kg=%.3f", addition.ShiftID, addition.ProductID, addition.QuantityKg))
	s.publish(ctx, domain.EventAdditionDecision, addition.BranchID, addition.ShiftID, addition.ID)
	if status == domain.AdditionApproved {
		s.publish(ctx, domain.EventStockAdded, addition.BranchID, addition.ShiftID, addition.ProductID)
	}
	return *addition, nil
}

func (s *Service) ListStockAdditions(ctx context.Context, filter domain.StockAdditionFilter) ([]domain.StockAddition, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" {
		filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
		switch filter.Status {
		case domain.AdditionPending, domain.AdditionApproved, domain.AdditionRejected:
		default:
			return nil, domain.Validationf("unknown stock addition status %q", filter.Status)
		}
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
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListStockAdditions(ctx, filter)
}
