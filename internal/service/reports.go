package service

import (
	"context"
	"strings"
	"time"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/analytics"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

// allBranches is accepted from admins to aggregate across every branch.
const allBranches = "all"

func (s *Service) analyticsBranch(actor domain.Actor, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if strings.EqualFold(requested, allBranches) && actor.Role == domain.RoleAdmin {
		return "", nil
	}
	return s.branchFor(actor, requested)
}

func (s *Service) SalesAnalytics(ctx context.Context, branchID string, rangeName string) (domain.SalesAnalytics, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	r, err := analytics.ParseRange(rangeName)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	branchID, err = s.analyticsBranch(actor, branchID)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	return s.analytics.Sales(ctx, branchID, r)
}

func (s *Service) ProductAnalytics(ctx context.Context, branchID string, rangeName string) (domain.ProductAnalytics, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return domain.ProductAnalytics{}, err
	}
	r, err := analytics.ParseRange(rangeName)
	if err != nil {
		return domain.ProductAnalytics{}, err
	}
	branchID, err = s.analyticsBranch(actor, branchID)
	if err != nil {
		return domain.ProductAnalytics{}, err
	}
	return s.analytics.ProductSales(ctx, branchID, r)
}

func (s *Service) DateSeries(ctx context.Context, branchID string, start string, end string) ([]domain.SeriesPoint, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return nil, err
	}
	branchID, err = s.analyticsBranch(actor, branchID)
	if err != nil {
		return nil, err
	}
	return s.analytics.DateSeries(ctx, branchID, strings.TrimSpace(start), strings.TrimSpace(end))
}

// ListAuditLogs returns one business day of audit rows, today by default.
func (s *Service) ListAuditLogs(ctx context.Context, branchID string, date string, limit int) ([]domain.AuditLog, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = analytics.StartOfDay(s.now())
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), analytics.Location)
		if err != nil {
			return nil, domain.Validationf("date must be YYYY-MM-DD")
		}
		from = parsed
	}
	to := from.AddDate(0, 0, 1)

	branchID, err = s.analyticsBranch(actor, branchID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, branchID, from, to, limit)
}
