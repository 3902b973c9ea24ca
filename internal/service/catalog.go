package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, branchID string, includeInactive bool) ([]domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if includeInactive && actor.Role != domain.RoleAdmin {
		includeInactive = false
	}
	branchID, err = s.branchFor(actor, branchID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, branchID, !includeInactive)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, domain.Validationf("name and category are required")
	}
	if !req.PricePerKg.IsPositive() {
		return domain.Product{}, domain.Validationf("price_per_kg must be positive")
	}
	if req.StockKg < 0 {
		return domain.Product{}, domain.Validationf("stock_kg must not be negative")
	}

	branchID, err := s.branchFor(actor, req.BranchID)
	if err != nil {
		return domain.Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:         xid.New("prd"),
		Name:       req.Name,
		Category:   req.Category,
		BranchID:   branchID,
		PricePerKg: req.PricePerKg.Round(2),
		StockKg:    req.StockKg,
		Active:     true,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, created.BranchID, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,price=%s,stock=%.3f", created.Name, created.PricePerKg.StringFixed(2), created.StockKg))
	return *created, nil
}

// UpdateProduct patches catalogue fields. Stock is never set here; it only
// moves through sales, deliveries and shift close.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	changes := make([]string, 0, 4)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, domain.Validationf("name must not be empty")
		}
		updated.Name = name
		changes = append(changes, "name="+name)
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if category == "" {
			return domain.Product{}, domain.Validationf("category must not be empty")
		}
		updated.Category = category
		changes = append(changes, "category="+category)
	}
	if req.PricePerKg != nil {
		if !req.PricePerKg.IsPositive() {
			return domain.Product{}, domain.Validationf("price_per_kg must be positive")
		}
		updated.PricePerKg = req.PricePerKg.Round(2)
		changes = append(changes, fmt.Sprintf("price=%s->%s", existing.PricePerKg.StringFixed(2), updated.PricePerKg.StringFixed(2)))
	}
	if req.Active != nil {
		updated.Active = *req.Active
		changes = append(changes, fmt.Sprintf("active=%t", updated.Active))
	}
	if len(changes) == 0 {
		return domain.Product{}, domain.Validationf("nothing to update")
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, saved.BranchID, "product_update", "product", saved.ID, strings.Join(changes, ","))
	return *saved, nil
}

// UserCreated audits an account created through the auth manager.
func (s *Service) UserCreated(ctx context.Context, user domain.User) {
	s.logAudit(ctx, user.BranchID, "user_create", "user", user.ID, fmt.Sprintf("username=%s,role=%s", user.Username, user.Role))
}
