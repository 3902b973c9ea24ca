package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

const userColumns = `id, username, name, password_hash, role, branch_id, active, created_at`

const productColumns = `id, name, category, branch_id, price_per_kg, stock_kg, active, updated_at`

func scanUser(row pgx.CollectableRow) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.Role, &u.BranchID, &u.Active, &u.CreatedAt)
	return u, err
}

func scanProduct(row pgx.CollectableRow) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.BranchID, &p.PricePerKg, &p.StockKg, &p.Active, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return domain.Validationf("username and password are required")
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, name, password_hash, role, branch_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,true,$7)
	`, user.ID, username, user.Name, user.PasswordHash, user.Role, user.BranchID, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("username %s already exists", username)
		}
		return classify(err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	rows, _ := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return nil, rowOr(err, store.NotFound("user", username))
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	rows, _ := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return nil, rowOr(err, store.NotFound("user", id))
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, _ := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, classify(err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id string, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("user", id)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, branchID string, activeOnly bool) ([]domain.Product, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR branch_id = $1) AND (NOT $2 OR active)
		ORDER BY name
	`, branchID, activeOnly)
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, classify(err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.pool, id, false)
}

func getProduct(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, _ := q.Query(ctx, sql, id)
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return nil, rowOr(err, store.NotFound("product", id))
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, category, branch_id, price_per_kg, stock_kg, active, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Category, product.BranchID, product.PricePerKg, product.StockKg, product.Active, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflictf("product %s already exists", product.ID)
		}
		return nil, classify(err)
	}
	return &product, nil
}

// UpdateProduct changes catalogue fields only; stock_kg and branch_id are
// left to the ledger.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	rows, _ := s.pool.Query(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_per_kg = $4, active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.PricePerKg, product.Active)
	updated, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return nil, rowOr(err, store.NotFound("product", product.ID))
	}
	return &updated, nil
}

func adjustProductStock(ctx context.Context, q querier, productID string, deltaKg float64, at time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE products SET stock_kg = stock_kg + $2, updated_at = $3 WHERE id = $1
	`, productID, deltaKg, at)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("product", productID)
	}
	return nil
}
