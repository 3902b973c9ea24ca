package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

const additionColumns = `id, shift_id, branch_id, product_id, quantity_kg, status, note,
	requested_by, decided_by, created_at, decided_at`

func scanAddition(row pgx.CollectableRow) (domain.StockAddition, error) {
	var a domain.StockAddition
	err := row.Scan(
		&a.ID, &a.ShiftID, &a.BranchID, &a.ProductID, &a.QuantityKg, &a.Status, &a.Note,
		&a.RequestedBy, &a.DecidedBy, &a.CreatedAt, &a.DecidedAt,
	)
	return a, err
}

func getAddition(ctx context.Context, q querier, id string, forUpdate bool) (domain.StockAddition, error) {
	sql := `SELECT ` + additionColumns + ` FROM stock_additions WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, _ := q.Query(ctx, sql, id)
	a, err := pgx.CollectExactlyOneRow(rows, scanAddition)
	if err != nil {
		return a, rowOr(err, store.NotFound("stock addition", id))
	}
	return a, nil
}

func (s *Store) CreateStockAddition(ctx context.Context, addition domain.StockAddition) (*domain.StockAddition, error) {
	shift, err := getShift(ctx, s.pool, addition.ShiftID, false)
	if err != nil {
		return nil, err
	}
	product, err := getProduct(ctx, s.pool, addition.ProductID, false)
	if err != nil {
		return nil, err
	}
	if err := store.RequireBranchProduct(shift, *product); err != nil {
		return nil, err
	}
	if addition.ID == "" {
		addition.ID = xid.New("sad")
	}
	if addition.CreatedAt.IsZero() {
		addition.CreatedAt = time.Now().UTC()
	}
	addition.BranchID = shift.BranchID
	addition.Status = domain.AdditionPending

	_, err = s.pool.Exec(ctx, `
		INSERT INTO stock_additions (id, shift_id, branch_id, product_id, quantity_kg, status, note, requested_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, addition.ID, addition.ShiftID, addition.BranchID, addition.ProductID, addition.QuantityKg,
		addition.Status, addition.Note, addition.RequestedBy, addition.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &addition, nil
}

func (s *Store) GetStockAddition(ctx context.Context, id string) (*domain.StockAddition, error) {
	a, err := getAddition(ctx, s.pool, id, false)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListStockAdditions(ctx context.Context, filter domain.StockAdditionFilter) ([]domain.StockAddition, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.BranchID != "" {
		add("branch_id = $%d", filter.BranchID)
	}
	if filter.ShiftID != "" {
		add("shift_id = $%d", filter.ShiftID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	sql := `SELECT ` + additionColumns + ` FROM stock_additions`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, _ := s.pool.Query(ctx, sql, args...)
	additions, err := pgx.CollectRows(rows, scanAddition)
	if err != nil {
		return nil, classify(err)
	}
	return additions, nil
}

func (s *Store) DecideStockAddition(ctx context.Context, decision domain.StockAdditionDecision) (*domain.StockAddition, error) {
	var decided domain.StockAddition
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		addition, err := getAddition(ctx, tx, decision.ID, true)
		if err != nil {
			return err
		}
		if addition.Status != domain.AdditionPending {
			return domain.Conflictf("stock addition %s is already %s", addition.ID, addition.Status)
		}
		if decision.Status == domain.AdditionApproved {
			shift, err := getShift(ctx, tx, addition.ShiftID, true)
			if err != nil {
				return err
			}
			if err := store.RequireOpen(shift); err != nil {
				return err
			}
			if _, err := addStock(ctx, tx, shift, addition.ProductID, addition.QuantityKg, addition.ID, decision.DecidedBy, decision.At); err != nil {
				return err
			}
		}

		rows, _ := tx.Query(ctx, `
			UPDATE stock_additions
			SET status = $2, decided_by = $3, decided_at = $4
			WHERE id = $1
			RETURNING `+additionColumns,
			addition.ID, decision.Status, decision.DecidedBy, decision.At)
		decided, err = pgx.CollectExactlyOneRow(rows, scanAddition)
		return classify(err)
	})
	if err != nil {
		return nil, err
	}
	return &decided, nil
}
