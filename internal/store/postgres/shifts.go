package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/reconcile"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

const shiftColumns = `id, cashier_id, cashier_name, branch_id, shift_date::text, status, opened_at,
	closed_at, closing_cash, closing_mpesa, notes, reviewed_by, reviewed_at, review_note`

func scanShift(row pgx.CollectableRow) (domain.Shift, error) {
	var (
		shift        domain.Shift
		closingCash  decimal.NullDecimal
		closingMpesa decimal.NullDecimal
	)
	err := row.Scan(
		&shift.ID, &shift.CashierID, &shift.CashierName, &shift.BranchID, &shift.ShiftDate, &shift.Status, &shift.OpenedAt,
		&shift.ClosedAt, &closingCash, &closingMpesa, &shift.Notes, &shift.ReviewedBy, &shift.ReviewedAt, &shift.ReviewNote,
	)
	if err != nil {
		return shift, err
	}
	shift.Status = domain.NormalizeShiftStatus(shift.Status)
	if closingCash.Valid {
		shift.ClosingCash = &closingCash.Decimal
	}
	if closingMpesa.Valid {
		shift.ClosingMpesa = &closingMpesa.Decimal
	}
	return shift, nil
}

func getShift(ctx context.Context, q querier, id string, forUpdate bool) (domain.Shift, error) {
	sql := `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, _ := q.Query(ctx, sql, id)
	shift, err := pgx.CollectExactlyOneRow(rows, scanShift)
	if err != nil {
		return shift, rowOr(err, store.NotFound("shift", id))
	}
	return shift, nil
}

func (s *Store) PriorClosingStock(ctx context.Context, branchID string, shiftDate string) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (e.product_id) e.product_id, e.closing_stock
		FROM shift_stock_entries e
		JOIN shifts sh ON sh.id = e.shift_id
		WHERE e.branch_id = $1 AND e.shift_date < $2 AND e.variance IS NOT NULL
		ORDER BY e.product_id, e.shift_date DESC, sh.closed_at DESC NULLS LAST
	`, branchID, shiftDate)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make(map[string]float64, 16)
	for rows.Next() {
		var productID string
		var count float64
		if err := rows.Scan(&productID, &count); err != nil {
			return nil, classify(err)
		}
		out[productID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift, entries []domain.StockLedgerEntry, lines []domain.LedgerLine) (*domain.Shift, error) {
	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	shift.Status = domain.ShiftStatusOpen

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO shifts (id, cashier_id, cashier_name, branch_id, shift_date, status, opened_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, shift.ID, shift.CashierID, shift.CashierName, shift.BranchID, shift.ShiftDate, shift.Status, shift.OpenedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.Conflictf("cashier %s already has an open shift", shift.CashierID)
			}
			return classify(err)
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			e.ShiftID = shift.ID
			queueEntryInsert(batch, e)
		}
		for _, line := range lines {
			line.ShiftID = shift.ID
			queueLineInsert(batch, line)
		}
		if batch.Len() == 0 {
			return nil
		}
		return classify(tx.SendBatch(ctx, batch).Close())
	})
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := getShift(ctx, s.pool, id, false)
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetOpenShiftByCashier(ctx context.Context, cashierID string) (*domain.Shift, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE cashier_id = $1 AND status = $2
	`, cashierID, domain.ShiftStatusOpen)
	shift, err := pgx.CollectExactlyOneRow(rows, scanShift)
	if err != nil {
		return nil, rowOr(err, store.NotFound("open shift for cashier", cashierID))
	}
	return &shift, nil
}

func (s *Store) ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]domain.Shift, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.BranchID != "" {
		add("branch_id = $%d", filter.BranchID)
	}
	if filter.CashierID != "" {
		add("cashier_id = $%d", filter.CashierID)
	}

	sql := `SELECT ` + shiftColumns + ` FROM shifts`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY opened_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, _ := s.pool.Query(ctx, sql, args...)
	shifts, err := pgx.CollectRows(rows, scanShift)
	if err != nil {
		return nil, classify(err)
	}
	return shifts, nil
}

func (s *Store) CloseShift(ctx context.Context, closing domain.ShiftClosing) (*domain.Shift, []domain.StockLedgerEntry, error) {
	var (
		closed  domain.Shift
		entries []domain.StockLedgerEntry
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		shift, err := getShift(ctx, tx, closing.ShiftID, true)
		if err != nil {
			return err
		}
		if err := store.RequireOpen(shift); err != nil {
			return err
		}

		current, err := listEntries(ctx, tx, shift.ID, true)
		if err != nil {
			return err
		}
		tracked := make(map[string]bool, len(current))
		for _, e := range current {
			tracked[e.ProductID] = true
		}
		untracked := make([]string, 0, len(closing.Counts))
		for productID := range closing.Counts {
			if !tracked[productID] {
				untracked = append(untracked, productID)
			}
		}
		if err := requireProducts(ctx, tx, untracked); err != nil {
			return err
		}
		if !closing.MissingAsZero {
			if missing := store.MissingCounts(current, closing.Counts); len(missing) > 0 {
				return store.MissingCountsError(missing)
			}
		}

		for _, productID := range untracked {
			e, err := entryForUpdate(ctx, tx, shift, productID, closing.ClosedAt)
			if err != nil {
				return err
			}
			current = append(current, e)
		}

		for i := range current {
			e := &current[i]
			variance := reconcile.Finalize(e, closing.Counts[e.ProductID])
			e.UpdatedAt = closing.ClosedAt
			if err := saveEntry(ctx, tx, *e); err != nil {
				return err
			}
			if err := adjustProductStock(ctx, tx, e.ProductID, variance, closing.ClosedAt); err != nil {
				return err
			}
			if err := insertLine(ctx, tx, domain.LedgerLine{
				BranchID:   shift.BranchID,
				ProductID:  e.ProductID,
				ShiftID:    shift.ID,
				Kind:       domain.LedgerShiftClose,
				QuantityKg: variance,
				CreatedBy:  closing.ClosedBy,
				CreatedAt:  closing.ClosedAt,
			}); err != nil {
				return err
			}
		}

		rows, _ := tx.Query(ctx, `
			UPDATE shifts
			SET status = $2, closed_at = $3, closing_cash = $4, closing_mpesa = $5, notes = $6
			WHERE id = $1
			RETURNING `+shiftColumns,
			shift.ID, domain.ShiftStatusPendingReview, closing.ClosedAt, closing.ClosingCash, closing.ClosingMpesa, closing.Notes)
		closed, err = pgx.CollectExactlyOneRow(rows, scanShift)
		if err != nil {
			return classify(err)
		}
		entries = current
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sortEntries(entries)
	return &closed, entries, nil
}

func (s *Store) UpdateShiftReview(ctx context.Context, review domain.ShiftReview) (*domain.Shift, error) {
	rows, _ := s.pool.Query(ctx, `
		UPDATE shifts
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_note = $5
		WHERE id = $1 AND status = $6
		RETURNING `+shiftColumns,
		review.ShiftID, review.To, review.ReviewedBy, review.At, review.Note, domain.ShiftStatusPendingReview)
	shift, err := pgx.CollectExactlyOneRow(rows, scanShift)
	if err == nil {
		return &shift, nil
	}
	if err := rowOr(err, nil); err != nil {
		return nil, err
	}

	current, err := s.GetShift(ctx, review.ShiftID)
	if err != nil {
		return nil, err
	}
	return nil, domain.InvalidStatef("shift %s is %s, not %s", current.ID, current.Status, domain.ShiftStatusPendingReview)
}

func requireProducts(ctx context.Context, q querier, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, _ := q.Query(ctx, `SELECT id FROM products WHERE id = ANY($1)`, ids)
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return classify(err)
	}
	known := make(map[string]bool, len(found))
	for _, id := range found {
		known[id] = true
	}
	for _, id := range ids {
		if !known[id] {
			return domain.Validationf("unknown product %s in physical counts", id)
		}
	}
	return nil
}
