package postgres

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/reconcile"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

const entryColumns = `shift_id, product_id, product_name, branch_id, shift_date::text,
	opening_stock, added_stock, sold_stock, closing_stock, variance, updated_at`

const lineColumns = `id, branch_id, product_id, shift_id, kind, quantity_kg, reference, created_by, created_at`

func scanEntry(row pgx.CollectableRow) (domain.StockLedgerEntry, error) {
	var e domain.StockLedgerEntry
	err := row.Scan(
		&e.ShiftID, &e.ProductID, &e.ProductName, &e.BranchID, &e.ShiftDate,
		&e.OpeningStock, &e.AddedStock, &e.SoldStock, &e.ClosingStock, &e.Variance, &e.UpdatedAt,
	)
	return e, err
}

func scanLine(row pgx.CollectableRow) (domain.LedgerLine, error) {
	var l domain.LedgerLine
	err := row.Scan(&l.ID, &l.BranchID, &l.ProductID, &l.ShiftID, &l.Kind, &l.QuantityKg, &l.Reference, &l.CreatedBy, &l.CreatedAt)
	return l, err
}

func sortEntries(entries []domain.StockLedgerEntry) {
	slices.SortFunc(entries, func(a, b domain.StockLedgerEntry) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
}

func listEntries(ctx context.Context, q querier, shiftID string, forUpdate bool) ([]domain.StockLedgerEntry, error) {
	sql := `SELECT ` + entryColumns + ` FROM shift_stock_entries WHERE shift_id = $1 ORDER BY product_id`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, _ := q.Query(ctx, sql, shiftID)
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

const insertEntrySQL = `
	INSERT INTO shift_stock_entries (
		shift_id, product_id, product_name, branch_id, shift_date,
		opening_stock, added_stock, sold_stock, closing_stock, variance, updated_at
	)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`

const insertLineSQL = `
	INSERT INTO inventory_ledger (id, branch_id, product_id, shift_id, kind, quantity_kg, reference, created_by, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`

func entryArgs(e domain.StockLedgerEntry) []any {
	return []any{
		e.ShiftID, e.ProductID, e.ProductName, e.BranchID, e.ShiftDate,
		e.OpeningStock, e.AddedStock, e.SoldStock, e.ClosingStock, e.Variance, e.UpdatedAt,
	}
}

func lineArgs(l domain.LedgerLine) []any {
	if l.ID == "" {
		l.ID = xid.New("led")
	}
	return []any{l.ID, l.BranchID, l.ProductID, l.ShiftID, l.Kind, l.QuantityKg, l.Reference, l.CreatedBy, l.CreatedAt}
}

func queueEntryInsert(batch *pgx.Batch, e domain.StockLedgerEntry) {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	batch.Queue(insertEntrySQL, entryArgs(e)...)
}

func queueLineInsert(batch *pgx.Batch, l domain.LedgerLine) {
	batch.Queue(insertLineSQL, lineArgs(l)...)
}

func insertLine(ctx context.Context, q querier, l domain.LedgerLine) error {
	_, err := q.Exec(ctx, insertLineSQL, lineArgs(l)...)
	return classify(err)
}

func saveEntry(ctx context.Context, q querier, e domain.StockLedgerEntry) error {
	_, err := q.Exec(ctx, `
		UPDATE shift_stock_entries
		SET added_stock = $3, sold_stock = $4, closing_stock = $5, variance = $6, updated_at = $7
		WHERE shift_id = $1 AND product_id = $2
	`, e.ShiftID, e.ProductID, e.AddedStock, e.SoldStock, e.ClosingStock, e.Variance, e.UpdatedAt)
	return classify(err)
}

// entryForUpdate locks the shift's entry for productID, seeding it from live
// stock with an OPENING_SNAPSHOT line when the product was not tracked yet.
func entryForUpdate(ctx context.Context, tx pgx.Tx, shift domain.Shift, productID string, at time.Time) (domain.StockLedgerEntry, error) {
	rows, _ := tx.Query(ctx, `
		SELECT `+entryColumns+`
		FROM shift_stock_entries
		WHERE shift_id = $1 AND product_id = $2
		FOR UPDATE
	`, shift.ID, productID)
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return e, classify(err)
	}

	product, err := getProduct(ctx, tx, productID, true)
	if err != nil {
		return e, err
	}
	if err := store.RequireBranchProduct(shift, *product); err != nil {
		return e, err
	}
	e = domain.StockLedgerEntry{
		ShiftID:      shift.ID,
		ProductID:    productID,
		ProductName:  product.Name,
		BranchID:     shift.BranchID,
		ShiftDate:    shift.ShiftDate,
		OpeningStock: product.StockKg,
		ClosingStock: product.StockKg,
		UpdatedAt:    at,
	}
	if _, err := tx.Exec(ctx, insertEntrySQL, entryArgs(e)...); err != nil {
		return e, classify(err)
	}
	err = insertLine(ctx, tx, domain.LedgerLine{
		BranchID:   shift.BranchID,
		ProductID:  productID,
		ShiftID:    shift.ID,
		Kind:       domain.LedgerOpeningSnapshot,
		QuantityKg: product.StockKg,
		CreatedAt:  at,
	})
	return e, err
}

// applySale moves weightKg out of the shift ledger and live stock. Voids pass
// a negative weight.
func applySale(ctx context.Context, tx pgx.Tx, shift domain.Shift, productID string, weightKg float64, kind, reference, createdBy string, at time.Time) error {
	e, err := entryForUpdate(ctx, tx, shift, productID, at)
	if err != nil {
		return err
	}
	reconcile.ApplySale(&e, weightKg)
	e.UpdatedAt = at
	if err := saveEntry(ctx, tx, e); err != nil {
		return err
	}
	if err := adjustProductStock(ctx, tx, productID, -weightKg, at); err != nil {
		return err
	}
	return insertLine(ctx, tx, domain.LedgerLine{
		BranchID:   shift.BranchID,
		ProductID:  productID,
		ShiftID:    shift.ID,
		Kind:       kind,
		QuantityKg: -weightKg,
		Reference:  reference,
		CreatedBy:  createdBy,
		CreatedAt:  at,
	})
}

func addStock(ctx context.Context, tx pgx.Tx, shift domain.Shift, productID string, quantityKg float64, reference, createdBy string, at time.Time) (domain.StockLedgerEntry, error) {
	e, err := entryForUpdate(ctx, tx, shift, productID, at)
	if err != nil {
		return e, err
	}
	reconcile.ApplyAddition(&e, quantityKg)
	e.UpdatedAt = at
	if err := saveEntry(ctx, tx, e); err != nil {
		return e, err
	}
	if err := adjustProductStock(ctx, tx, productID, quantityKg, at); err != nil {
		return e, err
	}
	return e, insertLine(ctx, tx, domain.LedgerLine{
		BranchID:   shift.BranchID,
		ProductID:  productID,
		ShiftID:    shift.ID,
		Kind:       domain.LedgerShiftStockAdded,
		QuantityKg: quantityKg,
		Reference:  reference,
		CreatedBy:  createdBy,
		CreatedAt:  at,
	})
}

func (s *Store) ListLedgerEntries(ctx context.Context, shiftID string) ([]domain.StockLedgerEntry, error) {
	if _, err := getShift(ctx, s.pool, shiftID, false); err != nil {
		return nil, err
	}
	return listEntries(ctx, s.pool, shiftID, false)
}

func (s *Store) ListLedgerLines(ctx context.Context, shiftID string) ([]domain.LedgerLine, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT `+lineColumns+`
		FROM inventory_ledger
		WHERE shift_id = $1
		ORDER BY created_at, id
	`, shiftID)
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return nil, classify(err)
	}
	return lines, nil
}

func (s *Store) AddShiftStock(ctx context.Context, shiftID string, productID string, quantityKg float64, reference string, createdBy string, at time.Time) (*domain.StockLedgerEntry, error) {
	var entry domain.StockLedgerEntry
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		shift, err := getShift(ctx, tx, shiftID, true)
		if err != nil {
			return err
		}
		if err := store.RequireOpen(shift); err != nil {
			return err
		}
		entry, err = addStock(ctx, tx, shift, productID, quantityKg, reference, createdBy, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) RecomputeLedger(ctx context.Context, shiftID string) ([]domain.StockLedgerEntry, error) {
	var entries []domain.StockLedgerEntry
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		shift, err := getShift(ctx, tx, shiftID, true)
		if err != nil {
			return err
		}
		if err := store.RequireOpen(shift); err != nil {
			return err
		}

		sold, err := sumByProduct(ctx, tx, `
			SELECT item->>'product_id', SUM((item->>'weight_kg')::double precision)
			FROM transactions t, jsonb_array_elements(t.items) AS item
			WHERE t.shift_id = $1
			GROUP BY 1
		`, shiftID)
		if err != nil {
			return err
		}
		added, err := sumByProduct(ctx, tx, `
			SELECT product_id, SUM(quantity_kg)
			FROM inventory_ledger
			WHERE shift_id = $1 AND kind = '`+domain.LedgerShiftStockAdded+`'
			GROUP BY 1
		`, shiftID)
		if err != nil {
			return err
		}

		entries, err = listEntries(ctx, tx, shiftID, true)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range entries {
			e := &entries[i]
			e.SoldStock = sold[e.ProductID]
			e.AddedStock = added[e.ProductID]
			reconcile.Rederive(e)
			e.UpdatedAt = now
			if err := saveEntry(ctx, tx, *e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func sumByProduct(ctx context.Context, q querier, sql string, args ...any) (map[string]float64, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make(map[string]float64, 16)
	for rows.Next() {
		var productID string
		var qty float64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, classify(err)
		}
		out[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
