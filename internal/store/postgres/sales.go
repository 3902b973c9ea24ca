package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

const transactionColumns = `id, shift_id, cashier_id, branch_id, items, payment_method, total,
	COALESCE(idempotency_key, ''), COALESCE(void_of, ''), reason, created_at`

var rollupTables = map[string]string{
	store.BucketDaily:   "sales_daily",
	store.BucketWeekly:  "sales_weekly",
	store.BucketMonthly: "sales_monthly",
}

func scanTransaction(row pgx.CollectableRow) (domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.ShiftID, &t.CashierID, &t.BranchID, &t.Items, &t.PaymentMethod, &t.Total,
		&t.IdempotencyKey, &t.VoidOf, &t.Reason, &t.CreatedAt,
	)
	return t, err
}

func findTransaction(ctx context.Context, q querier, column string, value string, forUpdate bool) (*domain.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + column + ` = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, _ := q.Query(ctx, sql, value)
	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		return nil, rowOr(err, store.NotFound("transaction", value))
	}
	return &t, nil
}

func (s *Store) RecordSale(ctx context.Context, t domain.Transaction) (*domain.Transaction, bool, error) {
	if t.IdempotencyKey != "" {
		existing, err := findTransaction(ctx, s.pool, "idempotency_key", t.IdempotencyKey, false)
		if err == nil {
			return replayed(*existing, t)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}
	if t.ID == "" {
		t.ID = xid.New("txn")
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		shift, err := getShift(ctx, tx, t.ShiftID, true)
		if err != nil {
			return err
		}
		if err := store.RequireOpen(shift); err != nil {
			return err
		}
		t.BranchID = shift.BranchID

		for _, item := range t.Items {
			if err := applySale(ctx, tx, shift, item.ProductID, item.WeightKg, domain.LedgerSale, t.ID, t.CashierID, t.CreatedAt); err != nil {
				return err
			}
		}
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		return upsertRollups(ctx, tx, t)
	})
	if err != nil {
		// lost a race with a concurrent request carrying the same key
		if t.IdempotencyKey != "" && errors.Is(err, store.ErrConflict) {
			existing, findErr := findTransaction(ctx, s.pool, "idempotency_key", t.IdempotencyKey, false)
			if findErr == nil {
				return replayed(*existing, t)
			}
		}
		return nil, false, err
	}
	return &t, false, nil
}

func (s *Store) VoidTransaction(ctx context.Context, originalID string, void domain.Transaction) (*domain.Transaction, error) {
	if void.ID == "" {
		void.ID = xid.New("txn")
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		original, err := findTransaction(ctx, tx, "id", originalID, true)
		if err != nil {
			return err
		}
		var voided bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE void_of = $1)`, originalID).Scan(&voided); err != nil {
			return classify(err)
		}
		if err := store.ValidateVoidable(*original, voided); err != nil {
			return err
		}

		void.VoidOf = original.ID
		void.ShiftID = original.ShiftID
		void.BranchID = original.BranchID
		void.PaymentMethod = original.PaymentMethod
		void.Items = store.NegateItems(original.Items)
		void.Total = original.Total.Neg()
		void.IdempotencyKey = ""

		shift, err := getShift(ctx, tx, original.ShiftID, true)
		if err != nil {
			return err
		}
		if shift.Status == domain.ShiftStatusOpen {
			for _, item := range void.Items {
				if err := applySale(ctx, tx, shift, item.ProductID, item.WeightKg, domain.LedgerVoid, void.ID, void.CashierID, void.CreatedAt); err != nil {
					return err
				}
			}
		}
		if err := insertTransaction(ctx, tx, void); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return domain.Conflictf("transaction %s is already voided", originalID)
			}
			return err
		}
		return upsertRollups(ctx, tx, void)
	})
	if err != nil {
		return nil, err
	}
	return &void, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return findTransaction(ctx, s.pool, "id", id, false)
}

// ListTransactions returns matches in chronological order; with a limit it
// keeps the most recent ones.
func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ShiftID != "" {
		add("shift_id = $%d", filter.ShiftID)
	}
	if filter.BranchID != "" {
		add("branch_id = $%d", filter.BranchID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	sql := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, _ := s.pool.Query(ctx, sql, args...)
	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, classify(err)
	}
	slices.Reverse(txs)
	return txs, nil
}

func (s *Store) ListSalesRollups(ctx context.Context, branchID string, bucket string, from string, to string) ([]domain.SalesRollup, error) {
	table, ok := rollupTables[bucket]
	if !ok {
		return nil, domain.Validationf("unknown rollup bucket %q", bucket)
	}
	rows, _ := s.pool.Query(ctx, `
		SELECT branch_id, bucket_start::text, total, transaction_count
		FROM `+table+`
		WHERE ($1 = '' OR branch_id = $1) AND bucket_start >= $2 AND bucket_start < $3
		ORDER BY bucket_start, branch_id
	`, branchID, from, to)
	rollups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SalesRollup, error) {
		r := domain.SalesRollup{Bucket: bucket}
		err := row.Scan(&r.BranchID, &r.BucketStart, &r.Total, &r.TransactionCount)
		return r, err
	})
	if err != nil {
		return nil, classify(err)
	}
	return rollups, nil
}

func insertTransaction(ctx context.Context, q querier, t domain.Transaction) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transactions (
			id, shift_id, cashier_id, branch_id, items, payment_method, total,
			idempotency_key, void_of, reason, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, t.ID, t.ShiftID, t.CashierID, t.BranchID, t.Items, t.PaymentMethod, t.Total,
		nullIfEmpty(t.IdempotencyKey), nullIfEmpty(t.VoidOf), t.Reason, t.CreatedAt)
	return classify(err)
}

// upsertRollups adds t to its daily, weekly and monthly rows in the same
// transaction as the sale itself.
func upsertRollups(ctx context.Context, q querier, t domain.Transaction) error {
	for bucket, start := range store.RollupStarts(t.CreatedAt) {
		table := rollupTables[bucket]
		_, err := q.Exec(ctx, `
			INSERT INTO `+table+` (branch_id, bucket_start, total, transaction_count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (branch_id, bucket_start)
			DO UPDATE SET total = `+table+`.total + EXCLUDED.total,
				transaction_count = `+table+`.transaction_count + EXCLUDED.transaction_count
		`, t.BranchID, start, t.Total, store.CountDelta(t))
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

func replayed(existing domain.Transaction, incoming domain.Transaction) (*domain.Transaction, bool, error) {
	stored, err := store.ReplayedSale(existing, incoming)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}
