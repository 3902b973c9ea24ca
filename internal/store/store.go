package store

import (
	"context"
	"errors"
	"time"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrConflict     = domain.ErrConflict
	ErrInvalidState = domain.ErrInvalidState
	// ErrStoreUnavailable means the query itself failed (missing table,
	// malformed column, lost connection), as opposed to an empty result.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Rollup buckets, one table each.
const (
	BucketDaily   = "day"
	BucketWeekly  = "week"
	BucketMonthly = "month"
)

// Repository is the row store. Every method that touches more than one
// table runs as a single unit: either all of its writes land or none do.
type Repository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error

	ListProducts(ctx context.Context, branchID string, activeOnly bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// PriorClosingStock returns, per product, the physical count of the most
	// recent finalized ledger entry in branchID dated before shiftDate.
	PriorClosingStock(ctx context.Context, branchID string, shiftDate string) (map[string]float64, error)
	// CreateShift inserts the shift with its seeded ledger and snapshot lines.
	// It fails with ErrConflict when the cashier already has an open shift.
	CreateShift(ctx context.Context, shift domain.Shift, entries []domain.StockLedgerEntry, lines []domain.LedgerLine) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	GetOpenShiftByCashier(ctx context.Context, cashierID string) (*domain.Shift, error)
	ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]domain.Shift, error)
	CloseShift(ctx context.Context, closing domain.ShiftClosing) (*domain.Shift, []domain.StockLedgerEntry, error)
	// UpdateShiftReview moves a PENDING_REVIEW shift to review.To.
	UpdateShiftReview(ctx context.Context, review domain.ShiftReview) (*domain.Shift, error)

	ListLedgerEntries(ctx context.Context, shiftID string) ([]domain.StockLedgerEntry, error)
	ListLedgerLines(ctx context.Context, shiftID string) ([]domain.LedgerLine, error)
	AddShiftStock(ctx context.Context, shiftID string, productID string, quantityKg float64, reference string, createdBy string, at time.Time) (*domain.StockLedgerEntry, error)
	// RecomputeLedger rebuilds sold and added quantities of an open shift
	// from its transactions and SHIFT_STOCK_ADDED lines.
	RecomputeLedger(ctx context.Context, shiftID string) ([]domain.StockLedgerEntry, error)

	// RecordSale stores the sale and applies it to the ledger, live stock and
	// rollups. A known idempotency key returns the stored sale with
	// duplicate=true and changes nothing.
	RecordSale(ctx context.Context, tx domain.Transaction) (stored *domain.Transaction, duplicate bool, err error)
	// VoidTransaction records void as the negation of originalID.
	VoidTransaction(ctx context.Context, originalID string, void domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	ListSalesRollups(ctx context.Context, branchID string, bucket string, from string, to string) ([]domain.SalesRollup, error)

	CreateStockAddition(ctx context.Context, addition domain.StockAddition) (*domain.StockAddition, error)
	GetStockAddition(ctx context.Context, id string) (*domain.StockAddition, error)
	ListStockAdditions(ctx context.Context, filter domain.StockAdditionFilter) ([]domain.StockAddition, error)
	// DecideStockAddition settles a PENDING request; approval applies it to
	// the shift ledger and live stock. Anything not PENDING is ErrConflict.
	DecideStockAddition(ctx context.Context, decision domain.StockAdditionDecision) (*domain.StockAddition, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
