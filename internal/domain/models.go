package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	BranchID   string          `json:"branch_id"`
	PricePerKg decimal.Decimal `json:"price_per_kg"`
	StockKg    float64         `json:"stock_kg"`
	Active     bool            `json:"active"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	BranchID   string          `json:"branch_id"`
	PricePerKg decimal.Decimal `json:"price_per_kg"`
	StockKg    float64         `json:"stock_kg"`
}

type ProductUpdateRequest struct {
	Name       *string          `json:"name,omitempty"`
	Category   *string          `json:"category,omitempty"`
	PricePerKg *decimal.Decimal `json:"price_per_kg,omitempty"`
	Active     *bool            `json:"active,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

// Actor is the authenticated caller carried on the request context.
type Actor struct {
	ID       string
	Name     string
	Role     string
	BranchID string
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	BranchID  string    `json:"branch_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Username     string
	Name         string
	PasswordHash string
	Role         string
	BranchID     string
	Active       bool
	CreatedAt    time.Time
}

func (u UserAccount) Public() User {
	return User{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Role:      u.Role,
		BranchID:  u.BranchID,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type Shift struct {
	ID           string           `json:"id"`
	CashierID    string           `json:"cashier_id"`
	CashierName  string           `json:"cashier_name"`
	BranchID     string           `json:"branch_id"`
	ShiftDate    string           `json:"shift_date"`
	Status       string           `json:"status"`
	OpenedAt     time.Time        `json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	ClosingCash  *decimal.Decimal `json:"closing_cash,omitempty"`
	ClosingMpesa *decimal.Decimal `json:"closing_mpesa,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	ReviewedBy   string           `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNote   string           `json:"review_note,omitempty"`
}

type ShiftOpenRequest struct {
	CashierID string `json:"cashier_id,omitempty"`
	BranchID  string `json:"branch_id,omitempty"`
}

type ShiftCloseRequest struct {
	PhysicalCounts map[string]float64 `json:"physical_counts"`
	ClosingCash    *decimal.Decimal   `json:"closing_cash"`
	ClosingMpesa   *decimal.Decimal   `json:"closing_mpesa"`
	Notes          string             `json:"notes,omitempty"`
}

type ShiftReviewRequest struct {
	Note string `json:"note,omitempty"`
}

type ShiftFilter struct {
	Status    string
	BranchID  string
	CashierID string
	Limit     int
}

// ShiftClosing carries everything the store needs to finalize a shift in one unit.
type ShiftClosing struct {
	ShiftID       string
	Counts        map[string]float64
	ClosingCash   decimal.Decimal
	ClosingMpesa  decimal.Decimal
	Notes         string
	ClosedBy      string
	ClosedAt      time.Time
	// MissingAsZero counts ledger products absent from Counts as zero
	// instead of rejecting the close.
	MissingAsZero bool
}

type ShiftReview struct {
	ShiftID    string
	To         string
	ReviewedBy string
	Note       string
	At         time.Time
}

type ShiftResponse struct {
	Shift   Shift              `json:"shift"`
	Entries []StockLedgerEntry `json:"entries,omitempty"`
}

// StockLedgerEntry is the per-product, per-shift stock row. Quantities are kilograms.
type StockLedgerEntry struct {
	ShiftID      string    `json:"shift_id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	BranchID     string    `json:"branch_id"`
	ShiftDate    string    `json:"shift_date"`
	OpeningStock float64   `json:"opening_stock"`
	AddedStock   float64   `json:"added_stock"`
	SoldStock    float64   `json:"sold_stock"`
	ClosingStock float64   `json:"closing_stock"`
	Variance     *float64  `json:"variance,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LedgerLine is one row of the inventory_ledger audit trail.
type LedgerLine struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	ProductID  string    `json:"product_id"`
	ShiftID    string    `json:"shift_id,omitempty"`
	Kind       string    `json:"kind"`
	QuantityKg float64   `json:"quantity_kg"`
	Reference  string    `json:"reference,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type AddStockRequest struct {
	ProductID  string  `json:"product_id"`
	QuantityKg float64 `json:"quantity_kg"`
	Note       string  `json:"note,omitempty"`
}

// StockAddition is a manager-gated mid-shift delivery.
type StockAddition struct {
	ID          string     `json:"id"`
	ShiftID     string     `json:"shift_id"`
	BranchID    string     `json:"branch_id"`
	ProductID   string     `json:"product_id"`
	QuantityKg  float64    `json:"quantity_kg"`
	Status      string     `json:"status"`
	Note        string     `json:"note,omitempty"`
	RequestedBy string     `json:"requested_by"`
	DecidedBy   string     `json:"decided_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

type StockAdditionRequest struct {
	ShiftID    string  `json:"shift_id"`
	ProductID  string  `json:"product_id"`
	QuantityKg float64 `json:"quantity_kg"`
	Note       string  `json:"note,omitempty"`
}

type StockAdditionFilter struct {
	BranchID string
	ShiftID  string
	Status   string
	Limit    int
}

type StockAdditionDecision struct {
	ID        string
	Status    string
	DecidedBy string
	At        time.Time
}

type TransactionItem struct {
	ProductID string          `json:"product_id"`
	WeightKg  float64         `json:"weight_kg"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Transaction is a sale, or a void when Total is negative and VoidOf is set.
type Transaction struct {
	ID             string            `json:"id"`
	ShiftID        string            `json:"shift_id"`
	CashierID      string            `json:"cashier_id"`
	BranchID       string            `json:"branch_id"`
	Items          []TransactionItem `json:"items"`
	PaymentMethod  string            `json:"payment_method"`
	Total          decimal.Decimal   `json:"total"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	VoidOf         string            `json:"void_of,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type SaleItemRequest struct {
	ProductID string           `json:"product_id"`
	WeightKg  float64          `json:"weight_kg"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type SaleRequest struct {
	ShiftID        string            `json:"shift_id"`
	Items          []SaleItemRequest `json:"items"`
	PaymentMethod  string            `json:"payment_method"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type SaleResponse struct {
	Transaction Transaction `json:"transaction"`
	Duplicate   bool        `json:"duplicate"`
}

type VoidRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin,omitempty"`
	// ManagerApproved is set by the transport after a successful PIN check.
	ManagerApproved bool `json:"-"`
}

type TransactionFilter struct {
	ShiftID  string
	BranchID string
	From     time.Time
	To       time.Time
	Limit    int
}

// SalesRollup is one row of sales_daily, sales_weekly or sales_monthly.
type SalesRollup struct {
	BranchID         string          `json:"branch_id"`
	Bucket           string          `json:"bucket"`
	BucketStart      string          `json:"bucket_start"`
	Total            decimal.Decimal `json:"total"`
	TransactionCount int64           `json:"transaction_count"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// StockTotals is the roll-up of a set of ledger entries.
type StockTotals struct {
	Entries            int      `json:"entries"`
	Opening            float64  `json:"opening"`
	Added              float64  `json:"added"`
	Sold               float64  `json:"sold"`
	Expected           float64  `json:"expected"`
	Closing            float64  `json:"closing"`
	Variance           float64  `json:"variance"`
	Counted            int      `json:"counted"`
	HasVariance        bool     `json:"has_variance"`
	DiscrepantProducts []string `json:"discrepant_products"`
}

// PaymentReconciliation compares expected takings against reported closing figures.
// Reported and variance fields stay nil until the shift has been closed.
type PaymentReconciliation struct {
	ShiftID       string           `json:"shift_id"`
	Transactions  int              `json:"transactions"`
	ExpectedCash  decimal.Decimal  `json:"expected_cash"`
	ExpectedMpesa decimal.Decimal  `json:"expected_mpesa"`
	ExpectedCard  decimal.Decimal  `json:"expected_card"`
	ReportedCash  *decimal.Decimal `json:"reported_cash,omitempty"`
	ReportedMpesa *decimal.Decimal `json:"reported_mpesa,omitempty"`
	CashVariance  *decimal.Decimal `json:"cash_variance,omitempty"`
	MpesaVariance *decimal.Decimal `json:"mpesa_variance,omitempty"`
	TotalVariance *decimal.Decimal `json:"total_variance,omitempty"`
	HasVariance   *bool            `json:"has_variance,omitempty"`
}

type ShiftReconciliation struct {
	Shift    Shift                 `json:"shift"`
	Entries  []StockLedgerEntry    `json:"entries"`
	Stock    StockTotals           `json:"stock"`
	Payments PaymentReconciliation `json:"payments"`
}

type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type AnalyticsSummary struct {
	CurrentTotal  float64 `json:"current_total"`
	PreviousTotal float64 `json:"previous_total"`
	ChangePct     float64 `json:"change_pct"`
	Avg           float64 `json:"avg"`
	BestLabel     string  `json:"best_label"`
	Trend         string  `json:"trend"`
}

type SalesAnalytics struct {
	BranchID string           `json:"branch_id"`
	Range    string           `json:"range"`
	Bucket   string           `json:"bucket"`
	Source   string           `json:"source"`
	Current  []SeriesPoint    `json:"current"`
	Previous []SeriesPoint    `json:"previous"`
	Summary  AnalyticsSummary `json:"summary"`
}

type ProductSales struct {
	ProductID     string  `json:"product_id"`
	WeightKg      float64 `json:"weight_kg"`
	Total         float64 `json:"total"`
	PreviousTotal float64 `json:"previous_total"`
	ChangePct     float64 `json:"change_pct"`
}

type ProductAnalytics struct {
	BranchID string         `json:"branch_id"`
	Range    string         `json:"range"`
	Products []ProductSales `json:"products"`
}

// ChangeEvent notifies dashboards that shift or stock state moved.
type ChangeEvent struct {
	Type     string    `json:"type"`
	BranchID string    `json:"branch_id"`
	ShiftID  string    `json:"shift_id,omitempty"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

const (
	ShiftStatusOpen          = "OPEN"
	ShiftStatusPendingReview = "PENDING_REVIEW"
	ShiftStatusApproved      = "APPROVED"
	ShiftStatusRejected      = "REJECTED"
)

const (
	PaymentCash  = "cash"
	PaymentMpesa = "mpesa"
	PaymentCard  = "card"
)

const (
	LedgerOpeningSnapshot = "OPENING_SNAPSHOT"
	LedgerSale            = "SALE"
	LedgerShiftStockAdded = "SHIFT_STOCK_ADDED"
	LedgerShiftClose      = "SHIFT_CLOSE"
	LedgerVoid            = "VOID"
)

const (
	AdditionPending  = "PENDING"
	AdditionApproved = "APPROVED"
	AdditionRejected = "REJECTED"
)

const (
	EventSale             = "sale"
	EventVoid             = "void"
	EventStockAdded       = "stock_added"
	EventShiftOpened      = "shift_opened"
	EventShiftClosed      = "shift_closed"
	EventShiftApproved    = "shift_approved"
	EventShiftRejected    = "shift_rejected"
	EventAdditionRequest  = "stock_addition_requested"
	EventAdditionDecision = "stock_addition_decided"
)
