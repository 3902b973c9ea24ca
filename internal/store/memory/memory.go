package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/reconcile"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

// Store keeps every table in maps behind one mutex, so each multi-step
// mutation is atomic with respect to every other request.
type Store struct {
	mu sync.RWMutex

	usersByID      map[string]domain.UserAccount
	userIDByName   map[string]string
	products       map[string]domain.Product
	shifts         map[string]domain.Shift
	openByCashier  map[string]string
	ledger         map[string]map[string]*domain.StockLedgerEntry
	ledgerLines    []domain.LedgerLine
	txByID         map[string]*domain.Transaction
	txOrder        []string
	txByIdem       map[string]string
	voidedBy       map[string]string
	additions      map[string]domain.StockAddition
	rollups        map[string]map[string]*domain.SalesRollup
	auditLogs      []domain.AuditLog
	failingRollups bool
}

func New() *Store {
	return &Store{
		usersByID:     map[string]domain.UserAccount{},
		userIDByName:  map[string]string{},
		products:      map[string]domain.Product{},
		shifts:        map[string]domain.Shift{},
		openByCashier: map[string]string{},
		ledger:        map[string]map[string]*domain.StockLedgerEntry{},
		ledgerLines:   make([]domain.LedgerLine, 0, 256),
		txByID:        map[string]*domain.Transaction{},
		txByIdem:      map[string]string{},
		voidedBy:      map[string]string{},
		additions:     map[string]domain.StockAddition{},
		rollups: map[string]map[string]*domain.SalesRollup{
			store.BucketDaily:   {},
			store.BucketWeekly:  {},
			store.BucketMonthly: {},
		},
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD and
// fall back to well-known defaults with a warning.
func seedUsers(logger zerolog.Logger) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn().Msg("using default dev credentials; set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		id       string
		username string
		name     string
		password string
		role     string
	}{
		{"usr_admin", "admin", "Administrator", adminPwd, domain.RoleAdmin},
		{"usr_manager", "manager", "Branch Manager", managerPwd, domain.RoleManager},
		{"usr_cashier", "cashier", "Front Counter", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users = append(users, domain.UserAccount{
			ID:           u.id,
			Username:     u.username,
			Name:         u.name,
			PasswordHash: string(hash),
			Role:         u.role,
			BranchID:     "branch1",
			Active:       true,
			CreatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo accounts and a butchery catalogue.
func NewSeeded(logger zerolog.Logger) *Store {
	s := New()
	for _, u := range seedUsers(logger) {
		s.usersByID[u.ID] = u
		s.userIDByName[u.Username] = u.ID
	}

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{ID: "prd_beef", Name: "Beef (boneless)", Category: "beef", PricePerKg: decimal.NewFromInt(750), StockKg: 120},
		{ID: "prd_beef_bone", Name: "Beef (with bone)", Category: "beef", PricePerKg: decimal.NewFromInt(650), StockKg: 80},
		{ID: "prd_goat", Name: "Goat", Category: "goat", PricePerKg: decimal.NewFromInt(900), StockKg: 60},
		{ID: "prd_mutton", Name: "Mutton", Category: "mutton", PricePerKg: decimal.NewFromInt(850), StockKg: 40},
		{ID: "prd_chicken", Name: "Chicken", Category: "poultry", PricePerKg: decimal.NewFromInt(550), StockKg: 50},
		{ID: "prd_liver", Name: "Beef liver", Category: "offal", PricePerKg: decimal.NewFromInt(600), StockKg: 15},
		{ID: "prd_mince", Name: "Minced beef", Category: "beef", PricePerKg: decimal.NewFromInt(800), StockKg: 25},
		{ID: "prd_sausage", Name: "Beef sausages", Category: "processed", PricePerKg: decimal.NewFromInt(700), StockKg: 20},
	} {
		p.BranchID = "branch1"
		p.Active = true
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

// FailRollups makes ListSalesRollups fail as if the rollup tables were
// missing, to exercise the raw-transaction fallback.
func (s *Store) FailRollups(fail bool) {
	s.mu.Lock()
	s.failingRollups = fail
	s.mu.Unlock()
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return domain.Validationf("username and password are required")
	}
	if _, exists := s.userIDByName[username]; exists {
		return domain.Conflictf("username %s already exists", username)
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByID[user.ID] = user
	s.userIDByName[username] = user.ID
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDByName[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.NotFound("user", username)
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.NotFound("user", id)
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByID[id]
	if !ok {
		return store.NotFound("user", id)
	}
	user.PasswordHash = passwordHash
	s.usersByID[id] = user
	return nil
}

func (s *Store) ListProducts(_ context.Context, branchID string, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, domain.Conflictf("product %s already exists", product.ID)
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[product.ID]
	if !ok {
		return nil, store.NotFound("product", product.ID)
	}
	// live stock only moves through the ledger
	product.StockKg = current.StockKg
	product.BranchID = current.BranchID
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) PriorClosingStock(_ context.Context, branchID string, shiftDate string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type found struct {
		date     string
		closedAt time.Time
		count    float64
	}
	latest := map[string]found{}
	for shiftID, entries := range s.ledger {
		shift := s.shifts[shiftID]
		if shift.BranchID != branchID || shift.ShiftDate >= shiftDate || shift.ClosedAt == nil {
			continue
		}
		for productID, e := range entries {
			if e.Variance == nil {
				continue
			}
			prev, ok := latest[productID]
			if ok && (prev.date > shift.ShiftDate || (prev.date == shift.ShiftDate && !prev.closedAt.Before(*shift.ClosedAt))) {
				continue
			}
			latest[productID] = found{date: shift.ShiftDate, closedAt: *shift.ClosedAt, count: e.ClosingStock}
		}
	}

	out := make(map[string]float64, len(latest))
	for productID, f := range latest {
		out[productID] = f.count
	}
	return out, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift, entries []domain.StockLedgerEntry, lines []domain.LedgerLine) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.openByCashier[shift.CashierID]; ok {
		return nil, domain.Conflictf("cashier %s already has open shift %s", shift.CashierID, existing)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	shift.Status = domain.ShiftStatusOpen

	ledger := make(map[string]*domain.StockLedgerEntry, len(entries))
	for _, e := range entries {
		e.ShiftID = shift.ID
		ledger[e.ProductID] = &e
	}
	for _, line := range lines {
		line.ShiftID = shift.ID
		s.appendLine(line)
	}

	s.shifts[shift.ID] = shift
	s.openByCashier[shift.CashierID] = shift.ID
	s.ledger[shift.ID] = ledger
	return &shift, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shifts[id]
	if !ok {
		return nil, store.NotFound("shift", id)
	}
	return &shift, nil
}

func (s *Store) GetOpenShiftByCashier(_ context.Context, cashierID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openByCashier[cashierID]
	if !ok {
		return nil, store.NotFound("open shift for cashier", cashierID)
	}
	shift := s.shifts[id]
	return &shift, nil
}

func (s *Store) ListShifts(_ context.Context, filter domain.ShiftFilter) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, 32)
	for _, shift := range s.shifts {
		if filter.Status != "" && shift.Status != filter.Status {
			continue
		}
		if filter.BranchID != "" && shift.BranchID != filter.BranchID {
			continue
		}
		if filter.CashierID != "" && shift.CashierID != filter.CashierID {
			continue
		}
		result = append(result, shift)
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		if c := b.OpenedAt.Compare(a.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CloseShift(_ context.Context, closing domain.ShiftClosing) (*domain.Shift, []domain.StockLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[closing.ShiftID]
	if !ok {
		return nil, nil, store.NotFound("shift", closing.ShiftID)
	}
	if err := store.RequireOpen(shift); err != nil {
		return nil, nil, err
	}

	ledger := s.ledger[shift.ID]
	for productID := range closing.Counts {
		if _, ok := ledger[productID]; ok {
			continue
		}
		product, ok := s.products[productID]
		if !ok {
			return nil, nil, domain.Validationf("unknown product %s in physical counts", productID)
		}
		if err := store.RequireBranchProduct(shift, product); err != nil {
			return nil, nil, err
		}
	}
	if !closing.MissingAsZero {
		if missing := store.MissingCounts(s.entriesLocked(shift.ID), closing.Counts); len(missing) > 0 {
			return nil, nil, store.MissingCountsError(missing)
		}
	}

	// validated; from here on nothing fails
	for productID := range closing.Counts {
		if _, ok := ledger[productID]; !ok {
			s.seedEntryLocked(shift, productID, closing.ClosedAt)
		}
	}
	for productID, e := range s.ledger[shift.ID] {
		count := closing.Counts[productID]
		variance := reconcile.Finalize(e, count)
		e.UpdatedAt = closing.ClosedAt

		p := s.products[productID]
		p.StockKg += variance
		p.UpdatedAt = closing.ClosedAt
		s.products[productID] = p

		s.appendLine(domain.LedgerLine{
			BranchID:   shift.BranchID,
			ProductID:  productID,
			ShiftID:    shift.ID,
			Kind:       domain.LedgerShiftClose,
			QuantityKg: variance,
			CreatedBy:  closing.ClosedBy,
			CreatedAt:  closing.ClosedAt,
		})
	}

	closedAt := closing.ClosedAt
	cash := closing.ClosingCash
	mpesa := closing.ClosingMpesa
	shift.Status = domain.ShiftStatusPendingReview
	shift.ClosedAt = &closedAt
	shift.ClosingCash = &cash
	shift.ClosingMpesa = &mpesa
	shift.Notes = closing.Notes
	s.shifts[shift.ID] = shift
	delete(s.openByCashier, shift.CashierID)

	return &shift, s.entriesLocked(shift.ID), nil
}

func (s *Store) UpdateShiftReview(_ context.Context, review domain.ShiftReview) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[review.ShiftID]
	if !ok {
		return nil, store.NotFound("shift", review.ShiftID)
	}
	if shift.Status != domain.ShiftStatusPendingReview {
		return nil, domain.InvalidStatef("shift %s is %s, not %s", shift.ID, shift.Status, domain.ShiftStatusPendingReview)
	}
	at := review.At
	shift.Status = review.To
	shift.ReviewedBy = review.ReviewedBy
	shift.ReviewedAt = &at
	shift.ReviewNote = review.Note
	s.shifts[shift.ID] = shift
	return &shift, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, shiftID string) ([]domain.StockLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.shifts[shiftID]; !ok {
		return nil, store.NotFound("shift", shiftID)
	}
	return s.entriesLocked(shiftID), nil
}

func (s *Store) ListLedgerLines(_ context.Context, shiftID string) ([]domain.LedgerLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.LedgerLine, 0, 32)
	for _, line := range s.ledgerLines {
		if line.ShiftID == shiftID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (s *Store) AddShiftStock(_ context.Context, shiftID string, productID string, quantityKg float64, reference string, createdBy string, at time.Time) (*domain.StockLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, store.NotFound("shift", shiftID)
	}
	if err := store.RequireOpen(shift); err != nil {
		return nil, err
	}
	product, ok := s.products[productID]
	if !ok {
		return nil, store.NotFound("product", productID)
	}
	if err := store.RequireBranchProduct(shift, product); err != nil {
		return nil, err
	}
	entry := s.addStockLocked(shift, productID, quantityKg, reference, createdBy, at)
	out := *entry
	return &out, nil
}

func (s *Store) RecomputeLedger(_ context.Context, shiftID string) ([]domain.StockLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, store.NotFound("shift", shiftID)
	}
	if err := store.RequireOpen(shift); err != nil {
		return nil, err
	}

	sold := map[string]float64{}
	for _, id := range s.txOrder {
		tx := s.txByID[id]
		if tx.ShiftID != shiftID {
			continue
		}
		for _, item := range tx.Items {
			sold[item.ProductID] += item.WeightKg
		}
	}
	added := map[string]float64{}
	for _, line := range s.ledgerLines {
		if line.ShiftID == shiftID && line.Kind == domain.LedgerShiftStockAdded {
			added[line.ProductID] += line.QuantityKg
		}
	}

	now := time.Now().UTC()
	for productID, e := range s.ledger[shiftID] {
		e.SoldStock = sold[productID]
		e.AddedStock = added[productID]
		reconcile.Rederive(e)
		e.UpdatedAt = now
	}
	return s.entriesLocked(shiftID), nil
}

func (s *Store) RecordSale(_ context.Context, tx domain.Transaction) (*domain.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.IdempotencyKey != "" {
		if id, ok := s.txByIdem[tx.IdempotencyKey]; ok {
			stored, err := store.ReplayedSale(*cloneTransaction(s.txByID[id]), tx)
			if err != nil {
				return nil, false, err
			}
			return stored, true, nil
		}
	}

	shift, ok := s.shifts[tx.ShiftID]
	if !ok {
		return nil, false, store.NotFound("shift", tx.ShiftID)
	}
	if err := store.RequireOpen(shift); err != nil {
		return nil, false, err
	}
	for _, item := range tx.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, false, store.NotFound("product", item.ProductID)
		}
		if err := store.RequireBranchProduct(shift, product); err != nil {
			return nil, false, err
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	tx.BranchID = shift.BranchID
	for _, item := range tx.Items {
		s.applySaleLocked(shift, item.ProductID, item.WeightKg, domain.LedgerSale, tx.ID, tx.CashierID, tx.CreatedAt)
	}
	s.upsertRollupsLocked(tx)
	s.insertTransactionLocked(tx)
	return cloneTransaction(&tx), false, nil
}

func (s *Store) VoidTransaction(_ context.Context, originalID string, void domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.txByID[originalID]
	if !ok {
		return nil, store.NotFound("transaction", originalID)
	}
	_, voided := s.voidedBy[originalID]
	if err := store.ValidateVoidable(*original, voided); err != nil {
		return nil, err
	}

	if void.ID == "" {
		void.ID = xid.New("txn")
	}
	void.VoidOf = original.ID
	void.ShiftID = original.ShiftID
	void.BranchID = original.BranchID
	void.PaymentMethod = original.PaymentMethod
	void.Items = store.NegateItems(original.Items)
	void.Total = original.Total.Neg()
	void.IdempotencyKey = ""

	shift := s.shifts[original.ShiftID]
	if shift.Status == domain.ShiftStatusOpen {
		for _, item := range void.Items {
			s.applySaleLocked(shift, item.ProductID, item.WeightKg, domain.LedgerVoid, void.ID, void.CashierID, void.CreatedAt)
		}
	}
	s.upsertRollupsLocked(void)
	s.insertTransactionLocked(void)
	s.voidedBy[originalID] = void.ID
	return cloneTransaction(&void), nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txByID[id]
	if !ok {
		return nil, store.NotFound("transaction", id)
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for _, id := range s.txOrder {
		tx := s.txByID[id]
		if filter.ShiftID != "" && tx.ShiftID != filter.ShiftID {
			continue
		}
		if filter.BranchID != "" && tx.BranchID != filter.BranchID {
			continue
		}
		if !filter.From.IsZero() && tx.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !tx.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result, nil
}

func (s *Store) ListSalesRollups(_ context.Context, branchID string, bucket string, from string, to string) ([]domain.SalesRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failingRollups {
		return nil, store.ErrStoreUnavailable
	}
	rows, ok := s.rollups[bucket]
	if !ok {
		return nil, domain.Validationf("unknown rollup bucket %q", bucket)
	}
	result := make([]domain.SalesRollup, 0, len(rows))
	for _, r := range rows {
		if branchID != "" && r.BranchID != branchID {
			continue
		}
		if r.BucketStart < from || r.BucketStart >= to {
			continue
		}
		result = append(result, *r)
	}
	slices.SortFunc(result, func(a, b domain.SalesRollup) int {
		if c := strings.Compare(a.BucketStart, b.BucketStart); c != 0 {
			return c
		}
		return strings.Compare(a.BranchID, b.BranchID)
	})
	return result, nil
}

func (s *Store) CreateStockAddition(_ context.Context, addition domain.StockAddition) (*domain.StockAddition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[addition.ShiftID]
	if !ok {
		return nil, store.NotFound("shift", addition.ShiftID)
	}
	product, ok := s.products[addition.ProductID]
	if !ok {
		return nil, store.NotFound("product", addition.ProductID)
	}
	if err := store.RequireBranchProduct(shift, product); err != nil {
		return nil, err
	}
	if addition.ID == "" {
		addition.ID = xid.New("sad")
	}
	addition.BranchID = shift.BranchID
	addition.Status = domain.AdditionPending
	s.additions[addition.ID] = addition
	return &addition, nil
}

func (s *Store) GetStockAddition(_ context.Context, id string) (*domain.StockAddition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addition, ok := s.additions[id]
	if !ok {
		return nil, store.NotFound("stock addition", id)
	}
	return &addition, nil
}

func (s *Store) ListStockAdditions(_ context.Context, filter domain.StockAdditionFilter) ([]domain.StockAddition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockAddition, 0, 16)
	for _, a := range s.additions {
		if filter.BranchID != "" && a.BranchID != filter.BranchID {
			continue
		}
		if filter.ShiftID != "" && a.ShiftID != filter.ShiftID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		result = append(result, a)
	}
	slices.SortFunc(result, func(a, b domain.StockAddition) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) DecideStockAddition(_ context.Context, decision domain.StockAdditionDecision) (*domain.StockAddition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addition, ok := s.additions[decision.ID]
	if !ok {
		return nil, store.NotFound("stock addition", decision.ID)
	}
	if addition.Status != domain.AdditionPending {
		return nil, domain.Conflictf("stock addition %s is already %s", addition.ID, addition.Status)
	}
	if decision.Status == domain.AdditionApproved {
		shift := s.shifts[addition.ShiftID]
		if err := store.RequireOpen(shift); err != nil {
			return nil, err
		}
		s.addStockLocked(shift, addition.ProductID, addition.QuantityKg, addition.ID, decision.DecidedBy, decision.At)
	}

	at := decision.At
	addition.Status = decision.Status
	addition.DecidedBy = decision.DecidedBy
	addition.DecidedAt = &at
	s.additions[addition.ID] = addition
	return &addition, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// seedEntryLocked creates a ledger entry for a product that had none when
// the shift opened. Its opening is the current live stock.
func (s *Store) seedEntryLocked(shift domain.Shift, productID string, at time.Time) *domain.StockLedgerEntry {
	p := s.products[productID]
	entry := &domain.StockLedgerEntry{
		ShiftID:      shift.ID,
		ProductID:    productID,
		ProductName:  p.Name,
		BranchID:     shift.BranchID,
		ShiftDate:    shift.ShiftDate,
		OpeningStock: p.StockKg,
		ClosingStock: p.StockKg,
		UpdatedAt:    at,
	}
	if s.ledger[shift.ID] == nil {
		s.ledger[shift.ID] = map[string]*domain.StockLedgerEntry{}
	}
	s.ledger[shift.ID][productID] = entry
	s.appendLine(domain.LedgerLine{
		BranchID:   shift.BranchID,
		ProductID:  productID,
		ShiftID:    shift.ID,
		Kind:       domain.LedgerOpeningSnapshot,
		QuantityKg: p.StockKg,
		CreatedAt:  at,
	})
	return entry
}

func (s *Store) entryLocked(shift domain.Shift, productID string, at time.Time) *domain.StockLedgerEntry {
	if e, ok := s.ledger[shift.ID][productID]; ok {
		return e
	}
	return s.seedEntryLocked(shift, productID, at)
}

// applySaleLocked moves weightKg out of the shift ledger and live stock.
// Voids pass a negative weight.
func (s *Store) applySaleLocked(shift domain.Shift, productID string, weightKg float64, kind, reference, createdBy string, at time.Time) {
	e := s.entryLocked(shift, productID, at)
	reconcile.ApplySale(e, weightKg)
	e.UpdatedAt = at

	p := s.products[productID]
	p.StockKg -= weightKg
	p.UpdatedAt = at
	s.products[productID] = p

	s.appendLine(domain.LedgerLine{
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

func (s *Store) addStockLocked(shift domain.Shift, productID string, quantityKg float64, reference, createdBy string, at time.Time) *domain.StockLedgerEntry {
	e := s.entryLocked(shift, productID, at)
	reconcile.ApplyAddition(e, quantityKg)
	e.UpdatedAt = at

	p := s.products[productID]
	p.StockKg += quantityKg
	p.UpdatedAt = at
	s.products[productID] = p

	s.appendLine(domain.LedgerLine{
		BranchID:   shift.BranchID,
		ProductID:  productID,
		ShiftID:    shift.ID,
		Kind:       domain.LedgerShiftStockAdded,
		QuantityKg: quantityKg,
		Reference:  reference,
		CreatedBy:  createdBy,
		CreatedAt:  at,
	})
	return e
}

func (s *Store) upsertRollupsLocked(tx domain.Transaction) {
	for bucket, start := range store.RollupStarts(tx.CreatedAt) {
		key := tx.BranchID + "|" + start
		row, ok := s.rollups[bucket][key]
		if !ok {
			row = &domain.SalesRollup{BranchID: tx.BranchID, Bucket: bucket, BucketStart: start, Total: decimal.Zero}
			s.rollups[bucket][key] = row
		}
		row.Total = row.Total.Add(tx.Total)
		row.TransactionCount += store.CountDelta(tx)
	}
}

func (s *Store) insertTransactionLocked(tx domain.Transaction) {
	stored := cloneTransaction(&tx)
	s.txByID[tx.ID] = stored
	s.txOrder = append(s.txOrder, tx.ID)
	if tx.IdempotencyKey != "" {
		s.txByIdem[tx.IdempotencyKey] = tx.ID
	}
}

func (s *Store) appendLine(line domain.LedgerLine) {
	if line.ID == "" {
		line.ID = xid.New("led")
	}
	s.ledgerLines = append(s.ledgerLines, line)
}

func (s *Store) entriesLocked(shiftID string) []domain.StockLedgerEntry {
	entries := make([]domain.StockLedgerEntry, 0, len(s.ledger[shiftID]))
	for _, e := range s.ledger[shiftID] {
		out := *e
		if e.Variance != nil {
			v := *e.Variance
			out.Variance = &v
		}
		entries = append(entries, out)
	}
	slices.SortFunc(entries, func(a, b domain.StockLedgerEntry) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return entries
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Items = slices.Clone(src.Items)
	return &dst
}
