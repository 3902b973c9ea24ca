package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/analytics"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/events"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store/memory"
)

var testNow = time.Date(2026, 2, 4, 6, 0, 0, 0, time.UTC) // 09:00 in Nairobi

type fixture struct {
	svc    *Service
	repo   *memory.Store
	broker *events.LocalBroker
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	repo := memory.New()
	_, err := repo.CreateProduct(context.Background(), domain.Product{
		ID: "P", Name: "Beef", Category: "beef", BranchID: "branch1",
		PricePerKg: decimal.NewFromInt(700), StockKg: 50, Active: true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	broker := events.NewLocalBroker(32)
	aggregator := analytics.NewAggregator(repo, nil, 0, zerolog.Nop())
	svc := New(repo, aggregator, broker, zerolog.Nop(), opts).WithClock(func() time.Time { return testNow })
	return fixture{svc: svc, repo: repo, broker: broker}
}

func cashierCtx(id string) context.Context {
	return WithActor(context.Background(), domain.Actor{ID: id, Name: "Cashier " + id, Role: domain.RoleCashier, BranchID: "branch1"})
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "m1", Name: "Manager", Role: domain.RoleManager, BranchID: "branch1"})
}

func branch2Ctx(id string, role string) context.Context {
	return WithActor(context.Background(), domain.Actor{ID: id, Name: id, Role: role, BranchID: "branch2"})
}

// seedBranch2 adds product B2 stocked only at branch2.
func seedBranch2(t *testing.T, f fixture) {
	t.Helper()
	_, err := f.repo.CreateProduct(context.Background(), domain.Product{
		ID: "B2", Name: "Mutton", Category: "mutton", BranchID: "branch2",
		PricePerKg: decimal.NewFromInt(850), StockKg: 30, Active: true,
	})
	if err != nil {
		t.Fatalf("seed B2: %v", err)
	}
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func entryFor(t *testing.T, entries []domain.StockLedgerEntry, productID string) domain.StockLedgerEntry {
	t.Helper()
	for _, e := range entries {
		if e.ProductID == productID {
			return e
		}
	}
	t.Fatalf("no ledger entry for %s", productID)
	return domain.StockLedgerEntry{}
}

func TestShiftLifecycleScenario(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")

	opened, err := f.svc.OpenShift(c1, domain.ShiftOpenRequest{BranchID: "branch1"})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	e := entryFor(t, opened.Entries, "P")
	if e.OpeningStock != 50 || e.AddedStock != 0 || e.SoldStock != 0 || e.ClosingStock != 50 {
		t.Fatalf("unexpected seeded entry %+v", e)
	}
	if opened.Shift.ShiftDate != "2026-02-04" {
		t.Fatalf("expected business date 2026-02-04, got %s", opened.Shift.ShiftDate)
	}

	sale, err := f.svc.RecordSale(c1, domain.SaleRequest{
		ShiftID:       opened.Shift.ID,
		PaymentMethod: "cash",
		Items:         []domain.SaleItemRequest{{ProductID: "P", WeightKg: 10}},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.Transaction.Total.Equal(decimal.NewFromInt(7000)) {
		t.Fatalf("expected total 7000, got %s", sale.Transaction.Total)
	}
	ledger, _ := f.svc.ShiftLedger(c1, opened.Shift.ID)
	if e := entryFor(t, ledger, "P"); e.SoldStock != 10 || e.ClosingStock != 40 {
		t.Fatalf("after sale: %+v", e)
	}

	if _, err := f.svc.AddStock(c1, opened.Shift.ID, domain.AddStockRequest{ProductID: "P", QuantityKg: 5}); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	ledger, _ = f.svc.ShiftLedger(c1, opened.Shift.ID)
	if e := entryFor(t, ledger, "P"); e.AddedStock != 5 || e.ClosingStock != 45 {
		t.Fatalf("after add: %+v", e)
	}

	report, err := f.svc.CloseShift(c1, opened.Shift.ID, domain.ShiftCloseRequest{
		PhysicalCounts: map[string]float64{"P": 44},
		ClosingCash:    dec("7000"),
		ClosingMpesa:   dec("0"),
	})
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if report.Shift.Status != domain.ShiftStatusPendingReview {
		t.Fatalf("expected PENDING_REVIEW, got %s", report.Shift.Status)
	}
	closed := entryFor(t, report.Entries, "P")
	if closed.Variance == nil || *closed.Variance != -1 {
		t.Fatalf("expected variance -1, got %+v", closed.Variance)
	}
	if !report.Stock.HasVariance || len(report.Stock.DiscrepantProducts) != 1 {
		t.Fatalf("expected P flagged as discrepant, got %+v", report.Stock)
	}
	if report.Payments.HasVariance == nil || *report.Payments.HasVariance {
		t.Fatalf("expected balanced payments, got %+v", report.Payments)
	}

	product, _ := f.repo.GetProduct(context.Background(), "P")
	if product.StockKg != 44 {
		t.Fatalf("expected live stock to follow the count, got %v", product.StockKg)
	}
}

func TestOpenShiftTwiceConflicts(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")

	first, err := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err = f.svc.OpenShift(c1, domain.ShiftOpenRequest{})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	shifts, err := f.svc.ListShifts(managerCtx(), "", "", 0)
	if err != nil {
		t.Fatalf("list shifts: %v", err)
	}
	if len(shifts) != 1 || shifts[0].ID != first.Shift.ID {
		t.Fatalf("expected only the first shift, got %+v", shifts)
	}
}

func TestOpenShiftUsesPriorDayCount(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")

	day1, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})
	if _, err := f.svc.CloseShift(c1, day1.Shift.ID, domain.ShiftCloseRequest{
		PhysicalCounts: map[string]float64{"P": 47.5},
		ClosingCash:    dec("0"),
		ClosingMpesa:   dec("0"),
	}); err != nil {
		t.Fatalf("close day 1: %v", err)
	}

	f.svc.WithClock(func() time.Time { return testNow.Add(24 * time.Hour) })
	day2, err := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})
	if err != nil {
		t.Fatalf("open day 2: %v", err)
	}
	if e := entryFor(t, day2.Entries, "P"); e.OpeningStock != 47.5 {
		t.Fatalf("expected opening 47.5 from yesterday's count, got %v", e.OpeningStock)
	}
}

func TestCloseShiftValidation(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})

	cases := map[string]domain.ShiftCloseRequest{
		"empty counts":   {PhysicalCounts: map[string]float64{}, ClosingCash: dec("0"), ClosingMpesa: dec("0")},
		"missing mpesa":  {PhysicalCounts: map[string]float64{"P": 50}, ClosingCash: dec("0")},
		"negative count": {PhysicalCounts: map[string]float64{"P": -1}, ClosingCash: dec("0"), ClosingMpesa: dec("0")},
		"unknown product": {
			PhysicalCounts: map[string]float64{"P": 50, "nope": 1},
			ClosingCash:    dec("0"),
			ClosingMpesa:   dec("0"),
		},
	}
	for name, req := range cases {
		if _, err := f.svc.CloseShift(c1, opened.Shift.ID, req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	shift, _ := f.svc.GetShift(c1, opened.Shift.ID)
	if shift.Shift.Status != domain.ShiftStatusOpen {
		t.Fatalf("failed closes must leave the shift open, got %s", shift.Shift.Status)
	}
}

func TestCloseShiftMissingCountPolicy(t *testing.T) {
	seedSecond := func(t *testing.T, f fixture) {
		_, err := f.repo.CreateProduct(context.Background(), domain.Product{
			ID: "Q", Name: "Goat", Category: "goat", BranchID: "branch1",
			PricePerKg: decimal.NewFromInt(900), StockKg: 8, Active: true,
		})
		if err != nil {
			t.Fatalf("seed Q: %v", err)
		}
	}
	req := domain.ShiftCloseRequest{PhysicalCounts: map[string]float64{"P": 50}, ClosingCash: dec("0"), ClosingMpesa: dec("0")}

	strict := newFixture(t, Options{})
	seedSecond(t, strict)
	opened, _ := strict.svc.OpenShift(cashierCtx("c1"), domain.ShiftOpenRequest{})
	if _, err := strict.svc.CloseShift(cashierCtx("c1"), opened.Shift.ID, req); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing count to be rejected, got %v", err)
	}

	lenient := newFixture(t, Options{MissingCountsAsZero: true})
	seedSecond(t, lenient)
	opened, _ = lenient.svc.OpenShift(cashierCtx("c1"), domain.ShiftOpenRequest{})
	report, err := lenient.svc.CloseShift(cashierCtx("c1"), opened.Shift.ID, req)
	if err != nil {
		t.Fatalf("close with zero policy: %v", err)
	}
	if q := entryFor(t, report.Entries, "Q"); q.Variance == nil || *q.Variance != -8 {
		t.Fatalf("expected Q counted as zero, got %+v", q)
	}
}

func TestSaleIdempotencyKey(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})
	feed, cancel := f.broker.Subscribe()
	defer cancel()

	req := domain.SaleRequest{
		ShiftID:        opened.Shift.ID,
		PaymentMethod:  "mpesa",
		IdempotencyKey: "till-1-0001",
		Items:          []domain.SaleItemRequest{{ProductID: "P", WeightKg: 1.5}},
	}
	first, err := f.svc.RecordSale(c1, req)
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := f.svc.RecordSale(c1, req)
	if err != nil {
		t.Fatalf("retried sale: %v", err)
	}
	if !second.Duplicate || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Transaction.ID, second)
	}

	ledger, _ := f.svc.ShiftLedger(c1, opened.Shift.ID)
	if e := entryFor(t, ledger, "P"); e.SoldStock != 1.5 {
		t.Fatalf("retry must not double count, sold=%v", e.SoldStock)
	}

	select {
	case ev := <-feed:
		if ev.Type != domain.EventSale || ev.ShiftID != opened.Shift.ID {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("expected a sale event")
	}
	select {
	case ev := <-feed:
		t.Fatalf("duplicate sale must not publish, got %+v", ev)
	default:
	}
}

func TestSaleRules(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})

	_, err := f.svc.RecordSale(c1, domain.SaleRequest{ShiftID: opened.Shift.ID, PaymentMethod: "bitcoin", Items: []domain.SaleItemRequest{{ProductID: "P", WeightKg: 1}}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for payment method, got %v", err)
	}

	_, err = f.svc.RecordSale(c1, domain.SaleRequest{ShiftID: opened.Shift.ID, PaymentMethod: "cash", Items: []domain.SaleItemRequest{{ProductID: "P", WeightKg: 1, UnitPrice: dec("1")}}})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected cashier price override to be forbidden, got %v", err)
	}

	_, err = f.svc.RecordSale(cashierCtx("c2"), domain.SaleRequest{ShiftID: opened.Shift.ID, PaymentMethod: "cash", Items: []domain.SaleItemRequest{{ProductID: "P", WeightKg: 1}}})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected another cashier to be forbidden, got %v", err)
	}

	overridden, err := f.svc.RecordSale(managerCtx(), domain.SaleRequest{ShiftID: opened.Shift.ID, PaymentMethod: "card", Items: []domain.SaleItemRequest{{ProductID: "P", WeightKg: 0.5, UnitPrice: dec("650")}}})
	if err != nil {
		t.Fatalf("manager override: %v", err)
	}
	if !overridden.Transaction.Total.Equal(decimal.NewFromInt(325)) {
		t.Fatalf("expected 325, got %s", overridden.Transaction.Total)
	}

	if _, err := f.svc.CloseShift(c1, opened.Shift.ID, domain.ShiftCloseRequest{PhysicalCounts: map[string]float64{"P": 49.5}, ClosingCash: dec("0"), ClosingMpesa: dec("0")}); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = f.svc.RecordSale(c1, domain.SaleRequest{ShiftID: opened.Shift.ID, PaymentMethod: "cash", Items: []domain.SaleItemRequest{{ProductID: "P", WeightKg: 1}}})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected sale on closed shift to fail with invalid state, got %v", err)
	}
}

func TestVoidNeedsManager(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})
	sale, _ := f.svc.RecordSale(c1, domain.SaleRequest{ShiftID: opened.Shift.ID, PaymentMethod: "cash", Items: []domain.SaleItemRequest{{ProductID: "P", WeightKg: 2}}})

	if _, err := f.svc.VoidTransaction(c1, sale.Transaction.ID, domain.VoidRequest{Reason: "mistake"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden without manager approval, got %v", err)
	}

	void, err := f.svc.VoidTransaction(c1, sale.Transaction.ID, domain.VoidRequest{Reason: "mistake", ManagerApproved: true})
	if err != nil {
		t.Fatalf("void with manager PIN: %v", err)
	}
	if !void.Total.Equal(decimal.NewFromInt(-1400)) {
		t.Fatalf("expected -1400, got %s", void.Total)
	}

	report, err := f.svc.ShiftReconciliation(managerCtx(), opened.Shift.ID)
	if err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if !report.Payments.ExpectedCash.IsZero() {
		t.Fatalf("void must cancel the cash, got %s", report.Payments.ExpectedCash)
	}
	if e := entryFor(t, report.Entries, "P"); e.SoldStock != 0 || e.ClosingStock != 50 {
		t.Fatalf("void must restore the ledger, got %+v", e)
	}
	if report.Payments.ReportedCash != nil {
		t.Fatalf("reported figures must stay absent before close")
	}

	if _, err := f.svc.VoidTransaction(managerCtx(), sale.Transaction.ID, domain.VoidRequest{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected second void to conflict, got %v", err)
	}
}

func TestReviewTransitions(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})

	if _, err := f.svc.ApproveShift(managerCtx(), opened.Shift.ID, domain.ShiftReviewRequest{}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("approving an open shift must fail, got %v", err)
	}
	if _, err := f.svc.CloseShift(c1, opened.Shift.ID, domain.ShiftCloseRequest{PhysicalCounts: map[string]float64{"P": 50}, ClosingCash: dec("0"), ClosingMpesa: dec("0")}); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.svc.ApproveShift(c1, opened.Shift.ID, domain.ShiftReviewRequest{}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("cashier must not approve, got %v", err)
	}
	if _, err := f.svc.RejectShift(managerCtx(), opened.Shift.ID, domain.ShiftReviewRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("reject without note must fail, got %v", err)
	}

	rejected, err := f.svc.RejectShift(managerCtx(), opened.Shift.ID, domain.ShiftReviewRequest{Note: "recount the goat"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.ShiftStatusRejected || rejected.ReviewedBy != "m1" {
		t.Fatalf("unexpected rejected shift %+v", rejected)
	}
	if _, err := f.svc.ApproveShift(managerCtx(), opened.Shift.ID, domain.ShiftReviewRequest{}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("rejected is terminal, got %v", err)
	}

	logs, err := f.svc.ListAuditLogs(WithActor(context.Background(), domain.Actor{ID: "a1", Role: domain.RoleAdmin}), "branch1", "2026-02-04", 0)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	actions := map[string]bool{}
	for _, l := range logs {
		actions[l.Action] = true
	}
	for _, want := range []string{"shift_open", "shift_close", "shift_reject"} {
		if !actions[want] {
			t.Fatalf("expected audit action %s in %+v", want, actions)
		}
	}
}

func TestStockAdditionApproval(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})

	req, err := f.svc.RequestStockAddition(c1, domain.StockAdditionRequest{ShiftID: opened.Shift.ID, ProductID: "P", QuantityKg: 12})
	if err != nil {
		t.Fatalf("request addition: %v", err)
	}
	ledger, _ := f.svc.ShiftLedger(c1, opened.Shift.ID)
	if e := entryFor(t, ledger, "P"); e.AddedStock != 0 {
		t.Fatalf("pending addition must not touch the ledger, got %+v", e)
	}

	if _, err := f.svc.ApproveStockAddition(c1, req.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("cashier must not approve, got %v", err)
	}
	approved, err := f.svc.ApproveStockAddition(managerCtx(), req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.AdditionApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}
	if _, err := f.svc.RejectStockAddition(managerCtx(), req.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second decision, got %v", err)
	}

	ledger, _ = f.svc.ShiftLedger(c1, opened.Shift.ID)
	if e := entryFor(t, ledger, "P"); e.AddedStock != 12 || e.ClosingStock != 62 {
		t.Fatalf("approved addition must reach the ledger, got %+v", e)
	}

	pending, err := f.svc.ListStockAdditions(managerCtx(), domain.StockAdditionFilter{Status: "pending"})
	if err != nil {
		t.Fatalf("list additions: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending additions, got %d", len(pending))
	}
}

func TestProductAdministration(t *testing.T) {
	f := newFixture(t, Options{})
	admin := WithActor(context.Background(), domain.Actor{ID: "a1", Role: domain.RoleAdmin, BranchID: "branch1"})

	if _, err := f.svc.CreateProduct(managerCtx(), domain.ProductCreateRequest{Name: "Liver", Category: "offal", PricePerKg: decimal.NewFromInt(600)}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("manager must not create products, got %v", err)
	}
	created, err := f.svc.CreateProduct(admin, domain.ProductCreateRequest{Name: " Liver ", Category: "Offal", PricePerKg: decimal.RequireFromString("600.499"), StockKg: 10})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.Name != "Liver" || created.Category != "offal" || !created.PricePerKg.Equal(decimal.RequireFromString("600.5")) {
		t.Fatalf("unexpected product %+v", created)
	}

	inactive := false
	updated, err := f.svc.UpdateProduct(admin, created.ID, domain.ProductUpdateRequest{Active: &inactive})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Active || updated.StockKg != 10 {
		t.Fatalf("unexpected update result %+v", updated)
	}

	visible, err := f.svc.ListProducts(cashierCtx("c1"), "", true)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range visible {
		if p.ID == created.ID {
			t.Fatalf("cashiers must not see inactive products")
		}
	}
}

func TestRequiresActor(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.OpenShift(context.Background(), domain.ShiftOpenRequest{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCashierAddStockOwnShiftOnly(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})

	entry, err := f.svc.AddStock(c1, opened.Shift.ID, domain.AddStockRequest{ProductID: "P", QuantityKg: 3, Note: "delivery 114"})
	if err != nil {
		t.Fatalf("cashier add stock: %v", err)
	}
	if entry.AddedStock != 3 || entry.ClosingStock != 53 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, err := f.svc.AddStock(cashierCtx("c2"), opened.Shift.ID, domain.AddStockRequest{ProductID: "P", QuantityKg: 3}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected another cashier to be forbidden, got %v", err)
	}

	lines, err := f.svc.ShiftLedgerLines(c1, opened.Shift.ID)
	if err != nil {
		t.Fatalf("ledger lines: %v", err)
	}
	added := 0
	for _, l := range lines {
		if l.Kind == domain.LedgerShiftStockAdded {
			added++
		}
	}
	if added != 1 {
		t.Fatalf("expected one SHIFT_STOCK_ADDED line, got %d", added)
	}
}

func TestBranchScoping(t *testing.T) {
	f := newFixture(t, Options{})
	seedBranch2(t, f)
	manager1 := managerCtx()

	if _, err := f.svc.OpenShift(cashierCtx("c1"), domain.ShiftOpenRequest{BranchID: "branch2"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("cashier opening at a foreign branch: expected forbidden, got %v", err)
	}
	if _, err := f.repo.GetOpenShiftByCashier(context.Background(), "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("refused open must not create a shift, got %v", err)
	}

	cashier2 := branch2Ctx("c9", domain.RoleCashier)
	foreign, err := f.svc.OpenShift(cashier2, domain.ShiftOpenRequest{})
	if err != nil {
		t.Fatalf("branch2 open: %v", err)
	}
	if foreign.Shift.BranchID != "branch2" || len(foreign.Entries) != 1 || foreign.Entries[0].ProductID != "B2" {
		t.Fatalf("expected a branch2 shift seeded with B2, got %+v", foreign)
	}

	if _, err := f.svc.ListShifts(manager1, "", "branch2", 10); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("manager listing a foreign branch: expected forbidden, got %v", err)
	}
	own, err := f.svc.ListShifts(manager1, "", "", 10)
	if err != nil {
		t.Fatalf("manager list: %v", err)
	}
	if len(own) != 0 {
		t.Fatalf("manager must only see branch1 shifts, got %+v", own)
	}
	if _, err := f.svc.SalesAnalytics(manager1, "branch2", "7D"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("sales analytics: expected forbidden, got %v", err)
	}
	if _, err := f.svc.ProductAnalytics(manager1, "branch2", "7D"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("product analytics: expected forbidden, got %v", err)
	}
	if _, err := f.svc.DateSeries(manager1, "branch2", "2026-02-01", "2026-02-04"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("date series: expected forbidden, got %v", err)
	}
	if _, err := f.svc.GetShift(manager1, foreign.Shift.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("manager reading a foreign shift: expected forbidden, got %v", err)
	}
	if _, err := f.svc.AddStock(manager1, foreign.Shift.ID, domain.AddStockRequest{ProductID: "B2", QuantityKg: 1}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("manager adding to a foreign shift: expected forbidden, got %v", err)
	}

	if _, err := f.svc.CloseShift(cashier2, foreign.Shift.ID, domain.ShiftCloseRequest{PhysicalCounts: map[string]float64{"B2": 30}, ClosingCash: dec("0"), ClosingMpesa: dec("0")}); err != nil {
		t.Fatalf("branch2 close: %v", err)
	}
	if _, err := f.svc.ApproveShift(manager1, foreign.Shift.ID, domain.ShiftReviewRequest{}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("manager approving a foreign shift: expected forbidden, got %v", err)
	}
	approved, err := f.svc.ApproveShift(branch2Ctx("m2", domain.RoleManager), foreign.Shift.ID, domain.ShiftReviewRequest{})
	if err != nil {
		t.Fatalf("branch2 manager approve: %v", err)
	}
	if approved.Status != domain.ShiftStatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}

	admin := WithActor(context.Background(), domain.Actor{ID: "a1", Role: domain.RoleAdmin, BranchID: "branch1"})
	all, err := f.svc.ListShifts(admin, "", "", 10)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 1 || all[0].ID != foreign.Shift.ID {
		t.Fatalf("admin must see every branch, got %+v", all)
	}
}

func TestForeignBranchProductRejected(t *testing.T) {
	f := newFixture(t, Options{})
	seedBranch2(t, f)
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})

	if _, err := f.svc.AddStock(c1, opened.Shift.ID, domain.AddStockRequest{ProductID: "B2", QuantityKg: 4}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("adding a branch2 product: expected validation error, got %v", err)
	}
	if _, err := f.svc.RequestStockAddition(c1, domain.StockAdditionRequest{ShiftID: opened.Shift.ID, ProductID: "B2", QuantityKg: 4}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("requesting a branch2 product: expected validation error, got %v", err)
	}
	_, err := f.svc.CloseShift(c1, opened.Shift.ID, domain.ShiftCloseRequest{
		PhysicalCounts: map[string]float64{"P": 50, "B2": 10},
		ClosingCash:    dec("0"),
		ClosingMpesa:   dec("0"),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("counting a branch2 product: expected validation error, got %v", err)
	}

	b2, err := f.repo.GetProduct(context.Background(), "B2")
	if err != nil {
		t.Fatalf("get B2: %v", err)
	}
	if b2.StockKg != 30 {
		t.Fatalf("branch2 live stock must be untouched, got %v", b2.StockKg)
	}
	ledger, _ := f.svc.ShiftLedger(c1, opened.Shift.ID)
	for _, e := range ledger {
		if e.ProductID == "B2" {
			t.Fatalf("branch2 product leaked into the branch1 ledger: %+v", e)
		}
	}
}

func TestIdempotencyKeyScopedToShift(t *testing.T) {
	f := newFixture(t, Options{})
	first, _ := f.svc.OpenShift(cashierCtx("c1"), domain.ShiftOpenRequest{})
	second, _ := f.svc.OpenShift(cashierCtx("c2"), domain.ShiftOpenRequest{})

	sale := domain.SaleRequest{
		ShiftID:        first.Shift.ID,
		PaymentMethod:  "cash",
		IdempotencyKey: "till-1-0042",
		Items:          []domain.SaleItemRequest{{ProductID: "P", WeightKg: 1}},
	}
	if _, err := f.svc.RecordSale(cashierCtx("c1"), sale); err != nil {
		t.Fatalf("first sale: %v", err)
	}

	sale.ShiftID = second.Shift.ID
	if _, err := f.svc.RecordSale(cashierCtx("c2"), sale); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("key reused on another shift: expected conflict, got %v", err)
	}
	ledger, _ := f.svc.ShiftLedger(cashierCtx("c2"), second.Shift.ID)
	if e := entryFor(t, ledger, "P"); e.SoldStock != 0 {
		t.Fatalf("refused sale must not touch the ledger, got %+v", e)
	}
}

func TestVoidRespectsShiftOwnership(t *testing.T) {
	f := newFixture(t, Options{})
	c1 := cashierCtx("c1")
	opened, _ := f.svc.OpenShift(c1, domain.ShiftOpenRequest{})
	sale, err := f.svc.RecordSale(c1, domain.SaleRequest{ShiftID: opened.Shift.ID, PaymentMethod: "cash", Items: []domain.SaleItemRequest{{ProductID: "P", WeightKg: 2}}})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	if _, err := f.svc.VoidTransaction(cashierCtx("c2"), sale.Transaction.ID, domain.VoidRequest{Reason: "mistake", ManagerApproved: true}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("another cashier with a PIN: expected forbidden, got %v", err)
	}
	if _, err := f.svc.VoidTransaction(branch2Ctx("m2", domain.RoleManager), sale.Transaction.ID, domain.VoidRequest{Reason: "mistake"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("foreign branch manager: expected forbidden, got %v", err)
	}
	ledger, _ := f.svc.ShiftLedger(c1, opened.Shift.ID)
	if e := entryFor(t, ledger, "P"); e.SoldStock != 2 {
		t.Fatalf("refused voids must not touch the ledger, got %+v", e)
	}

	if _, err := f.svc.VoidTransaction(managerCtx(), sale.Transaction.ID, domain.VoidRequest{Reason: "mistake"}); err != nil {
		t.Fatalf("branch manager void: %v", err)
	}
}
