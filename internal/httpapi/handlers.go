package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/analytics"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	key := clientKey(r)
	if !a.loginLimiter.Allow(key) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.loginLimiter.Reset(key)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.service.UserCreated(r.Context(), user)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	products, err := a.service.ListProducts(r.Context(), query.Get("branch_id"), query.Get("include_inactive") == "true")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftOpenRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetActiveShift(r.Context(), r.URL.Query().Get("cashier_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListShifts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	shifts, err := a.service.ListShifts(r.Context(), query.Get("status"), query.Get("branch_id"), parsePositiveLimit(query.Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

func (a *API) handleGetShift(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetShift(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := a.service.CloseShift(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleShiftApprove(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftReviewRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shift, err := a.service.ApproveShift(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleShiftReject(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftReviewRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shift, err := a.service.RejectShift(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleShiftReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.ShiftReconciliation(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleShiftStock(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.ShiftLedger(r.Context(), r.PathValue("shiftId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleShiftStockLines(w http.ResponseWriter, r *http.Request) {
	lines, err := a.service.ShiftLedgerLines(r.Context(), r.PathValue("shiftId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (a *API) handleShiftStockAdd(w http.ResponseWriter, r *http.Request) {
	var req domain.AddStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := a.service.AddStock(r.Context(), r.PathValue("shiftId"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleShiftStockRecompute(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.RecomputeLedger(r.Context(), r.PathValue("shiftId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleListStockAdditions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	additions, err := a.service.ListStockAdditions(r.Context(), domain.StockAdditionFilter{
		BranchID: strings.TrimSpace(query.Get("branch_id")),
		ShiftID:  strings.TrimSpace(query.Get("shift_id")),
		Status:   query.Get("status"),
		Limit:    parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_additions": additions})
}

func (a *API) handleRequestStockAddition(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdditionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addition, err := a.service.RequestStockAddition(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addition)
}

func (a *API) handleApproveStockAddition(w http.ResponseWriter, r *http.Request) {
	addition, err := a.service.ApproveStockAddition(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addition)
}

func (a *API) handleRejectStockAddition(w http.ResponseWriter, r *http.Request) {
	addition, err := a.service.RejectStockAddition(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addition)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseTimeParam(query.Get("from"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseTimeParam(query.Get("to"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	txs, err := a.service.ListTransactions(r.Context(), domain.TransactionFilter{
		ShiftID:  strings.TrimSpace(query.Get("shift_id")),
		BranchID: strings.TrimSpace(query.Get("branch_id")),
		From:     from,
		To:       to,
		Limit:    parsePositiveLimit(query.Get("limit"), 500, 1000),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// parseTimeParam accepts RFC3339 or a business-day date. A date used as an
// upper bound covers the whole day.
func parseTimeParam(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, analytics.Location)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC3339 or YYYY-MM-DD")
	}
	if upper {
		return day.AddDate(0, 0, 1), nil
	}
	return day, nil
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	resp, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleVoidTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.VoidRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ManagerPIN == "" {
		req.ManagerPIN = r.Header.Get("X-Manager-PIN")
	}

	actor, _ := service.ActorFromContext(r.Context())
	if !domain.IsSupervisor(actor.Role) && strings.TrimSpace(req.ManagerPIN) != "" {
		key := clientKey(r) + "|" + actor.ID
		if !a.pinLimiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many manager PIN attempts"))
			return
		}
		if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
			writeError(w, http.StatusForbidden, errors.New("invalid manager PIN"))
			return
		}
		a.pinLimiter.Reset(key)
		req.ManagerApproved = true
	}

	void, err := a.service.VoidTransaction(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, void)
}

func (a *API) handleSalesAnalytics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := a.service.SalesAnalytics(r.Context(), query.Get("branch_id"), query.Get("range"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleProductAnalytics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := a.service.ProductAnalytics(r.Context(), query.Get("branch_id"), query.Get("range"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDateSeries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	points, err := a.service.DateSeries(r.Context(), query.Get("branch_id"), query.Get("start"), query.Get("end"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": points})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("branch_id"), query.Get("date"), parsePositiveLimit(query.Get("limit"), 100, 1000))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
