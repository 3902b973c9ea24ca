package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := res.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req_") {
		t.Fatalf("expected a generated request id, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", res.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	cashier := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/shifts/open", cashier, map[string]any{"terminal_id": "T1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for _, path := range []string{"/api/products", "/api/shifts/active", "/api/admin/analytics/sales", eventsPath} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, rec.Code)
		}
		rec = doJSON(t, handler, http.MethodGet, path, "not-a-jwt", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s with garbage token: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestRoleGating(t *testing.T) {
	handler := newTestAPI(t).Handler()
	cashier := login(t, handler, "cashier", "cashier123")
	admin := login(t, handler, "admin", "admin123")

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/shifts"},
		{http.MethodGet, "/api/admin/analytics/sales"},
		{http.MethodGet, "/api/admin/audit-logs"},
		{http.MethodPost, "/api/products"},
	}
	for _, tc := range cases {
		rec := doJSON(t, handler, tc.method, tc.path, cashier, map[string]any{})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("cashier %s %s: expected 403, got %d", tc.method, tc.path, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/users", admin, domain.UserCreateRequest{Username: "njeri", Password: "njeri-pass", Role: domain.RoleCashier, BranchID: "branch1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create user: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	login(t, handler, "njeri", "njeri-pass")

	rec = doJSON(t, handler, http.MethodGet, "/api/admin/audit-logs", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin audit logs: expected 200, got %d", rec.Code)
	}
	logs := decodeBody[struct {
		AuditLogs []domain.AuditLog `json:"audit_logs"`
	}](t, rec)
	if len(logs.AuditLogs) != 1 || logs.AuditLogs[0].Action != "user_create" {
		t.Fatalf("expected the user_create audit row, got %+v", logs.AuditLogs)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validationf("bad"), http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.Forbiddenf("no"), http.StatusForbidden},
		{domain.NotFoundf("shift x"), http.StatusNotFound},
		{domain.Conflictf("dup"), http.StatusConflict},
		{domain.InvalidStatef("closed"), http.StatusConflict},
		{fmt.Errorf("%w: x", store.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestServerErrorsHideDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusServiceUnavailable, errors.New(`relation "sales_daily" does not exist`))

	body := decodeBody[map[string]string](t, rec)
	if strings.Contains(body["error"], "sales_daily") {
		t.Fatalf("store details leaked: %q", body["error"])
	}
}
