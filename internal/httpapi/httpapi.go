package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/events"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/ratelimit"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/service"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

const eventsPath = "/api/events"

type API struct {
	service        *service.Service
	auth           *AuthManager
	events         events.Broker
	allowedOrigin  string
	loginLimiter   *ratelimit.Limiter
	pinLimiter     *ratelimit.Limiter
	requestTimeout time.Duration
	keepAlive      time.Duration
	logger         zerolog.Logger
}

type Options struct {
	AllowedOrigin  string
	LoginLimiter   *ratelimit.Limiter
	PINLimiter     *ratelimit.Limiter
	RequestTimeout time.Duration
	// KeepAlive is the comment interval on the event stream.
	KeepAlive time.Duration
	Logger    zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, broker events.Broker, opts Options) *API {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	if opts.LoginLimiter == nil {
		opts.LoginLimiter = ratelimit.PerMinute(5)
	}
	if opts.PINLimiter == nil {
		opts.PINLimiter = ratelimit.PerMinute(8)
	}
	return &API{
		service:        svc,
		auth:           auth,
		events:         broker,
		allowedOrigin:  opts.AllowedOrigin,
		loginLimiter:   opts.LoginLimiter,
		pinLimiter:     opts.PINLimiter,
		requestTimeout: opts.RequestTimeout,
		keepAlive:      opts.KeepAlive,
		logger:         opts.Logger.With().Str("component", "http").Logger(),
	}
}

var (
	anyRole     = []string{}
	supervisors = []string{domain.RoleManager, domain.RoleAdmin}
	adminOnly   = []string{domain.RoleAdmin}
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)

	mux.HandleFunc("GET /api/users", a.requireAuth(a.handleListUsers, adminOnly...))
	mux.HandleFunc("POST /api/users", a.requireAuth(a.handleCreateUser, adminOnly...))

	mux.HandleFunc("GET /api/products", a.requireAuth(a.handleListProducts, anyRole...))
	mux.HandleFunc("POST /api/products", a.requireAuth(a.handleCreateProduct, adminOnly...))
	mux.HandleFunc("PATCH /api/products/{id}", a.requireAuth(a.handleUpdateProduct, adminOnly...))

	mux.HandleFunc("POST /api/shifts/open", a.requireAuth(a.handleShiftOpen, anyRole...))
	mux.HandleFunc("GET /api/shifts/active", a.requireAuth(a.handleShiftActive, anyRole...))
	mux.HandleFunc("GET /api/shifts", a.requireAuth(a.handleListShifts, supervisors...))
	mux.HandleFunc("GET /api/shifts/{id}", a.requireAuth(a.handleGetShift, anyRole...))
	mux.HandleFunc("POST /api/shifts/{id}/close", a.requireAuth(a.handleShiftClose, anyRole...))
	mux.HandleFunc("POST /api/shifts/{id}/approve", a.requireAuth(a.handleShiftApprove, supervisors...))
	mux.HandleFunc("POST /api/shifts/{id}/reject", a.requireAuth(a.handleShiftReject, supervisors...))
	mux.HandleFunc("GET /api/shifts/{id}/reconciliation", a.requireAuth(a.handleShiftReconciliation, anyRole...))

	mux.HandleFunc("GET /api/shift-stock/{shiftId}", a.requireAuth(a.handleShiftStock, anyRole...))
	mux.HandleFunc("GET /api/shift-stock/{shiftId}/lines", a.requireAuth(a.handleShiftStockLines, anyRole...))
	mux.HandleFunc("POST /api/shift-stock/{shiftId}/add", a.requireAuth(a.handleShiftStockAdd, anyRole...))
	mux.HandleFunc("POST /api/shift-stock/{shiftId}/recompute", a.requireAuth(a.handleShiftStockRecompute, supervisors...))

	mux.HandleFunc("GET /api/stock-additions", a.requireAuth(a.handleListStockAdditions, anyRole...))
	mux.HandleFunc("POST /api/stock-additions", a.requireAuth(a.handleRequestStockAddition, anyRole...))
	mux.HandleFunc("POST /api/stock-additions/{id}/approve", a.requireAuth(a.handleApproveStockAddition, supervisors...))
	mux.HandleFunc("POST /api/stock-additions/{id}/reject", a.requireAuth(a.handleRejectStockAddition, supervisors...))

	mux.HandleFunc("GET /api/transactions", a.requireAuth(a.handleListTransactions, anyRole...))
	mux.HandleFunc("POST /api/transactions", a.requireAuth(a.handleRecordSale, anyRole...))
	mux.HandleFunc("GET /api/transactions/{id}", a.requireAuth(a.handleGetTransaction, anyRole...))
	mux.HandleFunc("POST /api/transactions/{id}/void", a.requireAuth(a.handleVoidTransaction, anyRole...))

	mux.HandleFunc("GET /api/admin/analytics/sales", a.requireAuth(a.handleSalesAnalytics, supervisors...))
	mux.HandleFunc("GET /api/admin/analytics/products", a.requireAuth(a.handleProductAnalytics, supervisors...))
	mux.HandleFunc("GET /api/admin/analytics/date-series", a.requireAuth(a.handleDateSeries, supervisors...))
	mux.HandleFunc("GET /api/admin/audit-logs", a.requireAuth(a.handleAuditLogs, adminOnly...))

	mux.HandleFunc("GET "+eventsPath, a.requireAuth(a.handleEvents, anyRole...))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

// statusRecorder captures the status for the request log. Unwrap lets
// http.ResponseController reach the underlying Flusher for the event stream.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = xid.New("req")
		}
		w.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodPost || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// The event stream is long-lived and must not inherit the request deadline.
		if r.URL.Path != eventsPath {
			ctx, cancel := context.WithTimeout(r.Context(), a.requestTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		a.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

// statusFor maps domain and store errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, store.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err)
}

// decodeJSON rejects unknown fields. An empty body is an error.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted.
func decodeOptionalJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log.
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		msg = "data store unavailable"
	} else if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
