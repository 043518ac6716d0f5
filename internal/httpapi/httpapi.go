package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/service"
	"branchsettle/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	entries   map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time), now: time.Now}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

// sweep drops clients with no attempt inside the window. Caller holds mu.
func (l *attemptLimiter) sweep(cutoff time.Time) {
	for key, history := range l.entries {
		if len(history) == 0 || !history[len(history)-1].After(cutoff) {
			delete(l.entries, key)
		}
	}
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

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/branches", a.requireAuth(a.handleBranches, domain.RoleAdmin, domain.RoleManager))
	mux.HandleFunc("/api/v1/users/managers", a.requireAuth(a.handleManagers, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/orders/import", a.requireAuth(a.handleOrderImport, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/expenses/import", a.requireAuth(a.handleExpenseImport, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/settlements", a.requireAuth(a.handleSettlementSave, domain.RoleAdmin, domain.RoleManager))
	mux.HandleFunc("/api/v1/settlements/daily", a.requireAuth(a.handleDailySettlement, domain.RoleAdmin, domain.RoleManager))
	mux.HandleFunc("/api/v1/settlements/history", a.requireAuth(a.handleSettlementHistory, domain.RoleAdmin, domain.RoleManager))
	mux.HandleFunc("/api/v1/settlements/reconstruct", a.requireAuth(a.handleReconstruct, domain.RoleAdmin, domain.RoleManager))

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

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
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
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleBranches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		branches, err := a.service.ListBranches(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
	case http.MethodPost:
		var req domain.BranchCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		branch, err := a.service.CreateBranch(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"branch": branch})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleManagers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		managers := a.auth.ListManagers(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"managers": managers})
	case http.MethodPost:
		var req domain.ManagerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		manager, err := a.auth.CreateManager(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"manager": manager})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrderImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.OrderImportRequest
	if err := decodeExportJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ImportOrders(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleExpenseImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ExpenseImportRequest
	if err := decodeExportJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ImportExpenses(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDailySettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	in := domain.SettlementInput{
		BranchID: query.Get("branch_id"),
		Date:     query.Get("date"),
	}
	var err error
	if in.VaultDeposit, err = parseOptionalAmount(query.Get("vault_deposit")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("vault_deposit: %w", err))
		return
	}
	if in.PreviousVaultBalance, err = parseOptionalAmount(query.Get("previous_balance")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("previous_balance: %w", err))
		return
	}

	view, err := a.service.SettlementView(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(query.Get("format"))) {
	case "csv":
		body, err := settlementViewToCSV(view)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"settlement-%s-%s.csv\"", view.BranchID, view.Date))
		_, _ = w.Write(body)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (a *API) handleSettlementSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SettlementInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.SaveSettlement(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !resp.Saved {
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSettlementHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	resp, err := a.service.History(r.Context(), query.Get("branch_id"), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	resp, err := a.service.Reconstruct(r.Context(), query.Get("branch_id"), query.Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func settlementViewToCSV(view domain.SettlementView) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", view.Date},
		{"summary", "branch_id", view.BranchID},
		{"summary", "branch_name", view.BranchName},
	}
	for _, bucket := range []struct {
		name  string
		total domain.MethodTotal
	}{
		{"card", view.Sales.Buckets.Card},
		{"cash", view.Sales.Buckets.Cash},
		{"transfer", view.Sales.Buckets.Transfer},
		{"other", view.Sales.Buckets.Other},
	} {
		rows = append(rows,
			[]string{"payment", bucket.name + "_count", strconv.Itoa(bucket.total.Count)},
			[]string{"payment", bucket.name + "_amount", formatAmount(bucket.total.Amount)},
		)
	}
	rows = append(rows,
		[]string{"sales", "settled_total", formatAmount(view.Sales.SettledTotal)},
		[]string{"sales", "today_orders_amount", formatAmount(view.Sales.TodayOrdersAmount)},
		[]string{"sales", "carried_forward_amount", formatAmount(view.Sales.CarriedForwardAmount)},
		[]string{"sales", "pending_total", formatAmount(view.Sales.PendingTotal)},
	)
	for _, pending := range view.Sales.Pending {
		rows = append(rows, []string{"pending", pending.OrderID, formatAmount(pending.Share)})
	}
	rows = append(rows,
		[]string{"delivery", "from_orders", formatAmount(view.Delivery.FromOrders)},
		[]string{"delivery", "from_expenses", formatAmount(view.Delivery.FromExpenses)},
		[]string{"delivery", "applied", formatAmount(view.Delivery.Applied)},
		[]string{"vault", "previous_balance", formatAmount(view.Vault.PreviousVaultBalance)},
		[]string{"vault", "previous_balance_source", view.Vault.PreviousBalanceSource},
		[]string{"vault", "cash_sales", formatAmount(view.Vault.CashSalesToday)},
		[]string{"vault", "deposit", formatAmount(view.Vault.VaultDeposit)},
		[]string{"vault", "delivery_cash", formatAmount(view.Vault.DeliveryCostCash)},
		[]string{"vault", "other_cash_expenses", formatAmount(view.Vault.OtherCashExpenses)},
		[]string{"vault", "remaining", formatAmount(view.Vault.Remaining)},
	)
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatAmount(v int64) string {
	return strconv.FormatInt(v, 10)
}

func parseOptionalAmount(raw string) (*int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, errors.New("must be a whole number")
	}
	return &value, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeExportJSON accepts fields it does not know; exports from the order
// side carry far more than ingestion reads.
func decodeExportJSON(r *http.Request, dest any) error {
	return json.NewDecoder(r.Body).Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause is only logged.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
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
