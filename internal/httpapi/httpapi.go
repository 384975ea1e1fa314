package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/service"
	"stockcaisse/backend/internal/store"
)

const maxBodyBytes = 1 << 20

var (
	anyStaff     = []string{domain.RoleAdmin, domain.RoleStockManager, domain.RoleSeller}
	adminOnly    = []string{domain.RoleAdmin}
	stockStaff   = []string{domain.RoleAdmin, domain.RoleStockManager}
	counterStaff = []string{domain.RoleAdmin, domain.RoleSeller}
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	if strings.TrimSpace(allowedOrigin) == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

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
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))
	r.Use(limitBody)
	r.Use(requestLog)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Get("/users/staff", a.requireAuth(a.handleListStaff, adminOnly...))
		r.Post("/users/staff", a.requireAuth(a.handleCreateStaff, adminOnly...))

		r.Get("/products", a.requireAuth(a.handleListProducts, anyStaff...))
		r.Post("/products", a.requireAuth(a.handleCreateProduct, adminOnly...))
		r.Get("/products/{id}", a.requireAuth(a.handleGetProduct, anyStaff...))
		r.Patch("/products/{id}", a.requireAuth(a.handleUpdateProduct, adminOnly...))
		r.Delete("/products/{id}", a.requireAuth(a.handleDeleteProduct, adminOnly...))

		r.Get("/points-of-sale", a.requireAuth(a.handleListPointsOfSale, anyStaff...))
		r.Post("/points-of-sale", a.requireAuth(a.handleCreatePointOfSale, adminOnly...))
		r.Get("/points-of-sale/{id}", a.requireAuth(a.handleGetPointOfSale, anyStaff...))
		r.Put("/points-of-sale/{id}", a.requireAuth(a.handleUpdatePointOfSale, adminOnly...))
		r.Delete("/points-of-sale/{id}", a.requireAuth(a.handleDeletePointOfSale, adminOnly...))

		r.Get("/stores", a.requireAuth(a.handleListStores, anyStaff...))
		r.Post("/stores", a.requireAuth(a.handleCreateStore, adminOnly...))
		r.Get("/stores/{id}", a.requireAuth(a.handleGetStore, anyStaff...))
		r.Put("/stores/{id}", a.requireAuth(a.handleUpdateStore, adminOnly...))
		r.Delete("/stores/{id}", a.requireAuth(a.handleDeleteStore, adminOnly...))
		r.Get("/stores/{id}/restock-suggestions", a.requireAuth(a.handleRestockSuggestions, stockStaff...))

		r.Get("/suppliers", a.requireAuth(a.handleListSuppliers, stockStaff...))
		r.Post("/suppliers", a.requireAuth(a.handleCreateSupplier, adminOnly...))
		r.Get("/suppliers/{id}", a.requireAuth(a.handleGetSupplier, stockStaff...))
		r.Put("/suppliers/{id}", a.requireAuth(a.handleUpdateSupplier, adminOnly...))
		r.Delete("/suppliers/{id}", a.requireAuth(a.handleDeleteSupplier, adminOnly...))
		r.Put("/suppliers/{id}/catalog", a.requireAuth(a.handleUpsertCatalogItem, adminOnly...))
		r.Delete("/suppliers/{id}/catalog/{productID}", a.requireAuth(a.handleRemoveCatalogItem, adminOnly...))
		r.Post("/suppliers/{id}/payments", a.requireAuth(a.handlePaySupplier, adminOnly...))
		r.Post("/suppliers/{id}/adjustments", a.requireAuth(a.handleAdjustSupplier, adminOnly...))

		r.Get("/purchases", a.requireAuth(a.handleListPurchases, stockStaff...))
		r.Post("/purchases", a.requireAuth(a.handleCreatePurchase, stockStaff...))
		r.Get("/purchases/{id}", a.requireAuth(a.handleGetPurchase, stockStaff...))
		r.Put("/purchases/{id}", a.requireAuth(a.handleUpdatePurchase, stockStaff...))
		r.Delete("/purchases/{id}", a.requireAuth(a.handleDeletePurchase, stockStaff...))
		r.Delete("/purchases/{id}/items/{productID}", a.requireAuth(a.handleRemovePurchaseItem, stockStaff...))

		r.Get("/transfers", a.requireAuth(a.handleListTransfers, stockStaff...))
		r.Post("/transfers", a.requireAuth(a.handleCreateTransfer, stockStaff...))
		r.Get("/transfers/{id}", a.requireAuth(a.handleGetTransfer, stockStaff...))
		r.Put("/transfers/{id}", a.requireAuth(a.handleUpdateTransfer, stockStaff...))
		r.Delete("/transfers/{id}", a.requireAuth(a.handleDeleteTransfer, stockStaff...))

		r.Get("/losses", a.requireAuth(a.handleListLosses, stockStaff...))
		r.Post("/losses", a.requireAuth(a.handleRecordLoss, stockStaff...))
		r.Get("/losses/{id}", a.requireAuth(a.handleGetLoss, stockStaff...))
		r.Put("/losses/{id}", a.requireAuth(a.handleUpdateLoss, stockStaff...))
		r.Delete("/losses/{id}", a.requireAuth(a.handleDeleteLoss, stockStaff...))
		r.Get("/stock-movements", a.requireAuth(a.handleListStockMovements, stockStaff...))

		r.Get("/day-sales", a.requireAuth(a.handleListDaySales, counterStaff...))
		r.Post("/day-sales", a.requireAuth(a.handleCreateDaySale, counterStaff...))
		r.Get("/day-sales/{id}", a.requireAuth(a.handleGetDaySale, counterStaff...))
		r.Put("/day-sales/{id}", a.requireAuth(a.handleUpdateDaySale, counterStaff...))
		r.Delete("/day-sales/{id}", a.requireAuth(a.handleDeleteDaySale, counterStaff...))

		r.Get("/owner-payments", a.requireAuth(a.handleListOwnerPayments, counterStaff...))
		r.Post("/owner-payments", a.requireAuth(a.handleCreateOwnerPayment, counterStaff...))
		r.Get("/owner-payments/{id}", a.requireAuth(a.handleGetOwnerPayment, counterStaff...))
		r.Put("/owner-payments/{id}", a.requireAuth(a.handleUpdateOwnerPayment, adminOnly...))
		r.Delete("/owner-payments/{id}", a.requireAuth(a.handleDeleteOwnerPayment, adminOnly...))

		r.Get("/cash-register", a.requireAuth(a.handleGetCashRegister, adminOnly...))
		r.Get("/cash-register/movements", a.requireAuth(a.handleListCashMovements, adminOnly...))
		r.Post("/cash-register/deposits", a.requireAuth(a.handleDeposit, adminOnly...))
		r.Post("/cash-register/withdrawals", a.requireAuth(a.handleWithdraw, adminOnly...))

		r.Get("/expense-categories", a.requireAuth(a.handleListExpenseCategories, adminOnly...))
		r.Post("/expense-categories", a.requireAuth(a.handleCreateExpenseCategory, adminOnly...))
		r.Delete("/expense-categories/{id}", a.requireAuth(a.handleDeleteExpenseCategory, adminOnly...))
		r.Get("/expenses", a.requireAuth(a.handleListExpenses, adminOnly...))
		r.Post("/expenses", a.requireAuth(a.handleCreateExpense, adminOnly...))
		r.Get("/expenses/{id}", a.requireAuth(a.handleGetExpense, adminOnly...))
		r.Put("/expenses/{id}", a.requireAuth(a.handleUpdateExpense, adminOnly...))
		r.Delete("/expenses/{id}", a.requireAuth(a.handleDeleteExpense, adminOnly...))

		r.Get("/clients", a.requireAuth(a.handleListClients, counterStaff...))
		r.Post("/clients", a.requireAuth(a.handleCreateClient, counterStaff...))
		r.Get("/clients/{id}", a.requireAuth(a.handleGetClient, counterStaff...))
		r.Patch("/clients/{id}", a.requireAuth(a.handleUpdateClient, adminOnly...))
		r.Delete("/clients/{id}", a.requireAuth(a.handleDeleteClient, adminOnly...))
		r.Get("/clients/{id}/transactions", a.requireAuth(a.handleListClientTransactions, counterStaff...))
		r.Post("/clients/{id}/repayments", a.requireAuth(a.handleClientRepayment, counterStaff...))

		r.Get("/audit-logs", a.requireAuth(a.handleAuditLogs, adminOnly...))
		r.Get("/reconciliation", a.requireAuth(a.handleReconcile, adminOnly...))
	})

	return r
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

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s req=%s", r.Method, r.URL.Path, time.Since(startedAt), middleware.GetReqID(r.Context()))
	})
}

// idempotencyKey prefers the key carried in the body and falls back to the
// Idempotency-Key header.
func idempotencyKey(r *http.Request, fromBody string) string {
	if key := strings.TrimSpace(fromBody); key != "" {
		return key
	}
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
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

// writeServiceError maps the store error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrCreditLimitExceeded),
		errors.Is(err, store.ErrClientRestricted):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConsistencyConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log.
	msg := err.Error()
	if status >= 500 {
		var storageErr *store.StorageError
		if errors.As(err, &storageErr) && storageErr.Err != nil {
			log.Printf("internal error (status %d): %v: %v", status, err, storageErr.Err)
		} else {
			log.Printf("internal error (status %d): %v", status, err)
		}
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
