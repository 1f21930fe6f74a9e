// Package http exposes the forecasting engine as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"prevision/internal/cache"
	"prevision/internal/core"
	"prevision/internal/services"
)

// Ports the server needs from the service layer. The concrete services
// satisfy them; tests substitute fakes.
type (
	ForecastProvider interface {
		MonthForecast(ctx context.Context, userID string, year, month int) (core.ForecastBreakdown, error)
		Projection(ctx context.Context, userID string, year, month, horizonMonths int) ([]core.ForecastBreakdown, error)
		CarryForward(ctx context.Context, userID string, year, month int) (core.Period, error)
		Affordability(ctx context.Context, userID string, year, month int, amount float64, horizonMonths int) (services.AffordabilityResult, error)
	}

	ExpenseManager interface {
		AddExpense(ctx context.Context, userID string, year, month int, e core.Expense) (core.Expense, error)
		MarkReceived(ctx context.Context, id int64, received bool) error
		MarkDeducted(ctx context.Context, id int64, deducted bool) error
		DeleteExpense(ctx context.Context, id int64) error
		ListMonth(ctx context.Context, userID string, year, month int) ([]core.Expense, error)
	}

	PeriodManager interface {
		SetStartingBalance(ctx context.Context, userID string, year, month int, balance float64) (core.Period, error)
	}

	BudgetManager interface {
		UpsertBudget(ctx context.Context, userID string, monthlyLimit float64, email string) error
	}

	IncomeManager interface {
		SetIncome(ctx context.Context, userID string, year, month int, amount float64) error
		GetIncome(ctx context.Context, userID string, year, month int) (float64, bool, error)
	}
)

// Deps bundles everything the server talks to.
type Deps struct {
	Forecasts ForecastProvider
	Expenses  ExpenseManager
	Templates services.TemplateStore
	Periods   PeriodManager
	Budgets   BudgetManager
	Incomes   IncomeManager

	DefaultUser string
	CacheSize   int
	CacheTTL    time.Duration
}

type Server struct {
	http.Server
	deps        Deps
	rateLimiter *rateLimiter

	// Per-user forecast cache, invalidated wholesale on any write.
	forecastCache *cache.LRU[core.ForecastBreakdown]

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.DefaultUser == "" {
		deps.DefaultUser = "default"
	}
	if deps.CacheSize <= 0 {
		deps.CacheSize = 256
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 5 * time.Minute
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		deps:          deps,
		rateLimiter:   newRateLimiter(),
		forecastCache: cache.New[core.ForecastBreakdown](deps.CacheSize, deps.CacheTTL, nil),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/expenses", s.withMiddleware(s.handleExpenses))
	mux.HandleFunc("/expenses/received", s.withMiddleware(s.handleExpenseReceived))
	mux.HandleFunc("/expenses/deducted", s.withMiddleware(s.handleExpenseDeducted))
	mux.HandleFunc("/forecast", s.withMiddleware(s.handleForecast))
	mux.HandleFunc("/projection", s.withMiddleware(s.handleProjection))
	mux.HandleFunc("/periods/balance", s.withMiddleware(s.handleSetBalance))
	mux.HandleFunc("/periods/carry-forward", s.withMiddleware(s.handleCarryForward))
	mux.HandleFunc("/templates", s.withMiddleware(s.handleTemplates))
	mux.HandleFunc("/budget", s.withMiddleware(s.handleSetBudget))
	mux.HandleFunc("/income", s.withMiddleware(s.handleIncome))
	mux.HandleFunc("/affordability", s.withMiddleware(s.handleAffordability))

	return s
}

// Shutdown stops the HTTP server and the rate limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, rate limiting on writes, and
// request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// user resolves the caller's identity from the X-User header.
func (s *Server) user(r *http.Request) string {
	if u := r.Header.Get("X-User"); u != "" {
		return u
	}
	return s.deps.DefaultUser
}

func forecastCacheKey(userID string, year, month int) string {
	return fmt.Sprintf("%s/forecast/%04d-%02d", userID, year, month)
}

// invalidateUser drops every cached forecast of the user. Any write can
// shift any month through carry-forward, so partial invalidation is not
// worth the bookkeeping.
func (s *Server) invalidateUser(userID string) {
	s.forecastCache.DeletePrefix(userID + "/")
}

// cachedForecast serves a month forecast through the LRU cache.
func (s *Server) cachedForecast(ctx context.Context, userID string, year, month int) (core.ForecastBreakdown, error) {
	key := forecastCacheKey(userID, year, month)
	if b, ok := s.forecastCache.Get(key); ok {
		slog.DebugContext(ctx, "Forecast cache hit", "user", userID, "year", year, "month", month)
		return b, nil
	}

	b, err := s.deps.Forecasts.MonthForecast(ctx, userID, year, month)
	if err != nil {
		return core.ForecastBreakdown{}, err
	}
	s.forecastCache.Set(key, b)
	return b, nil
}

// Simple in-memory rate limiter, 60 write requests per client per minute.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}
