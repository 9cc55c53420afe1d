// Package http serves the cashbook JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cashbook/internal/auth"
	"cashbook/internal/log"
	"cashbook/internal/metrics"
	"cashbook/internal/middleware/ratelimit"
	"cashbook/internal/middleware/security"
	"cashbook/internal/middleware/trace"
	"cashbook/internal/services"
)

// Services are the application services behind the API.
type Services struct {
	Profiles  *services.ProfileService
	Debts     *services.DebtService
	Recurring *services.RecurringService
	CashFlows *services.CashFlowService
	Overview  *services.OverviewService
}

type Config struct {
	Addr      string
	JWT       *auth.JWTManager
	RateLimit ratelimit.Config
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready   func(context.Context) error
	Metrics *metrics.Metrics
}

type Server struct {
	http.Server
	svc       Services
	jwt       *auth.JWTManager
	ready     func(context.Context) error
	validator *CustomValidator
	limiter   *ratelimit.Limiter
	logger    *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, svc Services, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		svc:       svc,
		jwt:       cfg.JWT,
		ready:     cfg.Ready,
		validator: NewValidator(),
		limiter:   ratelimit.NewLimiter(cfg.RateLimit),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	s.route(mux, "GET /api/me", s.handleGetProfile)
	s.route(mux, "PUT /api/me", s.handlePutProfile)
	s.route(mux, "GET /api/friends", s.handleListFriends)
	s.route(mux, "POST /api/friends", s.handleAddFriend)

	s.route(mux, "GET /api/overview/{year}/{month}", s.handleOverview)
	s.route(mux, "GET /api/plan/{year}/{month}", s.handlePlan)
	s.route(mux, "GET /api/analysis", s.handleAnalysis)

	s.route(mux, "GET /api/cash-groups", s.handleListCashGroups)
	s.route(mux, "GET /api/cash-groups/all", s.handleAllCashGroups)
	s.route(mux, "POST /api/cash-groups", s.handleCreateCashGroup)
	s.route(mux, "PUT /api/cash-groups/{id}", s.handleUpdateCashGroup)

	s.route(mux, "GET /api/cash-flows", s.handleListCashFlows)
	s.route(mux, "POST /api/cash-flows", s.handleSaveCashFlow)
	s.route(mux, "PUT /api/cash-flows/{id}", s.handleSaveCashFlow)
	s.route(mux, "DELETE /api/cash-flows/{id}", s.handleDeleteCashFlow)

	s.route(mux, "GET /api/recurring", s.handleListRecurring)
	s.route(mux, "POST /api/recurring", s.handleCreateRecurring)
	s.route(mux, "GET /api/recurring/{id}", s.handleGetRecurring)
	s.route(mux, "PUT /api/recurring/{id}", s.handleUpdateRecurring)
	s.route(mux, "DELETE /api/recurring/{id}", s.handleDeleteRecurring)

	s.route(mux, "GET /api/debts", s.handleOpenDebts)
	s.route(mux, "POST /api/debts", s.handleCreateDebt)
	s.route(mux, "PATCH /api/debts/{id}", s.handleEditDebt)
	s.route(mux, "DELETE /api/debts/{id}", s.handleDeleteDebt)
	s.route(mux, "POST /api/debts/{id}/reaction", s.handleReact)
	s.route(mux, "GET /api/balances", s.handleBalances)

	s.route(mux, "POST /api/settlements", s.handleSettle)
	s.route(mux, "GET /api/settlements", s.handleListSettlements)

	detector := security.NewDetector(func(r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(),
			"Suspicious request rejected", "path", r.URL.Path, "user_agent", r.Header.Get("User-Agent"))
	})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
			"Rate limit exceeded", log.FieldClientIP, detector.ExtractClientIP(r))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})

	var observer trace.Observer
	if cfg.Metrics != nil {
		observer = cfg.Metrics
	}
	tracer := trace.NewMiddleware(logger, detector.ExtractClientIP, observer)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// route registers an authenticated handler.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	requireAuth := auth.RequireAuth(s.jwt, func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, http.StatusUnauthorized, err.Error())
	})
	mux.Handle(pattern, requireAuth(h))
}

// Shutdown stops the rate limiter and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
