package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/civicpoints/internal/handler"
	"github.com/dukerupert/civicpoints/internal/metrics"
	"github.com/dukerupert/civicpoints/internal/middleware"
	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/store"
	ws "github.com/dukerupert/civicpoints/internal/websocket"
)

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	rewardH      *handler.RewardHandler
	pointsH      *handler.PointsHandler
	settingsH    *handler.SettingsHandler
	sessionH     *handler.SessionHandler
	sessionStore *store.SessionStore
	memberStore  *store.MemberStore
	rateLimiter  *middleware.RateLimiter
	gatherer     prometheus.Gatherer
	logger       *slog.Logger
}

// Config holds the optional collaborators of a Server.
type Config struct {
	// Metrics receives ledger counters; nil disables them.
	Metrics *metrics.Ledger
	// Gatherer backs /metrics. Defaults to the Prometheus default registry.
	Gatherer prometheus.Gatherer
	// Now overrides the ledger clock.
	Now func() time.Time
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	rewardStore := store.NewRewardStore(db)
	ledgerStore := store.NewLedgerStore(db)
	settingsStore := store.NewSettingsStore(db)
	sessionStore := store.NewSessionStore(db)

	workflow := points.NewWorkflow(ledgerStore,
		points.WithClock(cfg.Now),
		points.WithMetrics(cfg.Metrics),
		points.WithLogger(logger.With("component", "ledger")),
		points.WithObserver(hub.ConversionEvent),
	)
	catalog := points.NewCatalog(ledgerStore, nil, logger.With("component", "catalog"))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		db:           db,
		hub:          hub,
		rewardH:      handler.NewRewardHandler(rewardStore, catalog, workflow, hub, logger.With("component", "reward")),
		pointsH:      handler.NewPointsHandler(workflow, ledgerStore, logger.With("component", "points")),
		settingsH:    handler.NewSettingsHandler(settingsStore, logger.With("component", "settings")),
		sessionH:     handler.NewSessionHandler(memberStore, sessionStore, logger.With("component", "session")),
		sessionStore: sessionStore,
		memberStore:  memberStore,
		rateLimiter:  middleware.NewRateLimiter(),
		gatherer:     gatherer,
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/sessions", s.rateLimitedHandler(s.sessionH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.memberStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func admin(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("DELETE /api/sessions", s.sessionH.Logout)

	// Catalog
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.Handle("POST /api/rewards", admin(s.rewardH.Create))
	mux.Handle("PUT /api/rewards/{id}", admin(s.rewardH.Update))
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.rewardH.Redeem)

	// Ledger
	mux.HandleFunc("GET /api/members/{id}/points", s.pointsH.Balance)
	mux.HandleFunc("GET /api/members/{id}/conversions", s.pointsH.MemberConversions)
	mux.Handle("GET /api/conversions", admin(s.pointsH.Queue))
	mux.Handle("POST /api/conversions/{id}/approve", admin(s.pointsH.Approve))
	mux.Handle("POST /api/conversions/{id}/reject", admin(s.pointsH.Reject))

	// Settings
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)

	// Realtime
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}

// RunCleanup drops expired sessions and rate limiter entries every interval
// until ctx is done.
func (s *Server) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.sessionStore.DeleteExpired(ctx)
			if err != nil {
				s.logger.Warn("session cleanup failed", "error", err)
			} else if n > 0 {
				s.logger.Info("expired sessions removed", "count", n)
			}
			s.rateLimiter.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
