package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keygatehq/keygate/internal/credential"
	"github.com/keygatehq/keygate/internal/entitlement"
	"github.com/keygatehq/keygate/internal/handler"
	"github.com/keygatehq/keygate/internal/metrics"
	"github.com/keygatehq/keygate/internal/server/middleware"
	"github.com/keygatehq/keygate/internal/service"
	"github.com/keygatehq/keygate/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	LoginRatePerMin int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		LoginRatePerMin: 10,
	}
}

// Services bundles the wired subsystem components the server routes to.
type Services struct {
	Store     *store.Store
	Auth      *service.Authenticator
	Limiter   *service.Limiter
	Recorder  *service.Recorder
	Sessions  *service.Sessions
	Gate      entitlement.Gate
	Generator *credential.Generator
	Hasher    *credential.Hasher
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
}

// Server is the top-level HTTP server. It owns the chi router and wires the
// authenticate -> record-usage -> rate-limit chain around every data-plane
// route.
type Server struct {
	cfg        Config
	svcs       Services
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server with all routes and middleware wired, ready to
// listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, svcs Services, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		svcs:   svcs,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.svcs.Registry != nil {
		r.Method("GET", "/metrics", promhttp.HandlerFor(s.svcs.Registry, promhttp.HandlerOpts{}))
	}

	sessionHandler := handler.NewSessionHandler(s.svcs.Sessions, s.logger)
	keyHandler := handler.NewKeyHandler(s.svcs.Store, s.svcs.Generator, s.svcs.Hasher, s.svcs.Gate, s.logger)

	r.Route("/api/v1", func(r chi.Router) {

		// Management plane: owner sessions.
		r.Group(func(r chi.Router) {
			r.Use(middleware.LoginRateLimit(s.cfg.LoginRatePerMin))
			r.Post("/session", sessionHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.svcs.Sessions))

			r.Post("/keys", keyHandler.Create)
			r.Get("/keys", keyHandler.List)
			r.Delete("/keys/{keyID}", keyHandler.Revoke)
			r.Delete("/keys/{keyID}/permanent", keyHandler.DeleteForever)
			r.Get("/keys/{keyID}/usage", keyHandler.Usage)
		})

		// Data plane: API-key bearer credentials. Usage is recorded for
		// every request that authenticated, including quota denials.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.svcs.Auth, s.svcs.Metrics))
			r.Use(middleware.RecordUsage(s.svcs.Recorder))
			r.Use(middleware.RateLimit(s.svcs.Limiter))

			r.Get("/whoami", s.handleWhoami)
		})
	})

	s.router = r
}

// handleWhoami is the demonstration protected endpoint: it reflects the
// authenticated key's identity and quota back to the caller.
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"key_id":           principal.KeyID,
		"owner_id":         principal.OwnerID,
		"quota_per_window": principal.QuotaPerWindow,
	})
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the durable store is
// reachable, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if err := s.svcs.Store.Ping(r.Context()); err != nil {
		status = "degraded: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
