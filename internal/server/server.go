// Package server sets up the HTTP server, router, and all route
// definitions. It is the composition root: the engine, service layer,
// handlers, and both facades (REST and MCP) are wired here, and main.go
// stays minimal.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oneprompteu/oneprompt/internal/artifact"
	"github.com/oneprompteu/oneprompt/internal/auth"
	"github.com/oneprompteu/oneprompt/internal/config"
	"github.com/oneprompteu/oneprompt/internal/engine"
	"github.com/oneprompteu/oneprompt/internal/handler"
	"github.com/oneprompteu/oneprompt/internal/metrics"
	"github.com/oneprompteu/oneprompt/internal/middleware"
	"github.com/oneprompteu/oneprompt/internal/policy"
	sqliteRepo "github.com/oneprompteu/oneprompt/internal/repository/sqlite"
	"github.com/oneprompteu/oneprompt/internal/sandbox"
	"github.com/oneprompteu/oneprompt/internal/service"
)

// Server owns the router and the long-lived resources behind it: the
// database connection and the sandbox prewarm pool. Both are released
// during graceful shutdown.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	pool    *sandbox.Pool
	service *service.ExecutionService
	tokens  *auth.TokenService
}

// New assembles the full dependency chain: database, module registry,
// sandbox pool, engine, service, handlers, routes.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	registry := sandbox.NewRegistry(sandbox.Options{
		DisabledModules: cfg.DisabledModules,
	})

	pool := sandbox.NewPool(registry, cfg.SandboxPoolSize, logger)
	pool.Start()

	var artifacts *artifact.Client
	if cfg.ArtifactStoreURL != "" {
		artifacts, err = artifact.New(artifact.Config{
			BaseURL: cfg.ArtifactStoreURL,
			Token:   cfg.ArtifactStoreToken,
			OAuth:   cfg.ArtifactOAuth(),
		})
		if err != nil {
			db.Close()
			pool.Stop()
			return nil, fmt.Errorf("creating artifact client: %w", err)
		}
	}

	eng := engine.New(engine.Config{
		DefaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
		MaxTimeoutSeconds:     cfg.MaxTimeoutSeconds,
		MaxOutputSize:         cfg.MaxOutputSize,
	}, policy.Default(), registry, artifacts, logger)
	eng.UsePool(pool)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promRegistry)

	svc := service.NewExecutionService(eng, db, m, logger)

	var tokens *auth.TokenService
	if cfg.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			db.Close()
			pool.Stop()
			return nil, fmt.Errorf("creating token service: %w", err)
		}
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		pool:    pool,
		service: svc,
		tokens:  tokens,
	}
	s.setupRoutes(promRegistry)

	return s, nil
}

// setupRoutes configures middleware and route handlers. Middleware order
// matters: request ID and real IP first, then logging, then panic
// recovery.
func (s *Server) setupRoutes(promRegistry *prometheus.Registry) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	executeHandler := handler.NewExecuteHandler(s.service, s.logger)
	librariesHandler := handler.NewLibrariesHandler(s.service, s.logger)
	runsHandler := handler.NewRunsHandler(s.service, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// Auth is optional: with no secret configured the API is open,
		// which is the expected mode behind a trusted gateway.
		if s.tokens != nil {
			r.Use(auth.RequireAuth(s.tokens))
		}

		r.Post("/execute", executeHandler.HandleExecute)
		r.Get("/libraries", librariesHandler.HandleList)
		r.Get("/runs", runsHandler.HandleList)
		r.Get("/runs/{id}", runsHandler.HandleGet)
	})

	// The MCP facade carries its own session semantics; auth, when
	// enabled, applies the same bearer check.
	mcpHandler := s.newMCPHandler()
	if s.tokens != nil {
		mcpHandler = auth.RequireAuth(s.tokens)(mcpHandler)
	}
	s.router.Handle("/mcp", mcpHandler)
	s.router.Handle("/mcp/*", mcpHandler)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
}

// Close releases the server's long-lived resources: the sandbox pool and
// the database connection. Start calls it on the way out; tests that never
// Start call it directly.
func (s *Server) Close() {
	s.pool.Stop()
	s.db.Close()
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests,
// stop the sandbox pool, close the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(s.config.MaxTimeoutSeconds+15) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Int("poolSize", s.config.SandboxPoolSize),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Router exposes the underlying handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
