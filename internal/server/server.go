// Package server provides the thin HTTP/websocket API surface (C16): a
// health/metrics surface plus a backtest trigger and the dashboard event
// stream. It holds no trading logic of its own — every handler delegates
// straight to the component it fronts.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/observability"
	"github.com/aristath/sentinel/internal/reliability"
)

// Config holds everything the server needs to construct its routes. Every
// field is optional except Log; handlers for a nil dependency respond
// 503 rather than panicking, so a partially-wired server (e.g. in tests)
// still boots.
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	EventBus   *events.Bus
	Metrics    *observability.Collector
	Alerts     *observability.Publisher
	Backtest   *backtest.Engine
	Backups    *reliability.ObjectStoreBackupService
	DataDir    string
}

// Server wraps the chi router and the http.Server lifecycle.
type Server struct {
	router *chi.Mux
	http   *http.Server
	cfg    Config
	log    zerolog.Logger
}

// New builds the router and registers every route.
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{router: router, cfg: cfg, log: log}
	s.registerRoutes()

	port := cfg.Port
	if port == 0 {
		port = 8001
	}
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/metrics", s.handleMetrics)
	s.router.Post("/api/backtest/run", s.handleBacktestRun)
	s.router.Post("/api/backup/run", s.handleBackupRun)

	if s.cfg.EventBus != nil {
		streamHandler := NewEventsStreamHandler(s.cfg.EventBus, s.log)
		s.router.Get("/api/events/stream", streamHandler.ServeHTTP)
	}
}

// Start begins serving and blocks until the listener stops or ctx is
// cancelled, mirroring the graceful-shutdown pattern cmd/sentinel uses
// around http.Server.Shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("server starting")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
