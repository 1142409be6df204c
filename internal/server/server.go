// Package server wires the dashboard together and runs the HTTP server.
//
// COMPOSITION ROOT:
// Every dependency is built here, in one place:
//
//	config → sqldb.DB ───────────────→ RosterService ─┐
//	       → stats.Client ─┐                          ├→ handler.Events → realtime.Router → realtime.Hub
//	       → cache.Store ──┴→ StatsService ───────────┘
//
// ROUTES:
//
//	GET /healthz     → store and cache health (JSON)
//	GET /ws          → realtime websocket
//	GET /socket.io/  → same websocket, for clients built against the old path
//	GET /, GET /*    → prebuilt single-page app
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/covid-dashboard/internal/cache"
	"github.com/sakif/covid-dashboard/internal/config"
	"github.com/sakif/covid-dashboard/internal/handler"
	"github.com/sakif/covid-dashboard/internal/middleware"
	"github.com/sakif/covid-dashboard/internal/realtime"
	"github.com/sakif/covid-dashboard/internal/repository/sqldb"
	"github.com/sakif/covid-dashboard/internal/service"
	"github.com/sakif/covid-dashboard/internal/stats"
)

// Server owns the HTTP router and every long-lived resource. All of them are
// released by Shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db    *sqldb.DB
	cache cache.Store
	hub   *realtime.Hub
}

// New opens the store and the cache, builds the services and registers routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqldb.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := newCache(cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	client := stats.NewClient(stats.Config{
		StatsBaseURL: cfg.StatsBaseURL,
		NewsBaseURL:  cfg.NewsBaseURL,
		Username:     cfg.StatsUsername,
		Password:     cfg.StatsPassword,
		NewsAPIKey:   cfg.NewsAPIKey,
		Timeout:      cfg.UpstreamTimeout,
	})

	statsService := service.NewStatsService(client, store, logger)
	rosterService := service.NewRosterService(db, logger)

	router := realtime.NewRouter()
	handler.NewEvents(statsService, rosterService, logger).Register(router)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		cache:  store,
		hub:    realtime.NewHub(router, logger),
	}
	s.setupRoutes()

	logger.Info("realtime events registered", slog.Any("events", router.Events()))
	return s, nil
}

// newCache picks the Redis backend when an address is configured and the
// in-process one otherwise.
func newCache(cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	if cfg.RedisAddr == "" {
		logger.Info("summary cache: in memory", slog.Duration("ttl", cfg.CacheTTL))
		return cache.NewMemory(cfg.CacheTTL), nil
	}
	r, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, "", cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	logger.Info("summary cache: redis", slog.String("addr", cfg.RedisAddr), slog.Duration("ttl", cfg.CacheTTL))
	return r, nil
}

// setupRoutes configures middleware and routes.
//
// MIDDLEWARE ORDER:
// RequestID and RealIP first so the logger can see them, then CORS, the
// request logger and finally Recoverer closest to the handlers.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	health := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": s.db,
		"cache":    s.cache,
	}, s.hub.Count, s.logger)
	s.router.Get("/healthz", health.HandleHealth)

	s.router.Get("/ws", s.hub.ServeHTTP)
	s.router.Get("/socket.io/", s.hub.ServeHTTP)

	static := handler.NewStaticHandler(s.config.StaticDir, s.logger)
	s.router.Get("/", static.ServeHTTP)
	s.router.Get("/*", static.ServeHTTP)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until SIGINT/SIGTERM or a listener error, then shuts
// down gracefully.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("static_dir", s.config.StaticDir),
			slog.String("database", s.db.Driver()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		_ = s.Shutdown(context.Background(), nil)
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.Shutdown(ctx, srv); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Shutdown releases everything the server owns. Websockets are hijacked
// connections that http.Server.Shutdown does not track, so the hub is closed
// first; srv may be nil when the listener never started.
func (s *Server) Shutdown(ctx context.Context, srv *http.Server) error {
	s.hub.Close()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if err := s.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}
