// Package main is the entry point for the COVID-19 dashboard server.
//
// The main package stays small. It reads configuration, builds the logger,
// hands both to internal/server and blocks until shutdown. Everything else
// lives in the internal packages.
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/covid-dashboard/internal/config"
	"github.com/sakif/covid-dashboard/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.yaml (optional) plus the environment. Missing credentials are
	// fatal here, before anything listens.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// LOG_LEVEL and LOG_FORMAT pick the level and text/json output.
	// SetDefault routes the slog package-level functions through it too.
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
