// Package app wires configuration, stores, caches, the market engine, and
// the HTTP/WebSocket surface into runnable modes.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixlabs/helixmarket/internal/config"
)

// App is the top-level application. It owns the dependency graph for the
// configured mode and runs its components until the context is cancelled.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run wires dependencies and blocks until the context is cancelled or a
// component fails.
//
// Modes:
//
//	serve  API server, WebSocket hub, and maintenance sweeps on
//	       Postgres and Redis.
//	sim    the same engine on in-memory stores with a background noise
//	       trader; a single-binary demo needing no services.
//	full   serve plus the noise trader and the S3 archive sweep.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("trigger_policy", a.cfg.Market.TriggerPolicy),
	)

	deps, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer deps.Close()

	switch a.cfg.Mode {
	case "serve":
		return a.runServe(ctx, deps)
	case "sim":
		return a.runSim(ctx, deps)
	case "full":
		return a.runFull(ctx, deps)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}
}
