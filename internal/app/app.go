// Package app wires the predex components for the configured mode and runs
// them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alanyoungcy/predexchange/internal/config"
)

// App is the root application object. It owns the configuration, the
// logger and the cleanup functions run on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates an App. Mode results are written to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
}

// Run wires the dependencies the mode needs and runs it.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch a.cfg.Mode {
	case "ingest":
		return a.IngestMode(ctx, deps)
	case "discover":
		return a.DiscoverMode(ctx, deps)
	case "replay":
		return a.ReplayMode(ctx, deps)
	case "simulate":
		return a.SimulateMode(ctx, deps)
	case "stats":
		return a.StatsMode(ctx, deps)
	case "export":
		return a.ExportMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases resources in reverse order. Later calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
