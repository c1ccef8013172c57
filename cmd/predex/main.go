// Command predex ingests prediction-market order-book data and replays it.
// The mode (ingest, discover, replay, simulate, stats, export) comes from
// the configuration file or PREDEX_MODE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/predexchange/internal/app"
	"github.com/alanyoungcy/predexchange/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	mode := flag.String("mode", "", "override the configured mode")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", *configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = strings.ToLower(*mode)
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("exited with error", slog.String("mode", cfg.Mode), slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("stopped", slog.String("mode", cfg.Mode))
}

// newLogger writes JSON logs to stderr so mode results on stdout stay
// machine readable.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
