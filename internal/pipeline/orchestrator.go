// Package pipeline runs the background jobs of ingest mode: periodic market
// discovery and the cold-storage archiver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the enabled jobs concurrently. A nil job or a zero
// refresh interval disables it.
type Orchestrator struct {
	discovery       *Discovery
	refreshInterval time.Duration
	archive         *ArchiveJob
	archiveCron     string
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(discovery *Discovery, refreshInterval time.Duration, archive *ArchiveJob, archiveCron string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		discovery:       discovery,
		refreshInterval: refreshInterval,
		archive:         archive,
		archiveCron:     archiveCron,
		logger:          logger.With(slog.String("component", "pipeline")),
	}
}

// Enabled reports whether any job would run.
func (o *Orchestrator) Enabled() bool {
	return (o.discovery != nil && o.refreshInterval > 0) || o.archive != nil
}

// Run blocks until ctx is cancelled or a job fails. Cancellation is a clean
// stop and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.Enabled() {
		return nil
	}
	o.logger.Info("pipeline starting",
		slog.Duration("discovery_refresh", o.refreshInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, gctx := errgroup.WithContext(ctx)
	if o.discovery != nil && o.refreshInterval > 0 {
		g.Go(func() error {
			return stopped(gctx, "discovery", o.discovery.RunLoop(gctx, o.refreshInterval))
		})
	}
	if o.archive != nil {
		g.Go(func() error {
			return stopped(gctx, "archiver", o.archive.RunCron(gctx, o.archiveCron))
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped")
	return nil
}

func stopped(ctx context.Context, job string, err error) error {
	if err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return nil
	}
	return fmt.Errorf("pipeline: %s: %w", job, err)
}
