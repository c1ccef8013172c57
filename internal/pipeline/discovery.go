package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// MarketDiscoverer selects the markets worth tracking on a venue.
// domain.VenueConnector satisfies it.
type MarketDiscoverer interface {
	Venue() string
	DiscoverMarkets(ctx context.Context, opts domain.DiscoveryOpts) ([]domain.Market, error)
}

// Discovery fetches the venue's top markets and replaces the tracked set.
type Discovery struct {
	venue  MarketDiscoverer
	store  domain.MarketStore
	opts   domain.DiscoveryOpts
	logger *slog.Logger
}

// NewDiscovery creates a Discovery job.
func NewDiscovery(venue MarketDiscoverer, store domain.MarketStore, opts domain.DiscoveryOpts, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		venue:  venue,
		store:  store,
		opts:   opts,
		logger: logger.With(slog.String("component", "discovery")),
	}
}

// Run performs one discovery pass and returns the tracked markets.
func (d *Discovery) Run(ctx context.Context) ([]domain.Market, error) {
	start := time.Now()
	markets, err := d.venue.DiscoverMarkets(ctx, d.opts)
	if err != nil {
		return nil, fmt.Errorf("pipeline: discover %s markets: %w", d.venue.Venue(), err)
	}
	if len(markets) == 0 {
		d.logger.Warn("discovery selected no markets, tracked set left unchanged")
		return markets, nil
	}

	if err := d.store.UpsertBatch(ctx, markets); err != nil {
		return nil, fmt.Errorf("pipeline: upsert %d markets: %w", len(markets), err)
	}
	if err := d.store.ReplaceTracked(ctx, markets); err != nil {
		return nil, fmt.Errorf("pipeline: replace tracked markets: %w", err)
	}

	assets := 0
	for _, m := range markets {
		assets += len(m.AssetIDs())
	}
	d.logger.Info("tracked markets refreshed",
		slog.String("venue", d.venue.Venue()),
		slog.Int("markets", len(markets)),
		slog.Int("assets", assets),
		slog.Duration("took", time.Since(start)),
	)
	return markets, nil
}

// RunLoop repeats Run every interval until ctx is cancelled. Failed passes
// are logged and retried at the next tick.
func (d *Discovery) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("discovery loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Run(ctx); err != nil {
				d.logger.Error("discovery failed", slog.String("error", err.Error()))
			}
		}
	}
}
