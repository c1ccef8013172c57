package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/metrics"
	"github.com/alanyoungcy/predexchange/internal/platform/polymarket"
)

const sportsFeedName = "sports"

// SportsFeedConfig configures the secondary live-score feed.
type SportsFeedConfig struct {
	URL         string
	Backoff     Backoff
	ReadTimeout time.Duration
}

// SportsFeed keeps sports_games current from the Polymarket sports socket.
// It needs no subscription and treats read timeouts as idle time.
type SportsFeed struct {
	lifecycle *Lifecycle
	store     domain.SportsStore
	updates   atomic.Int64
	logger    *slog.Logger
}

// NewSportsFeed wires a sports feed.
func NewSportsFeed(cfg SportsFeedConfig, dialer domain.FeedDialer, store domain.SportsStore, logger *slog.Logger) *SportsFeed {
	f := &SportsFeed{
		store:  store,
		logger: logger.With(slog.String("component", "sports_feed")),
	}
	f.lifecycle = NewLifecycle(LifecycleConfig{
		Name:        sportsFeedName,
		URL:         cfg.URL,
		Backoff:     cfg.Backoff,
		ReadTimeout: cfg.ReadTimeout,
	}, dialer, f, logger)
	return f
}

// Run streams until ctx is cancelled or retries are exhausted.
func (f *SportsFeed) Run(ctx context.Context) error {
	return f.lifecycle.Run(ctx)
}

// Subscribe is a no-op: the sports socket pushes to every client.
func (f *SportsFeed) Subscribe(context.Context, domain.FeedConn) error { return nil }

// Handle answers keepalives and upserts game updates. Store failures are
// logged and do not drop the connection.
func (f *SportsFeed) Handle(ctx context.Context, conn domain.FeedConn, frame []byte, receivedAt time.Time) error {
	if polymarket.IsPing(frame) {
		return conn.WriteText(ctx, polymarket.PongMessage)
	}
	game, ok := polymarket.ParseSportResult(frame, receivedAt.UnixMilli())
	if !ok {
		return nil
	}
	metrics.MessagesTotal.WithLabelValues(sportsFeedName, "sport_result").Inc()
	if err := f.store.Upsert(ctx, game); err != nil {
		f.logger.Warn("sports upsert failed",
			slog.Int64("game_id", game.GameID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	f.updates.Add(1)
	return nil
}

// Updates returns the number of games upserted.
func (f *SportsFeed) Updates() int64 { return f.updates.Load() }

var _ Handler = (*SportsFeed)(nil)
