package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/predexchange/internal/aggregator"
	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/metrics"
	"github.com/alanyoungcy/predexchange/internal/platform/polymarket"
)

const (
	marketFeedName = "market"
	finalFlushWait = 15 * time.Second
)

// MarketFeedConfig configures the primary market-data feed.
type MarketFeedConfig struct {
	URL         string
	Backoff     Backoff
	ReadTimeout time.Duration
	BatchSize   int
}

// MarketFeed streams the Polymarket market channel for a fixed set of
// assets, writes every message to the event log and, when an aggregator is
// attached, keeps live books up to date.
type MarketFeed struct {
	lifecycle *Lifecycle
	batcher   *Batcher
	assetIDs  []string

	// mu guards agg: the feed goroutine writes, publishers and HTTP
	// handlers read copies.
	mu  sync.Mutex
	agg *aggregator.Aggregator

	messages   atomic.Int64
	lastIngest atomic.Int64
	logger     *slog.Logger
}

// NewMarketFeed wires a market feed. agg may be nil.
func NewMarketFeed(cfg MarketFeedConfig, dialer domain.FeedDialer, log domain.EventLog, agg *aggregator.Aggregator, logger *slog.Logger) *MarketFeed {
	f := &MarketFeed{
		batcher: NewBatcher(log, cfg.BatchSize, logger),
		agg:     agg,
		logger:  logger.With(slog.String("component", "market_feed")),
	}
	f.lifecycle = NewLifecycle(LifecycleConfig{
		Name:             marketFeedName,
		URL:              cfg.URL,
		Backoff:          cfg.Backoff,
		ReadTimeout:      cfg.ReadTimeout,
		TimeoutIsFailure: true,
	}, dialer, f, logger)
	return f
}

// Run streams until ctx is cancelled or retries are exhausted, then flushes
// the buffered records.
func (f *MarketFeed) Run(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return fmt.Errorf("feed: market: %w", domain.ErrNoTrackedAssets)
	}
	f.assetIDs = append([]string(nil), assetIDs...)
	f.logger.Info("market feed starting", slog.Int("assets", len(assetIDs)))

	runErr := f.lifecycle.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushWait)
	defer cancel()
	if err := f.batcher.Close(flushCtx); err != nil {
		return errors.Join(runErr, err)
	}
	f.logger.Info("market feed stopped",
		slog.Int64("messages", f.messages.Load()),
		slog.Int64("flushed", f.batcher.Flushed()),
	)
	return runErr
}

// Subscribe sends the subscription for every tracked asset. Subscription
// state is rebuilt from scratch on every connect.
func (f *MarketFeed) Subscribe(ctx context.Context, conn domain.FeedConn) error {
	msg, err := polymarket.SubscribeMessage(f.assetIDs)
	if err != nil {
		return err
	}
	if err := conn.WriteText(ctx, msg); err != nil {
		return err
	}
	f.logger.Info("market feed subscribed", slog.Int("assets", len(f.assetIDs)))
	return nil
}

// Handle stamps the frame with its receipt time, feeds each message to the
// live books and buffers it for the event log.
func (f *MarketFeed) Handle(ctx context.Context, _ domain.FeedConn, frame []byte, receivedAt time.Time) error {
	ingestTS := receivedAt.UnixMilli()
	msgs := polymarket.SplitFrame(frame)
	if len(msgs) == 0 {
		metrics.MalformedTotal.WithLabelValues(marketFeedName).Inc()
		f.logger.Debug("dropping undecodable frame", slog.Int("len", len(frame)))
		return nil
	}
	for _, raw := range msgs {
		m, err := polymarket.DecodeMessage(raw)
		if err != nil {
			// The record is still logged under its envelope; only the
			// live books skip it.
			metrics.MalformedTotal.WithLabelValues(marketFeedName).Inc()
			f.logger.Debug("message body undecodable, logging envelope only", slog.String("error", err.Error()))
			m = polymarket.DecodeEnvelope(raw)
		} else if f.agg != nil {
			events := polymarket.Normalize(m, ingestTS)
			f.mu.Lock()
			f.agg.DispatchAll(events)
			f.mu.Unlock()
		}
		f.messages.Add(1)
		f.lastIngest.Store(ingestTS)
		eventType := ""
		if m != nil {
			eventType = string(m.EventType)
		}
		metrics.MessagesTotal.WithLabelValues(marketFeedName, eventTypeLabel(eventType)).Inc()
		f.batcher.Add(ctx, polymarket.BuildRawEvent(raw, m, ingestTS))
	}
	return nil
}

// eventTypeLabel bounds label cardinality to the known kinds.
func eventTypeLabel(t string) string {
	switch domain.EventKind(t) {
	case domain.EventBook, domain.EventPriceChange, domain.EventTrade:
		return t
	default:
		return "other"
	}
}

// Summaries returns top-n summaries of the live books, stamped with the last
// ingest time. Empty when no aggregator is attached.
func (f *MarketFeed) Summaries(n int) []domain.BookSummary {
	if f.agg == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agg.Summaries(n, f.lastIngest.Load())
}

// Books returns a point-in-time copy of the live registry.
func (f *MarketFeed) Books() map[domain.BookKey]domain.MarketState {
	if f.agg == nil {
		return map[domain.BookKey]domain.MarketState{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agg.All()
}

// Messages returns the number of messages received.
func (f *MarketFeed) Messages() int64 { return f.messages.Load() }

var _ Handler = (*MarketFeed)(nil)
