package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/metrics"
)

// BookSource yields point-in-time book summaries.
type BookSource interface {
	Summaries(n int) []domain.BookSummary
}

// Publisher periodically pushes live mids and summaries to the caches and
// the last_mid table. Writes carry the ingest time of the data, so the
// stores can resolve races last-writer-wins.
type Publisher struct {
	source   BookSource
	mids     domain.MidCache
	books    domain.BookCache
	lastMids domain.LastMidStore
	interval time.Duration
	depth    int
	logger   *slog.Logger

	published map[domain.BookKey]domain.LastMid
}

// NewPublisher creates a Publisher. Any sink may be nil.
func NewPublisher(source BookSource, mids domain.MidCache, books domain.BookCache, lastMids domain.LastMidStore, interval time.Duration, depth int, logger *slog.Logger) *Publisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Publisher{
		source:    source,
		mids:      mids,
		books:     books,
		lastMids:  lastMids,
		interval:  interval,
		depth:     depth,
		logger:    logger.With(slog.String("component", "publisher")),
		published: make(map[domain.BookKey]domain.LastMid),
	}
}

// Run publishes on every tick until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.PublishOnce(ctx)
		}
	}
}

// PublishOnce pushes the current summaries. Sink errors are logged.
func (p *Publisher) PublishOnce(ctx context.Context) {
	summaries := p.source.Summaries(p.depth)

	inconsistent := 0
	var changed []domain.LastMid
	for _, s := range summaries {
		if s.Inconsistent {
			inconsistent++
		}
		if p.books != nil {
			if err := p.books.SetSummary(ctx, s); err != nil {
				p.logger.Warn("book summary publish failed", slog.String("key", s.Key.String()), slog.String("error", err.Error()))
			}
		}
		if s.Mid == nil {
			continue
		}
		m := domain.LastMid{Key: s.Key, Mid: *s.Mid, UpdatedAt: s.UpdatedAt}
		if prev, ok := p.published[s.Key]; ok && prev.Mid == m.Mid {
			continue
		}
		changed = append(changed, m)
	}
	metrics.InconsistentBooks.Set(float64(inconsistent))

	for _, m := range changed {
		p.published[m.Key] = m
		if p.mids == nil {
			continue
		}
		if _, err := p.mids.SetMid(ctx, m); err != nil {
			p.logger.Warn("mid cache publish failed", slog.String("key", m.Key.String()), slog.String("error", err.Error()))
		}
	}
	if p.lastMids != nil && len(changed) > 0 {
		if err := p.lastMids.UpsertMids(ctx, changed); err != nil {
			p.logger.Warn("last mid upsert failed", slog.Int("count", len(changed)), slog.String("error", err.Error()))
		}
	}
}
