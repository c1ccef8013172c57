package feed

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// Session is the handle for one ingestion run. It owns the market feed and,
// optionally, the sports feed and publisher, and reports their status to
// whoever composes it.
type Session struct {
	id        string
	market    *MarketFeed
	sports    *SportsFeed
	publisher *Publisher
	now       func() time.Time
	logger    *slog.Logger

	running atomic.Bool
	started atomic.Int64
}

// NewSession creates a Session. sports and publisher may be nil.
func NewSession(market *MarketFeed, sports *SportsFeed, publisher *Publisher, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		market:    market,
		sports:    sports,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "session"), slog.String("session_id", id)),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Run runs every feed concurrently. The market feed bounds the session: when
// it returns, the other feeds are stopped.
func (s *Session) Run(ctx context.Context, assetIDs []string) error {
	s.started.Store(s.now().UnixMilli())
	s.running.Store(true)
	defer s.running.Store(false)

	s.logger.Info("ingestion session starting", slog.Int("assets", len(assetIDs)))

	g, gctx := errgroup.WithContext(ctx)
	peersCtx, stopPeers := context.WithCancel(gctx)
	defer stopPeers()

	g.Go(func() error {
		defer stopPeers()
		return s.market.Run(gctx, assetIDs)
	})
	if s.sports != nil {
		g.Go(func() error {
			if err := s.sports.Run(peersCtx); err != nil {
				s.logger.Error("sports feed stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	if s.publisher != nil {
		g.Go(func() error {
			err := s.publisher.Run(peersCtx)
			s.publisher.PublishOnce(context.WithoutCancel(ctx))
			return err
		})
	}

	err := g.Wait()
	s.logger.Info("ingestion session stopped")
	return err
}

// FeedStatus is the lifecycle status of one feed.
type FeedStatus struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Failures int64  `json:"failures"`
}

// Status is a point-in-time report of the session.
type Status struct {
	SessionID     string       `json:"session_id"`
	Running       bool         `json:"running"`
	Feeds         []FeedStatus `json:"feeds"`
	MsgCount      int64        `json:"msg_count"`
	ElapsedSec    float64      `json:"elapsed_sec"`
	MsgsPerSec    float64      `json:"msgs_per_sec"`
	Flushed       int64        `json:"flushed"`
	Pending       int64        `json:"pending"`
	SportsUpdates int64        `json:"sports_updates"`
}

// Status reports message throughput and feed states.
func (s *Session) Status() Status {
	st := Status{
		SessionID: s.id,
		Running:   s.running.Load(),
		MsgCount:  s.market.Messages(),
		Flushed:   s.market.batcher.Flushed(),
		Pending:   s.market.batcher.Pending(),
		Feeds: []FeedStatus{{
			Name:     marketFeedName,
			State:    s.market.lifecycle.State(),
			Failures: s.market.lifecycle.Failures(),
		}},
	}
	if s.sports != nil {
		st.Feeds = append(st.Feeds, FeedStatus{
			Name:     sportsFeedName,
			State:    s.sports.lifecycle.State(),
			Failures: s.sports.lifecycle.Failures(),
		})
		st.SportsUpdates = s.sports.Updates()
	}
	if started := s.started.Load(); started > 0 {
		elapsed := float64(s.now().UnixMilli()-started) / 1000
		st.ElapsedSec = math.Round(elapsed*10) / 10
		if elapsed > 0 {
			st.MsgsPerSec = math.Round(float64(st.MsgCount)/elapsed*100) / 100
		}
	}
	return st
}

// Books returns top-n summaries of the live books.
func (s *Session) Books(n int) []domain.BookSummary {
	return s.market.Summaries(n)
}
