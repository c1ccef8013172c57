// Package feed runs venue feed connections: connect, subscribe, stream,
// batch to the event log, and reconnect with exponential backoff.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/metrics"
)

// State is the connection lifecycle state of one feed.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Backoff is the reconnect policy. MaxRetries 0 retries forever.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

// Delay returns the wait before the retry that follows the n-th consecutive
// failure: min(Base * 2^(n-1), Max).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := b.Base
	for i := 1; i < n; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Exhausted reports whether n consecutive failures exceed MaxRetries.
func (b Backoff) Exhausted(n int) bool {
	return b.MaxRetries > 0 && n > b.MaxRetries
}

// Handler supplies the per-feed behavior of a Lifecycle.
type Handler interface {
	// Subscribe runs once after every successful connect.
	Subscribe(ctx context.Context, conn domain.FeedConn) error
	// Handle processes one inbound frame. A returned error drops the
	// connection and triggers a reconnect.
	Handle(ctx context.Context, conn domain.FeedConn, frame []byte, receivedAt time.Time) error
}

// Lifecycle drives one feed through Disconnected, Connecting, Subscribed
// and Streaming until ctx is cancelled or retries run out.
type Lifecycle struct {
	name    string
	url     string
	dialer  domain.FeedDialer
	handler Handler
	backoff Backoff

	// readTimeout bounds each receive. When timeoutIsFailure is false a
	// timeout just keeps reading.
	readTimeout      time.Duration
	timeoutIsFailure bool

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger

	state    atomic.Int32
	failures atomic.Int64
}

// LifecycleConfig configures a Lifecycle.
type LifecycleConfig struct {
	Name             string
	URL              string
	Backoff          Backoff
	ReadTimeout      time.Duration
	TimeoutIsFailure bool
}

// NewLifecycle returns a Lifecycle in StateDisconnected.
func NewLifecycle(cfg LifecycleConfig, dialer domain.FeedDialer, handler Handler, logger *slog.Logger) *Lifecycle {
	l := &Lifecycle{
		name:             cfg.Name,
		url:              cfg.URL,
		dialer:           dialer,
		handler:          handler,
		backoff:          cfg.Backoff,
		readTimeout:      cfg.ReadTimeout,
		timeoutIsFailure: cfg.TimeoutIsFailure,
		now:              time.Now,
		sleep:            sleepCtx,
		logger:           logger.With(slog.String("component", "feed"), slog.String("feed", cfg.Name)),
	}
	l.setState(StateDisconnected)
	return l
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State { return State(l.state.Load()) }

// Failures returns the current count of consecutive transport failures.
func (l *Lifecycle) Failures() int64 { return l.failures.Load() }

func (l *Lifecycle) setState(s State) {
	l.state.Store(int32(s))
	metrics.FeedState.WithLabelValues(l.name).Set(float64(s))
}

// Run blocks until ctx is cancelled (returning nil) or the retry ceiling is
// exceeded (returning domain.ErrRetriesExhausted).
func (l *Lifecycle) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := l.connectAndStream(ctx, &failures)
		if ctx.Err() != nil {
			l.logger.Info("feed stopped")
			return nil
		}
		l.setState(StateDisconnected)

		failures++
		l.failures.Store(int64(failures))
		metrics.ReconnectsTotal.WithLabelValues(l.name).Inc()
		if l.backoff.Exhausted(failures) {
			l.logger.Error("reconnect retries exhausted",
				slog.Int("failures", failures),
				slog.String("error", errString(err)),
			)
			return fmt.Errorf("feed %s: %w: %w", l.name, domain.ErrRetriesExhausted, err)
		}

		delay := l.backoff.Delay(failures)
		l.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Int("failures", failures),
			slog.Duration("delay", delay),
		)
		if err := l.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (l *Lifecycle) connectAndStream(ctx context.Context, failures *int) error {
	l.setState(StateConnecting)
	conn, err := l.dialer.Dial(ctx, l.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	*failures = 0
	l.failures.Store(0)
	l.logger.Info("feed connected", slog.String("url", l.url))

	if err := l.handler.Subscribe(ctx, conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	l.setState(StateSubscribed)
	l.setState(StateStreaming)

	for {
		frame, err := conn.Read(ctx, l.readTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrReadTimeout) && !l.timeoutIsFailure && ctx.Err() == nil {
				continue
			}
			return err
		}
		if err := l.handler.Handle(ctx, conn, frame, l.now()); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
