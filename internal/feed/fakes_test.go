package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type readResult struct {
	data []byte
	err  error
}

func frameOf(s string) readResult  { return readResult{data: []byte(s)} }
func readErr(err error) readResult { return readResult{err: err} }

// fakeConn replays scripted reads, then either blocks until ctx is done or
// reports a disconnect.
type fakeConn struct {
	mu     sync.Mutex
	reads  []readResult
	writes []string
	closed bool
	block  bool
}

func (c *fakeConn) Read(ctx context.Context, _ time.Duration) ([]byte, error) {
	c.mu.Lock()
	if len(c.reads) > 0 {
		r := c.reads[0]
		c.reads = c.reads[1:]
		c.mu.Unlock()
		return r.data, r.err
	}
	c.mu.Unlock()
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, domain.ErrWSDisconnect
}

func (c *fakeConn) WriteText(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

var errDial = errors.New("dial refused")

// fakeDialer hands out scripted connections; a nil entry or an exhausted
// script fails the dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(context.Context, string) (domain.FeedConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errDial
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	if c == nil {
		return nil, errDial
	}
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// memLog is an in-memory EventLog that can be told to fail appends, or to
// refuse any batch holding a record reject matches.
type memLog struct {
	mu      sync.Mutex
	events  []domain.RawEvent
	appends int
	failN   int
	reject  func(domain.RawEvent) bool
}

func (l *memLog) Append(_ context.Context, events []domain.RawEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appends++
	if l.failN != 0 {
		if l.failN > 0 {
			l.failN--
		}
		return errors.New("storage unavailable")
	}
	if l.reject != nil {
		for _, ev := range events {
			if l.reject(ev) {
				return errors.New("invalid input syntax for type json")
			}
		}
	}
	for _, ev := range events {
		ev.ID = int64(len(l.events) + 1)
		l.events = append(l.events, ev)
	}
	return nil
}

func (l *memLog) Scan(_ context.Context, f domain.EventFilter, fn func(domain.RawEvent) error) error {
	l.mu.Lock()
	events := append([]domain.RawEvent(nil), l.events...)
	l.mu.Unlock()
	for _, ev := range events {
		if f.Matches(ev) {
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *memLog) Stats(context.Context) (domain.LogStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.LogStats{TotalEvents: int64(len(l.events))}, nil
}

func (l *memLog) FirstIngestTS(context.Context) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return 0, false, nil
	}
	return l.events[0].IngestTS, true, nil
}

func (l *memLog) setFailN(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failN = n
}

func (l *memLog) snapshot() []domain.RawEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.RawEvent(nil), l.events...)
}

type memSports struct {
	mu    sync.Mutex
	games map[int64]domain.SportsGame
	seen  chan struct{}
}

func (s *memSports) Upsert(_ context.Context, g domain.SportsGame) error {
	s.mu.Lock()
	if s.games == nil {
		s.games = make(map[int64]domain.SportsGame)
	}
	s.games[g.GameID] = g
	s.mu.Unlock()
	if s.seen != nil {
		select {
		case s.seen <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *memSports) List(context.Context, string, int) ([]domain.SportsGame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SportsGame, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	return out, nil
}
