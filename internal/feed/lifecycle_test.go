package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 60 * time.Second}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{500, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}

	small := Backoff{Base: 250 * time.Millisecond, Max: time.Second}
	for n, want := range map[int]time.Duration{1: 250 * time.Millisecond, 2: 500 * time.Millisecond, 3: time.Second, 4: time.Second} {
		if got := small.Delay(n); got != want {
			t.Errorf("small Delay(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestBackoffExhausted(t *testing.T) {
	tests := []struct {
		max, n int
		want   bool
	}{
		{0, 1, false},
		{0, 10000, false},
		{3, 3, false},
		{3, 4, true},
	}
	for _, tt := range tests {
		if got := (Backoff{MaxRetries: tt.max}).Exhausted(tt.n); got != tt.want {
			t.Errorf("Exhausted(max=%d, n=%d) = %v", tt.max, tt.n, got)
		}
	}
}

type nopHandler struct{}

func (nopHandler) Subscribe(context.Context, domain.FeedConn) error { return nil }
func (nopHandler) Handle(context.Context, domain.FeedConn, []byte, time.Time) error {
	return nil
}

func TestLifecycleRetriesExhausted(t *testing.T) {
	d := &fakeDialer{}
	l := NewLifecycle(LifecycleConfig{
		Name:    "test-exhaust",
		Backoff: Backoff{Base: time.Second, Max: 10 * time.Second, MaxRetries: 2},
	}, d, nopHandler{}, testLogger())
	var sleeps []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	err := l.Run(context.Background())
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("Run err = %v, want ErrRetriesExhausted", err)
	}
	if d.count() != 3 {
		t.Errorf("dials = %d, want 3", d.count())
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("sleeps = %v", sleeps)
	}
	if l.State() != StateStopped {
		t.Errorf("state = %v, want stopped", l.State())
	}
}

func TestLifecycleResetsBackoffOnConnect(t *testing.T) {
	d := &fakeDialer{conns: []*fakeConn{nil, nil, {}, nil}}
	l := NewLifecycle(LifecycleConfig{
		Name:    "test-reset",
		Backoff: Backoff{Base: time.Second, Max: time.Minute},
	}, d, nopHandler{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sleeps []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 4 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run err = %v, want nil on cancel", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", sleeps, want)
		}
	}
}

func TestLifecycleReadTimeoutPolicy(t *testing.T) {
	tests := []struct {
		name        string
		isFailure   bool
		wantSleeps  int
		wantHandled int
	}{
		{"timeout drops connection", true, 1, 0},
		{"timeout keeps reading", false, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{reads: []readResult{readErr(domain.ErrReadTimeout), frameOf("x")}, block: true}
			d := &fakeDialer{conns: []*fakeConn{conn}}
			h := &countingHandler{}
			l := NewLifecycle(LifecycleConfig{
				Name:             "test-timeout",
				Backoff:          Backoff{Base: time.Millisecond, Max: time.Millisecond},
				ReadTimeout:      time.Millisecond,
				TimeoutIsFailure: tt.isFailure,
			}, d, h, testLogger())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sleeps := 0
			l.sleep = func(ctx context.Context, _ time.Duration) error {
				sleeps++
				cancel()
				return ctx.Err()
			}
			h.onHandle = cancel

			if err := l.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if sleeps != tt.wantSleeps || h.handled != tt.wantHandled {
				t.Errorf("sleeps=%d handled=%d, want %d %d", sleeps, h.handled, tt.wantSleeps, tt.wantHandled)
			}
			if !conn.closed {
				t.Error("connection not closed")
			}
		})
	}
}

type countingHandler struct {
	handled  int
	onHandle func()
}

func (h *countingHandler) Subscribe(context.Context, domain.FeedConn) error { return nil }
func (h *countingHandler) Handle(context.Context, domain.FeedConn, []byte, time.Time) error {
	h.handled++
	if h.onHandle != nil {
		h.onHandle()
	}
	return nil
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateSubscribed:   "subscribed",
		StateStreaming:    "streaming",
		StateStopped:      "stopped",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
