package domain

import (
	"context"
	"time"
)

// MidCache holds the last known mid per book with last-writer-wins by
// timestamp: SetMid reports false when a newer value is already stored.
type MidCache interface {
	SetMid(ctx context.Context, m LastMid) (bool, error)
	GetMid(ctx context.Context, key BookKey) (LastMid, error)
}

// BookCache stores live book summaries for dashboards.
type BookCache interface {
	SetSummary(ctx context.Context, s BookSummary) error
	GetSummary(ctx context.Context, key BookKey) (BookSummary, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error)
}

// Lock is a held distributed lock. Refresh extends it; Release is safe to
// call more than once.
type Lock struct {
	Refresh func(ctx context.Context, ttl time.Duration) error
	Release func()
}
