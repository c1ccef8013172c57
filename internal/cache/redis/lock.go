package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

//go:embed scripts/lock.lua
var lockLua string

const releaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager with SETNX plus a token-checked
// Lua script for refresh and release, so a holder can never extend or drop
// a lock someone else now owns.
type LockManager struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:    c.Underlying(),
		script: redis.NewScript(lockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire takes the lock for ttl. It returns domain.ErrLockHeld when
// another owner holds it.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*domain.Lock, error) {
	token := uuid.NewString()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}

	var once sync.Once
	return &domain.Lock{
		Refresh: func(ctx context.Context, ttl time.Duration) error {
			n, err := lm.script.Run(ctx, lm.rdb, []string{lk}, token, strconv.FormatInt(ttl.Milliseconds(), 10)).Int64()
			if err != nil {
				return fmt.Errorf("redis: refresh lock %s: %w", key, err)
			}
			if n == 0 {
				return fmt.Errorf("redis: refresh lock %s: %w", key, domain.ErrLockHeld)
			}
			return nil
		},
		Release: func() {
			once.Do(func() {
				ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
				defer cancel()
				_ = lm.script.Run(ctx, lm.rdb, []string{lk}, token, "release").Err()
			})
		},
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
