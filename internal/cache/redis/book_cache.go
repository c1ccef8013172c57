package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// BookCache implements domain.BookCache.
//
// Key schema:
//
//	book:{market}:{asset}      - JSON encoded domain.BookSummary
//	book:{market}:{asset}:bbo  - hash with "bid", "ask", "mid" and "ts"
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache. Entries expire after ttl; zero keeps
// them forever.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(key domain.BookKey) string    { return "book:" + key.MarketID + ":" + key.AssetID }
func bookBBOKey(key domain.BookKey) string { return bookKey(key) + ":bbo" }

// SetSummary atomically replaces the summary and top-of-book hash.
func (bc *BookCache) SetSummary(ctx context.Context, s domain.BookSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal book summary %s: %w", s.Key, err)
	}

	pipe := bc.rdb.TxPipeline()
	pipe.Set(ctx, bookKey(s.Key), data, bc.ttl)
	bbo := bookBBOKey(s.Key)
	pipe.Del(ctx, bbo)
	pipe.HSet(ctx, bbo, bboFields(s))
	if bc.ttl > 0 {
		pipe.Expire(ctx, bbo, bc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book summary %s: %w", s.Key, err)
	}
	return nil
}

func bboFields(s domain.BookSummary) map[string]any {
	fields := map[string]any{"ts": strconv.FormatInt(s.UpdatedAt, 10)}
	put := func(name string, v *float64) {
		if v != nil {
			fields[name] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}
	put("bid", s.BestBid)
	put("ask", s.BestAsk)
	put("mid", s.Mid)
	return fields
}

// GetSummary returns the cached summary for key, or domain.ErrNotFound.
func (bc *BookCache) GetSummary(ctx context.Context, key domain.BookKey) (domain.BookSummary, error) {
	data, err := bc.rdb.Get(ctx, bookKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookSummary{}, domain.ErrNotFound
		}
		return domain.BookSummary{}, fmt.Errorf("redis: get book summary %s: %w", key, err)
	}
	var s domain.BookSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.BookSummary{}, fmt.Errorf("redis: decode book summary %s: %w", key, err)
	}
	return s, nil
}

var _ domain.BookCache = (*BookCache)(nil)
