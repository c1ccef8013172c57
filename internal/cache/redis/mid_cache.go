package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

//go:embed scripts/mid_lww.lua
var midLWWLua string

// MidCache implements domain.MidCache. Each book's mid lives in a hash at
// "mid:{market}:{asset}" with fields "mid" and "ts"; writes go through a
// Lua compare so an older timestamp never overwrites a newer one.
type MidCache struct {
	rdb    *redis.Client
	setLWW *redis.Script
}

// NewMidCache creates a MidCache backed by the given Client.
func NewMidCache(c *Client) *MidCache {
	return &MidCache{
		rdb:    c.Underlying(),
		setLWW: redis.NewScript(midLWWLua),
	}
}

func midKey(key domain.BookKey) string {
	return "mid:" + key.MarketID + ":" + key.AssetID
}

// SetMid stores m unless a newer mid is already cached. It reports whether
// the write was applied.
func (mc *MidCache) SetMid(ctx context.Context, m domain.LastMid) (bool, error) {
	n, err := mc.setLWW.Run(ctx, mc.rdb, []string{midKey(m.Key)},
		strconv.FormatFloat(m.Mid, 'f', -1, 64),
		strconv.FormatInt(m.UpdatedAt, 10),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: set mid %s: %w", m.Key, err)
	}
	return n == 1, nil
}

// GetMid returns the cached mid for key, or domain.ErrNotFound.
func (mc *MidCache) GetMid(ctx context.Context, key domain.BookKey) (domain.LastMid, error) {
	vals, err := mc.rdb.HGetAll(ctx, midKey(key)).Result()
	if err != nil {
		return domain.LastMid{}, fmt.Errorf("redis: get mid %s: %w", key, err)
	}
	m, err := parseMid(key, vals)
	if err != nil {
		return domain.LastMid{}, fmt.Errorf("redis: get mid %s: %w", key, err)
	}
	return m, nil
}

func parseMid(key domain.BookKey, vals map[string]string) (domain.LastMid, error) {
	midStr, ok1 := vals["mid"]
	tsStr, ok2 := vals["ts"]
	if !ok1 || !ok2 {
		return domain.LastMid{}, domain.ErrNotFound
	}
	mid, err := strconv.ParseFloat(midStr, 64)
	if err != nil {
		return domain.LastMid{}, fmt.Errorf("parse mid: %w", err)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.LastMid{}, fmt.Errorf("parse ts: %w", err)
	}
	return domain.LastMid{Key: key, Mid: mid, UpdatedAt: ts}, nil
}

var _ domain.MidCache = (*MidCache)(nil)
