package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// upsertLastMidQuery only overwrites a stored mid with one at least as new.
const upsertLastMidQuery = `
	INSERT INTO last_mid (market_id, asset_id, mid, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (market_id, asset_id) DO UPDATE SET
		mid        = EXCLUDED.mid,
		updated_at = EXCLUDED.updated_at
	WHERE EXCLUDED.updated_at >= last_mid.updated_at`

// LastMidStore implements domain.LastMidStore using PostgreSQL.
type LastMidStore struct {
	pool *pgxpool.Pool
}

// NewLastMidStore creates a new LastMidStore backed by the given pool.
func NewLastMidStore(pool *pgxpool.Pool) *LastMidStore {
	return &LastMidStore{pool: pool}
}

// UpsertMids writes mids with last-writer-wins by UpdatedAt.
func (s *LastMidStore) UpsertMids(ctx context.Context, mids []domain.LastMid) error {
	if len(mids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range mids {
		batch.Queue(upsertLastMidQuery, m.Key.MarketID, m.Key.AssetID, m.Mid, m.UpdatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range mids {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert last mid %s: %w", mids[i].Key, err)
		}
	}
	return nil
}

// GetMid returns the last known mid for key.
func (s *LastMidStore) GetMid(ctx context.Context, key domain.BookKey) (domain.LastMid, error) {
	m := domain.LastMid{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT mid, updated_at FROM last_mid WHERE market_id = $1 AND asset_id = $2`,
		key.MarketID, key.AssetID,
	).Scan(&m.Mid, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LastMid{}, domain.ErrNotFound
		}
		return domain.LastMid{}, fmt.Errorf("postgres: get last mid %s: %w", key, err)
	}
	return m, nil
}
