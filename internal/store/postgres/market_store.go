package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool, now: time.Now}
}

const upsertMarketQuery = `
	INSERT INTO markets (
		market_id, venue, condition_id, title, category, slug,
		volume_24h, liquidity, active, outcomes, last_updated
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (market_id) DO UPDATE SET
		venue        = EXCLUDED.venue,
		condition_id = EXCLUDED.condition_id,
		title        = EXCLUDED.title,
		category     = EXCLUDED.category,
		slug         = EXCLUDED.slug,
		volume_24h   = EXCLUDED.volume_24h,
		liquidity    = EXCLUDED.liquidity,
		active       = EXCLUDED.active,
		outcomes     = EXCLUDED.outcomes,
		last_updated = EXCLUDED.last_updated`

// UpsertBatch inserts or updates markets in a single batch.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		outcomes, err := json.Marshal(m.Outcomes)
		if err != nil {
			return fmt.Errorf("postgres: marshal outcomes for %s: %w", m.ID, err)
		}
		updated := m.UpdatedAt
		if updated.IsZero() {
			updated = s.now()
		}
		batch.Queue(upsertMarketQuery,
			m.ID, m.Venue, m.ConditionID, m.Question, m.Category, m.Slug,
			m.Volume24h, m.Liquidity, m.Active, string(outcomes), updated.UnixMilli(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

// ReplaceTracked makes markets the tracked set, in order. Markets already
// pinned keep their pinned flag.
func (s *MarketStore) ReplaceTracked(ctx context.Context, markets []domain.Market) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace tracked: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pinned := make(map[string]bool)
	rows, err := tx.Query(ctx, `SELECT market_id FROM tracked_markets WHERE pinned`)
	if err != nil {
		return fmt.Errorf("postgres: list pinned markets: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: scan pinned market: %w", err)
		}
		pinned[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: list pinned markets: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tracked_markets`); err != nil {
		return fmt.Errorf("postgres: clear tracked markets: %w", err)
	}

	now := s.now().UnixMilli()
	batch := &pgx.Batch{}
	for i, m := range markets {
		batch.Queue(`
			INSERT INTO tracked_markets (market_id, venue, asset_ids, added_at, position, pinned)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (market_id) DO NOTHING`,
			m.ID, m.Venue, m.AssetIDs(), now, i, pinned[m.ID],
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range markets {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("postgres: insert tracked market %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: insert tracked markets: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit replace tracked: %w", err)
	}
	return nil
}

// ListTrackedMarketIDs returns tracked market ids in tracking order.
func (s *MarketStore) ListTrackedMarketIDs(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "tracked market ids",
		`SELECT market_id FROM tracked_markets ORDER BY position, added_at`)
}

// ListTrackedAssetIDs returns the distinct asset ids of all tracked
// markets, in tracking order.
func (s *MarketStore) ListTrackedAssetIDs(ctx context.Context) ([]string, error) {
	ids, err := s.listStrings(ctx, "tracked asset ids", `
		SELECT a.id
		FROM tracked_markets t, unnest(t.asset_ids) WITH ORDINALITY AS a(id, ord)
		ORDER BY t.position, t.added_at, a.ord`)
	if err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

func (s *MarketStore) listStrings(ctx context.Context, what, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", what, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", what, err)
	}
	return ids, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
