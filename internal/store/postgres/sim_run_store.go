package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// SimRunStore implements domain.SimRunStore using PostgreSQL.
type SimRunStore struct {
	pool *pgxpool.Pool
}

// NewSimRunStore creates a new SimRunStore backed by the given pool.
func NewSimRunStore(pool *pgxpool.Pool) *SimRunStore {
	return &SimRunStore{pool: pool}
}

// Save inserts a run result.
func (s *SimRunStore) Save(ctx context.Context, r domain.SimRun) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal sim run params: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sim_runs (
			run_id, strategy_name, market_id, asset_id, params,
			final_inventory, realized_pnl, fill_count, events_processed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.RunID, r.StrategyName, r.MarketID, r.AssetID, string(params),
		r.FinalInventory, r.RealizedPnL, r.FillCount, r.EventsProcessed, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save sim run %s: %w", r.RunID, err)
	}
	return nil
}

// Get loads a run by id.
func (s *SimRunStore) Get(ctx context.Context, runID string) (domain.SimRun, error) {
	var (
		r      domain.SimRun
		params []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT run_id, strategy_name, market_id, asset_id, params,
			final_inventory, realized_pnl, fill_count, events_processed, created_at
		FROM sim_runs WHERE run_id = $1`, runID,
	).Scan(
		&r.RunID, &r.StrategyName, &r.MarketID, &r.AssetID, &params,
		&r.FinalInventory, &r.RealizedPnL, &r.FillCount, &r.EventsProcessed, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SimRun{}, domain.ErrNotFound
		}
		return domain.SimRun{}, fmt.Errorf("postgres: get sim run %s: %w", runID, err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return domain.SimRun{}, fmt.Errorf("postgres: decode sim run params %s: %w", runID, err)
		}
	}
	return r, nil
}
