package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// SportsStore implements domain.SportsStore using PostgreSQL.
type SportsStore struct {
	pool *pgxpool.Pool
}

// NewSportsStore creates a new SportsStore backed by the given pool.
func NewSportsStore(pool *pgxpool.Pool) *SportsStore {
	return &SportsStore{pool: pool}
}

const sportsCols = `game_id, league_abbreviation, slug, home_team, away_team, status,
	score, period, elapsed, live, ended, turn, finished_timestamp, updated_at`

// Upsert stores the latest state of one game.
func (s *SportsStore) Upsert(ctx context.Context, g domain.SportsGame) error {
	const query = `
		INSERT INTO sports_games (` + sportsCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (game_id) DO UPDATE SET
			league_abbreviation = EXCLUDED.league_abbreviation,
			slug                = EXCLUDED.slug,
			home_team           = EXCLUDED.home_team,
			away_team           = EXCLUDED.away_team,
			status              = EXCLUDED.status,
			score               = EXCLUDED.score,
			period              = EXCLUDED.period,
			elapsed             = EXCLUDED.elapsed,
			live                = EXCLUDED.live,
			ended               = EXCLUDED.ended,
			turn                = EXCLUDED.turn,
			finished_timestamp  = EXCLUDED.finished_timestamp,
			updated_at          = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		g.GameID, g.LeagueAbbreviation, g.Slug, g.HomeTeam, g.AwayTeam, g.Status,
		g.Score, g.Period, g.Elapsed, g.Live, g.Ended, g.Turn, g.FinishedTimestamp, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert sports game %d: %w", g.GameID, err)
	}
	return nil
}

// List returns games, live first, then upcoming, then ended. league
// filters case-insensitively when set.
func (s *SportsStore) List(ctx context.Context, league string, limit int) ([]domain.SportsGame, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + sportsCols + ` FROM sports_games`
	args := []any{}
	if league != "" {
		query += ` WHERE lower(trim(league_abbreviation)) = lower(trim($1))`
		args = append(args, league)
	}
	query += fmt.Sprintf(` ORDER BY live DESC, ended ASC, updated_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sports games: %w", err)
	}
	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SportsGame, error) {
		var g domain.SportsGame
		err := row.Scan(
			&g.GameID, &g.LeagueAbbreviation, &g.Slug, &g.HomeTeam, &g.AwayTeam, &g.Status,
			&g.Score, &g.Period, &g.Elapsed, &g.Live, &g.Ended, &g.Turn, &g.FinishedTimestamp, &g.UpdatedAt,
		)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list sports games: %w", err)
	}
	return games, nil
}
