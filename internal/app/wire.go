package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/predexchange/internal/blob/s3"
	"github.com/alanyoungcy/predexchange/internal/cache/redis"
	"github.com/alanyoungcy/predexchange/internal/config"
	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/server/handler"
	"github.com/alanyoungcy/predexchange/internal/store/postgres"
)

// Dependencies bundles the storage and cache implementations a mode uses.
// Fields stay nil when the mode or the configuration does not need them.
type Dependencies struct {
	EventLog domain.EventLog
	Markets  domain.MarketStore
	Sports   domain.SportsStore
	SimRuns  domain.SimRunStore
	LastMids domain.LastMidStore

	MidCache  domain.MidCache
	BookCache domain.BookCache
	Locks     domain.LockManager

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Checks probe each connected backend for /api/health.
	Checks map[string]handler.Check
}

func needsPostgres(cfg *config.Config) bool {
	switch cfg.Mode {
	case "replay":
		return cfg.Replay.Source == "postgres"
	default:
		return true
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Redis.Enabled && cfg.Mode == "ingest"
}

func needsS3(cfg *config.Config) bool {
	if !cfg.S3.Enabled {
		return false
	}
	switch cfg.Mode {
	case "ingest":
		return cfg.Pipeline.ArchiveEnabled
	case "export":
		return true
	case "replay", "simulate":
		return cfg.Replay.Source != "postgres"
	default:
		return false
	}
}

// Wire connects the backends the configured mode needs and returns them
// with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	deps := &Dependencies{Checks: map[string]handler.Check{}}

	if needsPostgres(cfg) {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pg.Pool()
		deps.EventLog = postgres.NewEventLogStore(pool)
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Sports = postgres.NewSportsStore(pool)
		deps.SimRuns = postgres.NewSimRunStore(pool)
		deps.LastMids = postgres.NewLastMidStore(pool)
		deps.Checks["postgres"] = pg.Ping
	}

	if needsRedis(cfg) {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.MidCache = redis.NewMidCache(rc)
		deps.BookCache = redis.NewBookCache(rc, cfg.Redis.BookTTL.Duration)
		deps.Locks = redis.NewLockManager(rc)
		deps.Checks["redis"] = rc.Ping
	}

	if needsS3(cfg) {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(sc)
		deps.BlobReader = s3blob.NewReader(sc)
		if deps.EventLog != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, deps.EventLog, logger)
		}
		deps.Checks["s3"] = sc.Health
	}

	return deps, cleanup, nil
}
