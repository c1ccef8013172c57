// Package config defines the predex configuration: TOML file over built-in
// defaults, then PREDEX_* environment overrides, then validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Ingestion  IngestionConfig  `toml:"ingestion"`
	Markets    MarketsConfig    `toml:"markets"`
	Replay     ReplayConfig     `toml:"replay"`
	Simulation SimulationConfig `toml:"simulation"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
}

// PolymarketConfig holds venue endpoints.
type PolymarketConfig struct {
	WSURL       string `toml:"ws_url"`
	SportsWSURL string `toml:"sports_ws_url"`
	GammaHost   string `toml:"gamma_host"`
}

// IngestionConfig controls the live feeds.
type IngestionConfig struct {
	EventBatchSize           int      `toml:"event_batch_size"`
	ReconnectBaseDelay       duration `toml:"reconnect_base_delay"`
	ReconnectMaxDelay        duration `toml:"reconnect_max_delay"`
	ReconnectMaxRetries      int      `toml:"reconnect_max_retries"`
	ReadTimeout              duration `toml:"read_timeout"`
	PingPeriod               duration `toml:"ping_period"`
	SportsEnabled            bool     `toml:"sports_enabled"`
	SportsReadTimeout        duration `toml:"sports_read_timeout"`
	BookImpl                 string   `toml:"book_impl"`
	PublishInterval          duration `toml:"publish_interval"`
	PublishDepth             int      `toml:"publish_depth"`
	LockTTL                  duration `toml:"lock_ttl"`
	DiscoveryRefreshInterval duration `toml:"discovery_refresh_interval"`
}

// MarketsConfig controls discovery and tracking.
type MarketsConfig struct {
	TrackCount        int      `toml:"track_count"`
	MinVolume24h      float64  `toml:"min_volume_24h"`
	MinLiquidity      float64  `toml:"min_liquidity"`
	FetchLimit        int      `toml:"fetch_limit"`
	Pinned            []string `toml:"pinned"`
	CategoryAllowlist []string `toml:"category_allowlist"`
	CategoryDenylist  []string `toml:"category_denylist"`
}

// ReplayConfig selects the replay window and projection.
type ReplayConfig struct {
	MarketID       string  `toml:"market_id"`
	AssetID        string  `toml:"asset_id"`
	StartTS        int64   `toml:"start_ts"`
	EndTS          int64   `toml:"end_ts"`
	BucketMs       int64   `toml:"bucket_ms"`
	DepthN         int     `toml:"depth_n"`
	TickSize       float64 `toml:"tick_size"`
	TicksAroundMid int     `toml:"ticks_around_mid"`
	Output         string  `toml:"output"`
	Source         string  `toml:"source"`
}

// SimulationConfig holds backtest parameters.
type SimulationConfig struct {
	Strategy      string  `toml:"strategy"`
	FillLatencyMs int64   `toml:"fill_latency_ms"`
	SpreadFrac    float64 `toml:"spread_frac"`
	SkewPerUnit   float64 `toml:"skew_per_unit"`
	QuoteSize     float64 `toml:"quote_size"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BookTTL    duration `toml:"book_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig controls background jobs in ingest mode.
type PipelineConfig struct {
	ArchiveEnabled       bool   `toml:"archive_enabled"`
	ArchiveCron          string `toml:"archive_cron"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	StreamInterval  duration `toml:"stream_interval"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() Config {
	return Config{
		Mode:     "ingest",
		LogLevel: "info",
		Polymarket: PolymarketConfig{
			WSURL:       "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			SportsWSURL: "wss://sports-api.polymarket.com/ws",
			GammaHost:   "https://gamma-api.polymarket.com",
		},
		Ingestion: IngestionConfig{
			EventBatchSize:     100,
			ReconnectBaseDelay: duration{time.Second},
			ReconnectMaxDelay:  duration{60 * time.Second},
			ReadTimeout:        duration{30 * time.Second},
			PingPeriod:         duration{10 * time.Second},
			SportsEnabled:      true,
			SportsReadTimeout:  duration{12 * time.Second},
			BookImpl:           "map",
			PublishInterval:    duration{time.Second},
			PublishDepth:       10,
			LockTTL:            duration{30 * time.Second},
		},
		Markets: MarketsConfig{
			TrackCount: 10,
			FetchLimit: 200,
		},
		Replay: ReplayConfig{
			BucketMs:       1000,
			DepthN:         5,
			TickSize:       0.01,
			TicksAroundMid: 50,
			Output:         "mid",
			Source:         "postgres",
		},
		Simulation: SimulationConfig{
			Strategy:    "mm_inventory",
			SpreadFrac:  0.01,
			SkewPerUnit: 0.001,
			QuoteSize:   10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predex",
			User:          "predex",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			BookTTL:    duration{5 * time.Minute},
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Pipeline: PipelineConfig{
			ArchiveCron:          "0 3 * * *",
			ArchiveRetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			StreamInterval:  duration{time.Second},
			ShutdownTimeout: duration{10 * time.Second},
		},
	}
}

var validModes = map[string]bool{
	"ingest":   true,
	"discover": true,
	"replay":   true,
	"simulate": true,
	"stats":    true,
	"export":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validOutputs = map[string]bool{
	"mid":     true,
	"series":  true,
	"heatmap": true,
}

// Validate checks Config and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: ingest, discover, replay, simulate, stats, export)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	ing := c.Ingestion
	if ing.EventBatchSize < 1 {
		add("ingestion: event_batch_size must be >= 1")
	}
	if ing.ReconnectBaseDelay.Duration <= 0 {
		add("ingestion: reconnect_base_delay must be > 0")
	}
	if ing.ReconnectMaxDelay.Duration < ing.ReconnectBaseDelay.Duration {
		add("ingestion: reconnect_max_delay must be >= reconnect_base_delay")
	}
	if ing.ReconnectMaxRetries < 0 {
		add("ingestion: reconnect_max_retries must be >= 0 (0 = unlimited)")
	}
	if ing.ReadTimeout.Duration <= 0 {
		add("ingestion: read_timeout must be > 0")
	}
	if ing.BookImpl != "" && ing.BookImpl != "map" && ing.BookImpl != "btree" {
		add("ingestion: book_impl must be map or btree, got %q", ing.BookImpl)
	}
	if ing.PublishInterval.Duration <= 0 {
		add("ingestion: publish_interval must be > 0")
	}
	if ing.LockTTL.Duration < 3*time.Second {
		add("ingestion: lock_ttl must be >= 3s")
	}

	if mode == "ingest" || mode == "discover" {
		if c.Polymarket.WSURL == "" {
			add("polymarket: ws_url must not be empty")
		}
		if c.Polymarket.GammaHost == "" {
			add("polymarket: gamma_host must not be empty")
		}
	}

	if c.Markets.TrackCount < 1 {
		add("markets: track_count must be >= 1")
	}
	if c.Markets.FetchLimit < 1 {
		add("markets: fetch_limit must be >= 1")
	}

	if mode == "replay" || mode == "simulate" {
		if c.Replay.MarketID == "" {
			add("replay: market_id is required for mode %s", mode)
		}
		if c.Replay.AssetID == "" {
			add("replay: asset_id is required for mode %s", mode)
		}
		if !validOutputs[c.Replay.Output] {
			add("replay: output must be mid, series or heatmap, got %q", c.Replay.Output)
		}
		if c.Replay.Source != "postgres" && !c.S3.Enabled {
			add("replay: source %q needs s3.enabled", c.Replay.Source)
		}
	}
	if c.Replay.StartTS > 0 && c.Replay.EndTS > 0 && c.Replay.EndTS < c.Replay.StartTS {
		add("replay: end_ts must be >= start_ts")
	}

	if c.Simulation.FillLatencyMs < 0 {
		add("simulation: fill_latency_ms must be >= 0")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
		}
		if c.Postgres.Database == "" {
			add("postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		add("postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		add("postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		add("s3: bucket must not be empty")
	}
	if mode == "export" && !c.S3.Enabled {
		add("s3: enabled must be true for mode export")
	}

	if c.Pipeline.ArchiveEnabled {
		if !c.S3.Enabled {
			add("pipeline: archive_enabled needs s3.enabled")
		}
		if len(strings.Fields(c.Pipeline.ArchiveCron)) != 5 {
			add("pipeline: archive_cron must have 5 fields, got %q", c.Pipeline.ArchiveCron)
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			add("pipeline: archive_retention_days must be >= 1")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
