package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PREDEX_"

// Load builds the Config: defaults, then the TOML file at path (skipped when
// path is empty), then a .env file if present, then PREDEX_* variables. The
// result is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return &cfg, nil
}

func env(name string) string { return EnvPrefix + name }

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, env("MODE"))
	setStr(&cfg.LogLevel, env("LOG_LEVEL"))

	// polymarket
	setStr(&cfg.Polymarket.WSURL, env("POLYMARKET_WS_URL"))
	setStr(&cfg.Polymarket.SportsWSURL, env("POLYMARKET_SPORTS_WS_URL"))
	setStr(&cfg.Polymarket.GammaHost, env("POLYMARKET_GAMMA_HOST"))

	// ingestion
	in := &cfg.Ingestion
	setInt(&in.EventBatchSize, env("INGESTION_EVENT_BATCH_SIZE"))
	setDuration(&in.ReconnectBaseDelay, env("INGESTION_RECONNECT_BASE_DELAY"))
	setDuration(&in.ReconnectMaxDelay, env("INGESTION_RECONNECT_MAX_DELAY"))
	setInt(&in.ReconnectMaxRetries, env("INGESTION_RECONNECT_MAX_RETRIES"))
	setDuration(&in.ReadTimeout, env("INGESTION_READ_TIMEOUT"))
	setDuration(&in.PingPeriod, env("INGESTION_PING_PERIOD"))
	setBool(&in.SportsEnabled, env("INGESTION_SPORTS_ENABLED"))
	setDuration(&in.SportsReadTimeout, env("INGESTION_SPORTS_READ_TIMEOUT"))
	setStr(&in.BookImpl, env("INGESTION_BOOK_IMPL"))
	setDuration(&in.PublishInterval, env("INGESTION_PUBLISH_INTERVAL"))
	setInt(&in.PublishDepth, env("INGESTION_PUBLISH_DEPTH"))
	setDuration(&in.LockTTL, env("INGESTION_LOCK_TTL"))
	setDuration(&in.DiscoveryRefreshInterval, env("INGESTION_DISCOVERY_REFRESH_INTERVAL"))

	// markets
	mk := &cfg.Markets
	setInt(&mk.TrackCount, env("MARKETS_TRACK_COUNT"))
	setFloat64(&mk.MinVolume24h, env("MARKETS_MIN_VOLUME_24H"))
	setFloat64(&mk.MinLiquidity, env("MARKETS_MIN_LIQUIDITY"))
	setInt(&mk.FetchLimit, env("MARKETS_FETCH_LIMIT"))
	setStringSlice(&mk.Pinned, env("MARKETS_PINNED"))
	setStringSlice(&mk.CategoryAllowlist, env("MARKETS_CATEGORY_ALLOWLIST"))
	setStringSlice(&mk.CategoryDenylist, env("MARKETS_CATEGORY_DENYLIST"))

	// replay
	rp := &cfg.Replay
	setStr(&rp.MarketID, env("REPLAY_MARKET_ID"))
	setStr(&rp.AssetID, env("REPLAY_ASSET_ID"))
	setInt64(&rp.StartTS, env("REPLAY_START_TS"))
	setInt64(&rp.EndTS, env("REPLAY_END_TS"))
	setInt64(&rp.BucketMs, env("REPLAY_BUCKET_MS"))
	setInt(&rp.DepthN, env("REPLAY_DEPTH_N"))
	setFloat64(&rp.TickSize, env("REPLAY_TICK_SIZE"))
	setInt(&rp.TicksAroundMid, env("REPLAY_TICKS_AROUND_MID"))
	setStr(&rp.Output, env("REPLAY_OUTPUT"))
	setStr(&rp.Source, env("REPLAY_SOURCE"))

	// simulation
	sm := &cfg.Simulation
	setStr(&sm.Strategy, env("SIMULATION_STRATEGY"))
	setInt64(&sm.FillLatencyMs, env("SIMULATION_FILL_LATENCY_MS"))
	setFloat64(&sm.SpreadFrac, env("SIMULATION_SPREAD_FRAC"))
	setFloat64(&sm.SkewPerUnit, env("SIMULATION_SKEW_PER_UNIT"))
	setFloat64(&sm.QuoteSize, env("SIMULATION_QUOTE_SIZE"))

	// postgres
	pg := &cfg.Postgres
	setStr(&pg.DSN, "DATABASE_URL")
	setStr(&pg.DSN, env("POSTGRES_DSN"))
	setStr(&pg.Host, env("POSTGRES_HOST"))
	setInt(&pg.Port, env("POSTGRES_PORT"))
	setStr(&pg.Database, env("POSTGRES_DATABASE"))
	setStr(&pg.User, env("POSTGRES_USER"))
	setStr(&pg.Password, env("POSTGRES_PASSWORD"))
	setStr(&pg.SSLMode, env("POSTGRES_SSL_MODE"))
	setInt(&pg.PoolMaxConns, env("POSTGRES_POOL_MAX_CONNS"))
	setInt(&pg.PoolMinConns, env("POSTGRES_POOL_MIN_CONNS"))
	setBool(&pg.RunMigrations, env("POSTGRES_RUN_MIGRATIONS"))

	// redis
	rd := &cfg.Redis
	setBool(&rd.Enabled, env("REDIS_ENABLED"))
	setStr(&rd.Addr, env("REDIS_ADDR"))
	setStr(&rd.Password, env("REDIS_PASSWORD"))
	setInt(&rd.DB, env("REDIS_DB"))
	setInt(&rd.PoolSize, env("REDIS_POOL_SIZE"))
	setInt(&rd.MaxRetries, env("REDIS_MAX_RETRIES"))
	setBool(&rd.TLSEnabled, env("REDIS_TLS_ENABLED"))
	setDuration(&rd.BookTTL, env("REDIS_BOOK_TTL"))

	// s3
	s := &cfg.S3
	setBool(&s.Enabled, env("S3_ENABLED"))
	setStr(&s.Endpoint, env("S3_ENDPOINT"))
	setStr(&s.Region, env("S3_REGION"))
	setStr(&s.Bucket, env("S3_BUCKET"))
	setStr(&s.AccessKey, env("S3_ACCESS_KEY"))
	setStr(&s.SecretKey, env("S3_SECRET_KEY"))
	setBool(&s.UseSSL, env("S3_USE_SSL"))
	setBool(&s.ForcePathStyle, env("S3_FORCE_PATH_STYLE"))

	// pipeline
	setBool(&cfg.Pipeline.ArchiveEnabled, env("PIPELINE_ARCHIVE_ENABLED"))
	setStr(&cfg.Pipeline.ArchiveCron, env("PIPELINE_ARCHIVE_CRON"))
	setInt(&cfg.Pipeline.ArchiveRetentionDays, env("PIPELINE_ARCHIVE_RETENTION_DAYS"))

	// server
	setBool(&cfg.Server.Enabled, env("SERVER_ENABLED"))
	setInt(&cfg.Server.Port, env("SERVER_PORT"))
	setStringSlice(&cfg.Server.CORSOrigins, env("SERVER_CORS_ORIGINS"))
	setDuration(&cfg.Server.StreamInterval, env("SERVER_STREAM_INTERVAL"))
	setDuration(&cfg.Server.ShutdownTimeout, env("SERVER_SHUTDOWN_TIMEOUT"))
}

// Each setter leaves dst untouched when the variable is unset, empty or
// does not parse.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
