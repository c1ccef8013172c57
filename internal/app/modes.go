package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predexchange/internal/aggregator"
	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/feed"
	"github.com/alanyoungcy/predexchange/internal/metrics"
	"github.com/alanyoungcy/predexchange/internal/orderbook"
	"github.com/alanyoungcy/predexchange/internal/pipeline"
	"github.com/alanyoungcy/predexchange/internal/platform/polymarket"
	"github.com/alanyoungcy/predexchange/internal/replay"
	"github.com/alanyoungcy/predexchange/internal/server"
	"github.com/alanyoungcy/predexchange/internal/server/handler"
	"github.com/alanyoungcy/predexchange/internal/server/ws"
	"github.com/alanyoungcy/predexchange/internal/strategy"
)

const ingestLockKey = "ingest:" + polymarket.Venue + ":market"

// IngestMode streams the tracked assets into the event log, keeps live books
// and publishes them, and runs the background pipeline and HTTP server
// alongside. The ingestion session bounds the mode: when it returns, the
// other goroutines are stopped.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	kind, err := orderbook.ParseKind(a.cfg.Ingestion.BookImpl)
	if err != nil {
		return err
	}

	if deps.Locks != nil {
		lock, err := deps.Locks.Acquire(ctx, ingestLockKey, a.cfg.Ingestion.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: ingest lock: %w", err)
		}
		defer lock.Release()
		a.logger.InfoContext(ctx, "ingest lock acquired", slog.String("key", ingestLockKey))

		var stop context.CancelFunc
		ctx, stop = a.keepLock(ctx, lock)
		defer stop()
	}

	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
	session := a.newSession(kind, deps)
	connector := feed.NewPolymarketConnector(gamma, session)
	discovery := pipeline.NewDiscovery(connector, deps.Markets, a.discoveryOpts(), a.logger)

	assetIDs, err := a.trackedAssets(ctx, deps, discovery)
	if err != nil {
		return err
	}

	var archive *pipeline.ArchiveJob
	if a.cfg.Pipeline.ArchiveEnabled && deps.Archiver != nil {
		archive = pipeline.NewArchiveJob(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	}
	orch := pipeline.NewOrchestrator(discovery, a.cfg.Ingestion.DiscoveryRefreshInterval.Duration, archive, a.cfg.Pipeline.ArchiveCron, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	peersCtx, stopPeers := context.WithCancel(gctx)
	defer stopPeers()

	g.Go(func() error {
		defer stopPeers()
		return connector.RunIngestion(gctx, assetIDs)
	})
	if orch.Enabled() {
		g.Go(func() error { return orch.Run(peersCtx) })
	}
	if a.cfg.Server.Enabled {
		hub := ws.NewHub(session, a.cfg.Server.StreamInterval.Duration, a.cfg.Ingestion.PublishDepth, a.logger)
		srv := a.newServer(session, hub, deps)
		g.Go(func() error { return hub.Run(peersCtx) })
		g.Go(func() error { return srv.Run(peersCtx) })
	}

	err = g.Wait()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// keepLock refreshes lock every ttl/3. The returned context is cancelled
// with the refresh error when the lock is lost, which stops ingestion.
func (a *App) keepLock(ctx context.Context, lock *domain.Lock) (context.Context, context.CancelFunc) {
	ttl := a.cfg.Ingestion.LockTTL.Duration
	ctx, cancel := context.WithCancelCause(ctx)
	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Refresh(ctx, ttl); err != nil {
					if ctx.Err() != nil {
						return
					}
					a.logger.Error("ingest lock lost", slog.String("error", err.Error()))
					cancel(fmt.Errorf("app: refresh ingest lock: %w", err))
					return
				}
			}
		}
	}()
	return ctx, func() { cancel(nil) }
}

func (a *App) newSession(kind orderbook.Kind, deps *Dependencies) *feed.Session {
	ing := a.cfg.Ingestion
	backoff := feed.Backoff{
		Base:       ing.ReconnectBaseDelay.Duration,
		Max:        ing.ReconnectMaxDelay.Duration,
		MaxRetries: ing.ReconnectMaxRetries,
	}

	agg := aggregator.New(kind, a.logger, aggregator.WithObserver(func(_ domain.BookKey, reason orderbook.Reason) {
		metrics.BookDiagnostics.WithLabelValues(string(reason)).Inc()
	}))
	market := feed.NewMarketFeed(feed.MarketFeedConfig{
		URL:         a.cfg.Polymarket.WSURL,
		Backoff:     backoff,
		ReadTimeout: ing.ReadTimeout.Duration,
		BatchSize:   ing.EventBatchSize,
	}, polymarket.Dialer{PingPeriod: ing.PingPeriod.Duration}, deps.EventLog, agg, a.logger)

	var sports *feed.SportsFeed
	if ing.SportsEnabled && a.cfg.Polymarket.SportsWSURL != "" {
		sports = feed.NewSportsFeed(feed.SportsFeedConfig{
			URL:         a.cfg.Polymarket.SportsWSURL,
			Backoff:     backoff,
			ReadTimeout: ing.SportsReadTimeout.Duration,
		}, polymarket.Dialer{}, deps.Sports, a.logger)
	}

	publisher := feed.NewPublisher(market, deps.MidCache, deps.BookCache, deps.LastMids,
		ing.PublishInterval.Duration, ing.PublishDepth, a.logger)
	return feed.NewSession(market, sports, publisher, a.logger)
}

// trackedAssets loads the tracked asset ids, running discovery once when the
// tracked set is empty.
func (a *App) trackedAssets(ctx context.Context, deps *Dependencies, discovery *pipeline.Discovery) ([]string, error) {
	ids, err := deps.Markets.ListTrackedAssetIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list tracked assets: %w", err)
	}
	if len(ids) > 0 {
		return ids, nil
	}

	a.logger.InfoContext(ctx, "no tracked markets, running discovery")
	if _, err := discovery.Run(ctx); err != nil {
		return nil, err
	}
	ids, err = deps.Markets.ListTrackedAssetIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list tracked assets: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("app: %w", domain.ErrNoTrackedAssets)
	}
	return ids, nil
}

func (a *App) newServer(session *feed.Session, hub *ws.Hub, deps *Dependencies) *server.Server {
	var sports *handler.SportsHandler
	if deps.Sports != nil {
		sports = handler.NewSportsHandler(deps.Sports, a.logger)
	}
	return server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, session),
		Books:   handler.NewBooksHandler(session, deps.BookCache, deps.MidCache, deps.LastMids, a.logger),
		Sports:  sports,
		Metrics: metrics.Handler(),
	}, hub, a.logger)
}

func (a *App) discoveryOpts() domain.DiscoveryOpts {
	m := a.cfg.Markets
	return domain.DiscoveryOpts{
		FetchLimit:        m.FetchLimit,
		TrackCount:        m.TrackCount,
		MinVolume24h:      m.MinVolume24h,
		MinLiquidity:      m.MinLiquidity,
		CategoryAllowlist: m.CategoryAllowlist,
		CategoryDenylist:  m.CategoryDenylist,
		Pinned:            m.Pinned,
	}
}

// DiscoverMode refreshes the tracked set and prints it.
func (a *App) DiscoverMode(ctx context.Context, deps *Dependencies) error {
	connector := feed.NewPolymarketConnector(polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost), nil)
	markets, err := pipeline.NewDiscovery(connector, deps.Markets, a.discoveryOpts(), a.logger).Run(ctx)
	if err != nil {
		return err
	}

	type tracked struct {
		MarketID  string   `json:"market_id"`
		Question  string   `json:"question"`
		Volume24h float64  `json:"volume_24h"`
		Liquidity float64  `json:"liquidity"`
		AssetIDs  []string `json:"asset_ids"`
	}
	out := make([]tracked, 0, len(markets))
	for _, m := range markets {
		out = append(out, tracked{
			MarketID:  m.ID,
			Question:  m.Question,
			Volume24h: m.Volume24h,
			Liquidity: m.Liquidity,
			AssetIDs:  m.AssetIDs(),
		})
	}
	return a.printJSON(out)
}

// ReplayMode computes the configured projection and prints it.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	engine, err := a.replayEngine(ctx, deps)
	if err != nil {
		return err
	}
	q := a.replayQuery()

	var result any
	switch a.cfg.Replay.Output {
	case "series":
		result, err = engine.Metrics(ctx, q)
	case "heatmap":
		result, err = engine.Heatmap(ctx, q)
	default:
		result, err = engine.MidSeries(ctx, q)
	}
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

// SimulateMode runs the configured strategy over the replay window, stores
// the run and prints it.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	engine, err := a.replayEngine(ctx, deps)
	if err != nil {
		return err
	}

	sc := a.cfg.Simulation
	cfg := strategy.Config{
		Name:        sc.Strategy,
		SpreadFrac:  sc.SpreadFrac,
		SkewPerUnit: sc.SkewPerUnit,
		QuoteSize:   sc.QuoteSize,
	}
	strat, err := strategy.DefaultRegistry().New(cfg)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	run, err := strategy.NewRunner(engine, deps.SimRuns, a.logger).
		Run(ctx, strat, cfg, a.replayQuery(), strategy.TouchFillModel{LatencyMs: sc.FillLatencyMs})
	if err != nil {
		return err
	}
	return a.printJSON(run)
}

// StatsMode prints event-log statistics.
func (a *App) StatsMode(ctx context.Context, deps *Dependencies) error {
	stats, err := deps.EventLog.Stats(ctx)
	if err != nil {
		return fmt.Errorf("app: event log stats: %w", err)
	}
	return a.printJSON(stats)
}

// ExportMode writes the configured market and time slice to object storage.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: export needs postgres and s3")
	}
	path, n, err := deps.Archiver.Export(ctx, a.replayQuery().Filter())
	if err != nil {
		return err
	}
	return a.printJSON(map[string]any{"path": path, "records": n})
}

func (a *App) replayQuery() replay.Query {
	rc := a.cfg.Replay
	q := replay.Query{
		MarketID:       rc.MarketID,
		AssetID:        rc.AssetID,
		BucketMs:       rc.BucketMs,
		DepthN:         rc.DepthN,
		TickSize:       rc.TickSize,
		TicksAroundMid: rc.TicksAroundMid,
	}
	if rc.StartTS > 0 {
		start := rc.StartTS
		q.Start = &start
	}
	if rc.EndTS > 0 {
		end := rc.EndTS
		q.End = &end
	}
	return q
}

// replayEngine reads from the event log, or from a JSONL export in object
// storage when the replay source names one.
func (a *App) replayEngine(ctx context.Context, deps *Dependencies) (*replay.Engine, error) {
	kind, err := orderbook.ParseKind(a.cfg.Ingestion.BookImpl)
	if err != nil {
		return nil, err
	}

	var source replay.Source = deps.EventLog
	if key := a.cfg.Replay.Source; key != "postgres" {
		if deps.BlobReader == nil {
			return nil, errors.New("app: replay from object storage needs s3")
		}
		rc, err := deps.BlobReader.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("app: open replay source %s: %w", key, err)
		}
		defer rc.Close()
		mem, err := replay.ReadJSONL(rc)
		if err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "replay source loaded", slog.String("key", key), slog.Int("records", mem.Len()))
		source = mem
	}
	return replay.NewEngine(source, polymarket.Normalizer{}, kind, a.logger), nil
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("app: write result: %w", err)
	}
	return nil
}
