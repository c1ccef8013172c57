package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/replay"
)

// Runner backtests strategies over replayed event log slices.
type Runner struct {
	engine *replay.Engine
	runs   domain.SimRunStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a Runner. runs may be nil, in which case results are
// returned but not persisted.
func NewRunner(engine *replay.Engine, runs domain.SimRunStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		engine: engine,
		runs:   runs,
		logger: logger.With(slog.String("component", "sim_runner")),
		now:    time.Now,
	}
}

// session adapts one strategy run to replay.Visitor.
type session struct {
	strategy  Strategy
	fills     TouchFillModel
	portfolio Portfolio
	key       domain.BookKey
}

func (s *session) OnBook(ts int64, state domain.MarketState) {
	s.strategy.OnBookUpdate(state)
	q, ok := s.strategy.(Quoter)
	if !ok {
		return
	}
	mid, ok := state.Mid()
	if !ok {
		return
	}
	for _, quote := range q.Quotes() {
		if f, ok := s.fills.Check(quote, mid, ts, s.key); ok {
			s.portfolio.ApplyFill(f)
		}
	}
}

func (s *session) OnTrade(t *domain.TradePrint) { s.strategy.OnTrade(t) }

// Run drives strategy over the query window and persists the result.
func (r *Runner) Run(ctx context.Context, strategy Strategy, cfg Config, q replay.Query, fills TouchFillModel) (domain.SimRun, error) {
	s := &session{
		strategy: strategy,
		fills:    fills,
		key:      domain.BookKey{MarketID: q.MarketID, AssetID: q.AssetID},
	}
	processed, err := r.engine.Drive(ctx, q, s)
	if err != nil {
		return domain.SimRun{}, fmt.Errorf("strategy: run %s: %w", strategy.Name(), err)
	}

	params := cfg.ParamsMap()
	params["fill_latency_ms"] = fills.LatencyMs
	run := domain.SimRun{
		RunID:           uuid.NewString()[:8],
		StrategyName:    strategy.Name(),
		MarketID:        q.MarketID,
		AssetID:         q.AssetID,
		Params:          params,
		FinalInventory:  s.portfolio.Inventory,
		RealizedPnL:     s.portfolio.RealizedPnL,
		FillCount:       s.portfolio.FillCount,
		EventsProcessed: int(processed),
		CreatedAt:       r.now().UTC(),
	}

	if r.runs != nil {
		if err := r.runs.Save(ctx, run); err != nil {
			return run, fmt.Errorf("strategy: save run %s: %w", run.RunID, err)
		}
	}
	r.logger.Info("simulation complete",
		slog.String("run_id", run.RunID),
		slog.String("strategy", run.StrategyName),
		slog.String("market_id", run.MarketID),
		slog.Int("fills", run.FillCount),
		slog.Float64("realized_pnl", run.RealizedPnL),
		slog.Int("events", run.EventsProcessed),
	)
	return run, nil
}
