// Package replay rebuilds book state from the raw event log and derives
// deterministic time series from it. The same records always produce the
// same output.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alanyoungcy/predexchange/internal/aggregator"
	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/orderbook"
)

const (
	DefaultBucketMs       int64   = 1000
	DefaultDepthN                 = 5
	DefaultTickSize       float64 = 0.01
	DefaultTicksAroundMid         = 50
)

var errNoMarket = errors.New("market id is required")

// Query selects the slice of the log to replay and the book to observe.
// Start and End are inclusive ingest-time bounds in ms.
type Query struct {
	MarketID       string
	AssetID        string
	Start          *int64
	End            *int64
	BucketMs       int64
	DepthN         int
	TickSize       float64
	TicksAroundMid int
}

func (q Query) withDefaults() Query {
	if q.BucketMs <= 0 {
		q.BucketMs = DefaultBucketMs
	}
	if q.DepthN <= 0 {
		q.DepthN = DefaultDepthN
	}
	if q.TickSize <= 0 {
		q.TickSize = DefaultTickSize
	}
	if q.TicksAroundMid <= 0 {
		q.TicksAroundMid = DefaultTicksAroundMid
	}
	return q
}

// Filter selects the query's market and time window. It leaves the asset
// open: price-change records carry their asset ids inside the payload.
func (q Query) Filter() domain.EventFilter {
	return domain.EventFilter{MarketID: q.MarketID, Start: q.Start, End: q.End}
}

func (q Query) bucket(ts int64) int64 {
	return (ts / q.BucketMs) * q.BucketMs
}

// Engine replays a Source through a fresh aggregator per call.
type Engine struct {
	source     Source
	normalizer domain.Normalizer
	kind       orderbook.Kind
	logger     *slog.Logger
}

// NewEngine creates an Engine reading from source.
func NewEngine(source Source, normalizer domain.Normalizer, kind orderbook.Kind, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:     source,
		normalizer: normalizer,
		kind:       kind,
		logger:     logger.With(slog.String("component", "replay")),
	}
}

// cursor holds the state of one replay pass.
type cursor struct {
	agg        *aggregator.Aggregator
	normalizer domain.Normalizer
	query      Query
	key        domain.BookKey
	records    int64
}

func (e *Engine) newCursor(q Query) *cursor {
	return &cursor{
		agg:        aggregator.New(e.kind, e.logger),
		normalizer: e.normalizer,
		query:      q,
		key:        domain.BookKey{MarketID: q.MarketID, AssetID: q.AssetID},
	}
}

// apply feeds one record to the aggregator. It returns the normalized
// events and the order-flow contribution of applied deltas on the
// observed asset: bids count +Δsize, asks −Δsize.
func (c *cursor) apply(rec domain.RawEvent) ([]domain.Event, float64) {
	c.records++
	c.key = domain.BookKey{MarketID: rec.MarketID, AssetID: c.query.AssetID}
	if c.key.MarketID == "" {
		c.key.MarketID = c.query.MarketID
	}

	events := c.normalizer.Normalize(rec.Payload, rec.IngestTS)
	var ofi float64
	for _, ev := range events {
		d, ok := ev.(*domain.BookDelta)
		if !ok || d.AssetID != c.query.AssetID {
			c.agg.Dispatch(ev)
			continue
		}
		before := c.levelSize(d.Key(), d.Side, d.Price)
		c.agg.Dispatch(ev)
		after := c.levelSize(d.Key(), d.Side, d.Price)
		if d.Side == domain.SideBuy {
			ofi += after - before
		} else {
			ofi -= after - before
		}
	}
	return events, ofi
}

func (c *cursor) levelSize(key domain.BookKey, side domain.Side, price float64) float64 {
	b, ok := c.agg.Get(key)
	if !ok {
		return 0
	}
	return b.LevelSize(side, price)
}

// book returns the observed book as of the last applied record.
func (c *cursor) book() (orderbook.Book, bool) {
	return c.agg.Get(c.key)
}

func (e *Engine) scan(ctx context.Context, q Query, fn func(domain.RawEvent) error) error {
	if q.MarketID == "" {
		return fmt.Errorf("replay: %w", errNoMarket)
	}
	if err := e.source.Scan(ctx, q.Filter(), fn); err != nil {
		return fmt.Errorf("replay: scan: %w", err)
	}
	return nil
}

// MidSeries returns one point per record: its ingest time and the observed
// book's mid right after it was applied.
func (e *Engine) MidSeries(ctx context.Context, q Query) ([]domain.MidPoint, error) {
	q = q.withDefaults()
	c := e.newCursor(q)
	out := []domain.MidPoint{}

	err := e.scan(ctx, q, func(rec domain.RawEvent) error {
		c.apply(rec)
		p := domain.MidPoint{TS: rec.IngestTS}
		if b, ok := c.book(); ok {
			if mid, ok := b.Mid(); ok {
				p.Mid = &mid
			}
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("mid series replayed",
		slog.String("market_id", q.MarketID),
		slog.String("asset_id", q.AssetID),
		slog.Int64("records", c.records),
		slog.Int("points", len(out)),
	)
	return out, nil
}

// Metrics returns one row per bucket: mid, spread, top-N depth per side and
// OFI accumulated over the bucket. A bucket is closed before the record
// that opens the next one is applied. Buckets where the observed book does
// not exist yet produce no row.
func (e *Engine) Metrics(ctx context.Context, q Query) ([]domain.MetricsRow, error) {
	q = q.withDefaults()
	c := e.newCursor(q)
	out := []domain.MetricsRow{}

	var (
		current int64
		open    bool
		ofi     float64
	)
	emit := func() {
		b, ok := c.book()
		if !ok {
			return
		}
		bids, asks := b.Depth(q.DepthN)
		row := domain.MetricsRow{
			TS:       current,
			DepthBid: orderbook.SumSize(bids),
			DepthAsk: orderbook.SumSize(asks),
			OFI:      round6(ofi),
		}
		if mid, ok := b.Mid(); ok {
			row.Mid = &mid
		}
		if spread, ok := b.Spread(); ok {
			row.Spread = &spread
		}
		out = append(out, row)
	}

	err := e.scan(ctx, q, func(rec domain.RawEvent) error {
		bucket := q.bucket(rec.IngestTS)
		if open && bucket != current {
			emit()
			ofi = 0
		}
		current, open = bucket, true
		_, delta := c.apply(rec)
		ofi += delta
		return nil
	})
	if err != nil {
		return nil, err
	}
	if open {
		emit()
	}
	return out, nil
}

// Heatmap returns, per bucket, the observed book's levels within
// TicksAroundMid ticks of the mid (clamped to [0,1]), binned to TickSize
// with sizes summed per bin. Buckets without a mid are skipped.
func (e *Engine) Heatmap(ctx context.Context, q Query) ([]domain.HeatmapRow, error) {
	q = q.withDefaults()
	c := e.newCursor(q)
	out := []domain.HeatmapRow{}

	var (
		current int64
		open    bool
	)
	emit := func() {
		b, ok := c.book()
		if !ok {
			return
		}
		if row, ok := heatmapRow(b, current, q); ok {
			out = append(out, row)
		}
	}

	err := e.scan(ctx, q, func(rec domain.RawEvent) error {
		bucket := q.bucket(rec.IngestTS)
		if open && bucket != current {
			emit()
		}
		current, open = bucket, true
		c.apply(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if open {
		emit()
	}
	return out, nil
}

func heatmapRow(b orderbook.Book, ts int64, q Query) (domain.HeatmapRow, bool) {
	mid, ok := b.Mid()
	if !ok {
		return domain.HeatmapRow{}, false
	}
	band := float64(q.TicksAroundMid) * q.TickSize
	lo := math.Max(0, mid-band)
	hi := math.Min(1, mid+band)

	bids, asks := b.Levels()
	return domain.HeatmapRow{
		TS:   ts,
		Mid:  mid,
		Bids: binLevels(bids, lo, hi, q.TickSize, true),
		Asks: binLevels(asks, lo, hi, q.TickSize, false),
	}, true
}

func binLevels(levels []domain.PriceLevel, lo, hi, tick float64, desc bool) []domain.PriceLevel {
	sums := make(map[float64]float64)
	for _, l := range levels {
		if l.Size <= 0 || l.Price < lo || l.Price > hi {
			continue
		}
		sums[orderbook.BinPrice(l.Price, tick)] += l.Size
	}
	out := make([]domain.PriceLevel, 0, len(sums))
	for p, s := range sums {
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func round6(f float64) float64 {
	return orderbook.RoundHalfEven(f, 6).InexactFloat64()
}
