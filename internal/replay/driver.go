package replay

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/orderbook"
)

// Visitor receives the observed book and its trades record by record.
type Visitor interface {
	// OnBook is called after every record once the observed book has a
	// snapshot.
	OnBook(ingestTS int64, state domain.MarketState)
	// OnTrade is called for each trade print on the observed asset.
	OnTrade(trade *domain.TradePrint)
}

// Drive replays the query window into v and returns the number of records
// processed.
func (e *Engine) Drive(ctx context.Context, q Query, v Visitor) (int64, error) {
	q = q.withDefaults()
	c := e.newCursor(q)

	err := e.scan(ctx, q, func(rec domain.RawEvent) error {
		events, _ := c.apply(rec)
		if b, ok := c.book(); ok && b.HasSnapshot() {
			v.OnBook(rec.IngestTS, orderbook.View(b))
		}
		for _, ev := range events {
			if t, ok := ev.(*domain.TradePrint); ok && t.AssetID == q.AssetID {
				v.OnTrade(t)
			}
		}
		return nil
	})
	if err != nil {
		return c.records, err
	}
	e.logger.Info("replay driven",
		slog.String("market_id", q.MarketID),
		slog.String("asset_id", q.AssetID),
		slog.Int64("records", c.records),
	)
	return c.records, nil
}
