package domain

import "context"

// EventLog is the append-only raw event store.
type EventLog interface {
	// Append stores the batch in order; the log assigns increasing ids.
	Append(ctx context.Context, events []RawEvent) error
	// Scan calls fn for every matching record in ascending id order. A
	// non-nil error from fn stops the scan and is returned.
	Scan(ctx context.Context, filter EventFilter, fn func(RawEvent) error) error
	Stats(ctx context.Context) (LogStats, error)
	// FirstIngestTS returns the oldest ingest time; ok is false when the
	// log is empty.
	FirstIngestTS(ctx context.Context) (ts int64, ok bool, err error)
}

// MarketStore persists discovered markets and the tracked set.
type MarketStore interface {
	UpsertBatch(ctx context.Context, markets []Market) error
	ReplaceTracked(ctx context.Context, markets []Market) error
	ListTrackedMarketIDs(ctx context.Context) ([]string, error)
	ListTrackedAssetIDs(ctx context.Context) ([]string, error)
}

// SportsStore persists the latest state per game.
type SportsStore interface {
	Upsert(ctx context.Context, game SportsGame) error
	List(ctx context.Context, league string, limit int) ([]SportsGame, error)
}

// SimRunStore persists backtest results.
type SimRunStore interface {
	Save(ctx context.Context, run SimRun) error
	Get(ctx context.Context, runID string) (SimRun, error)
}

// LastMidStore keeps the last known mid per book. Writes older than the
// stored value are ignored.
type LastMidStore interface {
	UpsertMids(ctx context.Context, mids []LastMid) error
	GetMid(ctx context.Context, key BookKey) (LastMid, error)
}

// LastMid is the last known mid of one book, stamped with the ingest time
// of the record that produced it.
type LastMid struct {
	Key       BookKey
	Mid       float64
	UpdatedAt int64
}
