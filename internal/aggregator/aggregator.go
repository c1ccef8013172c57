// Package aggregator routes normalized events to per-book state machines.
// It is the single integration point shared by live ingestion and replay.
package aggregator

import (
	"log/slog"
	"sort"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/orderbook"
)

// Aggregator owns a registry of books keyed by (market, asset). It has
// exactly one writer; readers take copies through All or Summaries.
type Aggregator struct {
	books   map[domain.BookKey]orderbook.Book
	newBook orderbook.Factory
	logger  *slog.Logger
	extra   orderbook.Observer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithObserver adds a diagnostic hook called after the aggregator logs.
func WithObserver(o orderbook.Observer) Option {
	return func(a *Aggregator) { a.extra = o }
}

// New returns an empty Aggregator creating books of the given kind.
func New(kind orderbook.Kind, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		books:  make(map[domain.BookKey]orderbook.Book),
		logger: logger.With(slog.String("component", "aggregator")),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.newBook = orderbook.NewFactory(kind, a.observe)
	return a
}

func (a *Aggregator) observe(key domain.BookKey, reason orderbook.Reason) {
	a.logger.Debug("book diagnostic",
		slog.String("market_id", key.MarketID),
		slog.String("asset_id", key.AssetID),
		slog.String("reason", string(reason)),
	)
	if a.extra != nil {
		a.extra(key, reason)
	}
}

// Dispatch applies ev to its book, creating the book on first sight. It
// returns the touched book, or nil for trade prints and unknown events.
func (a *Aggregator) Dispatch(ev domain.Event) orderbook.Book {
	switch e := ev.(type) {
	case *domain.BookSnapshot:
		b := a.getOrCreate(e.Key())
		if err := b.ApplySnapshot(e); err != nil {
			a.logger.Warn("snapshot rejected", slog.String("error", err.Error()))
		}
		return b
	case *domain.BookDelta:
		b := a.getOrCreate(e.Key())
		b.ApplyDelta(e)
		return b
	default:
		return nil
	}
}

// DispatchAll dispatches each event independently, in order.
func (a *Aggregator) DispatchAll(events []domain.Event) {
	for _, ev := range events {
		a.Dispatch(ev)
	}
}

func (a *Aggregator) getOrCreate(key domain.BookKey) orderbook.Book {
	b, ok := a.books[key]
	if !ok {
		b = a.newBook(key)
		a.books[key] = b
	}
	return b
}

// Get returns the live book for key without creating it.
func (a *Aggregator) Get(key domain.BookKey) (orderbook.Book, bool) {
	b, ok := a.books[key]
	return b, ok
}

// State returns a read-only view of the live book for key.
func (a *Aggregator) State(key domain.BookKey) (domain.MarketState, bool) {
	b, ok := a.books[key]
	if !ok {
		return nil, false
	}
	return orderbook.View(b), true
}

// Len returns the number of books in the registry.
func (a *Aggregator) Len() int { return len(a.books) }

// All returns a point-in-time copy of the registry. Later dispatches do not
// affect the returned states.
func (a *Aggregator) All() map[domain.BookKey]domain.MarketState {
	out := make(map[domain.BookKey]domain.MarketState, len(a.books))
	for k, b := range a.books {
		out[k] = orderbook.View(b.Clone())
	}
	return out
}

// Summaries returns top-n summaries of every book, ordered by key.
func (a *Aggregator) Summaries(n int, updatedAt int64) []domain.BookSummary {
	keys := make([]domain.BookKey, 0, len(a.books))
	for k := range a.books {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].MarketID != keys[j].MarketID {
			return keys[i].MarketID < keys[j].MarketID
		}
		return keys[i].AssetID < keys[j].AssetID
	})
	out := make([]domain.BookSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, orderbook.Summarize(a.books[k], n, updatedAt))
	}
	return out
}
