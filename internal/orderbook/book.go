// Package orderbook maintains L2 book state for a single (market, asset)
// pair from snapshots and deltas.
package orderbook

import (
	"fmt"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// Book is the order-book state machine. All methods are synchronous; a Book
// must not be shared across goroutines without external locking.
type Book interface {
	domain.MarketState

	// ApplySnapshot replaces both sides. A snapshot for another key is
	// rejected with domain.ErrIdentityMismatch and leaves the book unchanged.
	ApplySnapshot(snap *domain.BookSnapshot) error
	// ApplyDelta sets or removes one level. Deltas for another key are
	// ignored; invalid deltas flag the book inconsistent.
	ApplyDelta(delta *domain.BookDelta)
	// LevelSize returns the resting size at price, or 0.
	LevelSize(side domain.Side, price float64) float64
	// Levels returns every level, bids descending and asks ascending.
	Levels() (bids, asks []domain.PriceLevel)
	// Snapshot serializes the current state.
	Snapshot() domain.BookSnapshot
	// Crossed reports best bid above best ask.
	Crossed() bool
	// Clone returns an independent copy without an observer.
	Clone() Book
}

// Reason names a diagnostic emitted when input is dropped or the book is
// marked inconsistent.
type Reason string

const (
	ReasonIdentityMismatch    Reason = "identity_mismatch"
	ReasonDeltaBeforeSnapshot Reason = "delta_before_snapshot"
	ReasonNegativeSize        Reason = "negative_size"
	ReasonInvalidPrice        Reason = "invalid_price"
	ReasonUnknownSide         Reason = "unknown_side"
)

// Observer receives book diagnostics.
type Observer func(key domain.BookKey, reason Reason)

// core holds the state machine shared by every Book implementation; the
// implementations differ only in ladder storage.
type core struct {
	key          domain.BookKey
	bids         ladder
	asks         ladder
	hasSnapshot  bool
	inconsistent bool
	observe      Observer
}

func (c *core) notify(r Reason) {
	if c.observe != nil {
		c.observe(c.key, r)
	}
}

func (c *core) Key() domain.BookKey { return c.key }
func (c *core) HasSnapshot() bool   { return c.hasSnapshot }
func (c *core) Inconsistent() bool  { return c.inconsistent }

func (c *core) ApplySnapshot(snap *domain.BookSnapshot) error {
	if snap == nil {
		return nil
	}
	if snap.Key() != c.key {
		c.notify(ReasonIdentityMismatch)
		return fmt.Errorf("orderbook: snapshot %s applied to %s: %w", snap.Key(), c.key, domain.ErrIdentityMismatch)
	}

	c.bids.reset()
	c.asks.reset()
	droppedBids := loadSide(c.bids, snap.Bids)
	droppedAsks := loadSide(c.asks, snap.Asks)

	c.hasSnapshot = true
	c.inconsistent = droppedBids || droppedAsks
	if c.inconsistent {
		c.notify(ReasonNegativeSize)
	}
	return nil
}

// loadSide stores positive-size levels and reports whether any level was
// dropped for a negative or non-finite size.
func loadSide(l ladder, levels []domain.PriceLevel) bool {
	dropped := false
	for _, lvl := range levels {
		if lvl.Size < 0 || !finite(lvl.Size) || !finite(lvl.Price) {
			dropped = true
			continue
		}
		if lvl.Size == 0 {
			continue
		}
		l.set(priceKey(lvl.Price), lvl.Size)
	}
	return dropped
}

func (c *core) ApplyDelta(delta *domain.BookDelta) {
	if delta == nil || delta.Key() != c.key {
		return
	}
	if !c.hasSnapshot {
		c.inconsistent = true
		c.notify(ReasonDeltaBeforeSnapshot)
		return
	}
	if delta.Size < 0 || !finite(delta.Size) {
		c.inconsistent = true
		c.notify(ReasonNegativeSize)
		return
	}
	if !finite(delta.Price) {
		c.inconsistent = true
		c.notify(ReasonInvalidPrice)
		return
	}

	l := c.side(delta.Side)
	if l == nil {
		c.notify(ReasonUnknownSide)
		return
	}
	k := priceKey(delta.Price)
	if delta.Size == 0 {
		l.remove(k)
		return
	}
	l.set(k, delta.Size)
}

func (c *core) side(s domain.Side) ladder {
	switch s {
	case domain.SideBuy:
		return c.bids
	case domain.SideSell:
		return c.asks
	default:
		return nil
	}
}

func (c *core) BestBid() (float64, bool) {
	k, ok := c.bids.best()
	if !ok {
		return 0, false
	}
	return keyPrice(k), true
}

func (c *core) BestAsk() (float64, bool) {
	k, ok := c.asks.best()
	if !ok {
		return 0, false
	}
	return keyPrice(k), true
}

// Mid is the midpoint when both sides exist, otherwise the one side present.
func (c *core) Mid() (float64, bool) {
	bb, okB := c.BestBid()
	ba, okA := c.BestAsk()
	switch {
	case okB && okA:
		return (bb + ba) / 2, true
	case okB:
		return bb, true
	case okA:
		return ba, true
	default:
		return 0, false
	}
}

func (c *core) Spread() (float64, bool) {
	bb, okB := c.BestBid()
	ba, okA := c.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ba - bb, true
}

func (c *core) Crossed() bool {
	bb, okB := c.BestBid()
	ba, okA := c.BestAsk()
	return okB && okA && bb > ba
}

func (c *core) Depth(n int) (bids, asks []domain.PriceLevel) {
	if n < 0 {
		n = 0
	}
	return c.bids.top(n), c.asks.top(n)
}

func (c *core) Levels() (bids, asks []domain.PriceLevel) {
	return c.bids.top(-1), c.asks.top(-1)
}

func (c *core) LevelSize(side domain.Side, price float64) float64 {
	l := c.side(side)
	if l == nil || !finite(price) {
		return 0
	}
	s, _ := l.get(priceKey(price))
	return s
}

func (c *core) Snapshot() domain.BookSnapshot {
	bids, asks := c.Levels()
	return domain.BookSnapshot{
		MarketID: c.key.MarketID,
		AssetID:  c.key.AssetID,
		Bids:     bids,
		Asks:     asks,
	}
}

func (c *core) copyInto(dst *core) {
	for _, l := range c.bids.top(-1) {
		dst.bids.set(priceKey(l.Price), l.Size)
	}
	for _, l := range c.asks.top(-1) {
		dst.asks.set(priceKey(l.Price), l.Size)
	}
	dst.hasSnapshot = c.hasSnapshot
	dst.inconsistent = c.inconsistent
}

// MapBook stores each side in a hash map and sorts on read.
type MapBook struct{ core }

// NewMapBook returns an empty MapBook.
func NewMapBook(key domain.BookKey, observe Observer) *MapBook {
	return &MapBook{core{
		key:     key,
		bids:    newMapLadder(true),
		asks:    newMapLadder(false),
		observe: observe,
	}}
}

func (b *MapBook) Clone() Book {
	nb := NewMapBook(b.key, nil)
	b.copyInto(&nb.core)
	return nb
}

// TreeBook stores each side in a B-tree ordered by price priority.
type TreeBook struct{ core }

// NewTreeBook returns an empty TreeBook.
func NewTreeBook(key domain.BookKey, observe Observer) *TreeBook {
	return &TreeBook{core{
		key:     key,
		bids:    newTreeLadder(true),
		asks:    newTreeLadder(false),
		observe: observe,
	}}
}

func (b *TreeBook) Clone() Book {
	nb := NewTreeBook(b.key, nil)
	b.copyInto(&nb.core)
	return nb
}

var (
	_ Book = (*MapBook)(nil)
	_ Book = (*TreeBook)(nil)
)
