package strategy

import (
	"math"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

const (
	defaultSpreadFrac  = 0.01
	defaultSkewPerUnit = 0.001
	defaultQuoteSize   = 10.0
	fallbackSpread     = 0.01
)

// MMInventory quotes both sides around the mid and skews the quotes
// against its inventory.
type MMInventory struct {
	cfg       Config
	inventory float64
	quotes    []Quote
}

// NewMMInventory creates an MMInventory strategy. Zero config values fall
// back to defaults.
func NewMMInventory(cfg Config) *MMInventory {
	if cfg.SpreadFrac <= 0 {
		cfg.SpreadFrac = defaultSpreadFrac
	}
	if cfg.SkewPerUnit == 0 {
		cfg.SkewPerUnit = defaultSkewPerUnit
	}
	if cfg.QuoteSize <= 0 {
		cfg.QuoteSize = defaultQuoteSize
	}
	return &MMInventory{cfg: cfg}
}

// Name returns the strategy identifier.
func (s *MMInventory) Name() string { return "mm_inventory" }

// OnBookUpdate requotes around the current mid. Books without a mid leave
// the previous quotes in place.
func (s *MMInventory) OnBookUpdate(state domain.MarketState) {
	mid, ok := state.Mid()
	if !ok {
		return
	}
	spread, ok := state.Spread()
	if !ok || spread == 0 {
		spread = fallbackSpread
	}
	half := math.Max(spread/2, s.cfg.SpreadFrac*mid)
	skew := s.inventory * s.cfg.SkewPerUnit

	s.quotes = []Quote{
		{Side: domain.SideBuy, Price: clamp01(mid - half - skew), Size: s.cfg.QuoteSize},
		{Side: domain.SideSell, Price: clamp01(mid + half - skew), Size: s.cfg.QuoteSize},
	}
}

// OnTrade tracks inventory from the tape: a taker buy lifts resting asks,
// so the maker side ends up short.
func (s *MMInventory) OnTrade(trade *domain.TradePrint) {
	if trade.Side == domain.SideBuy {
		s.inventory -= trade.Size
	} else {
		s.inventory += trade.Size
	}
}

// Quotes returns a copy of the current quotes.
func (s *MMInventory) Quotes() []Quote {
	out := make([]Quote, len(s.quotes))
	copy(out, s.quotes)
	return out
}

// Inventory returns the trade-derived inventory used for skew.
func (s *MMInventory) Inventory() float64 { return s.inventory }

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
