package strategy

import (
	"github.com/alanyoungcy/predexchange/internal/domain"
)

// Strategy reacts to book updates and trade prints. Strategies are venue
// agnostic and run unchanged against live or replayed data.
type Strategy interface {
	Name() string
	OnBookUpdate(state domain.MarketState)
	OnTrade(trade *domain.TradePrint)
}

// Quoter is implemented by strategies that keep resting quotes. The fill
// model checks these after every book update.
type Quoter interface {
	Quotes() []Quote
}

// Quote is one resting order a strategy would have on the book.
type Quote struct {
	Side  domain.Side
	Price float64
	Size  float64
}

// Config holds strategy configuration.
type Config struct {
	Name        string
	SpreadFrac  float64
	SkewPerUnit float64
	QuoteSize   float64
	Params      map[string]any
}

// ParamsMap returns the configuration as stored alongside a run result.
func (c Config) ParamsMap() map[string]any {
	out := map[string]any{
		"spread_frac":   c.SpreadFrac,
		"skew_per_unit": c.SkewPerUnit,
		"quote_size":    c.QuoteSize,
	}
	for k, v := range c.Params {
		out[k] = v
	}
	return out
}
