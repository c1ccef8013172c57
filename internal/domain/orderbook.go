package domain

import "strings"

// Side is the book side a level change or trade belongs to.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide upper-cases s and reports whether it names a known side.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	default:
		return "", false
	}
}

// PriceLevel is a single aggregated price+size entry in an L2 book.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookKey identifies one order book: an instrument within a market.
type BookKey struct {
	MarketID string `json:"market_id"`
	AssetID  string `json:"asset_id"`
}

func (k BookKey) String() string {
	return k.MarketID + "/" + k.AssetID
}

// EventKind names the canonical event kinds produced by venue normalizers.
type EventKind string

const (
	EventBook        EventKind = "book"
	EventPriceChange EventKind = "price_change"
	EventTrade       EventKind = "last_trade_price"
)

// Event is a normalized venue message. Implemented by BookSnapshot,
// BookDelta and TradePrint.
type Event interface {
	Kind() EventKind
	Key() BookKey
}

// BookSnapshot is an authoritative full replacement of a book's resting levels.
type BookSnapshot struct {
	MarketID   string
	AssetID    string
	Bids       []PriceLevel
	Asks       []PriceLevel
	ExchangeTS *int64
	IngestTS   int64
}

func (s *BookSnapshot) Kind() EventKind { return EventBook }
func (s *BookSnapshot) Key() BookKey    { return BookKey{MarketID: s.MarketID, AssetID: s.AssetID} }

// BookDelta sets (Size > 0) or removes (Size == 0) one price level.
type BookDelta struct {
	MarketID   string
	AssetID    string
	Side       Side
	Price      float64
	Size       float64
	BestBid    *float64
	BestAsk    *float64
	ExchangeTS *int64
	IngestTS   int64
}

func (d *BookDelta) Kind() EventKind { return EventPriceChange }
func (d *BookDelta) Key() BookKey    { return BookKey{MarketID: d.MarketID, AssetID: d.AssetID} }

// TradePrint is an executed trade. It never mutates book state.
type TradePrint struct {
	MarketID   string
	AssetID    string
	Side       Side
	Price      float64
	Size       float64
	FeeRateBps int
	ExchangeTS *int64
	IngestTS   int64
}

func (t *TradePrint) Kind() EventKind { return EventTrade }
func (t *TradePrint) Key() BookKey    { return BookKey{MarketID: t.MarketID, AssetID: t.AssetID} }

// MarketState is the read-only view of one book handed to strategies and
// dashboards. Optional values report ok=false when absent.
type MarketState interface {
	Key() BookKey
	HasSnapshot() bool
	Inconsistent() bool
	BestBid() (float64, bool)
	BestAsk() (float64, bool)
	Mid() (float64, bool)
	Spread() (float64, bool)
	Depth(n int) (bids, asks []PriceLevel)
}

// BookSummary is a point-in-time summary of a book, published to caches and
// served to dashboards.
type BookSummary struct {
	Key          BookKey      `json:"key"`
	BestBid      *float64     `json:"best_bid"`
	BestAsk      *float64     `json:"best_ask"`
	Mid          *float64     `json:"mid"`
	Spread       *float64     `json:"spread"`
	Imbalance    *float64     `json:"imbalance"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	HasSnapshot  bool         `json:"has_snapshot"`
	Inconsistent bool         `json:"inconsistent"`
	Crossed      bool         `json:"crossed"`
	UpdatedAt    int64        `json:"updated_at"`
}
