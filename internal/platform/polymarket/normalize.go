package polymarket

import (
	"bytes"
	"encoding/json"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

const (
	// Venue is the venue name stamped on raw records.
	Venue = "polymarket"
	// ChannelMarket is the channel name of the market websocket.
	ChannelMarket = "market"
)

// SplitFrame returns the message objects carried by one websocket frame. A
// frame holds either a single object or an array of objects; non-object
// elements and undecodable frames yield nothing.
func SplitFrame(frame []byte) []json.RawMessage {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil
	}
	switch frame[0] {
	case '{':
		if !json.Valid(frame) {
			return nil
		}
		return []json.RawMessage{json.RawMessage(frame)}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(frame, &items); err != nil {
			return nil
		}
		out := items[:0]
		for _, it := range items {
			it = bytes.TrimSpace(it)
			if len(it) > 0 && it[0] == '{' {
				out = append(out, it)
			}
		}
		return out
	default:
		return nil
	}
}

// DecodeMessage decodes one message object.
func DecodeMessage(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// envelope holds the identity fields of a message and nothing else.
type envelope struct {
	EventType flexString `json:"event_type"`
	Market    flexString `json:"market"`
	MarketID  flexString `json:"market_id"`
	AssetID   flexString `json:"asset_id"`
	Timestamp optInt     `json:"timestamp"`
}

// DecodeEnvelope reads only the identity fields of a message object whose
// body does not decode as a Message. The result carries no book or trade
// data and is only fit for BuildRawEvent: normalizing a book envelope would
// yield an empty snapshot. It returns nil when raw is not an object.
func DecodeEnvelope(raw []byte) *Message {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	return &Message{
		EventType: e.EventType,
		Market:    e.Market,
		MarketID:  e.MarketID,
		AssetID:   e.AssetID,
		Timestamp: e.Timestamp,
	}
}

// ParseBook converts a book message to a snapshot. It returns nil for other
// message types or when market or asset id is missing. Levels with a price
// outside [0,1] or a negative size are dropped.
func ParseBook(m *Message, ingestTS int64) *domain.BookSnapshot {
	if m == nil || string(m.EventType) != string(domain.EventBook) {
		return nil
	}
	marketID, assetID := m.marketID(), string(m.AssetID)
	if marketID == "" || assetID == "" {
		return nil
	}
	bids, asks := m.Bids, m.Asks
	if len(bids) == 0 {
		bids = m.Buys
	}
	if len(asks) == 0 {
		asks = m.Sells
	}
	return &domain.BookSnapshot{
		MarketID:   marketID,
		AssetID:    assetID,
		Bids:       parseLevels(bids),
		Asks:       parseLevels(asks),
		ExchangeTS: m.Timestamp.ptr(),
		IngestTS:   ingestTS,
	}
}

func parseLevels(raw []json.RawMessage) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			continue
		}
		var lvl wsLevel
		if err := json.Unmarshal(r, &lvl); err != nil {
			continue
		}
		p, s := float64(lvl.Price), float64(lvl.Size)
		if p < 0 || p > 1 || s < 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// ParsePriceChange converts a price_change message into one delta per level
// change. Entries with an unknown side or no asset id are dropped. A message
// without price_changes is read as a single change from its top-level fields.
func ParsePriceChange(m *Message, ingestTS int64) []*domain.BookDelta {
	if m == nil || string(m.EventType) != string(domain.EventPriceChange) {
		return nil
	}
	marketID := m.marketID()
	changes := make([]wsPriceChange, 0, len(m.PriceChanges))
	for _, r := range m.PriceChanges {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			continue
		}
		var pc wsPriceChange
		if err := json.Unmarshal(r, &pc); err != nil {
			continue
		}
		changes = append(changes, pc)
	}
	if len(m.PriceChanges) == 0 && m.Price != nil {
		changes = append(changes, wsPriceChange{
			AssetID: m.AssetID,
			Side:    m.Side,
			Price:   *m.Price,
			Size:    m.Size,
			BestBid: m.BestBid,
			BestAsk: m.BestAsk,
		})
	}

	out := make([]*domain.BookDelta, 0, len(changes))
	for _, pc := range changes {
		side, ok := parseSideDefaultBuy(string(pc.Side))
		if !ok || pc.AssetID == "" {
			continue
		}
		out = append(out, &domain.BookDelta{
			MarketID:   marketID,
			AssetID:    string(pc.AssetID),
			Side:       side,
			Price:      float64(pc.Price),
			Size:       float64(pc.Size),
			BestBid:    nonZero(pc.BestBid),
			BestAsk:    nonZero(pc.BestAsk),
			ExchangeTS: m.Timestamp.ptr(),
			IngestTS:   ingestTS,
		})
	}
	return out
}

// ParseTrade converts a last_trade_price message. It returns nil for other
// message types, a missing asset id, or an unknown side.
func ParseTrade(m *Message, ingestTS int64) *domain.TradePrint {
	if m == nil || string(m.EventType) != string(domain.EventTrade) || m.AssetID == "" {
		return nil
	}
	side, ok := parseSideDefaultBuy(string(m.Side))
	if !ok {
		return nil
	}
	var price float64
	if m.Price != nil {
		price = float64(*m.Price)
	}
	return &domain.TradePrint{
		MarketID:   m.marketID(),
		AssetID:    string(m.AssetID),
		Side:       side,
		Price:      price,
		Size:       float64(m.Size),
		FeeRateBps: int(m.FeeRateBps),
		ExchangeTS: m.Timestamp.ptr(),
		IngestTS:   ingestTS,
	}
}

func parseSideDefaultBuy(s string) (domain.Side, bool) {
	if s == "" {
		return domain.SideBuy, true
	}
	return domain.ParseSide(s)
}

func nonZero(f *flexFloat) *float64 {
	if f == nil || *f == 0 {
		return nil
	}
	v := float64(*f)
	return &v
}

// Normalize translates one message into canonical events.
func Normalize(m *Message, ingestTS int64) []domain.Event {
	if m == nil {
		return nil
	}
	switch domain.EventKind(m.EventType) {
	case domain.EventBook:
		if s := ParseBook(m, ingestTS); s != nil {
			return []domain.Event{s}
		}
	case domain.EventPriceChange:
		deltas := ParsePriceChange(m, ingestTS)
		out := make([]domain.Event, len(deltas))
		for i, d := range deltas {
			out[i] = d
		}
		return out
	case domain.EventTrade:
		if t := ParseTrade(m, ingestTS); t != nil {
			return []domain.Event{t}
		}
	}
	return nil
}

// Normalizer adapts the package functions to domain.Normalizer.
type Normalizer struct{}

// Normalize decodes payload and translates it. Undecodable payloads yield
// nothing.
func (Normalizer) Normalize(payload json.RawMessage, ingestTS int64) []domain.Event {
	m, err := DecodeMessage(payload)
	if err != nil {
		return nil
	}
	return Normalize(m, ingestTS)
}

// BuildRawEvent wraps one message object as an event-log record. The
// payload is stored verbatim except that invalid UTF-8 sequences are
// replaced with U+FFFD, which the JSON column requires.
func BuildRawEvent(raw json.RawMessage, m *Message, ingestTS int64) domain.RawEvent {
	ev := domain.RawEvent{
		Venue:     Venue,
		Channel:   ChannelMarket,
		EventType: "unknown",
		IngestTS:  ingestTS,
		Payload:   json.RawMessage(bytes.ToValidUTF8(raw, []byte("\uFFFD"))),
	}
	if m == nil {
		return ev
	}
	if m.EventType != "" {
		ev.EventType = string(m.EventType)
	}
	ev.MarketID = m.marketID()
	ev.AssetID = string(m.AssetID)
	ev.ExchangeTS = m.Timestamp.ptr()
	return ev
}
