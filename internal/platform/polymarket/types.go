package polymarket

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Upstream feeds are not contractually typed: numbers arrive as JSON numbers
// or strings, ids as strings or numbers. The flex types below accept either
// and coerce malformed values instead of failing the whole message.

// flexFloat decodes a number or numeric string. Malformed input is 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// optInt decodes an integral number or integer string; anything else
// leaves it unset.
type optInt struct {
	v  int64
	ok bool
}

func (o *optInt) UnmarshalJSON(data []byte) error {
	*o = optInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*o = optInt{v: v, ok: true}
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<62 {
		*o = optInt{v: int64(f), ok: true}
	}
	return nil
}

func (o optInt) ptr() *int64 {
	if !o.ok {
		return nil
	}
	v := o.v
	return &v
}

// flexString decodes a string, or the literal text of a number or bool.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	*f = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*f = flexString(s)
		return nil
	}
	if data[0] == '{' || data[0] == '[' {
		return nil
	}
	*f = flexString(data)
	return nil
}

func (f *flexString) ptr() *string {
	if f == nil {
		return nil
	}
	s := string(*f)
	return &s
}

// flexBool decodes a JSON bool or the strings "true"/"1".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = false
		return nil
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList decodes either a JSON array or a string holding a JSON-encoded
// array, as the Gamma API does for outcomes and token ids.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	*l = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil || strings.TrimSpace(inner) == "" {
			return nil
		}
		data = []byte(inner)
	}
	var items []flexString
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it)
	}
	*l = out
	return nil
}

// --------------------------------------------------------------------------
// Market websocket DTOs
// --------------------------------------------------------------------------

// Message is one market-channel websocket message. Book, price-change and
// trade messages share the envelope fields.
type Message struct {
	EventType flexString `json:"event_type"`
	Market    flexString `json:"market"`
	MarketID  flexString `json:"market_id"`
	AssetID   flexString `json:"asset_id"`
	Timestamp optInt     `json:"timestamp"`

	// book
	Bids  []json.RawMessage `json:"bids"`
	Buys  []json.RawMessage `json:"buys"`
	Asks  []json.RawMessage `json:"asks"`
	Sells []json.RawMessage `json:"sells"`

	// price_change
	PriceChanges []json.RawMessage `json:"price_changes"`

	// last_trade_price, and the legacy single price_change form
	Side       flexString `json:"side"`
	Price      *flexFloat `json:"price"`
	Size       flexFloat  `json:"size"`
	FeeRateBps flexFloat  `json:"fee_rate_bps"`
	BestBid    *flexFloat `json:"best_bid"`
	BestAsk    *flexFloat `json:"best_ask"`
}

// marketID prefers "market" over "market_id".
func (m *Message) marketID() string {
	if m.Market != "" {
		return string(m.Market)
	}
	return string(m.MarketID)
}

type wsLevel struct {
	Price flexFloat `json:"price"`
	Size  flexFloat `json:"size"`
}

type wsPriceChange struct {
	AssetID flexString `json:"asset_id"`
	Side    flexString `json:"side"`
	Price   flexFloat  `json:"price"`
	Size    flexFloat  `json:"size"`
	BestBid *flexFloat `json:"best_bid"`
	BestAsk *flexFloat `json:"best_ask"`
}

// subscribeCommand is the market-channel subscription payload.
type subscribeCommand struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// --------------------------------------------------------------------------
// Sports websocket DTOs
// --------------------------------------------------------------------------

type sportResult struct {
	GameID             *optInt     `json:"gameId"`
	LeagueAbbreviation flexString  `json:"leagueAbbreviation"`
	Slug               flexString  `json:"slug"`
	HomeTeam           flexString  `json:"homeTeam"`
	AwayTeam           flexString  `json:"awayTeam"`
	Status             flexString  `json:"status"`
	Score              *flexString `json:"score"`
	Period             *flexString `json:"period"`
	Elapsed            *flexString `json:"elapsed"`
	Live               flexBool    `json:"live"`
	Ended              flexBool    `json:"ended"`
	Turn               *flexString `json:"turn"`
	FinishedTimestamp  *flexString `json:"finished_timestamp"`
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Gamma /markets endpoint.
type APIMarket struct {
	ID             flexString `json:"id"`
	ConditionID    string     `json:"conditionId"`
	ConditionIDAlt string     `json:"condition_id"`
	Question       string     `json:"question"`
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	Slug           string     `json:"slug"`
	Volume24hr     flexFloat  `json:"volume24hr"`
	Volume         flexFloat  `json:"volume"`
	Liquidity      flexFloat  `json:"liquidity"`
	LiquidityNum   flexFloat  `json:"liquidityNum"`
	Active         *flexBool  `json:"active"`
	Closed         flexBool   `json:"closed"`
	Outcomes       stringList `json:"outcomes"`
	OutcomePrices  stringList `json:"outcomePrices"`
	ClobTokenIDs   stringList `json:"clobTokenIds"`
}
