package domain

import (
	"encoding/json"
	"strings"
)

// RawEvent is the event log's unit of storage. ID is assigned by the log on
// append and defines the one true replay order.
type RawEvent struct {
	ID         int64           `json:"id"`
	Venue      string          `json:"venue"`
	Channel    string          `json:"channel"`
	EventType  string          `json:"event_type"`
	MarketID   string          `json:"market_id"`
	AssetID    string          `json:"asset_id,omitempty"`
	ExchangeTS *int64          `json:"exchange_ts,omitempty"`
	IngestTS   int64           `json:"ingest_ts"`
	Payload    json.RawMessage `json:"payload"`
}

// EventFilter narrows a log scan. Empty strings and nil bounds match
// everything; bounds are inclusive and apply to IngestTS.
type EventFilter struct {
	MarketID string
	AssetID  string
	Start    *int64
	End      *int64
}

// Matches reports whether ev passes the filter. Market ids are compared in
// canonical form.
func (f EventFilter) Matches(ev RawEvent) bool {
	if f.MarketID != "" && CanonicalMarketID(ev.MarketID) != CanonicalMarketID(f.MarketID) {
		return false
	}
	if f.AssetID != "" && ev.AssetID != f.AssetID {
		return false
	}
	if f.Start != nil && ev.IngestTS < *f.Start {
		return false
	}
	if f.End != nil && ev.IngestTS > *f.End {
		return false
	}
	return true
}

// CanonicalMarketID strips a leading 0x and lower-cases the id so that REST
// (no prefix) and websocket (0x-prefixed) market ids compare equal.
func CanonicalMarketID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "0x")
	return strings.ToLower(id)
}

// MarketCount is one row of the per-market event count breakdown.
type MarketCount struct {
	MarketID string `json:"market_id"`
	Count    int64  `json:"count"`
}

// LogStats summarizes the event log.
type LogStats struct {
	TotalEvents int64         `json:"total_events"`
	MinIngestTS *int64        `json:"min_ingest_ts"`
	MaxIngestTS *int64        `json:"max_ingest_ts"`
	ByMarket    []MarketCount `json:"by_market"`
}
