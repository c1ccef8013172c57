package domain

import (
	"context"
	"encoding/json"
	"time"
)

// VenueConnector is the per-exchange capability set: discovery over REST and
// streaming ingestion of the tracked instruments. Normalization and book
// state are venue agnostic; connectors only produce canonical events.
type VenueConnector interface {
	Venue() string
	DiscoverMarkets(ctx context.Context, opts DiscoveryOpts) ([]Market, error)
	RunIngestion(ctx context.Context, assetIDs []string) error
}

// Normalizer translates one stored venue payload into canonical events.
// Implementations must be pure: the same payload always yields the same
// events.
type Normalizer interface {
	Normalize(payload json.RawMessage, ingestTS int64) []Event
}

// FeedConn is a message-oriented connection to a venue feed. Read returns
// ErrReadTimeout when no message arrives within timeout; the connection
// stays usable after a timeout.
type FeedConn interface {
	Read(ctx context.Context, timeout time.Duration) ([]byte, error)
	WriteText(ctx context.Context, data []byte) error
	Close() error
}

// FeedDialer opens feed connections.
type FeedDialer interface {
	Dial(ctx context.Context, url string) (FeedConn, error)
}
