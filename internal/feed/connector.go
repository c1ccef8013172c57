package feed

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/platform/polymarket"
)

// MarketFetcher lists a venue's open markets.
type MarketFetcher interface {
	FetchMarkets(ctx context.Context, limit int) ([]domain.Market, error)
}

// PolymarketConnector is the Polymarket implementation of
// domain.VenueConnector.
type PolymarketConnector struct {
	markets MarketFetcher
	session *Session
}

// NewPolymarketConnector binds discovery and an ingestion session.
func NewPolymarketConnector(markets MarketFetcher, session *Session) *PolymarketConnector {
	return &PolymarketConnector{markets: markets, session: session}
}

func (c *PolymarketConnector) Venue() string { return polymarket.Venue }

// DiscoverMarkets fetches open markets and selects the ones to track.
func (c *PolymarketConnector) DiscoverMarkets(ctx context.Context, opts domain.DiscoveryOpts) ([]domain.Market, error) {
	limit := opts.FetchLimit
	if limit <= 0 {
		limit = 200
	}
	all, err := c.markets.FetchMarkets(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("feed: discover markets: %w", err)
	}
	return polymarket.SelectTopMarkets(all, opts), nil
}

// RunIngestion runs the session for assetIDs.
func (c *PolymarketConnector) RunIngestion(ctx context.Context, assetIDs []string) error {
	if c.session == nil {
		return fmt.Errorf("feed: polymarket connector has no ingestion session")
	}
	return c.session.Run(ctx, assetIDs)
}

var _ domain.VenueConnector = (*PolymarketConnector)(nil)
