package domain

import "time"

// Outcome is one tradeable side of a market, addressed by its CLOB token id.
type Outcome struct {
	TokenID string  `json:"token_id"`
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
}

// Market is venue market metadata as returned by discovery.
type Market struct {
	ID          string
	Venue       string
	ConditionID string
	Question    string
	Category    string
	Slug        string
	Volume24h   float64
	Liquidity   float64
	Active      bool
	Outcomes    []Outcome
	UpdatedAt   time.Time
}

// AssetIDs returns the non-empty token ids of the market's outcomes.
func (m Market) AssetIDs() []string {
	ids := make([]string, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		if o.TokenID != "" {
			ids = append(ids, o.TokenID)
		}
	}
	return ids
}

// DiscoveryOpts controls which discovered markets get tracked.
type DiscoveryOpts struct {
	FetchLimit        int
	TrackCount        int
	MinVolume24h      float64
	MinLiquidity      float64
	CategoryAllowlist []string
	CategoryDenylist  []string
	Pinned            []string
}
