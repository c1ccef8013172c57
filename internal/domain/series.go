package domain

// MidPoint is the mid observed right after one record was applied.
type MidPoint struct {
	TS  int64    `json:"ts"`
	Mid *float64 `json:"mid"`
}

// MetricsRow is one closed bucket of the bucketed metrics series.
type MetricsRow struct {
	TS       int64    `json:"ts"`
	Mid      *float64 `json:"mid"`
	Spread   *float64 `json:"spread"`
	DepthBid float64  `json:"depth_bid"`
	DepthAsk float64  `json:"depth_ask"`
	OFI      float64  `json:"ofi"`
}

// HeatmapRow is the price-banded, tick-binned book at the end of a bucket.
type HeatmapRow struct {
	TS   int64        `json:"ts"`
	Mid  float64      `json:"mid"`
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}
