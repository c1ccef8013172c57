package domain

import "time"

// Fill is a simulated execution of a strategy quote.
type Fill struct {
	MarketID  string  `json:"market_id"`
	AssetID   string  `json:"asset_id"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"`
}

// SimRun is the persisted result of one backtest.
type SimRun struct {
	RunID           string         `json:"run_id"`
	StrategyName    string         `json:"strategy_name"`
	MarketID        string         `json:"market_id"`
	AssetID         string         `json:"asset_id"`
	Params          map[string]any `json:"params"`
	FinalInventory  float64        `json:"final_inventory"`
	RealizedPnL     float64        `json:"realized_pnl"`
	FillCount       int            `json:"fill_count"`
	EventsProcessed int            `json:"events_processed"`
	CreatedAt       time.Time      `json:"created_at"`
}
