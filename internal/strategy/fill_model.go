package strategy

import "github.com/alanyoungcy/predexchange/internal/domain"

// TouchFillModel fills a quote in full once the mid reaches it: bids when
// mid <= price, asks when mid >= price. Fills are stamped LatencyMs after
// the record that triggered them.
type TouchFillModel struct {
	LatencyMs int64
}

// Check returns the fill for q at the given mid, if any.
func (m TouchFillModel) Check(q Quote, mid float64, ts int64, key domain.BookKey) (domain.Fill, bool) {
	if q.Size <= 0 {
		return domain.Fill{}, false
	}
	switch {
	case q.Side == domain.SideBuy && mid <= q.Price:
	case q.Side == domain.SideSell && mid >= q.Price:
	default:
		return domain.Fill{}, false
	}
	return domain.Fill{
		MarketID:  key.MarketID,
		AssetID:   key.AssetID,
		Side:      q.Side,
		Price:     q.Price,
		Size:      q.Size,
		Timestamp: ts + m.LatencyMs,
	}, true
}
