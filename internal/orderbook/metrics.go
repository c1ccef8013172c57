package orderbook

import "github.com/alanyoungcy/predexchange/internal/domain"

// SpreadPct is spread divided by mid. Absent when either is absent or mid is 0.
func SpreadPct(s domain.MarketState) (float64, bool) {
	spread, ok := s.Spread()
	if !ok {
		return 0, false
	}
	mid, ok := s.Mid()
	if !ok || mid == 0 {
		return 0, false
	}
	return spread / mid, true
}

// Imbalance is (bid - ask) / (bid + ask) over the summed sizes of the top n
// levels per side. Absent when both sides are empty.
func Imbalance(s domain.MarketState, n int) (float64, bool) {
	bids, asks := s.Depth(n)
	bid, ask := SumSize(bids), SumSize(asks)
	total := bid + ask
	if total == 0 {
		return 0, false
	}
	return (bid - ask) / total, true
}

// SumSize adds up level sizes.
func SumSize(levels []domain.PriceLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Size
	}
	return total
}

// Summarize captures the book's top-n view at updatedAt.
func Summarize(b Book, n int, updatedAt int64) domain.BookSummary {
	bids, asks := b.Depth(n)
	return domain.BookSummary{
		Key:          b.Key(),
		BestBid:      optional(b.BestBid()),
		BestAsk:      optional(b.BestAsk()),
		Mid:          optional(b.Mid()),
		Spread:       optional(b.Spread()),
		Imbalance:    optional(Imbalance(b, n)),
		Bids:         bids,
		Asks:         asks,
		HasSnapshot:  b.HasSnapshot(),
		Inconsistent: b.Inconsistent(),
		Crossed:      b.Crossed(),
		UpdatedAt:    updatedAt,
	}
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
