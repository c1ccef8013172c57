package strategy

import "github.com/alanyoungcy/predexchange/internal/domain"

// Portfolio tracks inventory and PnL over one run.
type Portfolio struct {
	Inventory   float64
	Cash        float64
	RealizedPnL float64
	FillCount   int
}

// ApplyFill books f and marks the position to the fill price.
func (p *Portfolio) ApplyFill(f domain.Fill) {
	notional := f.Price * f.Size
	if f.Side == domain.SideBuy {
		p.Inventory += f.Size
		p.Cash -= notional
	} else {
		p.Inventory -= f.Size
		p.Cash += notional
	}
	p.RealizedPnL = p.Cash + p.Inventory*f.Price
	p.FillCount++
}

// UnrealizedPnL marks the position to mark.
func (p *Portfolio) UnrealizedPnL(mark float64) float64 {
	return p.Cash + p.Inventory*mark
}
