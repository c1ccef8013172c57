package orderbook

import (
	"math"

	"github.com/shopspring/decimal"
)

// Prices are keyed at six fractional digits so that snapshot and delta
// updates to the same nominal level always land on the same key.
const (
	priceDigits = 6
	priceScale  = 1_000_000
)

// NormalizePrice rounds p to six fractional digits. Non-finite input maps to 0.
func NormalizePrice(p float64) float64 {
	return keyPrice(priceKey(p))
}

// BinPrice snaps p to the nearest multiple of tick (ties to even) and
// normalizes the result.
func BinPrice(p, tick float64) float64 {
	if tick <= 0 {
		return NormalizePrice(p)
	}
	return NormalizePrice(math.RoundToEven(p/tick) * tick)
}

// exactDigits is enough fractional digits to carry a price's binary value
// through to the half-even rounding at priceDigits.
const exactDigits = 20

// priceKey rounds the binary value of p half to even at six digits. The
// shortest decimal form would round 0.0000005 up although the float lies
// below the tie.
func priceKey(p float64) int64 {
	if !finite(p) {
		return 0
	}
	return RoundHalfEven(p, priceDigits).Shift(priceDigits).IntPart()
}

// RoundHalfEven rounds the binary value of f to places fractional digits,
// ties to even.
func RoundHalfEven(f float64, places int32) decimal.Decimal {
	return decimal.NewFromFloatWithExponent(f, -exactDigits).RoundBank(places)
}

func keyPrice(k int64) float64 {
	return float64(k) / priceScale
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
