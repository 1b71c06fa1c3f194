// Package safe provides numeric validation guards for order and price math.
// The engine fails closed on any non-finite value: a malformed price or
// quantity must never reach the venue.
package safe

import "math"

// Finite reports whether v is a usable float64 (not NaN, not ±Inf).
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PositiveFinite reports whether v is finite and strictly greater than zero.
func PositiveFinite(v float64) bool {
	return Finite(v) && v > 0
}

// ValidPrice reports whether p can be submitted as an order price.
func ValidPrice(p float64) bool {
	return PositiveFinite(p)
}

// ValidQty reports whether q can be submitted as an order quantity.
func ValidQty(q float64) bool {
	return PositiveFinite(q)
}

// Round trims v to the given number of decimal places, half away from zero.
// Venue filters reject prices with excess precision.
func Round(v float64, places int) float64 {
	if !Finite(v) {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
