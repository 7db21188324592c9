// Package util provides tolerant parsing of broker-formatted numbers and dates
// plus small price helpers.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundToTick rounds x to the nearest multiple of tick, halves away from zero.
// The division happens in decimal so 152.4999999 with tick 0.001 lands on
// 152.5 instead of drifting in binary.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	t := decimal.NewFromFloat(tick)
	v, _ := decimal.NewFromFloat(x).Div(t).Round(0).Mul(t).Float64()
	return v
}
