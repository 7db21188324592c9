package navseries

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/eddiefleurent/positionbook/internal/models"
)

const tradingDaysPerYear = 252

// LineStats summarises one value line of a series.
type LineStats struct {
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Volatility  float64 `json:"volatility"`
	MeanReturn  float64 `json:"mean_return"`
}

// Stats compares the NAV line against the benchmark line.
type Stats struct {
	NAV    LineStats `json:"nav"`
	Bench  LineStats `json:"bench"`
	Points int       `json:"points"`
	// Correlation of period returns, 0 with fewer than two returns.
	Correlation float64 `json:"correlation"`
}

// ComputeStats derives returns, drawdown and annualised volatility from points.
func ComputeStats(points []models.NavPoint) Stats {
	navs := make([]float64, len(points))
	benches := make([]float64, len(points))
	for i, p := range points {
		navs[i] = p.NAV
		benches[i] = p.Bench
	}

	navReturns, benchReturns := returns(navs), returns(benches)
	st := Stats{
		NAV:    lineStats(navs, navReturns),
		Bench:  lineStats(benches, benchReturns),
		Points: len(points),
	}
	if len(navReturns) >= 2 && len(navReturns) == len(benchReturns) {
		if c := stat.Correlation(navReturns, benchReturns, nil); !math.IsNaN(c) {
			st.Correlation = c
		}
	}
	return st
}

func lineStats(values, rets []float64) LineStats {
	var ls LineStats
	if len(values) >= 2 && values[0] > 0 {
		ls.TotalReturn = values[len(values)-1]/values[0] - 1
	}
	ls.MaxDrawdown = maxDrawdown(values)
	if len(rets) > 0 {
		ls.MeanReturn = stat.Mean(rets, nil)
	}
	if len(rets) >= 2 {
		ls.Volatility = stat.StdDev(rets, nil) * math.Sqrt(tradingDaysPerYear)
	}
	return ls
}

// returns yields simple period returns, skipping periods that start at or below zero.
func returns(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// maxDrawdown is the largest peak-to-trough decline as a positive fraction.
func maxDrawdown(values []float64) float64 {
	var peak, worst float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
