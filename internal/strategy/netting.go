// Package strategy rolls multi-leg option positions up into net strategy rows
// for display and risk views. Nothing here is stored.
package strategy

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/positionbook/internal/models"
)

const defaultBaselineMultiplier = 100.0

// Side is the net direction of a strategy.
type Side string

const (
	// SideLong is a net debit strategy
	SideLong Side = "LONG"
	// SideShort is a net credit strategy
	SideShort Side = "SHORT"
)

// Summary is the net view of one strategy group.
type Summary struct {
	Expiry          time.Time `json:"expiry,omitempty"`
	StrategyID      string    `json:"strategy_id"`
	StrategyName    string    `json:"strategy_name,omitempty"`
	Underlying      string    `json:"underlying,omitempty"`
	Side            Side      `json:"side"`
	Legs            int       `json:"legs"`
	Units           float64   `json:"units"`
	Multiplier      float64   `json:"multiplier"`
	NetPrice        float64   `json:"net_price"`
	NetAvgCost      float64   `json:"net_avg_cost"`
	NetNotional     float64   `json:"net_notional"`
	NetCostNotional float64   `json:"net_cost_notional"`
	MarketValue     float64   `json:"market_value"`
	DayPnL          float64   `json:"day_pnl"`
	TotalPnL        float64   `json:"total_pnl"`
	ProfitPercent   float64   `json:"profit_percent"`
}

// Row is one line of the netted view: a summary, a leg under a summary, or
// an ordinary position.
type Row struct {
	Position   *models.Position `json:"position,omitempty"`
	Summary    *Summary         `json:"summary,omitempty"`
	StrategyID string           `json:"strategy_id,omitempty"`
	Leg        bool             `json:"leg,omitempty"`
}

// Options controls the netted view.
type Options struct {
	// Collapsed hides the legs of the listed strategy ids.
	Collapsed map[string]bool
}

// ParseCollapsed turns "ID1,ID2" into an Options.Collapsed set.
func ParseCollapsed(list string) map[string]bool {
	out := make(map[string]bool)
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}

// groupKey returns the strategy id a position nets under, or "".
func groupKey(p *models.Position) string {
	if p.AssetClass != models.AssetOption {
		return ""
	}
	return strings.TrimSpace(p.StrategyID)
}

// Netted builds the display view. Option positions sharing a strategy id with
// at least one other leg are replaced by a summary row at the first leg's
// place, followed by the legs unless the strategy is collapsed. Everything
// else passes through in order.
func Netted(positions []models.Position, opts Options) []Row {
	groups := make(map[string][]int)
	for i := range positions {
		if key := groupKey(&positions[i]); key != "" {
			groups[key] = append(groups[key], i)
		}
	}

	rows := make([]Row, 0, len(positions)+len(groups))
	emitted := make(map[string]bool)
	for i := range positions {
		p := &positions[i]
		key := groupKey(p)
		members := groups[key]
		if key == "" || len(members) < 2 {
			rows = append(rows, Row{Position: p, StrategyID: p.StrategyID})
			continue
		}
		if emitted[key] {
			continue
		}
		emitted[key] = true

		legs := make([]models.Position, len(members))
		for j, idx := range members {
			legs[j] = positions[idx]
		}
		sum := Summarize(legs)
		rows = append(rows, Row{Summary: &sum, StrategyID: key})
		if opts.Collapsed[key] {
			continue
		}
		for _, idx := range members {
			rows = append(rows, Row{Position: &positions[idx], StrategyID: key, Leg: true})
		}
	}
	return rows
}

// Summarize nets legs into one strategy line. Quantities are expressed in
// units of the smallest leg and prices per baseline multiplier, taken from
// the first leg.
func Summarize(legs []models.Position) Summary {
	var s Summary
	if len(legs) == 0 {
		return s
	}
	first := legs[0]
	s.StrategyID = first.StrategyID
	s.StrategyName = first.StrategyName
	s.Underlying = first.Underlying
	s.Legs = len(legs)

	s.Multiplier = first.Multiplier
	if s.Multiplier <= 0 {
		s.Multiplier = defaultBaselineMultiplier
	}
	s.Units = units(legs)

	for i := range legs {
		leg := &legs[i]
		mult := leg.EffectiveMultiplier()
		s.NetNotional += leg.Quantity * leg.Price * mult
		s.NetCostNotional += leg.Quantity * leg.CostPrice() * mult
		s.MarketValue += leg.MarketValue
		s.DayPnL += leg.DayPnL
		s.TotalPnL += leg.TotalPnL
		if s.StrategyName == "" {
			s.StrategyName = leg.StrategyName
		}
		if !leg.Expiry.IsZero() && (s.Expiry.IsZero() || leg.Expiry.Before(s.Expiry)) {
			s.Expiry = leg.Expiry
		}
		if s.Underlying != leg.Underlying {
			s.Underlying = ""
		}
	}

	scale := s.Units * s.Multiplier
	s.NetPrice = s.NetNotional / scale
	s.NetAvgCost = s.NetCostNotional / scale
	if basis := math.Abs(s.NetAvgCost) * scale; basis != 0 {
		s.ProfitPercent = s.TotalPnL / basis * 100
	}

	s.Side = SideLong
	if s.NetNotional < 0 {
		s.Side = SideShort
	}
	return s
}

// units is the smallest non-zero absolute leg quantity.
func units(legs []models.Position) float64 {
	u := 0.0
	for _, leg := range legs {
		q := math.Abs(leg.Quantity)
		if q > 0 && (u == 0 || q < u) {
			u = q
		}
	}
	if u == 0 {
		u = math.Abs(legs[0].Quantity)
	}
	if u == 0 {
		u = 1
	}
	return u
}

// Exposure is the market value held against one underlying.
type Exposure struct {
	Underlying  string  `json:"underlying"`
	MarketValue float64 `json:"market_value"`
	Positions   int     `json:"positions"`
}

// ExposureByUnderlying sums market value per underlying (the symbol itself
// for non-derivatives), largest absolute exposure first.
func ExposureByUnderlying(positions []models.Position) []Exposure {
	index := make(map[string]int)
	var out []Exposure
	for _, p := range positions {
		key := p.Underlying
		if key == "" {
			key = p.Symbol
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, Exposure{Underlying: key})
			i = len(out) - 1
		}
		out[i].MarketValue += p.MarketValue
		out[i].Positions++
	}
	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].MarketValue) > math.Abs(out[b].MarketValue)
	})
	return out
}
