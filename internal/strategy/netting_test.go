package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/positionbook/internal/models"
)

func leg(symbol, strategyID string, qty, price float64) models.Position {
	p := models.Position{
		Symbol:     symbol,
		AssetClass: models.AssetOption,
		Underlying: "SPY",
		StrategyID: strategyID,
		Quantity:   qty,
		Price:      price,
		Expiry:     time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	}
	p.Normalize()
	return p
}

func TestSummarize_Vertical(t *testing.T) {
	long := leg("SPY260320C00500000", "V1", 1, 5)
	long.AvgCost = models.Float(4)
	long.TotalPnL = 100
	short := leg("SPY260320C00510000", "V1", -1, 2)
	short.AvgCost = models.Float(2.5)
	short.TotalPnL = -50

	s := Summarize([]models.Position{long, short})

	assert.Equal(t, 2, s.Legs)
	assert.Equal(t, 1.0, s.Units)
	assert.Equal(t, 100.0, s.Multiplier)
	assert.InDelta(t, 300.0, s.NetNotional, 1e-9)
	assert.InDelta(t, 3.0, s.NetPrice, 1e-9)
	assert.InDelta(t, 1.5, s.NetAvgCost, 1e-9)
	assert.InDelta(t, 300.0, s.MarketValue, 1e-9)
	assert.InDelta(t, 50.0, s.TotalPnL, 1e-9)
	assert.InDelta(t, 50.0/150.0*100, s.ProfitPercent, 1e-9)
	assert.Equal(t, SideLong, s.Side)
	assert.Equal(t, "SPY", s.Underlying)
}

func TestSummarize_UnitsAndSide(t *testing.T) {
	tests := []struct {
		name      string
		legs      []models.Position
		wantUnits float64
		wantSide  Side
		wantPrice float64
	}{
		{
			name: "short strangle of two",
			legs: []models.Position{
				leg("SPY260320P00450000", "S", -2, 3),
				leg("SPY260320C00550000", "S", -2, 2),
			},
			wantUnits: 2, wantSide: SideShort, wantPrice: -5,
		},
		{
			name: "ratio spread uses smallest leg",
			legs: []models.Position{
				leg("SPY260320C00500000", "R", 1, 6),
				leg("SPY260320C00520000", "R", -2, 2),
			},
			wantUnits: 1, wantSide: SideLong, wantPrice: 2,
		},
		{
			name: "all zero quantities fall back to one unit",
			legs: []models.Position{
				leg("SPY260320C00500000", "Z", 0, 6),
				leg("SPY260320C00520000", "Z", 0, 2),
			},
			wantUnits: 1, wantSide: SideLong, wantPrice: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.legs)
			assert.Equal(t, tt.wantUnits, s.Units)
			assert.Equal(t, tt.wantSide, s.Side)
			assert.InDelta(t, tt.wantPrice, s.NetPrice, 1e-9)
		})
	}
}

func TestSummarize_ZeroBasisProfitPercent(t *testing.T) {
	a := leg("SPY260320C00500000", "B", 1, 2)
	b := leg("SPY260320C00510000", "B", -1, 2)
	a.TotalPnL = 10

	s := Summarize([]models.Position{a, b})
	assert.Zero(t, s.NetAvgCost)
	assert.Zero(t, s.ProfitPercent)
}

func TestNetted(t *testing.T) {
	positions := []models.Position{
		{Symbol: "AAPL", AssetClass: models.AssetEquity, Quantity: 10, StrategyID: "V1"},
		leg("SPY260320C00500000", "V1", 1, 5),
		leg("SPY260320P00400000", "SOLO", -1, 1),
		{Symbol: "MSFT", AssetClass: models.AssetEquity, Quantity: 5},
		leg("SPY260320C00510000", "V1", -1, 2),
	}

	rows := Netted(positions, Options{})
	require.Len(t, rows, 6)

	assert.Equal(t, "AAPL", rows[0].Position.Symbol, "equities never group")

	require.NotNil(t, rows[1].Summary)
	assert.Equal(t, "V1", rows[1].StrategyID)
	assert.InDelta(t, 3.0, rows[1].Summary.NetPrice, 1e-9)

	assert.True(t, rows[2].Leg)
	assert.Equal(t, "SPY260320C00500000", rows[2].Position.Symbol)
	assert.True(t, rows[3].Leg)
	assert.Equal(t, "SPY260320C00510000", rows[3].Position.Symbol)

	assert.Nil(t, rows[4].Summary, "a one-leg group is not summarized")
	assert.False(t, rows[4].Leg)
	assert.Equal(t, "SOLO", rows[4].StrategyID)

	assert.Equal(t, "MSFT", rows[5].Position.Symbol)
}

func TestNetted_Collapsed(t *testing.T) {
	positions := []models.Position{
		leg("SPY260320C00500000", "V1", 1, 5),
		leg("SPY260320C00510000", "V1", -1, 2),
		{Symbol: "MSFT", AssetClass: models.AssetEquity, Quantity: 5},
	}

	rows := Netted(positions, Options{Collapsed: ParseCollapsed(" V1 ,X")})
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].Summary)
	assert.Equal(t, 2, rows[0].Summary.Legs)
	assert.Equal(t, "MSFT", rows[1].Position.Symbol)
}

func TestExposureByUnderlying(t *testing.T) {
	positions := []models.Position{
		{Symbol: "AAPL", MarketValue: 1000},
		{Symbol: "SPY260320C00500000", Underlying: "SPY", MarketValue: 500},
		{Symbol: "SPY", MarketValue: 4000},
		{Symbol: "SPY260320P00400000", Underlying: "SPY", MarketValue: -300},
	}

	got := ExposureByUnderlying(positions)
	require.Len(t, got, 2)
	assert.Equal(t, Exposure{Underlying: "SPY", MarketValue: 4200, Positions: 3}, got[0])
	assert.Equal(t, Exposure{Underlying: "AAPL", MarketValue: 1000, Positions: 1}, got[1])
}
