// Package models holds the canonical position book types shared by the importer,
// the reconciler, the NAV series store and the netting view.
package models

import (
	"math"
	"strings"
	"time"
)

const sharesPerContract = 100.0

// AssetClass classifies a position for multiplier and display purposes.
type AssetClass string

const (
	// AssetEquity covers stocks, ETFs and funds
	AssetEquity AssetClass = "EQUITY"
	// AssetOption is a listed equity or index option
	AssetOption AssetClass = "OPTION"
	// AssetFuture is an exchange-traded future
	AssetFuture AssetClass = "FUTURE"
	// AssetForex is a currency pair
	AssetForex AssetClass = "FOREX"
)

// Valid returns true if the AssetClass is one of the defined constants
func (c AssetClass) Valid() bool {
	switch c {
	case AssetEquity, AssetOption, AssetFuture, AssetForex:
		return true
	default:
		return false
	}
}

// ParseAssetClass maps free-form broker wording onto an AssetClass.
// The second return value is false when nothing matched.
func ParseAssetClass(s string) (AssetClass, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case v == "":
		return "", false
	case strings.HasPrefix(v, "OPT"), v == "CALL", v == "PUT":
		return AssetOption, true
	case strings.HasPrefix(v, "FUT"):
		return AssetFuture, true
	case strings.HasPrefix(v, "FOREX"), v == "FX", strings.HasPrefix(v, "CURRENC"):
		return AssetForex, true
	case strings.HasPrefix(v, "EQUIT"), strings.HasPrefix(v, "STOCK"), v == "ETF",
		strings.Contains(v, "ETF"), strings.Contains(v, "FUND"), v == "EQ":
		return AssetEquity, true
	default:
		return "", false
	}
}

// OptionRight is the call/put flag of an option contract.
type OptionRight string

const (
	// RightCall is a call option
	RightCall OptionRight = "CALL"
	// RightPut is a put option
	RightPut OptionRight = "PUT"
)

// Code returns the single letter used in OSI symbols.
func (r OptionRight) Code() string {
	if r == RightPut {
		return "P"
	}
	return "C"
}

// Position is one holding in an account's book. Identity is (Account, InstrumentID).
type Position struct {
	EntryDate    time.Time   `json:"entry_date,omitempty"`
	Expiry       time.Time   `json:"expiry,omitempty"`
	AvgCost      *float64    `json:"avg_cost"`
	Account      string      `json:"account"`
	InstrumentID string      `json:"instrument_id"`
	Symbol       string      `json:"symbol"`
	AssetClass   AssetClass  `json:"asset_class"`
	Underlying   string      `json:"underlying,omitempty"`
	Right        OptionRight `json:"right,omitempty"`
	Owner        string      `json:"owner,omitempty"`
	Sector       string      `json:"sector,omitempty"`
	StrategyID   string      `json:"strategy_id,omitempty"`
	StrategyName string      `json:"strategy_name,omitempty"`
	Quantity     float64     `json:"quantity"`
	Price        float64     `json:"price"`
	MarketValue  float64     `json:"market_value"`
	DayPnL       float64     `json:"day_pnl"`
	TotalPnL     float64     `json:"total_pnl"`
	Strike       float64     `json:"strike,omitempty"`
	Multiplier   float64     `json:"multiplier"`
}

// InstrumentKey builds the default instrument id, e.g. "AAPL:EQUITY".
func InstrumentKey(symbol string, class AssetClass) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + ":" + string(class)
}

// DefaultMultiplier returns the contract multiplier assumed when a file does not carry one.
func DefaultMultiplier(class AssetClass) float64 {
	if class == AssetOption {
		return sharesPerContract
	}
	return 1
}

// EffectiveMultiplier returns Multiplier, or the asset class default when unset.
func (p *Position) EffectiveMultiplier() float64 {
	if p.Multiplier > 0 {
		return p.Multiplier
	}
	return DefaultMultiplier(p.AssetClass)
}

// CostPrice returns the average cost, falling back to the current price.
func (p *Position) CostPrice() float64 {
	if p.AvgCost != nil {
		return *p.AvgCost
	}
	return p.Price
}

// ComputedMarketValue is quantity x price x multiplier.
func (p *Position) ComputedMarketValue() float64 {
	return p.Quantity * p.Price * p.EffectiveMultiplier()
}

// Normalize fills derived fields: upper-case symbol, instrument id, multiplier
// and market value when the source did not report one.
func (p *Position) Normalize() {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.Underlying = strings.ToUpper(strings.TrimSpace(p.Underlying))
	if p.AssetClass == "" {
		p.AssetClass = AssetEquity
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultMultiplier(p.AssetClass)
	}
	if p.InstrumentID == "" {
		p.InstrumentID = InstrumentKey(p.Symbol, p.AssetClass)
	}
	if p.MarketValue == 0 {
		p.MarketValue = p.ComputedMarketValue()
	}
}

// ProfitPercent returns total P&L as a percentage of cost notional.
// Returns 0 when the cost notional is zero.
func (p *Position) ProfitPercent() float64 {
	denom := math.Abs(p.CostPrice() * p.Quantity * p.EffectiveMultiplier())
	if denom == 0 {
		return 0
	}
	return (p.TotalPnL / denom) * 100
}

// Float returns a pointer to v. Handy for the nullable numeric fields.
func Float(v float64) *float64 {
	return &v
}
