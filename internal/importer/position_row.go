package importer

import (
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/occ"
	"github.com/eddiefleurent/positionbook/internal/util"
)

var plainTicker = regexp.MustCompile(`^[A-Z][A-Z0-9./\-]{0,9}$`)

// buildPosition turns one row into a Position using the resolved columns.
// hint forces the asset class when the surrounding section already knows it.
func buildPosition(r record, cols columns, hint models.AssetClass) (models.Position, error) {
	symbol := strings.ToUpper(cols.get(r, fieldSymbol))
	desc := cols.get(r, fieldDescription)

	qty, ok := util.ParseNumber(cols.get(r, fieldQty))
	if !ok {
		return models.Position{}, errors.New("quantity is missing or not a number")
	}
	if qty == 0 {
		return models.Position{}, errors.New("zero quantity")
	}
	qty = applySide(qty, cols.get(r, fieldSide))

	p := models.Position{Symbol: symbol, Quantity: qty}

	class := hint
	if class == "" {
		if c, ok := models.ParseAssetClass(cols.get(r, fieldAssetClass)); ok {
			class = c
		} else if c, ok := models.ParseAssetClass(cols.get(r, fieldOptionType)); ok {
			class = c
		}
	}

	if class == "" || class == models.AssetOption {
		if c, sym, ok := resolveOption(r, cols, symbol, desc); ok {
			class = models.AssetOption
			p.Symbol = sym
			p.Underlying = c.Underlying
			p.Expiry = c.Expiry
			p.Strike = c.Strike
			p.Right = c.Right
		} else if class == models.AssetOption {
			p.Underlying = cols.get(r, fieldUnderlying)
		}
	}

	if class == models.AssetFuture || (class == "" && strings.HasPrefix(symbol, "/")) {
		class = models.AssetFuture
		if fc, ok := ParseFuture(symbol); ok {
			p.Underlying = fc.Root
			p.Expiry = fc.Expiry
			p.Multiplier = fc.Multiplier
		} else {
			p.Multiplier = FutureMultiplier(symbol)
		}
	}

	if class == "" {
		class = models.AssetEquity
	}
	p.AssetClass = class

	if p.Symbol == "" {
		return models.Position{}, errors.New("empty symbol")
	}

	if m, ok := util.ParseNumber(cols.get(r, fieldMultiplier)); ok && m > 0 {
		p.Multiplier = m
	}
	if p.Multiplier <= 0 {
		p.Multiplier = models.DefaultMultiplier(class)
	}

	applyPrices(&p, r, cols)

	if mv, ok := util.ParseNumber(cols.get(r, fieldMarketValue)); ok {
		p.MarketValue = mv
	}
	p.DayPnL = util.NumberOrZero(cols.get(r, fieldDayPnL))
	p.TotalPnL = util.NumberOrZero(cols.get(r, fieldTotalPnL))
	p.Sector = cols.get(r, fieldSector)
	p.StrategyName = cols.get(r, fieldStrategy)
	p.StrategyID = cols.get(r, fieldStrategyID)
	p.Owner = cols.get(r, fieldOwner)
	p.Account = NormalizeAccountName(cols.get(r, fieldAccount))
	p.InstrumentID = cols.get(r, fieldInstrumentID)
	if d, ok := util.ParseDate(cols.get(r, fieldEntryDate)); ok {
		p.EntryDate = d
	}

	p.Normalize()
	if math.IsNaN(p.MarketValue) || math.IsInf(p.MarketValue, 0) {
		return models.Position{}, errors.New("market value is not finite")
	}
	return p, nil
}

// applySide forces the quantity sign from a LONG/SHORT or BUY/SELL column.
func applySide(qty float64, side string) float64 {
	s := strings.ToUpper(strings.TrimSpace(side))
	switch {
	case s == "":
		return qty
	case strings.HasPrefix(s, "SHORT"), strings.HasPrefix(s, "SELL"), s == "S":
		return -math.Abs(qty)
	case strings.HasPrefix(s, "LONG"), strings.HasPrefix(s, "BUY"), s == "B", s == "L":
		return math.Abs(qty)
	default:
		return qty
	}
}

// applyPrices sets price (mark/last/price, then trade price, then average
// cost) and average cost (explicit column, then cost basis per unit, then
// trade price, then price).
func applyPrices(p *models.Position, r record, cols columns) {
	price, hasPrice := util.ParseNumber(cols.get(r, fieldPrice))
	trade, hasTrade := util.ParseNumber(cols.get(r, fieldTradePrice))
	avg, hasAvg := util.ParseNumber(cols.get(r, fieldAvgCost))

	switch {
	case hasPrice:
		p.Price = price
	case hasTrade:
		p.Price = trade
	case hasAvg:
		p.Price = avg
	}

	if !hasAvg {
		if basis, ok := util.ParseNumber(cols.get(r, fieldCostBasis)); ok && basis != 0 {
			avg, hasAvg = basis/(p.Quantity*p.Multiplier), true
		}
	}

	switch {
	case hasAvg:
		p.AvgCost = models.Float(avg)
	case hasTrade:
		p.AvgCost = models.Float(trade)
	case hasPrice:
		p.AvgCost = models.Float(price)
	}
}

// resolveOption tries, in order: the symbol as OSI, explicit
// underlying/expiry/strike/right columns, then the description grammar.
func resolveOption(r record, cols columns, symbol, desc string) (occ.Contract, string, bool) {
	if c, err := occ.Parse(symbol); err == nil {
		sym, _ := c.Symbol()
		return c, sym, true
	}

	fallback := strings.ToUpper(cols.get(r, fieldUnderlying))
	if fallback == "" && plainTicker.MatchString(symbol) {
		fallback = symbol
	}

	expiry, okExp := util.ParseDate(cols.get(r, fieldExpiry))
	strike, okStrike := util.ParseNumber(cols.get(r, fieldStrike))
	right, okRight := occ.ParseRight(cols.get(r, fieldOptionType))
	if fallback != "" && okExp && okStrike && okRight {
		c := occ.Contract{Underlying: fallback, Expiry: expiry, Right: right, Strike: strike}
		if sym, err := c.Symbol(); err == nil {
			return c, sym, true
		}
	}

	for _, text := range []string{desc, symbol} {
		if text == "" {
			continue
		}
		if c, err := ParseOptionDescription(text, fallback); err == nil {
			sym, _ := c.Symbol()
			return c, sym, true
		}
	}
	return occ.Contract{}, "", false
}
