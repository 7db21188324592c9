package importer

import "strings"

// field is a canonical column role.
type field int

const (
	fieldSymbol field = iota
	fieldQty
	fieldPrice
	fieldTradePrice
	fieldAvgCost
	fieldMarketValue
	fieldDayPnL
	fieldTotalPnL
	fieldCostBasis
	fieldEntryDate
	fieldAssetClass
	fieldUnderlying
	fieldExpiry
	fieldStrike
	fieldOptionType
	fieldMultiplier
	fieldSector
	fieldStrategy
	fieldStrategyID
	fieldSide
	fieldInstrumentID
	fieldDescription
	fieldOwner
	fieldAccount
)

// columnAliases lists normalized header spellings per role, most specific first.
var columnAliases = map[field][]string{
	fieldSymbol:       {"symbol", "ticker", "sym", "security", "contract", "instrument"},
	fieldQty:          {"qty", "quantity", "qty_quantity", "shares", "position", "pos", "units", "contracts", "net_qty"},
	fieldPrice:        {"mark", "last", "last_price", "mark_price", "price", "current_price", "market_price", "close", "close_price"},
	fieldTradePrice:   {"trade_price", "avg_price", "average_price", "fill_price", "entry_price", "open_price", "cost_price"},
	fieldAvgCost:      {"avg_cost", "average_cost", "cost_per_share", "unit_cost", "avg_cost_basis"},
	fieldMarketValue:  {"market_value", "mkt_val_market_value", "mkt_val", "mark_value", "mkt_value", "position_value", "value"},
	fieldDayPnL:       {"day_pnl", "day_chng_day_change", "day_change", "day_chg", "day_p_l", "p_l_day", "day_gain"},
	fieldTotalPnL:     {"total_pnl", "pnl", "p_l", "p_l_open", "gain_gain_loss", "gain_loss", "unrealized_pnl", "unrealized_p_l", "open_pnl", "gain"},
	fieldCostBasis:    {"cost_basis", "total_cost", "cost_basis_total"},
	fieldEntryDate:    {"entry_date", "open_date", "trade_date", "date_acquired", "acquired"},
	fieldAssetClass:   {"asset_class", "security_type", "asset_type", "instrument_type", "sec_type", "class"},
	fieldUnderlying:   {"underlying", "underlying_symbol", "root", "und"},
	fieldExpiry:       {"expiry", "expiration", "exp", "expiration_date", "exp_date", "expiry_date"},
	fieldStrike:       {"strike", "strike_price"},
	fieldOptionType:   {"option_type", "right", "put_call", "call_put", "type", "cp"},
	fieldMultiplier:   {"multiplier", "mult", "contract_size"},
	fieldSector:       {"sector", "industry"},
	fieldStrategy:     {"strategy", "strategy_name"},
	fieldStrategyID:   {"strategy_id", "group_id", "strategy_group", "group"},
	fieldSide:         {"side", "direction", "long_short", "position_side"},
	fieldInstrumentID: {"instrument_id"},
	fieldDescription:  {"description", "desc", "security_description", "name"},
	fieldOwner:        {"owner", "holder"},
	fieldAccount:      {"account", "account_name", "acct", "account_number"},
}

// columns maps roles to column indexes for one header row.
type columns map[field]int

// resolveColumns matches a header row against the alias table. Exact
// normalized matches win; an alias earlier in the list beats a later one.
func resolveColumns(header []string) columns {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	cols := make(columns)
	for f, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[f] = i
				break
			}
		}
	}

	// Broker headers often decorate names, e.g. "Fees & Comm" or "Price ($)".
	if _, ok := cols[fieldQty]; !ok {
		if i, ok := prefixMatch(index, "qty_", "quantity_"); ok {
			cols[fieldQty] = i
		}
	}
	if _, ok := cols[fieldPrice]; !ok {
		if i, ok := prefixMatch(index, "price_", "mark_"); ok {
			cols[fieldPrice] = i
		}
	}
	return cols
}

func prefixMatch(index map[string]int, prefixes ...string) (int, bool) {
	best := -1
	for key, i := range index {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) && (best < 0 || i < best) {
				best = i
			}
		}
	}
	return best, best >= 0
}

func (c columns) has(f field) bool {
	_, ok := c[f]
	return ok
}

// get returns the trimmed cell for role f, or "".
func (c columns) get(r record, f field) string {
	i, ok := c[f]
	if !ok {
		return ""
	}
	return r.cell(i)
}

// positionsCapable reports whether the header can carry position rows.
func (c columns) positionsCapable() bool {
	if !c.has(fieldQty) {
		return false
	}
	return c.has(fieldSymbol) || c.has(fieldDescription) || c.has(fieldInstrumentID) || c.has(fieldUnderlying)
}
