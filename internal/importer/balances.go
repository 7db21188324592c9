package importer

import (
	"strings"

	"github.com/eddiefleurent/positionbook/internal/util"
)

var balanceSkipLabels = map[string]struct{}{
	"all accounts":    {},
	"option details":  {},
	"funds available": {},
	"investments":     {},
}

// balancesFormat reads "Balances for All-Accounts" exports: single-cell
// account headers followed by label/value rows.
type balancesFormat struct{}

func (balancesFormat) Kind() Kind { return KindBalances }

func (balancesFormat) Detect(sample []record) bool {
	return anyRowContains(sample, "balances for all accounts") ||
		anyRowContains(sample, "total accounts value", "cash & cash investments total")
}

func (balancesFormat) Extract(rows []record, summary *Summary) (*Result, error) {
	res := &Result{}
	balances := newBalanceSet()
	headerLine := make(map[string]int)

	var current string
	for _, r := range rows {
		if r.blank() {
			continue
		}
		first := r.first()
		key := normalizePhrase(first)

		if strings.HasPrefix(key, "balances for") {
			if d, ok := util.FindDate(first); ok {
				res.AsOf = d
			}
			continue
		}
		if r.nonEmpty() == 1 && first != "" && !strings.HasPrefix(key, "total ") {
			if _, skip := balanceSkipLabels[key]; skip {
				current = ""
				continue
			}
			current = NormalizeAccountName(first)
			balances.get(current)
			if _, seen := headerLine[current]; !seen {
				headerLine[current] = r.line
			}
			continue
		}
		if current == "" || first == "" {
			continue
		}

		switch {
		case strings.HasPrefix(key, "cash & cash investments") && !strings.Contains(key, "total"):
			if v, ok := firstNumber(r); ok {
				balances.get(current).Cash = &v
			}
		case strings.HasPrefix(key, "account value"):
			if v, ok := firstNumber(r); ok {
				balances.get(current).AccountValue = &v
			}
		}
	}

	for _, name := range balances.order {
		bal := balances.byName[name]
		if bal.Cash == nil && bal.AccountValue == nil {
			summary.reject(&RowError{Line: headerLine[name], Section: name, Reason: "no cash or account value found"})
			continue
		}
		summary.accept()
		res.Balances = append(res.Balances, *bal)
	}

	if len(res.Balances) == 0 {
		return res, noUsableRows(summary)
	}
	return res, nil
}

// firstNumber returns the first numeric cell after the label.
func firstNumber(r record) (float64, bool) {
	for i := 1; i < len(r.cells); i++ {
		if v, ok := util.ParseNumber(r.cell(i)); ok {
			return v, true
		}
	}
	return 0, false
}
