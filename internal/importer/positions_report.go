package importer

import (
	"regexp"
	"strings"

	"github.com/eddiefleurent/positionbook/internal/util"
)

var positionsForAccount = regexp.MustCompile(`(?i)positions for account\s+(.+?)\s+as of`)

// positionsReportFormat reads "Positions for ..." exports with one section per
// account, Account Total rows and Cash & Cash Investments rows.
type positionsReportFormat struct{}

func (positionsReportFormat) Kind() Kind { return KindPositions }

func (positionsReportFormat) Detect(sample []record) bool {
	return anyRowContains(sample, "positions for") || anyRowContains(sample, "custaccs")
}

func (positionsReportFormat) Extract(rows []record, summary *Summary) (*Result, error) {
	res := &Result{}
	balances := newBalanceSet()

	var (
		current string
		cols    columns
		order   []string
	)
	accepted := make(map[string]int)
	rejected := make(map[string]int)
	for _, r := range rows {
		if r.blank() {
			continue
		}
		first := r.first()
		lower := strings.ToLower(first)

		if strings.HasPrefix(lower, "positions for") {
			if d, ok := util.FindDate(first); ok {
				res.AsOf = d
			}
			if m := positionsForAccount.FindStringSubmatch(first); m != nil {
				name := NormalizeAccountName(m[1])
				if !isAllAccountsLabel(name) {
					current, cols = name, nil
				}
			}
			continue
		}
		if r.nonEmpty() == 1 && first != "" && lower != "account total" {
			if isAllAccountsLabel(first) {
				continue
			}
			current, cols = NormalizeAccountName(first), nil
			continue
		}
		if normalizeHeader(first) == "symbol" {
			cols = resolveColumns(r.cells)
			continue
		}
		if cols == nil || current == "" || first == "" {
			continue
		}

		switch {
		case lower == "account total":
			if v, ok := rowValue(r, cols); ok {
				balances.get(current).AccountValue = &v
			}
			continue
		case strings.HasPrefix(lower, "cash"):
			if v, ok := rowValue(r, cols); ok {
				balances.get(current).Cash = &v
			}
			continue
		}

		p, err := buildPosition(r, cols, "")
		if err != nil {
			summary.reject(&RowError{Line: r.line, Section: current, Reason: err.Error()})
			if rejected[current] == 0 {
				order = append(order, current)
			}
			rejected[current]++
			continue
		}
		p.Account = current
		accepted[current]++
		summary.accept()
		res.Positions = append(res.Positions, p)
	}

	for _, name := range order {
		if accepted[name] > 0 {
			continue
		}
		empty := &NoUsableRowsError{Account: name, Rejected: rejected[name]}
		for _, f := range summary.Failures {
			if f.Section == name {
				empty.Failures = append(empty.Failures, f)
			}
		}
		res.RejectedAccounts = append(res.RejectedAccounts, empty)
	}
	res.Balances = balances.list()
	if len(res.Positions) == 0 && len(res.Balances) == 0 {
		return res, noUsableRows(summary)
	}
	return res, nil
}

// rowValue reads the market value column of a totals row, falling back to the
// last numeric cell when the export shifted it.
func rowValue(r record, cols columns) (float64, bool) {
	if v, ok := util.ParseNumber(cols.get(r, fieldMarketValue)); ok {
		return v, true
	}
	for i := len(r.cells) - 1; i > 0; i-- {
		if v, ok := util.ParseNumber(r.cell(i)); ok {
			return v, true
		}
	}
	return 0, false
}

// balanceSet collects balances per account in first-seen order.
type balanceSet struct {
	byName map[string]*AccountBalance
	order  []string
}

func newBalanceSet() *balanceSet {
	return &balanceSet{byName: make(map[string]*AccountBalance)}
}

func (b *balanceSet) get(name string) *AccountBalance {
	if bal, ok := b.byName[name]; ok {
		return bal
	}
	bal := &AccountBalance{Account: name}
	b.byName[name] = bal
	b.order = append(b.order, name)
	return bal
}

// list returns balances that carry at least one value.
func (b *balanceSet) list() []AccountBalance {
	var out []AccountBalance
	for _, name := range b.order {
		bal := b.byName[name]
		if bal.Cash != nil || bal.AccountValue != nil {
			out = append(out, *bal)
		}
	}
	return out
}
