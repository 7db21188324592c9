package importer

import (
	"regexp"
	"strings"

	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/util"
)

var statementAccount = regexp.MustCompile(`(?i)account statement for\s+([^\s,]+)`)

// sectionExclusions are section titles that mention an asset class but do
// not list holdings.
var sectionExclusions = []string{"cash", "history", "order", "trade", "summary", "profit", "balance"}

// statementFormat reads sectioned account statements. Each holdings section
// is a title row, a column header row and data rows that end at a blank row,
// a new title or a totals row.
type statementFormat struct{}

func (statementFormat) Kind() Kind { return KindStatement }

func (statementFormat) Detect(sample []record) bool {
	return anyRowContains(sample, "account statement")
}

type statementSection struct {
	cols   columns
	label  string
	class  models.AssetClass
	active bool
}

func (statementFormat) Extract(rows []record, summary *Summary) (*Result, error) {
	res := &Result{}
	var (
		sec          statementSection
		accountValue *float64
	)

	for _, r := range rows {
		if r.blank() {
			sec = statementSection{}
			continue
		}
		first := r.first()
		key := normalizePhrase(first)

		if strings.Contains(key, "account statement") {
			if m := statementAccount.FindStringSubmatch(first); m != nil {
				res.Account = m[1]
			}
			if d, ok := util.FindLastDate(first); ok {
				res.AsOf = d
			}
			continue
		}
		if key == "net liquidating value" {
			if v, ok := firstNumber(r); ok {
				accountValue = &v
			}
			continue
		}
		if r.nonEmpty() == 1 && first != "" {
			class, ok := classifySection(key)
			sec = statementSection{label: first, class: class, active: ok}
			continue
		}
		if !sec.active {
			continue
		}
		if sec.cols == nil {
			cols := resolveColumns(r.cells)
			if !cols.positionsCapable() {
				sec = statementSection{}
				continue
			}
			sec.cols = cols
			continue
		}
		if isTotalsRow(r) {
			sec = statementSection{}
			continue
		}

		p, err := buildPosition(r, sec.cols, sec.class)
		if err != nil {
			summary.reject(&RowError{Line: r.line, Section: sec.label, Reason: err.Error()})
			continue
		}
		summary.accept()
		res.Positions = append(res.Positions, p)
	}

	if accountValue != nil {
		res.Balances = []AccountBalance{{Account: res.Account, AccountValue: accountValue}}
	}
	if len(res.Positions) == 0 {
		return res, noUsableRows(summary)
	}
	return res, nil
}

// classifySection maps a section title to an asset class. POSITIONS sections
// return an empty class so each row infers its own. ok is false for sections
// that do not hold positions.
func classifySection(title string) (models.AssetClass, bool) {
	for _, ex := range sectionExclusions {
		if strings.Contains(title, ex) {
			return "", false
		}
	}
	switch {
	case strings.Contains(title, "equities"), strings.Contains(title, "stocks"):
		return models.AssetEquity, true
	case strings.Contains(title, "options"):
		return models.AssetOption, true
	case strings.Contains(title, "futures"):
		return models.AssetFuture, true
	case strings.Contains(title, "forex"):
		return models.AssetForex, true
	case strings.Contains(title, "positions"):
		return "", true
	default:
		return "", false
	}
}

func isTotalsRow(r record) bool {
	if strings.Contains(strings.ToLower(r.cell(1)), "total") {
		return true
	}
	first := strings.ToLower(r.first())
	return strings.HasPrefix(first, "total") || strings.HasPrefix(first, "overall total") || strings.HasPrefix(first, "subtotal")
}
