package importer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/occ"
	"github.com/eddiefleurent/positionbook/internal/util"
)

// Side is the direction of a trade.
type Side string

const (
	// SideBuy opens or adds to a long, or closes a short
	SideBuy Side = "BUY"
	// SideSell closes a long, or opens or adds to a short
	SideSell Side = "SELL"
)

var cashOnlyKeywords = []string{"dividend", "interest", "tax", "fee", "journal", "transfer", "cash", "withholding"}

// Transaction is one row of a transaction history. CashOnly rows carry only
// an Amount.
type Transaction struct {
	Date        time.Time          `json:"date"`
	Expiry      time.Time          `json:"expiry,omitempty"`
	Action      string             `json:"action"`
	Side        Side               `json:"side,omitempty"`
	Symbol      string             `json:"symbol,omitempty"`
	Description string             `json:"description,omitempty"`
	AssetClass  models.AssetClass  `json:"asset_class,omitempty"`
	Underlying  string             `json:"underlying,omitempty"`
	Right       models.OptionRight `json:"right,omitempty"`
	Strike      float64            `json:"strike,omitempty"`
	Multiplier  float64            `json:"multiplier,omitempty"`
	Quantity    float64            `json:"quantity"`
	Price       float64            `json:"price"`
	Fees        float64            `json:"fees"`
	Amount      float64            `json:"amount"`
	CashOnly    bool               `json:"cash_only"`
}

// InstrumentID is the key of the position the trade affects.
func (t Transaction) InstrumentID() string {
	return models.InstrumentKey(t.Symbol, t.Class())
}

// Class returns the asset class, EQUITY when the row did not say.
func (t Transaction) Class() models.AssetClass {
	if t.AssetClass == "" {
		return models.AssetEquity
	}
	return t.AssetClass
}

// transactionsFormat reads broker transaction histories with Date, Action,
// Symbol, Quantity, Price, Fees and Amount columns.
type transactionsFormat struct{}

func (transactionsFormat) Kind() Kind { return KindTransactions }

func (transactionsFormat) Detect(sample []record) bool {
	_, _, ok := findTransactionHeader(sample)
	return ok
}

func findTransactionHeader(rows []record) (int, map[string]int, bool) {
	for i, r := range rows {
		idx := make(map[string]int, len(r.cells))
		fees := -1
		for j, c := range r.cells {
			key := normalizeHeader(c)
			if _, dup := idx[key]; !dup {
				idx[key] = j
			}
			if fees < 0 && strings.Contains(key, "fees") {
				fees = j
			}
		}
		_, hasAction := idx["action"]
		_, hasAmount := idx["amount"]
		_, hasQty := idx["quantity"]
		if hasAction && hasAmount && hasQty && fees >= 0 {
			idx["fees"] = fees
			return i, idx, true
		}
	}
	return 0, nil, false
}

func (transactionsFormat) Extract(rows []record, summary *Summary) (*Result, error) {
	hi, idx, ok := findTransactionHeader(rows)
	if !ok {
		return nil, ErrUnrecognizedFormat
	}
	col := func(r record, name string) string {
		i, ok := idx[name]
		if !ok {
			return ""
		}
		return r.cell(i)
	}

	res := &Result{}
	for _, r := range rows[hi+1:] {
		if r.blank() {
			continue
		}
		t, err := buildTransaction(
			col(r, "date"), col(r, "action"), col(r, "symbol"), col(r, "description"),
			col(r, "quantity"), col(r, "price"), col(r, "fees"), col(r, "amount"),
		)
		if err != nil {
			summary.reject(&RowError{Line: r.line, Reason: err.Error()})
			continue
		}
		summary.accept()
		res.Transactions = append(res.Transactions, t)
		if res.AsOf.Before(t.Date) {
			res.AsOf = t.Date
		}
	}

	if len(res.Transactions) == 0 {
		return res, noUsableRows(summary)
	}
	return res, nil
}

func buildTransaction(date, action, symbol, desc, qtyRaw, priceRaw, feesRaw, amountRaw string) (Transaction, error) {
	d, ok := util.ParseDate(date)
	if !ok {
		return Transaction{}, fmt.Errorf("invalid date %q", date)
	}
	act := strings.ToLower(strings.TrimSpace(action))
	if act == "" {
		return Transaction{}, errors.New("missing action")
	}

	qty := util.NumberOrZero(qtyRaw)
	amount, hasAmount := util.ParseNumber(amountRaw)
	t := Transaction{
		Date:        d,
		Action:      strings.TrimSpace(action),
		Description: desc,
		Fees:        math.Abs(util.NumberOrZero(feesRaw)),
		Amount:      amount,
	}

	side := actionToSide(act, qty)
	if side == "" || qty == 0 {
		if isCashOnly(act) {
			if !hasAmount {
				return Transaction{}, fmt.Errorf("cash action %q has no amount", action)
			}
			t.CashOnly = true
			t.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
			return t, nil
		}
		if side == "" {
			return Transaction{}, fmt.Errorf("unsupported action %q", action)
		}
		return Transaction{}, errors.New("zero quantity")
	}

	t.Side = side
	t.Quantity = math.Abs(qty)
	t.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	t.AssetClass = models.AssetEquity
	if c, err := occ.Parse(t.Symbol); err == nil {
		t.applyContract(c)
	} else if c, err := ParseOptionDescription(t.Symbol, ""); err == nil {
		t.applyContract(c)
	} else if strings.HasPrefix(t.Symbol, "/") {
		t.AssetClass = models.AssetFuture
		if fc, ok := ParseFuture(t.Symbol); ok {
			t.Underlying, t.Expiry, t.Multiplier = fc.Root, fc.Expiry, fc.Multiplier
		}
	}
	if t.Symbol == "" {
		return Transaction{}, errors.New("empty symbol")
	}
	if t.Multiplier <= 0 {
		t.Multiplier = models.DefaultMultiplier(t.AssetClass)
	}

	if price, ok := util.ParseNumber(priceRaw); ok && price != 0 {
		t.Price = math.Abs(price)
	} else if hasAmount {
		t.Price = math.Abs(amount) / (t.Quantity * t.Multiplier)
	}
	return t, nil
}

func (t *Transaction) applyContract(c occ.Contract) {
	sym, _ := c.Symbol()
	t.Symbol = sym
	t.AssetClass = models.AssetOption
	t.Underlying = c.Underlying
	t.Expiry = c.Expiry
	t.Strike = c.Strike
	t.Right = c.Right
}

// actionToSide maps broker actions to a side. "Expired" closes whatever the
// quantity sign says is open.
func actionToSide(action string, qty float64) Side {
	switch {
	case action == "expired":
		if qty >= 0 {
			return SideSell
		}
		return SideBuy
	case strings.Contains(action, "buy"), strings.Contains(action, "reinvest shares"), strings.Contains(action, "cover"):
		return SideBuy
	case strings.Contains(action, "sell"), strings.Contains(action, "short"):
		return SideSell
	default:
		return ""
	}
}

func isCashOnly(action string) bool {
	for _, k := range cashOnlyKeywords {
		if strings.Contains(action, k) {
			return true
		}
	}
	return false
}
