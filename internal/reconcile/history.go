package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/models"
)

// NavRebuildResult reports a NAV reconstruction from a transaction history.
type NavRebuildResult struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Written int       `json:"written"`
	Kept    int       `json:"kept"`
	Skipped int       `json:"skipped"`
}

// RebuildNav reconstructs daily NAV snapshots for account by replaying txns
// backwards from the stored cash balance. Holdings are marked at their last
// trade price and options count as zero after expiry. Dates are the trade
// dates, every cached benchmark date in between and the account's as-of date.
// Dates that already have a snapshot keep it.
func (r *Reconciler) RebuildNav(ctx context.Context, account string, txns []importer.Transaction) (NavRebuildResult, error) {
	if err := models.CheckWriteScope(account); err != nil {
		return NavRebuildResult{}, err
	}
	unlock := r.series.LockAccount(account)
	defer unlock()
	return r.rebuildNav(ctx, account, txns)
}

type holding struct {
	expiry     time.Time
	class      models.AssetClass
	quantity   float64
	price      float64
	multiplier float64
}

func (h *holding) value(on time.Time) float64 {
	if h.class == models.AssetOption && !h.expiry.IsZero() && on.After(models.Day(h.expiry)) {
		return 0
	}
	return h.quantity * h.price * h.multiplier
}

// rebuildNav expects the account lock to be held.
func (r *Reconciler) rebuildNav(ctx context.Context, account string, txns []importer.Transaction) (NavRebuildResult, error) {
	ordered := sortedTransactions(txns)
	if len(ordered) == 0 {
		return NavRebuildResult{}, nil
	}

	acct, err := r.loadAccount(ctx, account)
	if err != nil {
		return NavRebuildResult{}, err
	}
	cash, err := r.closingCash(ctx, acct)
	if err != nil {
		return NavRebuildResult{}, err
	}
	for _, t := range ordered {
		cash -= cashEffect(t)
	}

	res := NavRebuildResult{
		From: models.Day(ordered[0].Date),
		To:   models.Day(ordered[len(ordered)-1].Date),
	}
	if asOf := models.Day(acct.AsOf); asOf.After(res.To) {
		res.To = asOf
	}

	dates, bench, err := r.rebuildDates(ctx, ordered, res.From, res.To)
	if err != nil {
		return NavRebuildResult{}, err
	}
	stored, err := r.storage.Snapshots(ctx, account, res.From, res.To)
	if err != nil {
		return NavRebuildResult{}, fmt.Errorf("loading history for %s: %w", account, err)
	}
	kept := make(map[time.Time]bool, len(stored))
	for _, s := range stored {
		kept[models.Day(s.Date)] = true
	}

	holdings := make(map[string]*holding)
	next := 0
	for _, d := range dates {
		for ; next < len(ordered) && !models.Day(ordered[next].Date).After(d); next++ {
			t := ordered[next]
			cash += cashEffect(t)
			applyHolding(holdings, t)
		}
		if kept[d] {
			res.Kept++
			continue
		}

		nav := cash
		for _, h := range holdings {
			nav += h.value(d)
		}
		if nav <= 0 || math.IsNaN(nav) || math.IsInf(nav, 0) {
			res.Skipped++
			continue
		}
		var b *float64
		if v, ok := bench[d]; ok {
			b = models.Float(v)
		}
		if err := r.series.StoreSnapshot(ctx, account, d, nav, b); err != nil {
			return res, err
		}
		res.Written++
	}

	r.logger.WithFields(logrus.Fields{
		"account": account,
		"from":    res.From.Format(models.DateLayout),
		"to":      res.To.Format(models.DateLayout),
		"written": res.Written,
		"kept":    res.Kept,
		"skipped": res.Skipped,
	}).Info("Rebuilt NAV history")
	return res, nil
}

// closingCash is the stored cash balance, or the reported account value less
// the stored book when no cash was ever recorded.
func (r *Reconciler) closingCash(ctx context.Context, acct *models.Account) (float64, error) {
	if acct.Cash != 0 || acct.AccountValue == nil {
		return acct.Cash, nil
	}
	book, err := r.storage.Positions(ctx, acct.Name)
	if err != nil {
		return 0, fmt.Errorf("loading positions for %s: %w", acct.Name, err)
	}
	cash := *acct.AccountValue
	for _, p := range book {
		cash -= p.MarketValue
	}
	return cash, nil
}

// rebuildDates returns the sorted walk dates and the cached benchmark closes
// between from and to.
func (r *Reconciler) rebuildDates(ctx context.Context, ordered []importer.Transaction, from, to time.Time) ([]time.Time, map[time.Time]float64, error) {
	prices, err := r.storage.BenchmarkPrices(ctx, r.series.BenchmarkSymbol(), from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("reading benchmark cache: %w", err)
	}

	seen := map[time.Time]bool{to: true}
	bench := make(map[time.Time]float64, len(prices))
	for _, p := range prices {
		d := models.Day(p.Date)
		if p.Close > 0 {
			bench[d] = p.Close
		}
		seen[d] = true
	}
	for _, t := range ordered {
		seen[models.Day(t.Date)] = true
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, bench, nil
}

func sortedTransactions(txns []importer.Transaction) []importer.Transaction {
	ordered := append([]importer.Transaction(nil), txns...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })
	return ordered
}

// signedQuantity is the trade quantity, negative for sells. Zero for cash rows.
func signedQuantity(t importer.Transaction) float64 {
	if t.CashOnly || t.Symbol == "" {
		return 0
	}
	qty := math.Abs(t.Quantity)
	if t.Side == importer.SideSell {
		qty = -qty
	}
	return qty
}

// cashEffect is the reported amount, or the trade notional net of fees when
// the row carried no amount.
func cashEffect(t importer.Transaction) float64 {
	if t.Amount != 0 {
		return t.Amount
	}
	qty := signedQuantity(t)
	if qty == 0 {
		return 0
	}
	return -qty*t.Price*multiplier(t) - t.Fees
}

func multiplier(t importer.Transaction) float64 {
	if t.Multiplier > 0 {
		return t.Multiplier
	}
	return models.DefaultMultiplier(t.Class())
}

func applyHolding(holdings map[string]*holding, t importer.Transaction) {
	qty := signedQuantity(t)
	if qty == 0 {
		return
	}
	id := t.InstrumentID()
	h, ok := holdings[id]
	if !ok {
		h = &holding{class: t.Class(), expiry: t.Expiry, multiplier: multiplier(t)}
		holdings[id] = h
	}
	h.quantity += qty
	if t.Price != 0 {
		h.price = t.Price
	}
}
