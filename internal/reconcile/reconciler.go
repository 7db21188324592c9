// Package reconcile applies imported rows to the stored position book:
// positions are replaced per account, balances update cash and account value
// and every import leaves a NAV snapshot behind.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/navseries"
	"github.com/eddiefleurent/positionbook/internal/storage"
)

// ErrAmbiguousAccountScope is returned when a mutation targets "" or ALL.
var ErrAmbiguousAccountScope = models.ErrAmbiguousAccountScope

// Reconciler handles position book updates for individual accounts.
type Reconciler struct {
	storage storage.Interface
	series  *navseries.Store
	logger  logrus.FieldLogger
}

// NewReconciler creates a new reconciler. A nil logger discards output.
func NewReconciler(st storage.Interface, series *navseries.Store, logger logrus.FieldLogger) *Reconciler {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Reconciler{
		storage: st,
		series:  series,
		logger:  logger,
	}
}

// PositionsResult reports a positions replacement.
type PositionsResult struct {
	Count    int  `json:"count"`
	Replaced bool `json:"replaced"`
}

// ReconcilePositions replaces the positions of account with rows. Rows with
// zero quantity or no symbol are dropped and duplicate instruments are merged.
// Re-importing the same rows yields the same book.
func (r *Reconciler) ReconcilePositions(ctx context.Context, account string, rows []models.Position) (PositionsResult, error) {
	if err := models.CheckWriteScope(account); err != nil {
		return PositionsResult{}, err
	}
	unlock := r.series.LockAccount(account)
	defer unlock()
	res, _, err := r.replacePositions(ctx, account, rows)
	return res, err
}

// replacePositions expects the account lock to be held. It also returns the
// total market value of the new book.
func (r *Reconciler) replacePositions(ctx context.Context, account string, rows []models.Position) (PositionsResult, float64, error) {
	book := buildBook(account, rows)
	replaced, err := r.storage.ReplacePositions(ctx, account, book)
	if err != nil {
		return PositionsResult{}, 0, fmt.Errorf("replacing positions for %s: %w", account, err)
	}

	var marketValue float64
	for _, p := range book {
		marketValue += p.MarketValue
	}

	r.logger.WithFields(logrus.Fields{
		"account":  account,
		"rows":     len(rows),
		"kept":     len(book),
		"replaced": replaced,
	}).Info("Reconciled positions")
	return PositionsResult{Count: len(book), Replaced: replaced}, marketValue, nil
}

// buildBook normalizes rows into the stored position set, in first-seen order.
func buildBook(account string, rows []models.Position) []models.Position {
	index := make(map[string]int, len(rows))
	book := make([]models.Position, 0, len(rows))

	for _, row := range rows {
		row.Account = account
		row.Normalize()
		if row.Symbol == "" || row.Quantity == 0 {
			continue
		}
		i, seen := index[row.InstrumentID]
		if !seen {
			index[row.InstrumentID] = len(book)
			book = append(book, row)
			continue
		}
		mergeInto(&book[i], row)
	}

	out := book[:0]
	for _, p := range book {
		if p.Quantity != 0 {
			out = append(out, p)
		}
	}
	return out
}

// mergeInto sums row into dst. Average cost is weighted by absolute quantity
// and stays nil only when neither side has one.
func mergeInto(dst *models.Position, row models.Position) {
	if dst.AvgCost != nil || row.AvgCost != nil {
		wa, wb := math.Abs(dst.Quantity), math.Abs(row.Quantity)
		if wa+wb > 0 {
			avg := (wa*dst.CostPrice() + wb*row.CostPrice()) / (wa + wb)
			dst.AvgCost = &avg
		}
	}
	dst.Quantity += row.Quantity
	dst.MarketValue += row.MarketValue
	dst.DayPnL += row.DayPnL
	dst.TotalPnL += row.TotalPnL
	if row.Price != 0 {
		dst.Price = row.Price
	}
}

// BalancesResult reports a balances reconciliation.
type BalancesResult struct {
	AccountsUpdated int `json:"accounts_updated"`
	Snapshots       int `json:"snapshots"`
}

// ReconcileBalances applies cash and account value readings as of asOf.
// Each account with a positive value (account value, else cash) also gets a
// NAV snapshot whose bench comes from the benchmark cache for that date.
// Every row must name an account; nothing is written otherwise.
func (r *Reconciler) ReconcileBalances(ctx context.Context, rows []importer.AccountBalance, asOf time.Time) (BalancesResult, error) {
	for _, row := range rows {
		if err := models.CheckWriteScope(row.Account); err != nil {
			return BalancesResult{}, err
		}
	}

	results := make([]bool, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			unlock := r.series.LockAccount(row.Account)
			defer unlock()

			nav := row.AccountValue
			if nav == nil {
				nav = row.Cash
			}
			wrote, err := r.applyBalance(gctx, row.Account, row.Cash, row.AccountValue, asOf, nav)
			results[i] = wrote
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return BalancesResult{}, err
	}

	res := BalancesResult{AccountsUpdated: len(rows)}
	for _, wrote := range results {
		if wrote {
			res.Snapshots++
		}
	}
	r.logger.WithFields(logrus.Fields{
		"accounts":  res.AccountsUpdated,
		"snapshots": res.Snapshots,
	}).Info("Reconciled balances")
	return res, nil
}

// applyBalance updates the account row and records a snapshot of nav when it
// is positive. It expects the account lock to be held.
func (r *Reconciler) applyBalance(ctx context.Context, account string, cash, value *float64, asOf time.Time, nav *float64) (bool, error) {
	acct, err := r.loadAccount(ctx, account)
	if err != nil {
		return false, err
	}
	if cash != nil {
		acct.Cash = *cash
	}
	if value != nil {
		acct.AccountValue = models.Float(*value)
	}
	acct.AsOf = models.Day(asOf)
	if err := r.storage.SaveAccount(ctx, *acct); err != nil {
		return false, fmt.Errorf("saving account %s: %w", account, err)
	}

	if nav == nil || *nav <= 0 {
		return false, nil
	}
	bench, err := r.series.CachedBench(ctx, asOf)
	if err != nil {
		return false, err
	}
	if err := r.series.StoreSnapshot(ctx, account, asOf, *nav, bench); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) loadAccount(ctx context.Context, account string) (*models.Account, error) {
	acct, err := r.storage.Account(ctx, account)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return &models.Account{Name: account}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", account, err)
	}
	return acct, nil
}

// TransactionsResult reports a transaction history replay.
type TransactionsResult struct {
	Count    int     `json:"count"`
	Trades   int     `json:"trades"`
	CashFlow float64 `json:"cash_flow"`
}

// ApplyTransactions nets the trades in txns per instrument and replaces the
// positions of account with the result. CashFlow is the sum of every row's
// amount, cash-only rows included.
func (r *Reconciler) ApplyTransactions(ctx context.Context, account string, txns []importer.Transaction) (TransactionsResult, error) {
	if err := models.CheckWriteScope(account); err != nil {
		return TransactionsResult{}, err
	}
	unlock := r.series.LockAccount(account)
	defer unlock()
	return r.applyTransactions(ctx, account, txns)
}

// applyTransactions expects the account lock to be held.
func (r *Reconciler) applyTransactions(ctx context.Context, account string, txns []importer.Transaction) (TransactionsResult, error) {
	rows, res := netTransactions(txns)
	pr, _, err := r.replacePositions(ctx, account, rows)
	if err != nil {
		return TransactionsResult{}, err
	}
	res.Count = pr.Count
	return res, nil
}

// netTransactions replays trades in date order. Opening trades move the
// average cost; closing trades only reduce quantity.
func netTransactions(txns []importer.Transaction) ([]models.Position, TransactionsResult) {
	var res TransactionsResult
	index := make(map[string]int)
	var book []models.Position

	for _, t := range sortedTransactions(txns) {
		res.CashFlow += t.Amount
		qty := signedQuantity(t)
		if qty == 0 {
			continue
		}
		res.Trades++

		id := t.InstrumentID()
		i, ok := index[id]
		if !ok {
			index[id] = len(book)
			book = append(book, models.Position{
				InstrumentID: id,
				Symbol:       t.Symbol,
				AssetClass:   t.Class(),
				Underlying:   t.Underlying,
				Expiry:       t.Expiry,
				Strike:       t.Strike,
				Right:        t.Right,
				Multiplier:   t.Multiplier,
			})
			i = len(book) - 1
		}
		applyTrade(&book[i], qty, t.Price, t.Date)
	}
	return book, res
}

func applyTrade(p *models.Position, qty, price float64, date time.Time) {
	cur := p.Quantity
	switch {
	case cur == 0, math.Abs(qty) > math.Abs(cur) && (cur > 0) != (qty > 0):
		// Opening, or flipped through zero: the open part starts at this price.
		p.AvgCost = models.Float(price)
		p.EntryDate = date
	case (cur > 0) == (qty > 0):
		total := math.Abs(cur) + math.Abs(qty)
		avg := (math.Abs(cur)*p.CostPrice() + math.Abs(qty)*price) / total
		p.AvgCost = &avg
	}
	p.Quantity = cur + qty
	if price != 0 {
		p.Price = price
	}
}

// UpsertPosition writes one position edit. A zero quantity removes it.
func (r *Reconciler) UpsertPosition(ctx context.Context, pos models.Position) error {
	if err := models.CheckWriteScope(pos.Account); err != nil {
		return err
	}
	pos.Normalize()
	if pos.Symbol == "" {
		return fmt.Errorf("position for %s has no symbol", pos.Account)
	}

	unlock := r.series.LockAccount(pos.Account)
	defer unlock()

	if pos.Quantity == 0 {
		err := r.storage.DeletePosition(ctx, pos.Account, pos.InstrumentID)
		if err != nil && !errors.Is(err, storage.ErrPositionNotFound) {
			return fmt.Errorf("removing %s: %w", pos.InstrumentID, err)
		}
		return nil
	}
	if err := r.storage.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("upserting %s: %w", pos.InstrumentID, err)
	}
	return nil
}

// DeletePosition removes one instrument from account.
func (r *Reconciler) DeletePosition(ctx context.Context, account, instrumentID string) error {
	if err := models.CheckWriteScope(account); err != nil {
		return err
	}
	unlock := r.series.LockAccount(account)
	defer unlock()
	return r.storage.DeletePosition(ctx, account, instrumentID)
}

// SetCash overwrites the cash balance of account.
func (r *Reconciler) SetCash(ctx context.Context, account string, cash float64) error {
	if err := models.CheckWriteScope(account); err != nil {
		return err
	}
	if math.IsNaN(cash) || math.IsInf(cash, 0) {
		return fmt.Errorf("cash for %s must be finite", account)
	}
	unlock := r.series.LockAccount(account)
	defer unlock()

	acct, err := r.loadAccount(ctx, account)
	if err != nil {
		return err
	}
	acct.Cash = cash
	return r.storage.SaveAccount(ctx, *acct)
}

// ResetAccount drops the positions, balances and NAV history of account.
func (r *Reconciler) ResetAccount(ctx context.Context, account string) error {
	if err := models.CheckWriteScope(account); err != nil {
		return err
	}
	unlock := r.series.LockAccount(account)
	defer unlock()

	if _, err := r.storage.ReplacePositions(ctx, account, nil); err != nil {
		return fmt.Errorf("clearing positions for %s: %w", account, err)
	}
	if err := r.storage.DeleteSnapshots(ctx, account); err != nil {
		return fmt.Errorf("clearing history for %s: %w", account, err)
	}
	if err := r.storage.SaveAccount(ctx, models.Account{Name: account}); err != nil {
		return fmt.Errorf("resetting account %s: %w", account, err)
	}
	r.logger.WithField("account", account).Warn("Account reset")
	return nil
}
