// Package navseries stores daily NAV snapshots and serves them back as a
// benchmark-aligned time series.
package navseries

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/storage"
)

// DefaultBenchmarkSymbol is the index cached when no symbol is configured.
const DefaultBenchmarkSymbol = "^GSPC"

// ErrInvalidNAV is returned for NaN or infinite NAV values.
var ErrInvalidNAV = errors.New("nav must be a finite number")

// Config holds Store settings.
type Config struct {
	// Now returns the current time; time.Now when nil.
	Now             func() time.Time
	BenchmarkSymbol string
}

// Store writes snapshots and resolves the benchmark for reads. It also owns
// the per-account locks that every writer of account state takes.
type Store struct {
	storage storage.Interface
	logger  logrus.FieldLogger
	now     func() time.Time
	locks   *keyedMutex
	symbol  string
}

// NewStore creates a Store on top of st. A nil logger discards output.
func NewStore(st storage.Interface, cfg Config, logger logrus.FieldLogger) *Store {
	if cfg.BenchmarkSymbol == "" {
		cfg.BenchmarkSymbol = DefaultBenchmarkSymbol
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Store{
		storage: st,
		logger:  logger,
		now:     cfg.Now,
		locks:   newKeyedMutex(),
		symbol:  cfg.BenchmarkSymbol,
	}
}

// LockAccount blocks until no other writer holds account and returns the
// unlock. It is not reentrant.
func (s *Store) LockAccount(account string) func() {
	return s.locks.Lock(account)
}

// BenchmarkSymbol returns the symbol used for the price cache.
func (s *Store) BenchmarkSymbol() string {
	return s.symbol
}

// Today returns the current calendar date.
func (s *Store) Today() time.Time {
	return models.Day(s.now())
}

// StoreSnapshot writes the NAV of account for date. bench is kept only when
// it is a positive finite number; a nil bench stays nil in storage.
func (s *Store) StoreSnapshot(ctx context.Context, account string, date time.Time, nav float64, bench *float64) error {
	if err := models.CheckWriteScope(account); err != nil {
		return err
	}
	if math.IsNaN(nav) || math.IsInf(nav, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidNAV, nav)
	}

	snap := models.NavSnapshot{Account: account, Date: models.Day(date), NAV: nav}
	if usable(bench) {
		snap.Bench = models.Float(*bench)
	}
	if err := s.storage.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("storing snapshot for %s on %s: %w", account, snap.Date.Format(models.DateLayout), err)
	}
	s.logger.WithFields(logrus.Fields{
		"account": account,
		"date":    snap.Date.Format(models.DateLayout),
		"nav":     nav,
		"bench":   snap.Bench != nil,
	}).Debug("Stored NAV snapshot")
	return nil
}

// CachedBench returns the cached benchmark close for exactly date, or nil.
func (s *Store) CachedBench(ctx context.Context, date time.Time) (*float64, error) {
	d := models.Day(date)
	prices, err := s.storage.BenchmarkPrices(ctx, s.symbol, d, d)
	if err != nil {
		return nil, fmt.Errorf("reading benchmark cache: %w", err)
	}
	for _, p := range prices {
		if p.Close > 0 {
			return models.Float(p.Close), nil
		}
	}
	return nil, nil
}

// ClearHistory deletes every snapshot of account.
func (s *Store) ClearHistory(ctx context.Context, account string) error {
	if err := models.CheckWriteScope(account); err != nil {
		return err
	}
	unlock := s.LockAccount(account)
	defer unlock()
	return s.clearHistory(ctx, account)
}

func (s *Store) clearHistory(ctx context.Context, account string) error {
	if err := s.storage.DeleteSnapshots(ctx, account); err != nil {
		return fmt.Errorf("clearing history for %s: %w", account, err)
	}
	s.logger.WithField("account", account).Info("Cleared NAV history")
	return nil
}

// PasteReport describes the outcome of a bulk history paste.
type PasteReport struct {
	Errors   []*importer.RowError `json:"errors,omitempty"`
	Imported int                  `json:"imported"`
	Replaced bool                 `json:"replaced"`
}

// ImportNavText stores pasted "DATE, NAV" lines as snapshots of account.
// Without appendMode the existing history is cleared first. The account
// value and as-of date follow the latest pasted line.
func (s *Store) ImportNavText(ctx context.Context, account, text string, appendMode bool) (*PasteReport, error) {
	if err := models.CheckWriteScope(account); err != nil {
		return nil, err
	}
	parsed, err := importer.ParseHistoryText(text)
	if err != nil {
		return &PasteReport{Errors: parsed.Errors}, err
	}

	unlock := s.LockAccount(account)
	defer unlock()

	report := &PasteReport{Errors: parsed.Errors, Replaced: !appendMode}
	if !appendMode {
		if err := s.clearHistory(ctx, account); err != nil {
			return report, err
		}
	}

	for _, e := range parsed.Entries {
		bench, err := s.CachedBench(ctx, e.Date)
		if err != nil {
			return report, err
		}
		if err := s.StoreSnapshot(ctx, account, e.Date, e.Value, bench); err != nil {
			return report, err
		}
		report.Imported++
	}

	latest := parsed.Entries[len(parsed.Entries)-1]
	acct, err := s.storage.Account(ctx, account)
	switch {
	case errors.Is(err, storage.ErrAccountNotFound):
		acct = &models.Account{Name: account}
	case err != nil:
		return report, fmt.Errorf("loading account %s: %w", account, err)
	}
	acct.AccountValue = models.Float(latest.Value)
	acct.AsOf = latest.Date
	if err := s.storage.SaveAccount(ctx, *acct); err != nil {
		return report, fmt.Errorf("saving account %s: %w", account, err)
	}

	s.logger.WithFields(logrus.Fields{
		"account":  account,
		"rows":     report.Imported,
		"rejected": len(report.Errors),
		"append":   appendMode,
	}).Info("Imported NAV history")
	return report, nil
}

// ImportBenchmarkText stores pasted "DATE, CLOSE" lines in the benchmark
// cache. Without appendMode the cached history of the symbol is cleared first.
// Non-positive closes are rejected per line.
func (s *Store) ImportBenchmarkText(ctx context.Context, text string, appendMode bool) (*PasteReport, error) {
	parsed, err := importer.ParseHistoryText(text)
	if err != nil {
		return &PasteReport{Errors: parsed.Errors}, err
	}

	report := &PasteReport{Errors: parsed.Errors, Replaced: !appendMode}
	prices := make([]models.BenchmarkPrice, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		if e.Value <= 0 || math.IsInf(e.Value, 0) {
			report.Errors = append(report.Errors, &importer.RowError{
				Reason: fmt.Sprintf("benchmark close for %s must be positive, got %v", e.Date.Format(models.DateLayout), e.Value),
			})
			continue
		}
		prices = append(prices, models.BenchmarkPrice{Symbol: s.symbol, Date: e.Date, Close: e.Value})
	}
	if len(prices) == 0 {
		return report, fmt.Errorf("%w: no positive benchmark closes", importer.ErrNoUsableRows)
	}

	if !appendMode {
		if err := s.storage.DeleteBenchmarkPrices(ctx, s.symbol); err != nil {
			return report, fmt.Errorf("clearing benchmark cache: %w", err)
		}
	}
	if err := s.storage.UpsertBenchmarkPrices(ctx, prices); err != nil {
		return report, fmt.Errorf("writing benchmark cache: %w", err)
	}
	report.Imported = len(prices)

	s.logger.WithFields(logrus.Fields{
		"symbol":   s.symbol,
		"rows":     report.Imported,
		"rejected": len(report.Errors),
		"append":   appendMode,
	}).Info("Imported benchmark history")
	return report, nil
}

func usable(v *float64) bool {
	return v != nil && *v > 0 && !math.IsInf(*v, 0) && !math.IsNaN(*v)
}
