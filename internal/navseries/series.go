package navseries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/storage"
)

// Range is a closed date range. A zero bound leaves that end open.
type Range struct {
	From time.Time
	To   time.Time
}

// SeriesFor returns the snapshots of account inside r in ascending date
// order, with the benchmark resolved per date. Dates without a snapshot are
// not filled in. models.AllAccounts sums NAV across accounts per date.
//
// Benchmark priority per date: the cached close for that date, then the most
// recent earlier cached close, then the bench stored with the snapshot, then
// the NAV itself.
func (s *Store) SeriesFor(ctx context.Context, account string, r Range) ([]models.NavPoint, error) {
	from, to := dayOrZero(r.From), dayOrZero(r.To)

	snaps, err := s.storage.Snapshots(ctx, account, from, to)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	if models.IsAggregateScope(account) {
		snaps = aggregate(snaps)
	}

	// The cache is read from the beginning so a close before From seeds forward-fill.
	cache, err := s.storage.BenchmarkPrices(ctx, s.symbol, time.Time{}, to)
	if err != nil {
		return nil, fmt.Errorf("reading benchmark cache: %w", err)
	}
	res := newResolver(cache)

	points := make([]models.NavPoint, 0, len(snaps)+1)
	for _, snap := range snaps {
		bench, source := res.resolve(snap.Date, snap.Bench, snap.NAV)
		points = append(points, models.NavPoint{Date: snap.Date, NAV: snap.NAV, Bench: bench, BenchSource: source})
	}

	today := s.Today()
	if !to.IsZero() && to.Before(today) {
		return points, nil
	}
	if !from.IsZero() && from.After(today) {
		return points, nil
	}
	if n := len(points); n > 0 && !points[n-1].Date.Before(today) {
		return points, nil
	}

	value, err := s.currentValue(ctx, account)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return points, nil
	}
	bench, source := res.resolve(today, nil, *value)
	points = append(points, models.NavPoint{Date: today, NAV: *value, Bench: bench, BenchSource: source})
	return points, nil
}

// currentValue returns the reported account value, summed for the aggregate
// scope, or nil when none is known.
func (s *Store) currentValue(ctx context.Context, account string) (*float64, error) {
	if !models.IsAggregateScope(account) {
		acct, err := s.storage.Account(ctx, account)
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("loading account %s: %w", account, err)
		}
		return acct.AccountValue, nil
	}

	accts, err := s.storage.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	var total *float64
	for _, a := range accts {
		if a.AccountValue == nil {
			continue
		}
		if total == nil {
			total = models.Float(0)
		}
		*total += *a.AccountValue
	}
	return total, nil
}

// aggregate folds per-account snapshots into one per date: NAV is summed and
// the largest stored bench is kept.
func aggregate(snaps []models.NavSnapshot) []models.NavSnapshot {
	byDate := make(map[time.Time]*models.NavSnapshot)
	for _, snap := range snaps {
		agg, ok := byDate[snap.Date]
		if !ok {
			agg = &models.NavSnapshot{Account: models.AllAccounts, Date: snap.Date}
			byDate[snap.Date] = agg
		}
		agg.NAV += snap.NAV
		if usable(snap.Bench) && (agg.Bench == nil || *snap.Bench > *agg.Bench) {
			agg.Bench = models.Float(*snap.Bench)
		}
	}

	out := make([]models.NavSnapshot, 0, len(byDate))
	for _, agg := range byDate {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// resolver walks the ascending cache alongside ascending dates.
type resolver struct {
	last  *float64
	cache []models.BenchmarkPrice
	next  int
}

func newResolver(cache []models.BenchmarkPrice) *resolver {
	return &resolver{cache: cache}
}

func (r *resolver) resolve(date time.Time, stored *float64, nav float64) (float64, models.BenchSource) {
	var exact *float64
	for r.next < len(r.cache) && !r.cache[r.next].Date.After(date) {
		p := r.cache[r.next]
		r.next++
		if p.Close <= 0 {
			continue
		}
		r.last = models.Float(p.Close)
		if p.Date.Equal(date) {
			exact = r.last
		}
	}

	switch {
	case exact != nil:
		return *exact, models.BenchFromCache
	case r.last != nil:
		return *r.last, models.BenchForwardFilled
	case usable(stored):
		return *stored, models.BenchFromSnapshot
	default:
		return nav, models.BenchNavFallback
	}
}

func dayOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return models.Day(t)
}
