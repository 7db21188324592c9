package navseries

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/storage"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) (*Store, *storage.MemoryStorage) {
	t.Helper()
	mem := storage.NewMemoryStorage()
	s := NewStore(mem, Config{
		BenchmarkSymbol: "^GSPC",
		Now:             func() time.Time { return time.Date(2026, 2, 17, 15, 30, 0, 0, time.UTC) },
	}, nil)
	return s, mem
}

func cachePrices(t *testing.T, mem *storage.MemoryStorage, closes map[time.Time]float64) {
	t.Helper()
	var prices []models.BenchmarkPrice
	for d, c := range closes {
		prices = append(prices, models.BenchmarkPrice{Symbol: "^GSPC", Date: d, Close: c})
	}
	require.NoError(t, mem.UpsertBenchmarkPrices(context.Background(), prices))
}

func TestStoreSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("nil bench stays nil", func(t *testing.T) {
		s, mem := newTestStore(t)
		require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(2, 10), 22100, nil))

		snaps, err := mem.Snapshots(ctx, "ACC1", time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Nil(t, snaps[0].Bench)
		assert.Equal(t, 22100.0, snaps[0].NAV)
	})

	t.Run("non-positive bench is dropped", func(t *testing.T) {
		s, mem := newTestStore(t)
		require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(2, 10), 100, models.Float(0)))
		require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(2, 11), 100, models.Float(-5)))

		snaps, _ := mem.Snapshots(ctx, "ACC1", time.Time{}, time.Time{})
		require.Len(t, snaps, 2)
		assert.Nil(t, snaps[0].Bench)
		assert.Nil(t, snaps[1].Bench)
	})

	t.Run("same date replaces the whole row", func(t *testing.T) {
		s, mem := newTestStore(t)
		require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(2, 10), 100, models.Float(4700)))
		require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(2, 10).Add(20*time.Hour), 105, nil))

		snaps, _ := mem.Snapshots(ctx, "ACC1", time.Time{}, time.Time{})
		require.Len(t, snaps, 1)
		assert.Equal(t, 105.0, snaps[0].NAV)
		assert.Nil(t, snaps[0].Bench)
	})

	t.Run("aggregate scope rejected", func(t *testing.T) {
		s, mem := newTestStore(t)
		for _, scope := range []string{"ALL", ""} {
			err := s.StoreSnapshot(ctx, scope, day(2, 10), 100, nil)
			assert.ErrorIs(t, err, models.ErrAmbiguousAccountScope)
		}
		assert.Equal(t, 0, mem.WriteCallCount())
	})

	t.Run("nan nav rejected", func(t *testing.T) {
		s, _ := newTestStore(t)
		assert.ErrorIs(t, s.StoreSnapshot(ctx, "ACC1", day(2, 10), math.NaN(), nil), ErrInvalidNAV)
		assert.ErrorIs(t, s.StoreSnapshot(ctx, "ACC1", day(2, 10), math.Inf(1), nil), ErrInvalidNAV)
	})
}

func TestSeriesFor_BenchmarkPriority(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 2), 100, models.Float(4000)))
	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 5), 101, models.Float(4000)))
	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 6), 102, nil))
	cachePrices(t, mem, map[time.Time]float64{
		day(1, 1): 4600,
		day(1, 5): 4700,
	})

	points, err := s.SeriesFor(ctx, "ACC1", Range{From: day(1, 2), To: day(1, 31)})
	require.NoError(t, err)
	require.Len(t, points, 3)

	// A close before From seeds forward-fill and beats the stored bench.
	assert.Equal(t, 4600.0, points[0].Bench)
	assert.Equal(t, models.BenchForwardFilled, points[0].BenchSource)

	assert.Equal(t, 4700.0, points[1].Bench)
	assert.Equal(t, models.BenchFromCache, points[1].BenchSource)

	assert.Equal(t, 4700.0, points[2].Bench)
	assert.Equal(t, models.BenchForwardFilled, points[2].BenchSource)
}

func TestSeriesFor_FallbacksWithoutCache(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 2), 100, models.Float(4000)))
	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 3), 101, nil))

	points, err := s.SeriesFor(ctx, "ACC1", Range{To: day(1, 31)})
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, models.BenchFromSnapshot, points[0].BenchSource)
	assert.Equal(t, 4000.0, points[0].Bench)
	assert.Equal(t, models.BenchNavFallback, points[1].BenchSource)
	assert.Equal(t, 101.0, points[1].Bench)
}

func TestSeriesFor_ClosedRangeNotDensified(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, d := range []int{2, 5, 9, 12} {
		require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, d), float64(d), nil))
	}

	points, err := s.SeriesFor(ctx, "ACC1", Range{From: day(1, 5), To: day(1, 9)})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Date.Equal(day(1, 5)))
	assert.True(t, points[1].Date.Equal(day(1, 9)))
}

func TestSeriesFor_AllAccounts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 2), 100, models.Float(4000)))
	require.NoError(t, s.StoreSnapshot(ctx, "ACC2", day(1, 2), 50, models.Float(4100)))
	require.NoError(t, s.StoreSnapshot(ctx, "ACC2", day(1, 3), 55, nil))

	points, err := s.SeriesFor(ctx, models.AllAccounts, Range{To: day(1, 31)})
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, 150.0, points[0].NAV)
	assert.Equal(t, 4100.0, points[0].Bench)
	assert.Equal(t, models.BenchFromSnapshot, points[0].BenchSource)
	assert.Equal(t, 55.0, points[1].NAV)
}

func TestSeriesFor_TodayPoint(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(2, 10), 22100, nil))
	require.NoError(t, mem.SaveAccount(ctx, models.Account{Name: "ACC1", AccountValue: models.Float(23000)}))
	cachePrices(t, mem, map[time.Time]float64{day(2, 17): 6100})

	points, err := s.SeriesFor(ctx, "ACC1", Range{})
	require.NoError(t, err)
	require.Len(t, points, 2)

	today := points[1]
	assert.True(t, today.Date.Equal(day(2, 17)))
	assert.Equal(t, 23000.0, today.NAV)
	assert.Equal(t, 6100.0, today.Bench)
	assert.Equal(t, models.BenchFromCache, today.BenchSource)

	t.Run("range ending before today", func(t *testing.T) {
		points, err := s.SeriesFor(ctx, "ACC1", Range{To: day(2, 15)})
		require.NoError(t, err)
		assert.Len(t, points, 1)
	})

	t.Run("no today point when today is stored", func(t *testing.T) {
		require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(2, 17), 22900, nil))
		points, err := s.SeriesFor(ctx, "ACC1", Range{})
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, 22900.0, points[1].NAV)
	})

	t.Run("no account value no today point", func(t *testing.T) {
		require.NoError(t, s.StoreSnapshot(ctx, "ACC9", day(2, 10), 10, nil))
		points, err := s.SeriesFor(ctx, "ACC9", Range{})
		require.NoError(t, err)
		assert.Len(t, points, 1)
	})
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 2), 100, nil))
	require.NoError(t, s.StoreSnapshot(ctx, "ACC2", day(1, 2), 50, nil))

	assert.ErrorIs(t, s.ClearHistory(ctx, "ALL"), models.ErrAmbiguousAccountScope)
	require.NoError(t, s.ClearHistory(ctx, "ACC1"))

	left, _ := mem.Snapshots(ctx, models.AllAccounts, time.Time{}, time.Time{})
	require.Len(t, left, 1)
	assert.Equal(t, "ACC2", left[0].Account)
}

func TestImportNavText(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	cachePrices(t, mem, map[time.Time]float64{day(1, 3): 4750})

	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 1), 90, nil))

	report, err := s.ImportNavText(ctx, "ACC1", "# nav history\n2026-01-02, 100\n2026-01-03, $101.50\nbad line\n", false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 4, report.Errors[0].Line)

	snaps, _ := mem.Snapshots(ctx, "ACC1", time.Time{}, time.Time{})
	require.Len(t, snaps, 2, "replace mode clears prior history")
	assert.Nil(t, snaps[0].Bench)
	require.NotNil(t, snaps[1].Bench)
	assert.Equal(t, 4750.0, *snaps[1].Bench)

	acct, err := mem.Account(ctx, "ACC1")
	require.NoError(t, err)
	require.NotNil(t, acct.AccountValue)
	assert.Equal(t, 101.5, *acct.AccountValue)
	assert.True(t, acct.AsOf.Equal(day(1, 3)))

	_, err = s.ImportNavText(ctx, "ACC1", "2026-01-04, 102", true)
	require.NoError(t, err)
	snaps, _ = mem.Snapshots(ctx, "ACC1", time.Time{}, time.Time{})
	assert.Len(t, snaps, 3, "append mode keeps history")

	_, err = s.ImportNavText(ctx, "ALL", "2026-01-04, 102", true)
	assert.ErrorIs(t, err, models.ErrAmbiguousAccountScope)

	_, err = s.ImportNavText(ctx, "ACC1", "nothing here", true)
	assert.ErrorIs(t, err, importer.ErrNoUsableRows)
}

func TestImportBenchmarkText(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	cachePrices(t, mem, map[time.Time]float64{day(1, 1): 4600})

	report, err := s.ImportBenchmarkText(ctx, "2026-01-02,4700\n2026-01-05,-1\n", false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Len(t, report.Errors, 1)

	prices, _ := mem.BenchmarkPrices(ctx, "^GSPC", time.Time{}, time.Time{})
	require.Len(t, prices, 1, "replace mode clears the symbol")
	assert.Equal(t, 4700.0, prices[0].Close)

	_, err = s.ImportBenchmarkText(ctx, "2026-01-03\t4710", true)
	require.NoError(t, err)
	prices, _ = mem.BenchmarkPrices(ctx, "^GSPC", time.Time{}, time.Time{})
	assert.Len(t, prices, 2)

	_, err = s.ImportBenchmarkText(ctx, "2026-01-03, 0", true)
	assert.ErrorIs(t, err, importer.ErrNoUsableRows)
}

func TestComputeStats(t *testing.T) {
	points := []models.NavPoint{
		{Date: day(1, 2), NAV: 100, Bench: 1000},
		{Date: day(1, 3), NAV: 110, Bench: 1010},
		{Date: day(1, 4), NAV: 99, Bench: 1020},
	}

	st := ComputeStats(points)
	assert.Equal(t, 3, st.Points)
	assert.InDelta(t, -0.01, st.NAV.TotalReturn, 1e-9)
	assert.InDelta(t, 0.1, st.NAV.MaxDrawdown, 1e-9)
	assert.InDelta(t, 0.02, st.Bench.TotalReturn, 1e-9)
	assert.Zero(t, st.Bench.MaxDrawdown)
	assert.Greater(t, st.NAV.Volatility, st.Bench.Volatility)

	empty := ComputeStats(nil)
	assert.Zero(t, empty.NAV.TotalReturn)
	assert.Zero(t, empty.NAV.Volatility)
}

func TestLockAccount_HoldsWriters(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, s.StoreSnapshot(ctx, "ACC1", day(1, 2), 100, nil))

	unlock := s.LockAccount("ACC1")
	done := make(chan error, 1)
	go func() {
		_, err := s.ImportNavText(ctx, "ACC1", "2026-01-05, 105", false)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("paste ran while the account was locked")
	case <-time.After(50 * time.Millisecond):
	}

	otherUnlock := s.LockAccount("ACC2")
	otherUnlock()

	unlock()
	require.NoError(t, <-done)
	snaps, _ := mem.Snapshots(ctx, "ACC1", time.Time{}, time.Time{})
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Date.Equal(day(1, 5)))
}
