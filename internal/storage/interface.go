// Package storage persists the position book, account balances, NAV
// snapshots and the benchmark price cache.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/eddiefleurent/positionbook/internal/models"
)

// Interface defines the contract for position book persistence.
//
// Implementations must be safe for concurrent use - callers can assume all methods
// are goroutine-safe and can safely call these methods from multiple goroutines.
//
// Reads accept models.AllAccounts (or "") to span every account. Writes never do.
// Zero from/to times leave that end of a date range open.
type Interface interface {
	// Positions
	Positions(ctx context.Context, account string) ([]models.Position, error)
	ReplacePositions(ctx context.Context, account string, positions []models.Position) (replaced bool, err error)
	UpsertPosition(ctx context.Context, pos models.Position) error
	DeletePosition(ctx context.Context, account, instrumentID string) error

	// Accounts
	Account(ctx context.Context, name string) (*models.Account, error)
	Accounts(ctx context.Context) ([]models.Account, error)
	SaveAccount(ctx context.Context, acct models.Account) error

	// NAV snapshots, last write wins per (account, date)
	UpsertSnapshot(ctx context.Context, snap models.NavSnapshot) error
	Snapshots(ctx context.Context, account string, from, to time.Time) ([]models.NavSnapshot, error)
	DeleteSnapshots(ctx context.Context, account string) error

	// Benchmark price cache
	UpsertBenchmarkPrices(ctx context.Context, prices []models.BenchmarkPrice) error
	BenchmarkPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.BenchmarkPrice, error)
	DeleteBenchmarkPrices(ctx context.Context, symbol string) error

	Close() error
}

// Driver names accepted by NewStorage.
const (
	DriverMemory = "memory"
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// NewStorage creates the storage implementation selected by driver.
func NewStorage(driver, path string) (Interface, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryStorage(), nil
	case DriverJSON:
		return NewJSONStorage(path)
	case DriverSQLite, "":
		return NewSQLiteStorage(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*MemoryStorage)(nil)
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*CircuitBreakerStorage)(nil)
)

func inRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

func checkWritable(account string) error {
	if models.IsAggregateScope(account) {
		return fmt.Errorf("%w: got %q", ErrAggregateWrite, account)
	}
	return nil
}
