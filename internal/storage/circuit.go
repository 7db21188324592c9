package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/positionbook/internal/models"
)

// CircuitBreakerStorage wraps an Interface with circuit breaker functionality.
// Lookups that fail with a domain error (not found, aggregate write) do not
// count against the breaker.
type CircuitBreakerStorage struct {
	store   Interface
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips at 60% failures over at least 5 calls.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	}
}

// NewCircuitBreakerStorage creates a CircuitBreakerStorage with custom settings.
func NewCircuitBreakerStorage(store Interface, settings CircuitBreakerSettings, logger logrus.FieldLogger) *CircuitBreakerStorage {
	gbSettings := gobreaker.Settings{
		Name:        "StorageCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
					Warn("Circuit breaker state changed")
			}
		},
	}

	return &CircuitBreakerStorage{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State reports the breaker state, e.g. for health checks.
func (c *CircuitBreakerStorage) State() gobreaker.State {
	return c.breaker.State()
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPositionNotFound) ||
		errors.Is(err, ErrAggregateWrite) ||
		errors.Is(err, context.Canceled)
}

func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	store Interface,
	fn func(Interface) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(store) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

func execCircuitBreakerErr(breaker *gobreaker.CircuitBreaker, store Interface, fn func(Interface) error) error {
	_, err := breaker.Execute(func() (interface{}, error) { return nil, fn(store) })
	return err
}

// Positions wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) Positions(ctx context.Context, account string) ([]models.Position, error) {
	return execCircuitBreaker(c.breaker, c.store, func(s Interface) ([]models.Position, error) {
		return s.Positions(ctx, account)
	})
}

// ReplacePositions wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) ReplacePositions(ctx context.Context, account string, positions []models.Position) (bool, error) {
	return execCircuitBreaker(c.breaker, c.store, func(s Interface) (bool, error) {
		return s.ReplacePositions(ctx, account, positions)
	})
}

// UpsertPosition wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) UpsertPosition(ctx context.Context, pos models.Position) error {
	return execCircuitBreakerErr(c.breaker, c.store, func(s Interface) error { return s.UpsertPosition(ctx, pos) })
}

// DeletePosition wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) DeletePosition(ctx context.Context, account, instrumentID string) error {
	return execCircuitBreakerErr(c.breaker, c.store, func(s Interface) error {
		return s.DeletePosition(ctx, account, instrumentID)
	})
}

// Account wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) Account(ctx context.Context, name string) (*models.Account, error) {
	return execCircuitBreaker(c.breaker, c.store, func(s Interface) (*models.Account, error) { return s.Account(ctx, name) })
}

// Accounts wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) Accounts(ctx context.Context) ([]models.Account, error) {
	return execCircuitBreaker(c.breaker, c.store, func(s Interface) ([]models.Account, error) { return s.Accounts(ctx) })
}

// SaveAccount wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) SaveAccount(ctx context.Context, acct models.Account) error {
	return execCircuitBreakerErr(c.breaker, c.store, func(s Interface) error { return s.SaveAccount(ctx, acct) })
}

// UpsertSnapshot wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) UpsertSnapshot(ctx context.Context, snap models.NavSnapshot) error {
	return execCircuitBreakerErr(c.breaker, c.store, func(s Interface) error { return s.UpsertSnapshot(ctx, snap) })
}

// Snapshots wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) Snapshots(ctx context.Context, account string, from, to time.Time) ([]models.NavSnapshot, error) {
	return execCircuitBreaker(c.breaker, c.store, func(s Interface) ([]models.NavSnapshot, error) {
		return s.Snapshots(ctx, account, from, to)
	})
}

// DeleteSnapshots wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) DeleteSnapshots(ctx context.Context, account string) error {
	return execCircuitBreakerErr(c.breaker, c.store, func(s Interface) error { return s.DeleteSnapshots(ctx, account) })
}

// UpsertBenchmarkPrices wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) UpsertBenchmarkPrices(ctx context.Context, prices []models.BenchmarkPrice) error {
	return execCircuitBreakerErr(c.breaker, c.store, func(s Interface) error { return s.UpsertBenchmarkPrices(ctx, prices) })
}

// BenchmarkPrices wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) BenchmarkPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.BenchmarkPrice, error) {
	return execCircuitBreaker(c.breaker, c.store, func(s Interface) ([]models.BenchmarkPrice, error) {
		return s.BenchmarkPrices(ctx, symbol, from, to)
	})
}

// DeleteBenchmarkPrices wraps the underlying store call with circuit breaker
func (c *CircuitBreakerStorage) DeleteBenchmarkPrices(ctx context.Context, symbol string) error {
	return execCircuitBreakerErr(c.breaker, c.store, func(s Interface) error { return s.DeleteBenchmarkPrices(ctx, symbol) })
}

// Close closes the underlying store without going through the breaker.
func (c *CircuitBreakerStorage) Close() error {
	return c.store.Close()
}
