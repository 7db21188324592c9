package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/positionbook/internal/models"
)

func TestCircuitBreakerStorage_TripsOnFailures(t *testing.T) {
	mem := NewMemoryStorage()
	mem.SetWriteError(errors.New("database is locked"))

	cb := NewCircuitBreakerStorage(mem, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	}, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := cb.SaveAccount(ctx, models.Account{Name: "ACC1"}); err == nil {
			t.Fatal("Expected injected failure")
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("Expected open breaker, got %s", cb.State())
	}

	err := cb.SaveAccount(ctx, models.Account{Name: "ACC1"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected ErrOpenState, got %v", err)
	}
	if mem.WriteCallCount() != 3 {
		t.Errorf("Open breaker must not reach the store, got %d calls", mem.WriteCallCount())
	}
}

func TestCircuitBreakerStorage_DomainErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreakerStorage(NewMemoryStorage(), CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := cb.Account(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("Expected ErrAccountNotFound, got %v", err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("Expected closed breaker, got %s", cb.State())
	}
}
