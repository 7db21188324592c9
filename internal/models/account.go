package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AllAccounts is the aggregate read scope. It is never a valid target for writes.
const AllAccounts = "ALL"

// IsAggregateScope reports whether account names no single account.
func IsAggregateScope(account string) bool {
	a := strings.TrimSpace(account)
	return a == "" || strings.EqualFold(a, AllAccounts)
}

// ErrAmbiguousAccountScope is returned when a mutation names no single account.
var ErrAmbiguousAccountScope = errors.New("mutation requires a specific account, not ALL")

// CheckWriteScope rejects the aggregate scope for writes.
func CheckWriteScope(account string) error {
	if IsAggregateScope(account) {
		return fmt.Errorf("%w: got %q", ErrAmbiguousAccountScope, account)
	}
	return nil
}

// Account carries the cash and reported value for one account.
type Account struct {
	AsOf         time.Time `json:"as_of,omitempty"`
	AccountValue *float64  `json:"account_value"`
	Name         string    `json:"name"`
	Cash         float64   `json:"cash"`
}
