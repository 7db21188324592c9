package storage

import "errors"

var (
	// ErrAccountNotFound is returned when an account has never been written
	ErrAccountNotFound = errors.New("account not found")
	// ErrPositionNotFound is returned when deleting an instrument the account does not hold
	ErrPositionNotFound = errors.New("position not found")
	// ErrAggregateWrite is returned when a write names "ALL" or no account
	ErrAggregateWrite = errors.New("writes require a single named account")
)
