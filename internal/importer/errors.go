package importer

import (
	"errors"
	"fmt"
	"strings"
)

// detailedFailures is how many sample failures NoUsableRowsError spells out.
const detailedFailures = 3

var (
	// ErrUnrecognizedFormat is returned when no known layout matches the input
	ErrUnrecognizedFormat = errors.New("unrecognized file format")
	// ErrNoUsableRows is returned when a recognized file yields no importable rows
	ErrNoUsableRows = errors.New("no usable rows")
	// ErrRowRejected is the sentinel wrapped by every RowError
	ErrRowRejected = errors.New("row rejected")
	// ErrNotOptionDescription is returned when free text does not follow the option grammar
	ErrNotOptionDescription = errors.New("not an option description")
	// ErrMissingUnderlying is returned when an option description has no underlying and no fallback was given
	ErrMissingUnderlying = errors.New("option description has no underlying")
)

// RowError describes why a single input row was skipped.
type RowError struct {
	Section string `json:"section,omitempty"`
	Reason  string `json:"reason"`
	Line    int    `json:"line"`
}

func (e *RowError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("line %d (%s): %s", e.Line, e.Section, e.Reason)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Unwrap lets callers test with errors.Is(err, ErrRowRejected).
func (e *RowError) Unwrap() error {
	return ErrRowRejected
}

// NoUsableRowsError is returned when a file, or one account section of it,
// produced nothing importable. It wraps ErrNoUsableRows and carries the
// sample of rejected rows so the input can be fixed.
type NoUsableRowsError struct {
	Account  string      `json:"account,omitempty"`
	Failures []*RowError `json:"failures,omitempty"`
	Rejected int         `json:"rejected"`
}

func (e *NoUsableRowsError) Error() string {
	var b strings.Builder
	b.WriteString(ErrNoUsableRows.Error())
	if e.Account != "" {
		fmt.Fprintf(&b, " for %s", e.Account)
	}
	fmt.Fprintf(&b, ": %d rows rejected", e.Rejected)
	shown := min(len(e.Failures), detailedFailures)
	for _, f := range e.Failures[:shown] {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	if more := e.Rejected - shown; more > 0 && shown > 0 {
		fmt.Fprintf(&b, "; and %d more", more)
	}
	return b.String()
}

// Unwrap lets callers test with errors.Is(err, ErrNoUsableRows).
func (e *NoUsableRowsError) Unwrap() error {
	return ErrNoUsableRows
}

// Summary counts accepted and rejected rows and keeps a capped sample of failures.
type Summary struct {
	Failures []*RowError `json:"failures,omitempty"`
	Accepted int         `json:"accepted"`
	Rejected int         `json:"rejected"`
	limit    int
}

func newSummary(limit int) Summary {
	return Summary{limit: limit}
}

func (s *Summary) accept() {
	s.Accepted++
}

func (s *Summary) reject(err *RowError) {
	s.Rejected++
	if len(s.Failures) < s.limit {
		s.Failures = append(s.Failures, err)
	}
}
