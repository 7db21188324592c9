package models

import "time"

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NavSnapshot is the stored end-of-day value of an account.
// Bench is nil when no live benchmark level was known at write time.
type NavSnapshot struct {
	Date    time.Time `json:"date"`
	Bench   *float64  `json:"bench"`
	Account string    `json:"account"`
	NAV     float64   `json:"nav"`
}

// BenchmarkPrice is one cached close of the benchmark index.
type BenchmarkPrice struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Close  float64   `json:"close"`
}

// BenchSource tells a consumer where a NavPoint's benchmark value came from.
type BenchSource string

const (
	// BenchFromCache is the cached close for that exact date
	BenchFromCache BenchSource = "cache"
	// BenchForwardFilled is the most recent earlier cached close
	BenchForwardFilled BenchSource = "forward_fill"
	// BenchFromSnapshot is the bench stored with the snapshot
	BenchFromSnapshot BenchSource = "snapshot"
	// BenchNavFallback means no benchmark data existed and nav was substituted
	BenchNavFallback BenchSource = "nav_fallback"
)

// NavPoint is one point of the read-side series.
type NavPoint struct {
	Date        time.Time   `json:"date"`
	BenchSource BenchSource `json:"bench_source"`
	NAV         float64     `json:"nav"`
	Bench       float64     `json:"bench"`
}
