package importer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/positionbook/internal/util"
)

// HistoryEntry is one dated value from a pasted history.
type HistoryEntry struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// HistoryResult is the outcome of ParseHistoryText.
type HistoryResult struct {
	Entries []HistoryEntry `json:"entries"`
	Errors  []*RowError    `json:"errors,omitempty"`
}

var historyLine = regexp.MustCompile(`^\s*(\d{4}-\d{1,2}-\d{1,2}|\d{4}/\d{1,2}/\d{1,2}|\d{1,2}/\d{1,2}/\d{4})\s*[,;\t ]\s*(.+?)\s*$`)

// ParseHistoryText parses pasted "DATE, VALUE" lines. Blank lines and lines
// starting with '#' are ignored. Malformed lines are reported with their
// 1-based line number and skipped. When a date repeats the later line wins.
// Entries are returned in ascending date order.
func ParseHistoryText(text string) (*HistoryResult, error) {
	byDate := make(map[time.Time]float64)
	res := &HistoryResult{}

	for i, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := historyLine.FindStringSubmatch(line)
		if m == nil {
			res.Errors = append(res.Errors, &RowError{Line: i + 1, Reason: fmt.Sprintf("expected DATE, VALUE but got %q", line)})
			continue
		}
		date, ok := util.ParseDate(m[1])
		if !ok {
			res.Errors = append(res.Errors, &RowError{Line: i + 1, Reason: fmt.Sprintf("invalid date %q", m[1])})
			continue
		}
		value, ok := util.ParseNumber(strings.Trim(m[2], `"' `))
		if !ok {
			res.Errors = append(res.Errors, &RowError{Line: i + 1, Reason: fmt.Sprintf("invalid value %q", m[2])})
			continue
		}
		byDate[date] = value
	}

	if len(byDate) == 0 {
		return res, fmt.Errorf("%w: no valid DATE, VALUE lines", ErrNoUsableRows)
	}

	for d, v := range byDate {
		res.Entries = append(res.Entries, HistoryEntry{Date: d, Value: v})
	}
	sort.Slice(res.Entries, func(a, b int) bool {
		return res.Entries[a].Date.Before(res.Entries[b].Date)
	})
	return res, nil
}
