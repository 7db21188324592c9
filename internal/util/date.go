package util

import (
	"regexp"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 Jan 06",
	"2 Jan 06",
	"Jan 02 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05Z07:00",
}

var (
	asOfPattern = regexp.MustCompile(`(?i)^\s*(\S+)\s+as\s+of\s+(\S+)\s*$`)
	// Order matters: the more specific forms are tried first.
	embeddedDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2}\b`),
		regexp.MustCompile(`(?i)\d{1,2}\s+(?:JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)\s+\d{2,4}`),
	}
)

// ParseDate parses the date spellings found in broker exports and returns a
// UTC midnight date. "MM/DD/YYYY as of MM/DD/YYYY" resolves to the as-of date.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return time.Time{}, false
	}
	if m := asOfPattern.FindStringSubmatch(s); m != nil {
		if t, ok := parseLayouts(m[2]); ok {
			return t, true
		}
		return parseLayouts(m[1])
	}
	return parseLayouts(s)
}

func parseLayouts(s string) (time.Time, bool) {
	s = titleMonth(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// FindDate returns the first recognisable date embedded in free text,
// e.g. "Positions for CUSTACCS as of 01:18 AM ET, 02/10/2026".
func FindDate(text string) (time.Time, bool) {
	for _, re := range embeddedDatePatterns {
		if m := re.FindString(text); m != "" {
			if t, ok := ParseDate(m); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// FindLastDate is FindDate scanning from the end, for "... through 2/17/26" headers.
func FindLastDate(text string) (time.Time, bool) {
	var (
		best    time.Time
		bestPos = -1
	)
	for _, re := range embeddedDatePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if loc[0] <= bestPos {
				continue
			}
			if t, ok := ParseDate(text[loc[0]:loc[1]]); ok {
				best, bestPos = t, loc[0]
			}
		}
	}
	return best, bestPos >= 0
}

// titleMonth turns "17 JAN 2026" into "17 Jan 2026" so time.Parse accepts it.
func titleMonth(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		word := strings.TrimSuffix(f, ",")
		if len(word) == 3 && isAlpha(word) {
			fields[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:]) + f[len(word):]
		}
	}
	return strings.Join(fields, " ")
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return s != ""
}
