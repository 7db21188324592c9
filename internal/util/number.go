package util

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var missingTokens = map[string]struct{}{
	"":    {},
	"-":   {},
	"--":  {},
	"n/a": {},
	"na":  {},
	"nan": {},
}

// ParseNumber parses broker-formatted numbers such as "$1,234.50", "(12.00)",
// "+3", "12.5%" or " 7 ". The second return value is false for blanks,
// placeholder dashes and anything that is not a finite number.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if _, ok := missingTokens[strings.ToLower(s)]; ok {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if negative {
		d = d.Neg()
	}
	v := d.InexactFloat64()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NumberOrZero is ParseNumber with missing values mapped to 0.
func NumberOrZero(raw string) float64 {
	v, _ := ParseNumber(raw)
	return v
}
