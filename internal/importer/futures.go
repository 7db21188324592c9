package importer

import (
	"strconv"
	"strings"
	"time"
)

var futureMonthCodes = map[byte]time.Month{
	'F': time.January,
	'G': time.February,
	'H': time.March,
	'J': time.April,
	'K': time.May,
	'M': time.June,
	'N': time.July,
	'Q': time.August,
	'U': time.September,
	'V': time.October,
	'X': time.November,
	'Z': time.December,
}

// futureMultipliers are the point values of common contracts by root.
var futureMultipliers = map[string]float64{
	"ES":  50,
	"MES": 5,
	"NQ":  20,
	"MNQ": 2,
	"YM":  5,
	"RTY": 50,
	"CL":  1000,
	"NG":  10000,
	"GC":  100,
	"MGC": 10,
	"QO":  50,
	"1OZ": 1,
	"SI":  5000,
	"HG":  25000,
	"ZB":  1000,
	"ZN":  1000,
}

// FutureContract is a decoded futures symbol like /ESZ25.
type FutureContract struct {
	Expiry     time.Time
	Root       string
	Multiplier float64
}

// ParseFuture decodes ROOT + month code + two-digit year, with or without a
// leading slash. Expiry is the first of the contract month.
func ParseFuture(symbol string) (FutureContract, bool) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(symbol)), "/")
	if len(s) < 4 {
		return FutureContract{}, false
	}
	root, code, yy := s[:len(s)-3], s[len(s)-3], s[len(s)-2:]
	month, ok := futureMonthCodes[code]
	if !ok {
		return FutureContract{}, false
	}
	year, err := strconv.Atoi(yy)
	if err != nil {
		return FutureContract{}, false
	}
	if year < 70 {
		year += 2000
	} else {
		year += 1900
	}
	return FutureContract{
		Root:       root,
		Expiry:     time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		Multiplier: FutureMultiplier(root),
	}, true
}

// FutureMultiplier returns the point value for a root, or 1 when unknown.
func FutureMultiplier(root string) float64 {
	if m, ok := futureMultipliers[strings.TrimPrefix(strings.ToUpper(root), "/")]; ok {
		return m
	}
	return 1
}
