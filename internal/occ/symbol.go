// Package occ encodes and decodes OSI option symbols such as
// AAPL260117C00150000 (underlying, YYMMDD expiry, C/P, strike x 1000).
package occ

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/util"
)

var (
	// ErrInvalidSymbol is returned when a string is not a well-formed OSI symbol
	ErrInvalidSymbol = errors.New("invalid option symbol")
	// ErrInvalidInput is returned when contract components cannot be encoded
	ErrInvalidInput = errors.New("invalid option contract input")
)

const (
	strikeTick   = 0.001
	maxStrikeRaw = 99999999
	expiryLayout = "060102"

	// Two-digit years read back as 1969-2068.
	minExpiryYear = 1969
	maxExpiryYear = 2068
)

var (
	symbolPattern     = regexp.MustCompile(`^([A-Z0-9]{1,6})(\d{6})([CP])(\d{8})$`)
	underlyingPattern = regexp.MustCompile(`^[A-Z0-9]{1,6}$`)
	thousand          = decimal.NewFromInt(1000)
)

// Contract is a decoded option identity.
type Contract struct {
	Expiry     time.Time          `json:"expiry"`
	Underlying string             `json:"underlying"`
	Right      models.OptionRight `json:"right"`
	Strike     float64            `json:"strike"`
}

// Symbol re-encodes the contract.
func (c Contract) Symbol() (string, error) {
	return Build(c.Underlying, c.Expiry, c.Right, c.Strike)
}

// Parse decodes an OSI symbol. Input is case-insensitive; surrounding
// whitespace, a leading '.' and the padding spaces of the 21-character form
// are ignored.
func Parse(symbol string) (Contract, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimPrefix(s, ".")
	s = strings.ReplaceAll(s, " ", "")

	m := symbolPattern.FindStringSubmatch(s)
	if m == nil {
		return Contract{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	expiry, err := time.Parse(expiryLayout, m[2])
	if err != nil {
		return Contract{}, fmt.Errorf("%w: bad expiration %q in %q", ErrInvalidSymbol, m[2], symbol)
	}

	strikeRaw, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: bad strike %q in %q", ErrInvalidSymbol, m[4], symbol)
	}
	if strikeRaw == 0 {
		return Contract{}, fmt.Errorf("%w: zero strike in %q", ErrInvalidSymbol, symbol)
	}

	right := models.RightCall
	if m[3] == "P" {
		right = models.RightPut
	}

	return Contract{
		Underlying: m[1],
		Expiry:     expiry.UTC(),
		Right:      right,
		Strike:     decimal.NewFromInt(strikeRaw).Div(thousand).InexactFloat64(),
	}, nil
}

// Build encodes a contract. The strike is rounded to the nearest 0.001.
func Build(underlying string, expiry time.Time, right models.OptionRight, strike float64) (string, error) {
	u := strings.ToUpper(strings.TrimSpace(underlying))
	switch {
	case u == "":
		return "", fmt.Errorf("%w: empty underlying", ErrInvalidInput)
	case !underlyingPattern.MatchString(u):
		return "", fmt.Errorf("%w: underlying %q must be 1-6 letters or digits", ErrInvalidInput, underlying)
	case expiry.IsZero():
		return "", fmt.Errorf("%w: missing expiration", ErrInvalidInput)
	case expiry.Year() < minExpiryYear || expiry.Year() > maxExpiryYear:
		return "", fmt.Errorf("%w: expiration year %d outside %d-%d", ErrInvalidInput, expiry.Year(), minExpiryYear, maxExpiryYear)
	case math.IsNaN(strike) || math.IsInf(strike, 0):
		return "", fmt.Errorf("%w: strike is not finite", ErrInvalidInput)
	case strike <= 0:
		return "", fmt.Errorf("%w: strike must be > 0, got %v", ErrInvalidInput, strike)
	}

	code, err := rightCode(right)
	if err != nil {
		return "", err
	}

	raw := decimal.NewFromFloat(util.RoundToTick(strike, strikeTick)).Mul(thousand).Round(0).IntPart()
	if raw <= 0 || raw > maxStrikeRaw {
		return "", fmt.Errorf("%w: strike %v does not fit 8 digits", ErrInvalidInput, strike)
	}

	return fmt.Sprintf("%s%s%s%08d", u, expiry.Format(expiryLayout), code, raw), nil
}

// ParseRight accepts C, P, CALL or PUT in any case.
func ParseRight(s string) (models.OptionRight, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL", "CALLS":
		return models.RightCall, true
	case "P", "PUT", "PUTS":
		return models.RightPut, true
	default:
		return "", false
	}
}

func rightCode(r models.OptionRight) (string, error) {
	parsed, ok := ParseRight(string(r))
	if !ok {
		return "", fmt.Errorf("%w: option right %q must be CALL or PUT", ErrInvalidInput, r)
	}
	return parsed.Code(), nil
}
