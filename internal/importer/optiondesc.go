package importer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/eddiefleurent/positionbook/internal/occ"
	"github.com/eddiefleurent/positionbook/internal/util"
)

const (
	qtyToken    = `[+-]?[\d,]+(?:\.\d+)?`
	underToken  = `[A-Z][A-Z0-9./\-]*`
	strikeToken = `\$?([\d,]+(?:\.\d+)?)`
	rightToken  = `(CALL|PUT|C|P)`
)

// optionGrammars is tried in order and the first match wins:
// [qty] UNDERLYING [qty] DATE STRIKE (CALL|PUT|C|P), with DATE numeric then month-name.
var optionGrammars = []*regexp.Regexp{
	regexp.MustCompile(`^(?:` + qtyToken + `\s+)?(?:(` + underToken + `)\s+)?(?:` + qtyToken + `\s+)?` +
		`(\d{1,2}/\d{1,2}/\d{2,4})\s+` + strikeToken + `\s+` + rightToken + `$`),
	regexp.MustCompile(`^(?:` + qtyToken + `\s+)?(?:(` + underToken + `)\s+)?(?:` + qtyToken + `\s+)?` +
		`(\d{1,2}\s+(?:JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)\s+\d{2,4})\s+` + strikeToken + `\s+` + rightToken + `$`),
}

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	nonAlnumUpper = regexp.MustCompile(`[^A-Z0-9]`)
)

// ParseOptionDescription recovers a contract from free text such as
// "AAPL 01/17/2026 150 CALL" or "SPY 100 (Weeklys) 17 JAN 26 480 C".
// fallbackUnderlying is used when the text omits the underlying.
func ParseOptionDescription(text, fallbackUnderlying string) (occ.Contract, error) {
	s := strings.ToUpper(text)
	s = parenthetical.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return occ.Contract{}, ErrNotOptionDescription
	}

	for _, re := range optionGrammars {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}

		underlying := m[1]
		if underlying == "" {
			underlying = strings.ToUpper(strings.TrimSpace(fallbackUnderlying))
		}
		underlying = nonAlnumUpper.ReplaceAllString(underlying, "")
		if underlying == "" {
			return occ.Contract{}, fmt.Errorf("%w: %q", ErrMissingUnderlying, text)
		}

		expiry, ok := util.ParseDate(m[2])
		if !ok {
			return occ.Contract{}, fmt.Errorf("%w: bad date %q in %q", ErrNotOptionDescription, m[2], text)
		}
		strike, ok := util.ParseNumber(m[3])
		if !ok {
			return occ.Contract{}, fmt.Errorf("%w: bad strike %q in %q", ErrNotOptionDescription, m[3], text)
		}
		right, _ := occ.ParseRight(m[4])

		c := occ.Contract{Underlying: underlying, Expiry: expiry, Right: right, Strike: strike}
		if _, err := c.Symbol(); err != nil {
			return occ.Contract{}, err
		}
		return c, nil
	}

	return occ.Contract{}, fmt.Errorf("%w: %q", ErrNotOptionDescription, text)
}
