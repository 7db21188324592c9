package importer

import (
	"regexp"
	"strings"
)

var (
	wordPattern  = regexp.MustCompile(`[A-Za-z]+`)
	maskPattern  = regexp.MustCompile(`^[Xx]+$`)
	digitPattern = regexp.MustCompile(`\d`)
)

// NormalizeAccountName collapses whitespace in a broker account label.
func NormalizeAccountName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

func isAllAccountsLabel(name string) bool {
	return normalizePhrase(name) == "all accounts"
}

// accountIdentity splits a label into lower-case words (masks like XXXX
// dropped) and its digits, e.g. "Individual ...013" -> ("individual", "013").
func accountIdentity(name string) (string, string) {
	var words []string
	for _, w := range wordPattern.FindAllString(name, -1) {
		if !maskPattern.MatchString(w) {
			words = append(words, strings.ToLower(w))
		}
	}
	digits := strings.Join(digitPattern.FindAllString(name, -1), "")
	return strings.Join(words, " "), digits
}

// MatchAccount maps a label from an export onto the best existing account
// name. Matching digits score highest, then digit suffixes, then identical
// words. The label itself is returned when nothing matches.
func MatchAccount(name string, existing []string) string {
	base, digits := accountIdentity(name)
	if base == "" && digits == "" {
		return name
	}

	best, bestScore := "", -1
	for _, acct := range existing {
		abase, adigits := accountIdentity(acct)
		if base != "" && abase != "" && base != abase {
			continue
		}
		score := 0
		switch {
		case digits != "" && adigits != "":
			switch {
			case digits == adigits:
				score = 100 + len(digits)
			case strings.HasSuffix(digits, adigits) || strings.HasSuffix(adigits, digits):
				score = 50 + min(len(digits), len(adigits))
			default:
				continue
			}
		case base != "" && base == abase:
			score = 10
		}
		if score > bestScore {
			best, bestScore = acct, score
		}
	}
	if best == "" {
		return name
	}
	return best
}
