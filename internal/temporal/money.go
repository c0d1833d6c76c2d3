package temporal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
)

// Monetary pattern list, checked in priority order: an explicit range wins
// over single-bound phrases, so "between 10 and 20" never half-matches as
// "under 20". Range bounds are inclusive; over/under are strict.
var (
	curToken = `(?:\$|rm|myr|usd)?\s*`

	reBetween = regexp.MustCompile(
		`\b(?:between|from)\s+` + curToken + `(\d+(?:\.\d+)?)\s+(?:and|to)\s+` + curToken + `(\d+(?:\.\d+)?)\b`)
	reOver = regexp.MustCompile(
		`\b(?:over|above|more\s+than|greater\s+than|exceeding|at\s+least)\s+` + curToken + `(\d+(?:\.\d+)?)\b`)
	reUnder = regexp.MustCompile(
		`\b(?:under|below|less\s+than|cheaper\s+than|at\s+most|within)\s+` + curToken + `(\d+(?:\.\d+)?)\b`)

	// No trailing word boundary: the symbol may butt up against digits ("rm50").
	reCurrencySymbol = regexp.MustCompile(`\$|\bmyr|\busd|\brm`)
)

// parseAmount extracts an amount range from the lowercased query. Returns the
// range and the matched spans to strip from the query text.
func (c *Classifier) parseAmount(lower string) (*filter.AmountRange, []string) {
	if m := reBetween.FindStringSubmatch(lower); m != nil {
		// "at least"/"at most" phrasing is folded into over/under; the
		// explicit between keeps both bounds inclusive.
		minV, err1 := strconv.ParseFloat(m[1], 64)
		maxV, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			if minV > maxV {
				minV, maxV = maxV, minV
			}
			return &filter.AmountRange{
				Min:      &minV,
				Max:      &maxV,
				Currency: c.currencyFor(m[0]),
			}, []string{m[0]}
		}
	}

	if m := reOver.FindStringSubmatch(lower); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			strict := !strings.Contains(m[0], "at least")
			return &filter.AmountRange{
				Min:       &v,
				Currency:  c.currencyFor(m[0]),
				StrictMin: strict,
			}, []string{m[0]}
		}
	}

	if m := reUnder.FindStringSubmatch(lower); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			strict := !strings.Contains(m[0], "at most") && !strings.Contains(m[0], "within")
			return &filter.AmountRange{
				Max:       &v,
				Currency:  c.currencyFor(m[0]),
				StrictMax: strict,
			}, []string{m[0]}
		}
	}

	return nil, nil
}

// currencyFor maps the symbol inside a matched span to a currency code,
// defaulting to the account currency when the phrase carries none.
func (c *Classifier) currencyFor(span string) string {
	switch reCurrencySymbol.FindString(span) {
	case "$", "usd":
		return "USD"
	case "rm", "myr":
		return "MYR"
	default:
		return c.defaultCurrency
	}
}
