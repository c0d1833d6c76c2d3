// Package temporal classifies raw query text into a structured temporal and
// monetary intent. Parsing is pure and deterministic for a fixed clock; it
// gates every request and must stay allocation-light.
package temporal

import (
	"strings"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/strategy"
)

// ParsedQuery is the classifier output. Computed once per request, attached
// to the pipeline context, never mutated afterward.
type ParsedQuery struct {
	IsTemporalQuery    bool
	HasSemanticContent bool
	Routing            strategy.Strategy
	TemporalConfidence float64
	DateRange          *filter.DateRange
	AmountRange        *filter.AmountRange
	SemanticTerms      []string
}

// Classifier parses temporal and monetary phrases out of query text.
type Classifier struct {
	now             func() time.Time
	defaultCurrency string
}

// New creates a classifier. clock may be nil for wall-clock time;
// defaultCurrency applies when a monetary phrase carries no symbol.
func New(defaultCurrency string, clock func() time.Time) *Classifier {
	if clock == nil {
		clock = time.Now
	}
	if defaultCurrency == "" {
		defaultCurrency = "MYR"
	}
	return &Classifier{now: clock, defaultCurrency: defaultCurrency}
}

// Parse extracts date range, amount range and routing strategy from query.
//
// Routing rules:
//   - date range found, nothing semantic left after stripping -> DateFilterOnly
//   - date range found, residual terms remain -> HybridTemporalSemantic
//   - otherwise (including monetary-only queries) -> SemanticOnly
func (c *Classifier) Parse(query string) ParsedQuery {
	lower := strings.ToLower(query)
	now := c.now().UTC()

	stripped := lower

	amount, amountSpans := c.parseAmount(lower)
	for _, span := range amountSpans {
		stripped = strings.Replace(stripped, span, " ", 1)
	}

	dateRange, confidence, dateSpans := parseDates(stripped, now)
	for _, span := range dateSpans {
		stripped = strings.Replace(stripped, span, " ", 1)
	}

	terms := SemanticTerms(stripped)

	parsed := ParsedQuery{
		TemporalConfidence: confidence,
		DateRange:          dateRange,
		AmountRange:        amount,
		SemanticTerms:      terms,
		HasSemanticContent: len(terms) > 0,
	}

	switch {
	case dateRange != nil && len(terms) == 0:
		parsed.IsTemporalQuery = true
		parsed.Routing = strategy.DateFilterOnly
	case dateRange != nil:
		parsed.IsTemporalQuery = true
		parsed.Routing = strategy.HybridTemporalSemantic
	default:
		parsed.Routing = strategy.SemanticOnly
	}

	return parsed
}

// HasMonetaryIntent reports whether the query contains a monetary comparison
// phrase. Runs the same pattern list as Parse; used by routing to suppress
// product-name heuristics before they can misfire on amount queries.
func (c *Classifier) HasMonetaryIntent(query string) bool {
	amount, _ := c.parseAmount(strings.ToLower(query))
	return amount != nil
}
