// Package classify decides the special-case routes taken before the general
// search router: dedicated line-item search and financial aggregation.
package classify

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/finquery/internal/temporal"
)

// Route is the pre-routing decision.
type Route string

const (
	// RouteGeneral hands the query to the strategy-chain router.
	RouteGeneral Route = "general"
	// RouteLineItem targets the dedicated product-level search.
	RouteLineItem Route = "line_item"
	// RouteFinancialAnalysis targets aggregation calls instead of similarity search.
	RouteFinancialAnalysis Route = "financial_analysis"
)

// Product-vocabulary hints. Queries naming things bought, not documents,
// go to line-item search.
var lineItemKeywords = map[string]struct{}{
	"bought":     {},
	"buy":        {},
	"purchased":  {},
	"item":       {},
	"items":      {},
	"product":    {},
	"products":   {},
	"brand":      {},
	"groceries":  {},
	"snack":      {},
	"snacks":     {},
	"drink":      {},
	"drinks":     {},
	"food":       {},
	"ingredient": {},
}

var financialAnalysisKeywords = []string{
	"spending", "spend", "spent",
	"breakdown", "by category", "per category",
	"trend", "trends", "monthly",
	"average", "total", "sum",
	"most expensive", "cheapest",
	"statistics", "stats", "summary",
	"anomaly", "anomalies", "unusual",
	"pattern", "patterns",
	"how much", "compare",
}

// reProductCode matches alphanumeric product codes like "A4", "SKU-1234"
// or "mx500": letters and digits mixed in one token.
var reProductCode = regexp.MustCompile(`^(?:[a-z]+-?[0-9][a-z0-9-]*|[0-9]+-?[a-z][a-z0-9-]*)$`)

var reToken = regexp.MustCompile(`[a-z0-9-]+`)

// Classifier decides pre-routing from the raw query and its temporal parse.
type Classifier struct{}

// New creates a pre-routing classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify picks a route. Monetary queries always take the general route:
// an amount filter is a stronger signal than any product heuristic, and the
// strict/inclusive comparison semantics live in the general router.
func (c *Classifier) Classify(query string, parsed temporal.ParsedQuery) Route {
	if parsed.AmountRange != nil {
		return RouteGeneral
	}

	lower := strings.ToLower(strings.TrimSpace(query))

	if isFinancialAnalysis(lower) {
		return RouteFinancialAnalysis
	}

	// Temporal queries belong to the date-aware strategies; product
	// heuristics only apply to plain content queries.
	if parsed.IsTemporalQuery {
		return RouteGeneral
	}

	if isLineItemQuery(lower) {
		return RouteLineItem
	}

	return RouteGeneral
}

// Analysis is the aggregation flavor of a financial-analysis query.
type Analysis string

const (
	AnalysisSummary           Analysis = "summary"
	AnalysisCategoryBreakdown Analysis = "category_breakdown"
	AnalysisMonthlyTrend      Analysis = "monthly_trend"
	AnalysisMerchantStats     Analysis = "merchant_stats"
	AnalysisAnomalies         Analysis = "anomalies"
	AnalysisTimePatterns      Analysis = "time_patterns"
)

// AnalysisKind refines a financial-analysis route into the aggregation to
// run. Order matters: the more specific vocabularies win over the generic
// trend/summary ones.
func (c *Classifier) AnalysisKind(query string) Analysis {
	lower := strings.ToLower(strings.TrimSpace(query))

	switch {
	case containsAny(lower, "anomaly", "anomalies", "unusual", "outlier"):
		return AnalysisAnomalies
	case containsAny(lower, "by category", "per category", "breakdown", "category", "categories"):
		return AnalysisCategoryBreakdown
	case containsAny(lower, "merchant", "merchants", "vendor", "store", "shop"):
		return AnalysisMerchantStats
	case containsAny(lower, "pattern", "patterns", "day of week", "weekday", "time of day"):
		return AnalysisTimePatterns
	case containsAny(lower, "trend", "trends", "monthly", "over time", "month over month"):
		return AnalysisMonthlyTrend
	default:
		return AnalysisSummary
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isFinancialAnalysis(lower string) bool {
	for _, kw := range financialAnalysisKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isLineItemQuery applies the product heuristics: curated vocabulary, a
// single unstopworded token of plausible product-name length, a two-word
// brand-like phrase, or an alphanumeric product code.
func isLineItemQuery(lower string) bool {
	tokens := reToken.FindAllString(lower, -1)
	if len(tokens) == 0 {
		return false
	}

	for _, tok := range tokens {
		if _, ok := lineItemKeywords[tok]; ok {
			return true
		}
		if reProductCode.MatchString(tok) {
			return true
		}
	}

	content := contentTokens(tokens)

	switch len(content) {
	case 1:
		// Single product-name-like token, e.g. "milo" or "toothpaste".
		return len(content[0]) >= 3 && len(content[0]) <= 20
	case 2:
		// Brand-like phrase, e.g. "nestle drumstick": both words content-bearing.
		return len(content) == len(tokens) &&
			len(content[0]) >= 3 && len(content[1]) >= 3
	}

	return false
}

// contentTokens drops stop words and bare numbers.
func contentTokens(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		if temporal.IsStopWord(tok) || isNumeric(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
