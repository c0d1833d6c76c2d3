package search

import (
	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
)

// EnforceAmountBounds drops results whose monetary value violates the
// bounds. The stored procedures compare amounts inclusively and the legacy
// one ignores them entirely, so the strict "over"/"under" comparisons are
// applied here after retrieval. Results carrying no monetary value pass
// through untouched.
func EnforceAmountBounds(results []domain.Result, a *filter.AmountRange) []domain.Result {
	if a == nil || a.IsZero() {
		return results
	}
	kept := make([]domain.Result, 0, len(results))
	for _, r := range results {
		if amount, ok := resultAmount(r); ok && !a.Matches(amount) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// resultAmount reads the monetary value a result carries: "total" for
// receipts, "amount" for line items. jsonb numbers scan as float64.
func resultAmount(r domain.Result) (float64, bool) {
	for _, key := range [...]string{"total", "amount"} {
		switch v := r.Metadata[key].(type) {
		case float64:
			return v, true
		case int64:
			return float64(v), true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}
