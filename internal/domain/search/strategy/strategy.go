// Package strategy defines the retrieval routing strategy chosen by the
// temporal/monetary classifier. Exactly one strategy is active per request.
package strategy

// Strategy is the retrieval mode for a request.
type Strategy string

// Routing strategies.
const (
	// DateFilterOnly retrieves by date range alone, similarity fixed at 1.0.
	DateFilterOnly Strategy = "date_filter_only"
	// SemanticOnly runs the general hybrid-search procedure.
	SemanticOnly Strategy = "semantic_only"
	// HybridTemporalSemantic constrains semantic search to a date window.
	HybridTemporalSemantic Strategy = "hybrid_temporal_semantic"
)

// IsValid checks if the strategy is one of the supported values.
func (s Strategy) IsValid() bool {
	return s == DateFilterOnly || s == SemanticOnly || s == HybridTemporalSemantic
}
