package domain

// PreprocessResult is the query-understanding output attached to a request
// before retrieval. A degraded result (low confidence, default intent) is
// still a valid result: preprocessing never fails a request.
type PreprocessResult struct {
	ExpandedQuery    string       `json:"expandedQuery"`
	Intent           QueryIntent  `json:"intent"`
	Entities         []string     `json:"entities"`
	Confidence       float64      `json:"confidence"`
	QueryType        string       `json:"queryType"`
	SuggestedSources []SourceType `json:"suggestedSources"`
}
