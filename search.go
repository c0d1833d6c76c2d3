package finquery

import (
	"time"

	"github.com/kailas-cloud/finquery/internal/domain"
	pipelineuc "github.com/kailas-cloud/finquery/internal/usecase/pipeline"
)

// Source selects which embedding source types a search covers.
type Source string

// Searchable source types.
const (
	SourceReceipt           Source = "receipt"
	SourceClaim             Source = "claim"
	SourceTeamMember        Source = "team_member"
	SourceCustomCategory    Source = "custom_category"
	SourceBusinessDirectory Source = "business_directory"
	SourceLineItem          Source = "line_item"
	SourceFinancialAnalysis Source = "financial_analysis"
)

// RerankStrategy selects the re-ranking algorithm.
type RerankStrategy string

// Supported re-ranking strategies.
const (
	RerankFeature      RerankStrategy = "feature_based"
	RerankCrossEncoder RerankStrategy = "cross_encoder"
	RerankHybrid       RerankStrategy = "hybrid"
)

// SearchResult is one ranked hit.
type SearchResult struct {
	ID         string
	SourceType Source
	SourceID   string
	Title      string
	Content    string
	Similarity float64
	Metadata   map[string]any
	CreatedAt  time.Time
}

// SearchMetadata describes how the pipeline produced the result set.
type SearchMetadata struct {
	SourcesSearched  []Source
	SearchMethod     string
	RoutingStrategy  string
	Intent           string
	FallbacksUsed    []string
	StageTimings     map[string]time.Duration
	RerankModel      string
	RerankConfidence float64
	IsFallback       bool
	Note             string
}

// DateSuggestion is an alternative date range offered when a
// date-filtered search found nothing.
type DateSuggestion struct {
	Label string
	Start time.Time
	End   time.Time
	Count int64
}

// SearchResponse is the complete answer to one search.
type SearchResponse struct {
	Results      []SearchResult
	TotalResults int
	Metadata     SearchMetadata
	Suggestions  []DateSuggestion
}

func fromPipelineOutput(out pipelineuc.Output) *SearchResponse {
	resp := &SearchResponse{
		Results:      make([]SearchResult, 0, len(out.Results)),
		TotalResults: out.TotalResults,
		Metadata: SearchMetadata{
			SourcesSearched:  fromSourceTypes(out.Metadata.SourcesSearched),
			SearchMethod:     out.Metadata.SearchMethod,
			RoutingStrategy:  string(out.Metadata.RoutingStrategy),
			Intent:           string(out.Metadata.Intent),
			FallbacksUsed:    out.Metadata.FallbacksUsed,
			StageTimings:     out.Metadata.StageTimings,
			RerankModel:      out.Metadata.RerankModel,
			RerankConfidence: out.Metadata.RerankConfidence,
			IsFallback:       out.Metadata.IsFallback,
			Note:             out.Metadata.Note,
		},
	}
	for _, r := range out.Results {
		resp.Results = append(resp.Results, SearchResult{
			ID:         r.ID,
			SourceType: Source(r.SourceType),
			SourceID:   r.SourceID,
			Title:      r.Title,
			Content:    r.Description,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
			CreatedAt:  r.CreatedAt,
		})
	}
	for _, s := range out.Suggestions {
		resp.Suggestions = append(resp.Suggestions, DateSuggestion{
			Label: s.Label,
			Start: s.Range.Start,
			End:   s.Range.End,
			Count: s.Count,
		})
	}
	return resp
}

func fromSourceTypes(types []domain.SourceType) []Source {
	if types == nil {
		return nil
	}
	out := make([]Source, len(types))
	for i, t := range types {
		out[i] = Source(t)
	}
	return out
}

func toSourceTypes(sources []Source) []domain.SourceType {
	if sources == nil {
		return nil
	}
	out := make([]domain.SourceType, len(sources))
	for i, s := range sources {
		out[i] = domain.SourceType(s)
	}
	return out
}

// UsagePeriod selects a token usage reporting window.
type UsagePeriod string

// Supported usage periods.
const (
	UsageDay   UsagePeriod = "day"
	UsageMonth UsagePeriod = "month"
)

// UsageReport is the provider token consumption for one period.
type UsageReport struct {
	Period           UsagePeriod
	Start            time.Time
	End              time.Time
	EmbeddingTokens  int64
	CompletionTokens int64
	TotalTokens      int64
}
