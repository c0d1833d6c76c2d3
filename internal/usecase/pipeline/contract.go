package pipeline

import (
	"context"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/domain/search/strategy"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
	"github.com/kailas-cloud/finquery/internal/usecase/rerank"
	"github.com/kailas-cloud/finquery/internal/usecase/search"
)

// Consumer interfaces for the pipeline's collaborators (ISP).

type preprocessor interface {
	Preprocess(ctx context.Context, query, userID string) domain.PreprocessResult
}

type searcher interface {
	Search(ctx context.Context, req request.Request, id request.Identity,
		parsed temporal.ParsedQuery, embedding []float32) (search.Outcome, error)
}

type reranker interface {
	Rerank(ctx context.Context, q rerank.Query, candidates []domain.Result,
		strat rerank.Strategy) rerank.Result
}

// store is the slice of the retrieval store the orchestrator touches
// directly: the last-resort legacy path, the zero-result temporal rescue,
// and the enrichment queries of the compile stage.
type store interface {
	LegacySearch(ctx context.Context, p searchstore.LegacyParams) ([]domain.Result, error)
	ReceiptsByDateRange(ctx context.Context, q searchstore.ReceiptQuery) ([]domain.Result, error)
	ReceiptDetails(ctx context.Context, ids []string) (map[string]searchstore.ReceiptDetail, error)
	DateHistogram(ctx context.Context, id request.Identity, months int) ([]searchstore.MonthCount, error)
}

// Metadata records what happened during one pipeline run. Append-only
// within the run; surfaced to the caller for response phrasing and
// observability, never read back as pipeline input.
type Metadata struct {
	SourcesSearched  []domain.SourceType      `json:"sourcesSearched"`
	SearchMethod     string                   `json:"searchMethod"`
	RoutingStrategy  strategy.Strategy        `json:"routingStrategy"`
	Intent           domain.QueryIntent       `json:"intent"`
	FallbacksUsed    []string                 `json:"fallbacksUsed,omitempty"`
	StageTimings     map[string]time.Duration `json:"stageTimings"`
	RerankModel      string                   `json:"rerankModel,omitempty"`
	RerankConfidence float64                  `json:"rerankConfidence,omitempty"`
	IsFallback       bool                     `json:"isFallback"`
	Note             string                   `json:"note,omitempty"`
}

// Suggestion is one alternative date range offered when a date-filtered
// search found nothing.
type Suggestion struct {
	Label string           `json:"label"`
	Range filter.DateRange `json:"range"`
	Count int64            `json:"count"`
}

// Output is the pipeline's answer: a possibly empty result set with run
// metadata and, on empty date-filtered runs, alternative ranges to try.
type Output struct {
	Results      []domain.Result `json:"results"`
	TotalResults int             `json:"totalResults"`
	Metadata     Metadata        `json:"metadata"`
	Suggestions  []Suggestion    `json:"smartSuggestions,omitempty"`
}
