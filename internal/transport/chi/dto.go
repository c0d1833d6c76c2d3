package chi

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/usecase/pipeline"
)

const dateLayout = "2006-01-02"

// searchPayload is the wire shape of POST /v1/search.
type searchPayload struct {
	Query               string          `json:"query"`
	UserID              string          `json:"userId"`
	TeamID              string          `json:"teamId,omitempty"`
	Sources             []string        `json:"sources,omitempty"`
	Filters             *filtersPayload `json:"filters,omitempty"`
	Limit               int             `json:"limit,omitempty"`
	Offset              int             `json:"offset,omitempty"`
	SimilarityThreshold float64         `json:"similarityThreshold,omitempty"`
}

type filtersPayload struct {
	DateRange   *dateRangePayload   `json:"dateRange,omitempty"`
	AmountRange *amountRangePayload `json:"amountRange,omitempty"`
	Categories  []string            `json:"categories,omitempty"`
	Merchants   []string            `json:"merchants,omitempty"`
}

type dateRangePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type amountRangePayload struct {
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// toRequest validates the payload into the domain request contract.
func (p *searchPayload) toRequest() (request.Request, request.Identity, error) {
	filters, err := p.toFilters()
	if err != nil {
		return request.Request{}, request.Identity{}, err
	}

	sources := make([]domain.SourceType, 0, len(p.Sources))
	for _, s := range p.Sources {
		sources = append(sources, domain.SourceType(s))
	}

	req, err := request.New(p.Query, sources, filters, p.Limit, p.Offset, p.SimilarityThreshold)
	if err != nil {
		return request.Request{}, request.Identity{}, err
	}

	return req, request.Identity{UserID: p.UserID, TeamID: p.TeamID}, nil
}

func (p *searchPayload) toFilters() (filter.Filters, error) {
	if p.Filters == nil {
		return filter.Filters{}, nil
	}

	var dr *filter.DateRange
	if d := p.Filters.DateRange; d != nil {
		start, err := parseDate(d.Start)
		if err != nil {
			return filter.Filters{}, domain.NewValidation("filters.dateRange.start", err.Error())
		}
		end, err := parseDate(d.End)
		if err != nil {
			return filter.Filters{}, domain.NewValidation("filters.dateRange.end", err.Error())
		}
		r := filter.NewDateRange(start, end)
		dr = &r
	}

	var ar *filter.AmountRange
	if a := p.Filters.AmountRange; a != nil {
		r, err := filter.NewAmountRange(a.Min, a.Max, a.Currency)
		if err != nil {
			return filter.Filters{}, domain.NewValidation("filters.amountRange", err.Error())
		}
		ar = &r
	}

	f, err := filter.New(dr, ar, p.Filters.Categories, p.Filters.Merchants, p.TeamID)
	if err != nil {
		return filter.Filters{}, domain.NewValidation("filters", err.Error())
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected %s or RFC3339 date, got %q", dateLayout, s)
	}
	return t, nil
}

// Response shapes.

type searchResponse struct {
	Results      []resultPayload     `json:"results"`
	TotalResults int                 `json:"totalResults"`
	Metadata     metadataPayload     `json:"metadata"`
	Suggestions  []suggestionPayload `json:"smartSuggestions,omitempty"`
}

type resultPayload struct {
	ID          string         `json:"id"`
	SourceType  string         `json:"sourceType"`
	SourceID    string         `json:"sourceId"`
	ContentType string         `json:"contentType,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Similarity  float64        `json:"similarity"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
}

type metadataPayload struct {
	SourcesSearched  []string           `json:"sourcesSearched"`
	SearchMethod     string             `json:"searchMethod"`
	RoutingStrategy  string             `json:"routingStrategy"`
	Intent           string             `json:"intent,omitempty"`
	FallbacksUsed    []string           `json:"fallbacksUsed,omitempty"`
	StageTimingsMs   map[string]float64 `json:"stageTimingsMs"`
	RerankModel      string             `json:"rerankModel,omitempty"`
	RerankConfidence float64            `json:"rerankConfidence,omitempty"`
	IsFallback       bool               `json:"isFallback"`
	Note             string             `json:"note,omitempty"`
}

type suggestionPayload struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
	Count int64  `json:"count"`
}

func outputToResponse(out pipeline.Output) searchResponse {
	results := make([]resultPayload, 0, len(out.Results))
	for _, r := range out.Results {
		item := resultPayload{
			ID:          r.ID,
			SourceType:  string(r.SourceType),
			SourceID:    r.SourceID,
			ContentType: r.ContentType,
			Title:       r.Title,
			Description: r.Description,
			Similarity:  r.Similarity,
			Metadata:    r.Metadata,
		}
		if !r.CreatedAt.IsZero() {
			created := r.CreatedAt
			item.CreatedAt = &created
		}
		results = append(results, item)
	}

	sources := make([]string, 0, len(out.Metadata.SourcesSearched))
	for _, s := range out.Metadata.SourcesSearched {
		sources = append(sources, string(s))
	}

	timings := make(map[string]float64, len(out.Metadata.StageTimings))
	for stage, d := range out.Metadata.StageTimings {
		timings[stage] = float64(d.Microseconds()) / 1000
	}

	suggestions := make([]suggestionPayload, 0, len(out.Suggestions))
	for _, s := range out.Suggestions {
		suggestions = append(suggestions, suggestionPayload{
			Label: s.Label,
			Start: s.Range.Start.Format(dateLayout),
			End:   s.Range.End.Format(dateLayout),
			Count: s.Count,
		})
	}

	return searchResponse{
		Results:      results,
		TotalResults: out.TotalResults,
		Metadata: metadataPayload{
			SourcesSearched:  sources,
			SearchMethod:     out.Metadata.SearchMethod,
			RoutingStrategy:  string(out.Metadata.RoutingStrategy),
			Intent:           string(out.Metadata.Intent),
			FallbacksUsed:    out.Metadata.FallbacksUsed,
			StageTimingsMs:   timings,
			RerankModel:      out.Metadata.RerankModel,
			RerankConfidence: out.Metadata.RerankConfidence,
			IsFallback:       out.Metadata.IsFallback,
			Note:             out.Metadata.Note,
		},
		Suggestions: suggestions,
	}
}
