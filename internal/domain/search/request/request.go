// Package request holds the validated, immutable search request contract.
package request

import (
	"fmt"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 1000
	DefaultLimit   = 20
	MaxLimit       = 100
)

// Identity is the authenticated caller scope. Row-level scoping is enforced
// by the data store; the pipeline only threads the identity through.
type Identity struct {
	UserID string
	TeamID string
}

// Request is a validated search request. Immutable once constructed.
type Request struct {
	query               string
	sources             []domain.SourceType
	filters             filter.Filters
	limit               int
	offset              int
	similarityThreshold float64
}

// New validates and normalizes search parameters.
// Defaults: sources=all, limit=20. An empty similarity threshold means the
// configured default applies downstream.
func New(
	query string,
	sources []domain.SourceType,
	filters filter.Filters,
	limit, offset int,
	similarityThreshold float64,
) (Request, error) {
	if query == "" {
		return Request{}, domain.NewValidation("query", "is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, domain.NewValidation("query",
			fmt.Sprintf("too long (max %d chars)", MaxQueryLength))
	}
	if len(sources) == 0 {
		sources = domain.AllSourceTypes()
	}
	for _, s := range sources {
		if !s.Valid() {
			return Request{}, domain.NewValidation("sources", fmt.Sprintf("unknown source type %q", s))
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if similarityThreshold < 0 || similarityThreshold > 1 {
		return Request{}, domain.NewValidation("similarity_threshold", "must be between 0 and 1")
	}

	return Request{
		query:               query,
		sources:             sources,
		filters:             filters,
		limit:               limit,
		offset:              offset,
		similarityThreshold: similarityThreshold,
	}, nil
}

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// Sources returns the source types to search.
func (r *Request) Sources() []domain.SourceType { return r.sources }

// Filters returns the validated filter set.
func (r *Request) Filters() filter.Filters { return r.filters }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// Offset returns the pagination offset.
func (r *Request) Offset() int { return r.offset }

// SimilarityThreshold returns the requested similarity floor, 0 for default.
func (r *Request) SimilarityThreshold() float64 { return r.similarityThreshold }

// WithFilters returns a copy with the filter set replaced. Used by the
// router when a fallback widens the date window.
func (r Request) WithFilters(f filter.Filters) Request {
	r.filters = f
	return r
}
