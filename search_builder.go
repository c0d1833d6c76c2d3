package finquery

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
)

// SearchBuilder is a fluent builder for one search call.
type SearchBuilder struct {
	client *Client
	query  string

	userID string
	teamID string

	sources []Source

	from, to        time.Time
	amountMin       *float64
	amountMax       *float64
	currency        string
	categories      []string
	merchants       []string
	limit, offset   int
	similarityFloor float64
}

// For sets the acting user. Required.
func (b *SearchBuilder) For(userID string) *SearchBuilder {
	b.userID = userID
	return b
}

// Team scopes the search to a team instead of the personal scope.
func (b *SearchBuilder) Team(teamID string) *SearchBuilder {
	b.teamID = teamID
	return b
}

// Sources restricts the search to the given source types.
// Default: all sources.
func (b *SearchBuilder) Sources(sources ...Source) *SearchBuilder {
	b.sources = sources
	return b
}

// Between adds an inclusive date window filter.
func (b *SearchBuilder) Between(from, to time.Time) *SearchBuilder {
	b.from = from
	b.to = to
	return b
}

// AmountBetween adds an amount filter. Pass nil for an open bound.
func (b *SearchBuilder) AmountBetween(min, max *float64, currency string) *SearchBuilder {
	b.amountMin = min
	b.amountMax = max
	b.currency = currency
	return b
}

// Categories adds a category filter.
func (b *SearchBuilder) Categories(categories ...string) *SearchBuilder {
	b.categories = categories
	return b
}

// Merchants adds a merchant filter.
func (b *SearchBuilder) Merchants(merchants ...string) *SearchBuilder {
	b.merchants = merchants
	return b
}

// Limit caps the number of results. Default: 20.
func (b *SearchBuilder) Limit(n int) *SearchBuilder {
	b.limit = n
	return b
}

// Offset skips the first n results for pagination.
func (b *SearchBuilder) Offset(n int) *SearchBuilder {
	b.offset = n
	return b
}

// MinSimilarity overrides the similarity floor for vector matches.
func (b *SearchBuilder) MinSimilarity(threshold float64) *SearchBuilder {
	b.similarityFloor = threshold
	return b
}

// Do executes the search through the full pipeline.
func (b *SearchBuilder) Do(ctx context.Context) (*SearchResponse, error) {
	if b.userID == "" {
		return nil, errors.New("finquery: user ID required (use For)")
	}

	req, id, err := b.build()
	if err != nil {
		return nil, err
	}

	out, err := b.client.pipeline.Execute(ctx, req, id)
	if err != nil {
		return nil, err
	}
	return fromPipelineOutput(out), nil
}

func (b *SearchBuilder) build() (request.Request, request.Identity, error) {
	var dr *filter.DateRange
	if !b.from.IsZero() || !b.to.IsZero() {
		r := filter.NewDateRange(b.from, b.to)
		dr = &r
	}

	var ar *filter.AmountRange
	if b.amountMin != nil || b.amountMax != nil {
		r, err := filter.NewAmountRange(b.amountMin, b.amountMax, b.currency)
		if err != nil {
			return request.Request{}, request.Identity{}, err
		}
		ar = &r
	}

	filters, err := filter.New(dr, ar, b.categories, b.merchants, b.teamID)
	if err != nil {
		return request.Request{}, request.Identity{}, err
	}

	req, err := request.New(
		b.query, toSourceTypes(b.sources), filters,
		b.limit, b.offset, b.similarityFloor,
	)
	if err != nil {
		return request.Request{}, request.Identity{}, err
	}

	return req, request.Identity{UserID: b.userID, TeamID: b.teamID}, nil
}
