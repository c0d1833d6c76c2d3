package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/metrics"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
)

// fallbackLadder is the ordered list of widening windows tried when the
// requested date range matches nothing. First non-empty wins.
var fallbackLadder = []struct {
	name   string
	months int
	days   int
}{
	{name: "last_2_months", months: 2},
	{name: "last_3_months", months: 3},
	{name: "last_90_days", days: 90},
}

// searchDateFilter retrieves rows purely by date window, newest first. An
// empty window walks the expanding fallback ladder; exhausting the ladder
// returns an empty outcome, not an error.
func (s *Service) searchDateFilter(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
) (Outcome, error) {
	dr := s.requestedRange(req, parsed)

	results, err := s.repo.ReceiptsByDateRange(ctx, searchstore.ReceiptQuery{
		Identity:    id,
		DateRange:   dr,
		AmountRange: amountBounds(req, parsed),
		Limit:       req.Limit() + req.Offset(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("date filter search: %w", err)
	}

	if len(results) > 0 {
		return Outcome{
			Results:      limitResults(results, req.Offset(), req.Limit()),
			SearchMethod: MethodDateFilter,
		}, nil
	}

	return s.expandingFallback(ctx, req, id, parsed, dr)
}

// expandingFallback widens the window step by step. Every surviving result
// is flagged so callers can tell an expanded match from a direct one.
func (s *Service) expandingFallback(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
	original filter.DateRange,
) (Outcome, error) {
	now := s.now().UTC()
	tried := make([]string, 0, len(fallbackLadder))

	for _, step := range fallbackLadder {
		tried = append(tried, step.name)

		var start filter.DateRange
		if step.months > 0 {
			start = filter.NewDateRange(now.AddDate(0, -step.months, 0), now)
		} else {
			start = filter.NewDateRange(now.AddDate(0, 0, -step.days), now)
		}

		metrics.FallbacksTotal.WithLabelValues("date_range_expansion").Inc()

		results, err := s.repo.ReceiptsByDateRange(ctx, searchstore.ReceiptQuery{
			Identity:    id,
			DateRange:   start,
			AmountRange: amountBounds(req, parsed),
			Limit:       req.Limit() + req.Offset(),
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("fallback %s: %w", step.name, err)
		}
		if len(results) == 0 {
			continue
		}

		s.logger.Info("date filter fallback matched",
			zap.String("window", step.name),
			zap.Int("results", len(results)),
		)

		out := limitResults(results, req.Offset(), req.Limit())
		for i := range out {
			out[i] = out[i].WithMeta("fallback", true)
		}

		expanded := start
		return Outcome{
			Results:        out,
			SearchMethod:   MethodDateFilter,
			IsFallback:     true,
			FallbacksTried: tried,
			OriginalRange:  &original,
			ExpandedRange:  &expanded,
		}, nil
	}

	return Outcome{
		SearchMethod:   MethodDateFilter,
		FallbacksTried: tried,
		OriginalRange:  &original,
	}, nil
}

// requestedRange resolves the effective date window: explicit request
// filters win over the parsed query phrase.
func (s *Service) requestedRange(req request.Request, parsed temporal.ParsedQuery) filter.DateRange {
	if dr := req.Filters().DateRange(); dr != nil {
		return *dr
	}
	if parsed.DateRange != nil {
		return *parsed.DateRange
	}
	// No window anywhere: default to the last month.
	now := s.now().UTC()
	return filter.NewDateRange(now.AddDate(0, -1, 0), now)
}

// amountBounds merges parsed amount intent with explicit request filters,
// explicit winning.
func amountBounds(req request.Request, parsed temporal.ParsedQuery) *filter.AmountRange {
	if a := req.Filters().AmountRange(); a != nil {
		return a
	}
	return parsed.AmountRange
}
