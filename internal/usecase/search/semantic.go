package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/metrics"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
)

// searchSemantic runs the general hybrid stored procedure. On timeout or
// error it retries once with the legacy single-signal procedure; the
// outcome records which path answered.
func (s *Service) searchSemantic(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
	embedding []float32,
) (Outcome, error) {
	if len(embedding) == 0 {
		return Outcome{}, fmt.Errorf("semantic search without embedding: %w", domain.ErrRetrieval)
	}

	simThreshold, triThreshold := s.thresholds(req, parsed)

	searchCtx, cancel := context.WithTimeout(ctx, SemanticTimeout)
	defer cancel()

	results, err := s.repo.HybridSearch(searchCtx, searchstore.HybridParams{
		Embedding:           embedding,
		QueryText:           req.Query(),
		SourceTypes:         req.Sources(),
		SimilarityThreshold: simThreshold,
		TrigramThreshold:    triThreshold,
		SemanticWeight:      s.cfg.SemanticWeight,
		KeywordWeight:       s.cfg.KeywordWeight,
		TrigramWeight:       s.cfg.TrigramWeight,
		MatchCount:          req.Limit() + req.Offset(),
		UserID:              id.UserID,
		TeamID:              id.TeamID,
		AmountMin:           amountMin(req, parsed),
		AmountMax:           amountMax(req, parsed),
		DateStart:           rangeStart(req, parsed),
		DateEnd:             rangeEnd(req, parsed),
	})
	if err == nil {
		results = EnforceAmountBounds(results, amountBounds(req, parsed))
		return Outcome{
			Results:      limitResults(domain.Dedupe(results), req.Offset(), req.Limit()),
			SearchMethod: MethodEnhancedHybrid,
		}, nil
	}

	s.logger.Warn("enhanced hybrid search failed, retrying with legacy procedure", zap.Error(err))
	metrics.FallbacksTotal.WithLabelValues("legacy_unified_search").Inc()

	legacy, lerr := s.repo.LegacySearch(ctx, searchstore.LegacyParams{
		Embedding:           embedding,
		SourceTypes:         req.Sources(),
		SimilarityThreshold: simThreshold,
		MatchCount:          req.Limit() + req.Offset(),
		UserID:              id.UserID,
	})
	if lerr != nil {
		return Outcome{}, fmt.Errorf("legacy search after hybrid failure: %w", lerr)
	}

	// unified_search takes no amount parameters at all.
	legacy = EnforceAmountBounds(legacy, amountBounds(req, parsed))

	return Outcome{
		Results:      limitResults(domain.Dedupe(legacy), req.Offset(), req.Limit()),
		SearchMethod: MethodLegacyUnified,
		IsFallback:   true,
	}, nil
}

// rangeStart/rangeEnd surface an optional date window to the procedure
// without forcing a default one the way the temporal routes do.
func rangeStart(req request.Request, parsed temporal.ParsedQuery) *time.Time {
	if dr := req.Filters().DateRange(); dr != nil {
		return &dr.Start
	}
	if parsed.DateRange != nil {
		return &parsed.DateRange.Start
	}
	return nil
}

func rangeEnd(req request.Request, parsed temporal.ParsedQuery) *time.Time {
	if dr := req.Filters().DateRange(); dr != nil {
		return &dr.End
	}
	if parsed.DateRange != nil {
		return &parsed.DateRange.End
	}
	return nil
}
