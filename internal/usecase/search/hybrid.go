package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/metrics"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
)

// searchHybridTemporal constrains semantic search to the IDs inside the
// date window. Wide windows and semantic failures degrade to plain date
// filtering rather than failing the request.
func (s *Service) searchHybridTemporal(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
	embedding []float32,
) (Outcome, error) {
	dr := s.requestedRange(req, parsed)

	if dr.Days() > maxHybridSpanDays {
		s.logger.Debug("hybrid span too wide, using date filter",
			zap.Int("days", dr.Days()))
		return s.searchDateFilter(ctx, req, id, parsed)
	}

	ids, err := s.repo.ReceiptIDsInRange(ctx, id, dr)
	if err != nil {
		s.logger.Warn("ID resolution failed, using date filter", zap.Error(err))
		metrics.FallbacksTotal.WithLabelValues("hybrid_id_resolution").Inc()
		return s.searchDateFilter(ctx, req, id, parsed)
	}

	if len(ids) == 0 || len(ids) > maxHybridIDs {
		return s.searchDateFilter(ctx, req, id, parsed)
	}

	if len(embedding) == 0 {
		return s.searchDateFilter(ctx, req, id, parsed)
	}

	simThreshold, triThreshold := s.thresholds(req, parsed)

	searchCtx, cancel := context.WithTimeout(ctx, HybridTimeout)
	defer cancel()

	results, err := s.repo.HybridSearch(searchCtx, searchstore.HybridParams{
		Embedding:           embedding,
		QueryText:           residualQuery(req, parsed),
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
		DateStart:           &dr.Start,
		DateEnd:             &dr.End,
		ReceiptIDs:          ids,
	})
	if err != nil {
		s.logger.Warn("constrained semantic search failed, using date filter", zap.Error(err))
		metrics.FallbacksTotal.WithLabelValues("hybrid_semantic_failure").Inc()

		outcome, ferr := s.searchDateFilter(ctx, req, id, parsed)
		if ferr != nil {
			return Outcome{}, fmt.Errorf("hybrid fallback: %w", ferr)
		}
		outcome.IsFallback = true
		outcome.FallbacksTried = append([]string{"semantic_within_ids"}, outcome.FallbacksTried...)
		return outcome, nil
	}

	results = EnforceAmountBounds(results, amountBounds(req, parsed))

	if len(results) == 0 {
		// Embeddings for fresh uploads may not exist yet.
		metrics.FallbacksTotal.WithLabelValues("hybrid_zero_semantic").Inc()

		outcome, ferr := s.searchDateFilter(ctx, req, id, parsed)
		if ferr != nil {
			return Outcome{}, fmt.Errorf("hybrid fallback: %w", ferr)
		}
		outcome.IsFallback = true
		outcome.Note = "results may lack semantic ranking"
		return outcome, nil
	}

	deduped := domain.Dedupe(results)

	return Outcome{
		Results:      limitResults(deduped, req.Offset(), req.Limit()),
		SearchMethod: MethodHybridTemporal,
	}, nil
}

// residualQuery is the text handed to the keyword/trigram signals: the
// semantic residue once temporal phrases are stripped, or the raw query
// when stripping left nothing.
func residualQuery(req request.Request, parsed temporal.ParsedQuery) string {
	if len(parsed.SemanticTerms) > 0 {
		out := parsed.SemanticTerms[0]
		for _, t := range parsed.SemanticTerms[1:] {
			out += " " + t
		}
		return out
	}
	return req.Query()
}

func amountMin(req request.Request, parsed temporal.ParsedQuery) *float64 {
	if a := amountBounds(req, parsed); a != nil {
		return a.Min
	}
	return nil
}

func amountMax(req request.Request, parsed temporal.ParsedQuery) *float64 {
	if a := amountBounds(req, parsed); a != nil {
		return a.Max
	}
	return nil
}
