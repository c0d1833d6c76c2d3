// Package search routes a parsed query through the retrieval strategies:
// direct date filtering with an expanding fallback ladder, ID-constrained
// hybrid temporal search, and general hybrid search with a legacy fallback.
package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/domain/search/strategy"
	"github.com/kailas-cloud/finquery/internal/metrics"
	"github.com/kailas-cloud/finquery/internal/temporal"
	"github.com/kailas-cloud/finquery/internal/usecase/classify"
)

// Routing limits and timeouts.
const (
	// HybridTimeout bounds the ID-constrained semantic search.
	HybridTimeout = 25 * time.Second
	// SemanticTimeout bounds the general hybrid stored procedure.
	SemanticTimeout = 30 * time.Second

	// maxHybridIDs and maxHybridSpanDays short-circuit the hybrid route
	// to plain date filtering when the candidate window is too wide for
	// an ID-constrained search to pay off.
	maxHybridIDs      = 100
	maxHybridSpanDays = 14
)

// Config tunes the router's scoring knobs.
type Config struct {
	SimilarityThreshold float64
	TrigramThreshold    float64
	SemanticWeight      float64
	KeywordWeight       float64
	TrigramWeight       float64
}

// Service is the hybrid search router.
type Service struct {
	repo      Repository
	preRouter *classify.Classifier
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a router. clock may be nil for wall-clock time.
func New(repo Repository, cfg Config, clock func() time.Time, logger *zap.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.2
	}
	if cfg.TrigramThreshold <= 0 {
		cfg.TrigramThreshold = 0.3
	}
	if cfg.SemanticWeight <= 0 && cfg.KeywordWeight <= 0 && cfg.TrigramWeight <= 0 {
		cfg.SemanticWeight = 0.6
		cfg.KeywordWeight = 0.25
		cfg.TrigramWeight = 0.15
	}
	return &Service{
		repo:      repo,
		preRouter: classify.New(),
		cfg:       cfg,
		now:       clock,
		logger:    logger,
	}
}

// Search runs the query through pre-routing and the strategy chain.
// embedding may be nil for date-only routes; semantic strategies require it.
func (s *Service) Search(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
	embedding []float32,
) (Outcome, error) {
	route := s.preRouter.Classify(req.Query(), parsed)

	var (
		outcome Outcome
		err     error
	)

	switch route {
	case classify.RouteLineItem:
		outcome, err = s.searchLineItems(ctx, req, id, parsed, embedding)
	case classify.RouteFinancialAnalysis:
		outcome, err = s.searchFinancialAnalysis(ctx, req, id, parsed)
	default:
		outcome, err = s.searchByStrategy(ctx, req, id, parsed, embedding)
	}
	if err != nil {
		metrics.SearchMethodTotal.WithLabelValues("error").Inc()
		return Outcome{}, err
	}

	metrics.SearchMethodTotal.WithLabelValues(outcome.SearchMethod).Inc()

	s.logger.Debug("search routed",
		zap.String("route", string(route)),
		zap.String("method", outcome.SearchMethod),
		zap.Int("results", len(outcome.Results)),
		zap.Bool("fallback", outcome.IsFallback),
	)

	return outcome, nil
}

func (s *Service) searchByStrategy(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
	embedding []float32,
) (Outcome, error) {
	switch parsed.Routing {
	case strategy.DateFilterOnly:
		return s.searchDateFilter(ctx, req, id, parsed)
	case strategy.HybridTemporalSemantic:
		return s.searchHybridTemporal(ctx, req, id, parsed, embedding)
	default:
		return s.searchSemantic(ctx, req, id, parsed, embedding)
	}
}

// thresholds returns the similarity and trigram floors for this request.
// An active amount filter bypasses both: amount is the dominant signal and
// nonzero floors would drop valid matches.
func (s *Service) thresholds(req request.Request, parsed temporal.ParsedQuery) (float64, float64) {
	if parsed.AmountRange != nil || req.Filters().HasAmount() {
		return 0.0, 0.0
	}
	sim := req.SimilarityThreshold()
	if sim == 0 {
		sim = s.cfg.SimilarityThreshold
	}
	return sim, s.cfg.TrigramThreshold
}

// limitResults applies offset and limit after dedupe and sorting.
func limitResults(results []domain.Result, offset, limit int) []domain.Result {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
