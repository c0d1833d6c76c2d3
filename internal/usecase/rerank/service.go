// Package rerank reorders retrieval candidates: a deterministic
// feature-based scorer, an LLM cross-encoder, and a hybrid of the two.
package rerank

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/metrics"
)

// Strategy selects the re-ranking algorithm.
type Strategy string

// Re-ranking strategies.
const (
	StrategyFeature      Strategy = "feature_based"
	StrategyCrossEncoder Strategy = "cross_encoder"
	StrategyHybrid       Strategy = "hybrid"
)

// IsValid checks the strategy value.
func (s Strategy) IsValid() bool {
	return s == StrategyFeature || s == StrategyCrossEncoder || s == StrategyHybrid
}

// Skip thresholds.
const (
	// skipBudgetFraction skips re-ranking once this share of the pipeline
	// budget is gone. Rank quality loses to latency under pressure.
	skipBudgetFraction = 0.70
	// trivialSkipMaxCandidates: a trivial single-token query with this few
	// candidates is not worth re-ranking.
	trivialSkipMaxCandidates = 10

	crossEncoderTopN = 20
	hybridSpliceTopN = 10
)

// completer is the consumer interface for the LLM provider (ISP).
type completer interface {
	Complete(ctx context.Context, prompt string, cfg domain.CompletionConfig) (string, error)
}

// Query carries the re-ranking inputs beyond the candidates themselves.
type Query struct {
	Text     string
	Intent   domain.QueryIntent
	Entities []string
	// BudgetUsed is the fraction of the pipeline wall-clock budget already
	// consumed, in [0,1].
	BudgetUsed float64
}

// Result is the re-ranked candidate list with provenance.
type Result struct {
	Results    []domain.Result
	Confidence float64
	ModelUsed  string
}

// Service is the re-ranker.
type Service struct {
	completer completer
	model     string
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a re-ranker. clock may be nil for wall-clock time.
func New(c completer, model string, clock func() time.Time, logger *zap.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{completer: c, model: model, now: clock, logger: logger}
}

// Rerank reorders candidates per the strategy. It never fails: every
// failure path degrades to the feature scorer or to retrieval order.
func (s *Service) Rerank(ctx context.Context, q Query, candidates []domain.Result, strat Strategy) Result {
	if reason, skip := s.shouldSkip(q, candidates); skip {
		metrics.RerankTotal.WithLabelValues(s.model, "skipped").Inc()
		s.logger.Debug("re-ranking skipped", zap.String("reason", reason))
		return Result{Results: candidates, Confidence: 1.0, ModelUsed: "none"}
	}

	switch strat {
	case StrategyCrossEncoder:
		return s.rerankCrossEncoder(ctx, q, candidates)
	case StrategyHybrid:
		return s.rerankHybrid(ctx, q, candidates)
	default:
		metrics.RerankTotal.WithLabelValues(s.model, "applied").Inc()
		return Result{
			Results:    s.featureRank(q, candidates),
			Confidence: featureConfidence,
			ModelUsed:  string(StrategyFeature),
		}
	}
}

func (s *Service) shouldSkip(q Query, candidates []domain.Result) (string, bool) {
	if len(candidates) <= 1 {
		return "single_candidate", true
	}
	if q.BudgetUsed >= skipBudgetFraction {
		return "budget_pressure", true
	}
	if isTrivialQuery(q.Text) && len(candidates) <= trivialSkipMaxCandidates {
		return "trivial_query", true
	}
	return "", false
}

// isTrivialQuery mirrors the preprocessor's fast path: one short
// unpunctuated token.
func isTrivialQuery(query string) bool {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) == 0 || len(trimmed) >= 20 {
		return false
	}
	if strings.ContainsFunc(trimmed, unicode.IsSpace) {
		return false
	}
	for _, r := range trimmed {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

// rerankHybrid: feature pass over everything, then a cross-encoder pass
// over the top few, spliced back in front of the remainder.
func (s *Service) rerankHybrid(ctx context.Context, q Query, candidates []domain.Result) Result {
	featured := s.featureRank(q, candidates)

	topN := hybridSpliceTopN
	if topN > len(featured) {
		topN = len(featured)
	}

	head, confidence, err := s.crossEncode(ctx, q, featured[:topN])
	if err != nil {
		s.logger.Warn("hybrid cross-encoder pass failed, keeping feature order", zap.Error(err))
		metrics.RerankTotal.WithLabelValues(s.model, "fallback").Inc()
		return Result{
			Results:    featured,
			Confidence: featureConfidence,
			ModelUsed:  string(StrategyFeature),
		}
	}

	metrics.RerankTotal.WithLabelValues(s.model, "applied").Inc()

	spliced := make([]domain.Result, 0, len(featured))
	spliced = append(spliced, head...)
	spliced = append(spliced, featured[topN:]...)

	return Result{
		Results:    spliced,
		Confidence: confidence,
		ModelUsed:  string(StrategyHybrid),
	}
}

func (s *Service) rerankCrossEncoder(ctx context.Context, q Query, candidates []domain.Result) Result {
	topN := crossEncoderTopN
	if topN > len(candidates) {
		topN = len(candidates)
	}

	head, confidence, err := s.crossEncode(ctx, q, candidates[:topN])
	if err != nil {
		s.logger.Warn("cross-encoder failed, falling back to feature scorer", zap.Error(err))
		metrics.RerankTotal.WithLabelValues(s.model, "fallback").Inc()
		return Result{
			Results:    s.featureRank(q, candidates),
			Confidence: featureConfidence,
			ModelUsed:  string(StrategyFeature),
		}
	}

	metrics.RerankTotal.WithLabelValues(s.model, "applied").Inc()

	out := make([]domain.Result, 0, len(candidates))
	out = append(out, head...)
	out = append(out, candidates[topN:]...)

	return Result{
		Results:    out,
		Confidence: confidence,
		ModelUsed:  string(StrategyCrossEncoder),
	}
}
