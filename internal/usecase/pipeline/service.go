// Package pipeline orchestrates one search request through six sequential
// stages: preprocess, embed, retrieve, rerank, compile, respond. Each stage
// takes the accumulated state and returns the next state; failures trigger
// at most one fallback to the legacy text-search path.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/domain/search/strategy"
	"github.com/kailas-cloud/finquery/internal/metrics"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
	"github.com/kailas-cloud/finquery/internal/usecase/rerank"
	"github.com/kailas-cloud/finquery/internal/usecase/search"
)

// Budget is the wall-clock budget for one pipeline run. Soft: checkpoints
// skip stages not yet started, in-flight calls are never preempted.
const Budget = 75 * time.Second

// Budget checkpoints, as fractions consumed before the named stage starts.
const (
	// failFastFraction before the first stage fails immediately: the
	// caller should retry via a faster path instead of waiting.
	failFastFraction = 0.80
	// embedCheckpointFraction before the embedding stage aborts to the
	// legacy fallback.
	embedCheckpointFraction = 0.50
	// retrieveCheckpointFraction before retrieval, the most expensive
	// stage, aborts to the legacy fallback.
	retrieveCheckpointFraction = 0.60
	// rerankSkipFraction before re-ranking only skips re-ranking.
	rerankSkipFraction = 0.70
)

// Config tunes the orchestrator.
type Config struct {
	// RerankStrategy selects the re-ranking algorithm for every request.
	RerankStrategy rerank.Strategy
	// DisableRerank turns stage 4 off entirely, regardless of budget.
	DisableRerank bool
	// Budget overrides the default pipeline budget. Zero means Budget.
	Budget time.Duration
}

// Service is the pipeline orchestrator.
type Service struct {
	classifier *temporal.Classifier
	pre        preprocessor
	embedder   domain.Embedder
	search     searcher
	rerank     reranker
	store      store
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger
}

// New creates an orchestrator. clock may be nil for wall-clock time.
func New(
	classifier *temporal.Classifier,
	pre preprocessor,
	embedder domain.Embedder,
	searcher searcher,
	rr reranker,
	st store,
	cfg Config,
	clock func() time.Time,
	logger *zap.Logger,
) *Service {
	if clock == nil {
		clock = time.Now
	}
	if !cfg.RerankStrategy.IsValid() {
		cfg.RerankStrategy = rerank.StrategyHybrid
	}
	if cfg.Budget <= 0 {
		cfg.Budget = Budget
	}
	return &Service{
		classifier: classifier,
		pre:        pre,
		embedder:   embedder,
		search:     searcher,
		rerank:     rr,
		store:      st,
		cfg:        cfg,
		now:        clock,
		logger:     logger,
	}
}

// state is the accumulator threaded explicitly through the stages. One
// value per request, owned by a single Execute call.
type state struct {
	req       request.Request
	id        request.Identity
	start     time.Time
	parsed    temporal.ParsedQuery
	prep      domain.PreprocessResult
	embedding []float32
	outcome   search.Outcome
	results   []domain.Result
	meta      Metadata
}

// Execute runs the full pipeline for one request.
func (s *Service) Execute(ctx context.Context, req request.Request, id request.Identity) (Output, error) {
	if id.UserID == "" {
		return Output{}, fmt.Errorf("missing user identity: %w", domain.ErrAuth)
	}

	st := state{
		req:   req,
		id:    id,
		start: s.now(),
		meta: Metadata{
			SourcesSearched: req.Sources(),
			StageTimings:    make(map[string]time.Duration),
		},
	}

	ctx, cancel := context.WithDeadline(ctx, st.start.Add(s.cfg.Budget))
	defer cancel()

	if used := s.budgetUsed(st); used > failFastFraction {
		metrics.SearchesTotal.WithLabelValues("unknown", "timeout").Inc()
		return Output{}, fmt.Errorf("%w: %.0f%% consumed before start", domain.ErrPipelineTimeout, used*100)
	}

	out, err := s.run(ctx, st)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(string(st.parsed.Routing), "error").Inc()
		return Output{}, err
	}

	status := "success"
	if out.Metadata.IsFallback {
		status = "fallback"
	}
	metrics.SearchesTotal.WithLabelValues(string(out.Metadata.RoutingStrategy), status).Inc()

	return out, nil
}

func (s *Service) run(ctx context.Context, st state) (Output, error) {
	st = s.timed(ctx, st, "preprocess", s.stagePreprocess)

	if used := s.budgetUsed(st); used > embedCheckpointFraction {
		return s.legacyFallback(ctx, st,
			fmt.Errorf("%w: before embedding", domain.ErrPipelineTimeout))
	}
	st, err := s.timedErr(ctx, st, "embed", s.stageEmbed)
	if err != nil {
		return s.legacyFallback(ctx, st, err)
	}

	if used := s.budgetUsed(st); used > retrieveCheckpointFraction {
		return s.legacyFallback(ctx, st,
			fmt.Errorf("%w: before retrieval", domain.ErrPipelineTimeout))
	}
	st, err = s.timedErr(ctx, st, "retrieve", s.stageRetrieve)
	if err != nil {
		return s.legacyFallback(ctx, st, err)
	}

	st = s.timed(ctx, st, "rerank", s.stageRerank)
	st = s.timed(ctx, st, "compile", s.stageCompile)

	return s.stageRespond(ctx, st)
}

type stageFn func(ctx context.Context, st state) (state, error)

func (s *Service) timedErr(ctx context.Context, st state, name string, fn stageFn) (state, error) {
	begin := time.Now()
	out, err := fn(ctx, st)
	elapsed := time.Since(begin)
	out.meta.StageTimings[name] = elapsed
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		s.logger.Warn("pipeline stage failed",
			zap.String("stage", name), zap.Duration("elapsed", elapsed), zap.Error(err))
	}
	return out, err
}

// timed wraps stages that cannot fail.
func (s *Service) timed(ctx context.Context, st state, name string, fn stageFn) state {
	out, _ := s.timedErr(ctx, st, name, fn)
	return out
}

func (s *Service) budgetUsed(st state) float64 {
	return float64(s.now().Sub(st.start)) / float64(s.cfg.Budget)
}

// Stage 1: temporal/monetary classification plus LLM query understanding.
// Neither can fail a request.
func (s *Service) stagePreprocess(ctx context.Context, st state) (state, error) {
	st.parsed = s.classifier.Parse(st.req.Query())
	st.meta.RoutingStrategy = st.parsed.Routing

	st.prep = s.pre.Preprocess(ctx, st.req.Query(), st.id.UserID)
	st.meta.Intent = st.prep.Intent

	return st, nil
}

// Stage 2: query embedding. Skipped for pure date-filter routes, which
// never consult the vector index.
func (s *Service) stageEmbed(ctx context.Context, st state) (state, error) {
	if st.parsed.Routing == strategy.DateFilterOnly {
		s.logger.Debug("embedding skipped for date-filter route")
		return st, nil
	}

	text := st.prep.ExpandedQuery
	if text == "" {
		text = st.req.Query()
	}

	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return st, fmt.Errorf("embed query: %w", err)
	}
	st.embedding = res.Embedding

	return st, nil
}

// Stage 3: routed retrieval with the router's own fallback ladders.
func (s *Service) stageRetrieve(ctx context.Context, st state) (state, error) {
	outcome, err := s.search.Search(ctx, st.req, st.id, st.parsed, st.embedding)
	if err != nil {
		return st, err
	}

	st.outcome = outcome
	st.results = outcome.Results
	st.meta.SearchMethod = outcome.SearchMethod
	st.meta.IsFallback = outcome.IsFallback
	st.meta.FallbacksUsed = append(st.meta.FallbacksUsed, outcome.FallbacksTried...)
	st.meta.Note = outcome.Note

	return st, nil
}

// Stage 4: re-ranking. Skipped wholesale under budget pressure; the
// re-ranker applies its own finer-grained skip conditions below that.
func (s *Service) stageRerank(ctx context.Context, st state) (state, error) {
	if s.cfg.DisableRerank {
		st.meta.RerankModel = "none"
		return st, nil
	}
	used := s.budgetUsed(st)
	if used > rerankSkipFraction {
		s.logger.Debug("re-ranking skipped at budget checkpoint", zap.Float64("used", used))
		st.meta.RerankModel = "none"
		return st, nil
	}

	ranked := s.rerank.Rerank(ctx, rerank.Query{
		Text:       st.req.Query(),
		Intent:     st.prep.Intent,
		Entities:   st.prep.Entities,
		BudgetUsed: used,
	}, st.results, s.cfg.RerankStrategy)

	st.results = ranked.Results
	st.meta.RerankModel = ranked.ModelUsed
	st.meta.RerankConfidence = ranked.Confidence

	return st, nil
}

// legacyFallback is the orchestrator's single rescue path: one plain
// unified-search call against the store, or a direct date-window read when
// no embedding exists yet. Only its failure surfaces an error to the caller.
func (s *Service) legacyFallback(ctx context.Context, st state, cause error) (Output, error) {
	s.logger.Warn("pipeline falling back to legacy search", zap.Error(cause))
	metrics.FallbacksTotal.WithLabelValues("pipeline_legacy").Inc()

	if len(st.embedding) == 0 {
		// unified_search computes cosine distance, which is undefined
		// against a zero-norm vector. Without an embedding the only
		// honest rescue is a plain date-window read.
		return s.dateWindowFallback(ctx, st, cause)
	}

	results, err := s.store.LegacySearch(ctx, searchstore.LegacyParams{
		Embedding:           st.embedding,
		SourceTypes:         st.req.Sources(),
		SimilarityThreshold: st.req.SimilarityThreshold(),
		MatchCount:          st.req.Limit() + st.req.Offset(),
		UserID:              st.id.UserID,
	})
	if err != nil {
		return Output{}, fmt.Errorf("search pipeline failed and the fallback search also failed: %w", cause)
	}

	// The legacy procedure has no amount parameters.
	results = search.EnforceAmountBounds(results, s.amountBounds(st))

	st.results = page(domain.Dedupe(results), st.req.Offset(), st.req.Limit())
	st.meta.SearchMethod = search.MethodLegacyUnified
	st.meta.IsFallback = true
	st.meta.FallbacksUsed = append(st.meta.FallbacksUsed, "legacy_unified_search")

	return s.stageRespond(ctx, st)
}

// dateWindowFallback rescues an embedding-less run with one direct receipt
// read over the requested window, or the default lookback when none was
// requested.
func (s *Service) dateWindowFallback(ctx context.Context, st state, cause error) (Output, error) {
	dr, _ := s.rescueRange(st)
	if dr == nil {
		end := s.now().UTC()
		w := filter.NewDateRange(end.AddDate(0, 0, -rescueWindowDays), end)
		dr = &w
	}

	results, err := s.store.ReceiptsByDateRange(ctx, searchstore.ReceiptQuery{
		Identity:    st.id,
		DateRange:   *dr,
		AmountRange: s.amountBounds(st),
		Limit:       st.req.Limit() + st.req.Offset(),
	})
	if err != nil {
		return Output{}, fmt.Errorf("search pipeline failed and the fallback search also failed: %w", cause)
	}

	st.results = page(domain.Dedupe(results), st.req.Offset(), st.req.Limit())
	st.meta.SearchMethod = search.MethodDateFilter
	st.meta.IsFallback = true
	st.meta.FallbacksUsed = append(st.meta.FallbacksUsed, "date_window_rescue")

	return s.stageRespond(ctx, st)
}

func page(results []domain.Result, offset, limit int) []domain.Result {
	if offset >= len(results) {
		return []domain.Result{}
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
