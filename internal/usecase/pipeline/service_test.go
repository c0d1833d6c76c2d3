package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/domain/search/strategy"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/usecase/rerank"
	"github.com/kailas-cloud/finquery/internal/usecase/search"
)

func TestExecute_Success(t *testing.T) {
	f := newFixture()
	f.searcher.outcome = search.Outcome{
		Results:      []domain.Result{receiptResult("r1", 0.9), receiptResult("r2", 0.8)},
		SearchMethod: search.MethodEnhancedHybrid,
	}
	f.reranker.result = rerank.Result{
		Results:    []domain.Result{receiptResult("r1", 0.9), receiptResult("r2", 0.8)},
		Confidence: 0.7,
		ModelUsed:  "feature_based",
	}
	f.store.detailsFn = func(ids []string) (map[string]searchstore.ReceiptDetail, error) {
		return map[string]searchstore.ReceiptDetail{
			"r1": {Merchant: "Starbucks", Total: 18.50, Currency: "MYR",
				Date: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)},
		}, nil
	}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee shops", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.TotalResults != 2 {
		t.Fatalf("TotalResults = %d, want 2", out.TotalResults)
	}
	if out.Metadata.SearchMethod != search.MethodEnhancedHybrid {
		t.Errorf("SearchMethod = %q", out.Metadata.SearchMethod)
	}
	if out.Metadata.RoutingStrategy != strategy.SemanticOnly {
		t.Errorf("RoutingStrategy = %q", out.Metadata.RoutingStrategy)
	}
	if out.Metadata.Intent != domain.IntentGeneralSearch {
		t.Errorf("Intent = %q", out.Metadata.Intent)
	}
	if out.Metadata.RerankModel != "feature_based" || out.Metadata.RerankConfidence != 0.7 {
		t.Errorf("rerank metadata = %q / %v", out.Metadata.RerankModel, out.Metadata.RerankConfidence)
	}
	if out.Metadata.IsFallback {
		t.Error("clean run must not be flagged as fallback")
	}
	for _, stage := range []string{"preprocess", "embed", "retrieve", "rerank", "compile"} {
		if _, ok := out.Metadata.StageTimings[stage]; !ok {
			t.Errorf("missing stage timing %q", stage)
		}
	}
	if got := out.Results[0].Metadata["merchant"]; got != "Starbucks" {
		t.Errorf("hydrated merchant = %v", got)
	}
	if f.searcher.calls != 1 || f.reranker.calls != 1 {
		t.Errorf("collaborator calls: search %d rerank %d", f.searcher.calls, f.reranker.calls)
	}
}

func TestExecute_EmbedsExpandedQuery(t *testing.T) {
	f := newFixture()
	f.pre.result = domain.PreprocessResult{
		ExpandedQuery: "coffee shop cafe espresso",
		Intent:        domain.IntentDocumentRetrieval,
		Confidence:    0.9,
	}

	_, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.embedder.texts) != 1 || f.embedder.texts[0] != "coffee shop cafe espresso" {
		t.Errorf("embedded texts = %v, want the expanded query", f.embedder.texts)
	}
}

func TestExecute_DateFilterRouteSkipsEmbedding(t *testing.T) {
	f := newFixture()
	f.searcher.outcome = search.Outcome{
		Results:      []domain.Result{receiptResult("r1", 1.0)},
		SearchMethod: search.MethodDateFilter,
	}

	out, err := f.svc.Execute(context.Background(),
		mustRequest(t, "receipts from last week", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.embedder.calls != 0 {
		t.Errorf("embedder called %d times for a date-filter route", f.embedder.calls)
	}
	if out.Metadata.RoutingStrategy != strategy.DateFilterOnly {
		t.Errorf("RoutingStrategy = %q", out.Metadata.RoutingStrategy)
	}
}

func TestExecute_MissingIdentity(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Execute(context.Background(),
		mustRequest(t, "coffee", filter.Filters{}), request.Identity{})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestExecute_EmbedFailureFallsBackToDateWindow(t *testing.T) {
	f := newFixture()
	f.embedder.err = domain.ErrEmbeddingProvider
	var gotQuery searchstore.ReceiptQuery
	f.store.receiptsFn = func(q searchstore.ReceiptQuery) ([]domain.Result, error) {
		gotQuery = q
		return []domain.Result{receiptResult("r1", 0.5)}, nil
	}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.searcher.calls != 0 {
		t.Error("retrieval must not run after an embed failure")
	}
	// Without an embedding the legacy vector procedure is off the table.
	if f.store.legacyCalls != 0 {
		t.Errorf("legacy calls = %d, want 0 without an embedding", f.store.legacyCalls)
	}
	if f.store.receiptsCalls != 1 {
		t.Fatalf("receipt reads = %d, want exactly 1", f.store.receiptsCalls)
	}
	if gotQuery.Identity.UserID != "user-1" {
		t.Errorf("query identity = %+v", gotQuery.Identity)
	}
	if out.Metadata.SearchMethod != search.MethodDateFilter || !out.Metadata.IsFallback {
		t.Errorf("metadata = %+v", out.Metadata)
	}
	if len(out.Metadata.FallbacksUsed) == 0 || out.Metadata.FallbacksUsed[0] != "date_window_rescue" {
		t.Errorf("FallbacksUsed = %v", out.Metadata.FallbacksUsed)
	}
}

func TestExecute_FallbackFailureIsHardError(t *testing.T) {
	f := newFixture()
	f.embedder.err = domain.ErrEmbeddingProvider
	f.store.receiptsFn = func(searchstore.ReceiptQuery) ([]domain.Result, error) {
		return nil, errors.New("store down")
	}

	_, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err == nil {
		t.Fatal("expected hard error when the fallback also fails")
	}
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("error must carry the original cause, got %v", err)
	}
}

func TestExecute_LegacyFailureIsHardError(t *testing.T) {
	f := newFixture()
	f.searcher.err = domain.ErrRetrieval
	f.store.legacyFn = func(searchstore.LegacyParams) ([]domain.Result, error) {
		return nil, errors.New("store down")
	}

	_, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err == nil {
		t.Fatal("expected hard error when the fallback also fails")
	}
	if !errors.Is(err, domain.ErrRetrieval) {
		t.Errorf("error must carry the original cause, got %v", err)
	}
}

func TestExecute_RetrievalFailureFallsBackOnce(t *testing.T) {
	f := newFixture()
	f.searcher.err = domain.ErrRetrieval
	f.store.legacyFn = func(searchstore.LegacyParams) ([]domain.Result, error) {
		return []domain.Result{receiptResult("r1", 0.4)}, nil
	}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.searcher.calls != 1 || f.store.legacyCalls != 1 {
		t.Errorf("calls: search %d legacy %d, want 1 each", f.searcher.calls, f.store.legacyCalls)
	}
	if out.Metadata.SearchMethod != search.MethodLegacyUnified {
		t.Errorf("SearchMethod = %q", out.Metadata.SearchMethod)
	}
}

func TestExecute_FailFastWhenBudgetNearlyGone(t *testing.T) {
	f := newFixture()
	// Every clock read costs 61s: >80% of the budget is gone before the
	// first stage can start.
	f.clock.step = 61 * time.Second

	_, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if !errors.Is(err, domain.ErrPipelineTimeout) {
		t.Fatalf("expected ErrPipelineTimeout, got %v", err)
	}
	if f.store.legacyCalls != 0 {
		t.Error("fail-fast must not attempt the legacy fallback")
	}
}

func TestExecute_BudgetAbortBeforeEmbed(t *testing.T) {
	f := newFixture()
	f.pre.onCall = func() { f.clock.Advance(40 * time.Second) }
	f.store.receiptsFn = func(searchstore.ReceiptQuery) ([]domain.Result, error) {
		return []domain.Result{receiptResult("r1", 0.4)}, nil
	}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.embedder.calls != 0 || f.searcher.calls != 0 {
		t.Errorf("stages ran past the checkpoint: embed %d search %d", f.embedder.calls, f.searcher.calls)
	}
	if !out.Metadata.IsFallback {
		t.Error("budget abort must be flagged as fallback")
	}
}

func TestExecute_BudgetAbortBeforeRetrieval(t *testing.T) {
	f := newFixture()
	f.embedder.onCall = func() { f.clock.Advance(47 * time.Second) }
	f.store.legacyFn = func(searchstore.LegacyParams) ([]domain.Result, error) {
		return []domain.Result{receiptResult("r1", 0.4)}, nil
	}

	_, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.searcher.calls != 0 {
		t.Error("retrieval must not start past the checkpoint")
	}
	if f.store.legacyCalls != 1 {
		t.Errorf("legacy calls = %d, want 1", f.store.legacyCalls)
	}
}

func TestExecute_BudgetSkipsRerankOnly(t *testing.T) {
	f := newFixture()
	f.searcher.outcome = search.Outcome{
		Results:      []domain.Result{receiptResult("r1", 0.9), receiptResult("r2", 0.8)},
		SearchMethod: search.MethodEnhancedHybrid,
	}
	f.searcher.onCall = func() { f.clock.Advance(55 * time.Second) }

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.reranker.calls != 0 {
		t.Error("re-ranking must be skipped past the checkpoint")
	}
	if out.Metadata.RerankModel != "none" {
		t.Errorf("RerankModel = %q, want none", out.Metadata.RerankModel)
	}
	if out.TotalResults != 2 {
		t.Errorf("TotalResults = %d, retrieval output must survive the skip", out.TotalResults)
	}
}

func TestExecute_ZeroResultsTemporalRescue(t *testing.T) {
	f := newFixture()
	f.searcher.outcome = search.Outcome{SearchMethod: search.MethodEnhancedHybrid}

	june := filter.NewDateRange(
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	)
	filters, err := filter.New(&june, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("build filters: %v", err)
	}

	var gotRange filter.DateRange
	f.store.receiptsFn = func(q searchstore.ReceiptQuery) ([]domain.Result, error) {
		gotRange = q.DateRange
		return []domain.Result{receiptResult("r1", 1.0), receiptResult("r2", 1.0)}, nil
	}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filters), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.TotalResults != 2 {
		t.Fatalf("TotalResults = %d, want rescued rows", out.TotalResults)
	}
	if !gotRange.Start.Equal(june.Start) || !gotRange.End.Equal(june.End) {
		t.Errorf("rescue range = %v", gotRange)
	}
	if out.Metadata.SearchMethod != search.MethodDateFilter || !out.Metadata.IsFallback {
		t.Errorf("metadata = %+v", out.Metadata)
	}
	if len(out.Suggestions) != 0 {
		t.Error("no suggestions when the rescue found rows")
	}
}

func TestExecute_ZeroResultsSmartSuggestions(t *testing.T) {
	f := newFixture()
	f.searcher.outcome = search.Outcome{SearchMethod: search.MethodEnhancedHybrid}

	june := filter.NewDateRange(
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	)
	filters, err := filter.New(&june, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("build filters: %v", err)
	}

	f.store.histogramFn = func(int) ([]searchstore.MonthCount, error) {
		return []searchstore.MonthCount{
			{Month: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Count: 3},
			{Month: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Count: 7},
			{Month: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Count: 1},
			{Month: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), Count: 2},
		}, nil
	}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filters), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.TotalResults != 0 {
		t.Fatalf("TotalResults = %d, want 0", out.TotalResults)
	}
	if len(out.Suggestions) != 3 {
		t.Fatalf("suggestions = %d, want 3", len(out.Suggestions))
	}
	if out.Suggestions[0].Label != "May 2025" {
		t.Errorf("nearest suggestion = %q, want May 2025", out.Suggestions[0].Label)
	}
	if out.Suggestions[0].Count != 3 {
		t.Errorf("suggestion count = %d", out.Suggestions[0].Count)
	}
	last := out.Suggestions[2]
	if last.Label != "January 2025" {
		t.Errorf("third suggestion = %q, want January 2025", last.Label)
	}
	if !last.Range.End.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("suggestion range end = %v", last.Range.End)
	}
}

func TestExecute_NoRescueWithoutFilters(t *testing.T) {
	f := newFixture()
	f.searcher.outcome = search.Outcome{SearchMethod: search.MethodEnhancedHybrid}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.store.receiptsCalls != 0 {
		t.Error("no temporal rescue without a date or amount filter")
	}
	if out.TotalResults != 0 || len(out.Suggestions) != 0 {
		t.Errorf("output = %+v", out)
	}
}

func TestExecute_RerankDisabledByConfig(t *testing.T) {
	f := newFixtureWithConfig(Config{RerankStrategy: rerank.StrategyFeature, DisableRerank: true})
	f.searcher.outcome = search.Outcome{
		Results:      []domain.Result{receiptResult("r1", 0.9), receiptResult("r2", 0.8)},
		SearchMethod: search.MethodEnhancedHybrid,
	}

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.reranker.calls != 0 {
		t.Error("re-ranking must not run when disabled")
	}
	if out.Metadata.RerankModel != "none" {
		t.Errorf("RerankModel = %q, want none", out.Metadata.RerankModel)
	}
	if out.TotalResults != 2 {
		t.Errorf("TotalResults = %d, want 2", out.TotalResults)
	}
}

func TestExecute_BudgetOverride(t *testing.T) {
	// A 10s budget: 8.5s consumed before retrieval is past the 60% checkpoint.
	f := newFixtureWithConfig(Config{RerankStrategy: rerank.StrategyFeature, Budget: 10 * time.Second})
	f.searcher.outcome = search.Outcome{
		Results:      []domain.Result{receiptResult("r1", 0.9)},
		SearchMethod: search.MethodEnhancedHybrid,
	}
	f.embedder.onCall = func() { f.clock.Advance(8500 * time.Millisecond) }

	out, err := f.svc.Execute(context.Background(), mustRequest(t, "coffee", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.searcher.calls != 0 {
		t.Error("retrieval must be aborted past the checkpoint under the shorter budget")
	}
	if f.store.legacyCalls != 1 {
		t.Errorf("legacyCalls = %d, want 1", f.store.legacyCalls)
	}
	if !out.Metadata.IsFallback {
		t.Error("expected fallback metadata")
	}
}

func TestExecute_LegacyFallbackEnforcesAmountBounds(t *testing.T) {
	f := newFixture()
	f.searcher.err = domain.ErrRetrieval
	f.store.legacyFn = func(searchstore.LegacyParams) ([]domain.Result, error) {
		boundary := receiptResult("r2", 0.6)
		boundary.Metadata = map[string]any{"total": 100.0}
		over := receiptResult("r3", 0.5)
		over.Metadata = map[string]any{"total": 150.0}
		return []domain.Result{boundary, over}, nil
	}

	out, err := f.svc.Execute(context.Background(),
		mustRequest(t, "transactions over rm100", filter.Filters{}), testIdentity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Metadata.SearchMethod != search.MethodLegacyUnified {
		t.Fatalf("SearchMethod = %q", out.Metadata.SearchMethod)
	}
	if len(out.Results) != 1 || out.Results[0].SourceID != "r3" {
		t.Fatalf("results = %+v, want only the 150 receipt", out.Results)
	}
}
