package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
)

// Wednesday, June 18 2025.
func fixedNow() time.Time {
	return time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
}

type mockRepo struct {
	hybridFn   func(ctx context.Context, p searchstore.HybridParams) ([]domain.Result, error)
	legacyFn   func(ctx context.Context, p searchstore.LegacyParams) ([]domain.Result, error)
	receiptsFn func(ctx context.Context, q searchstore.ReceiptQuery) ([]domain.Result, error)
	idsFn      func(ctx context.Context, id request.Identity, dr filter.DateRange) ([]string, error)
	lineFn     func(ctx context.Context, q searchstore.LineItemQuery) ([]domain.Result, error)
	aggFn      func(ctx context.Context, id request.Identity, dr filter.DateRange) (searchstore.Aggregates, error)
	catFn      func(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.CategorySpend, error)
	trendFn    func(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.TrendPoint, error)
	merchFn    func(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.MerchantSpend, error)
	anomFn     func(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.AnomalousReceipt, error)
	patternFn  func(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.WeekdaySpend, error)

	receiptCalls []searchstore.ReceiptQuery
	hybridCalls  []searchstore.HybridParams
}

func (m *mockRepo) HybridSearch(ctx context.Context, p searchstore.HybridParams) ([]domain.Result, error) {
	m.hybridCalls = append(m.hybridCalls, p)
	if m.hybridFn != nil {
		return m.hybridFn(ctx, p)
	}
	return nil, nil
}

func (m *mockRepo) LegacySearch(ctx context.Context, p searchstore.LegacyParams) ([]domain.Result, error) {
	if m.legacyFn != nil {
		return m.legacyFn(ctx, p)
	}
	return nil, nil
}

func (m *mockRepo) ReceiptsByDateRange(ctx context.Context, q searchstore.ReceiptQuery) ([]domain.Result, error) {
	m.receiptCalls = append(m.receiptCalls, q)
	if m.receiptsFn != nil {
		return m.receiptsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockRepo) ReceiptIDsInRange(ctx context.Context, id request.Identity, dr filter.DateRange) ([]string, error) {
	if m.idsFn != nil {
		return m.idsFn(ctx, id, dr)
	}
	return nil, nil
}

func (m *mockRepo) LineItemSearch(ctx context.Context, q searchstore.LineItemQuery) ([]domain.Result, error) {
	if m.lineFn != nil {
		return m.lineFn(ctx, q)
	}
	return nil, nil
}

func (m *mockRepo) FinancialAggregates(ctx context.Context, id request.Identity, dr filter.DateRange) (searchstore.Aggregates, error) {
	if m.aggFn != nil {
		return m.aggFn(ctx, id, dr)
	}
	return searchstore.Aggregates{}, nil
}

func (m *mockRepo) CategoryBreakdown(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.CategorySpend, error) {
	if m.catFn != nil {
		return m.catFn(ctx, id, dr)
	}
	return nil, nil
}

func (m *mockRepo) MonthlyTrend(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.TrendPoint, error) {
	if m.trendFn != nil {
		return m.trendFn(ctx, id, dr)
	}
	return nil, nil
}

func (m *mockRepo) MerchantStats(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.MerchantSpend, error) {
	if m.merchFn != nil {
		return m.merchFn(ctx, id, dr)
	}
	return nil, nil
}

func (m *mockRepo) Anomalies(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.AnomalousReceipt, error) {
	if m.anomFn != nil {
		return m.anomFn(ctx, id, dr)
	}
	return nil, nil
}

func (m *mockRepo) TimePatterns(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.WeekdaySpend, error) {
	if m.patternFn != nil {
		return m.patternFn(ctx, id, dr)
	}
	return nil, nil
}

func testConfig() Config {
	return Config{
		SimilarityThreshold: 0.2,
		TrigramThreshold:    0.1,
		SemanticWeight:      0.6,
		KeywordWeight:       0.25,
		TrigramWeight:       0.15,
	}
}

func newTestService(repo *mockRepo) *Service {
	return New(repo, testConfig(), fixedNow, zap.NewNop())
}

func mustRequest(t *testing.T, query string) request.Request {
	t.Helper()
	req, err := request.New(query, nil, filter.Filters{}, 20, 0, 0)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}

func runSearch(t *testing.T, repo *mockRepo, query string, embedding []float32) Outcome {
	t.Helper()
	svc := newTestService(repo)
	tc := temporal.New("MYR", fixedNow)
	req := mustRequest(t, query)

	outcome, err := svc.Search(context.Background(), req,
		request.Identity{UserID: "u1"}, tc.Parse(query), embedding)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	return outcome
}

func receiptResult(id string, date time.Time) domain.Result {
	return domain.Result{
		ID: id, SourceType: domain.SourceReceipt, SourceID: id,
		ContentType: "full_text", Similarity: 1.0, CreatedAt: date,
		Metadata: map[string]any{},
	}
}

func TestSearch_DateFilterOnly(t *testing.T) {
	day := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		receiptsFn: func(_ context.Context, q searchstore.ReceiptQuery) ([]domain.Result, error) {
			// Last week for a Wednesday June 18: Monday June 9 .. Sunday June 15.
			if q.DateRange.Start.Day() != 9 || q.DateRange.End.Day() != 15 {
				t.Errorf("date range = %v..%v, want June 9..15", q.DateRange.Start, q.DateRange.End)
			}
			return []domain.Result{receiptResult("r1", day)}, nil
		},
	}

	outcome := runSearch(t, repo, "receipts from last week", nil)

	if outcome.SearchMethod != MethodDateFilter {
		t.Errorf("method = %q, want date_filter_only", outcome.SearchMethod)
	}
	if outcome.IsFallback {
		t.Error("direct match must not be flagged as fallback")
	}
	if len(outcome.Results) != 1 || outcome.Results[0].Similarity != 1.0 {
		t.Errorf("unexpected results: %+v", outcome.Results)
	}
	if len(repo.hybridCalls) != 0 {
		t.Error("date-only route must not touch semantic search")
	}
}

func TestSearch_DateFilterExpandingFallback(t *testing.T) {
	day := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	call := 0
	repo := &mockRepo{
		receiptsFn: func(_ context.Context, q searchstore.ReceiptQuery) ([]domain.Result, error) {
			call++
			// Original window, last-2-months and last-3-months: empty.
			// last-90-days: one hit.
			if call == 4 {
				return []domain.Result{receiptResult("r9", day)}, nil
			}
			return nil, nil
		},
	}

	outcome := runSearch(t, repo, "receipts from last week", nil)

	if !outcome.IsFallback {
		t.Fatal("expected fallback outcome")
	}
	want := []string{"last_2_months", "last_3_months", "last_90_days"}
	if len(outcome.FallbacksTried) != 3 {
		t.Fatalf("FallbacksTried = %v, want %v", outcome.FallbacksTried, want)
	}
	for i, name := range want {
		if outcome.FallbacksTried[i] != name {
			t.Errorf("FallbacksTried[%d] = %q, want %q", i, outcome.FallbacksTried[i], name)
		}
	}
	if outcome.OriginalRange == nil || outcome.ExpandedRange == nil {
		t.Fatal("fallback must record original and expanded ranges")
	}
	if v, ok := outcome.Results[0].Metadata["fallback"]; !ok || v != true {
		t.Errorf("fallback results must be flagged, metadata = %v", outcome.Results[0].Metadata)
	}
}

func TestSearch_DateFilterLadderExhausted(t *testing.T) {
	repo := &mockRepo{} // every window empty

	outcome := runSearch(t, repo, "receipts from last week", nil)

	if len(outcome.Results) != 0 {
		t.Fatalf("expected empty results, got %d", len(outcome.Results))
	}
	if len(outcome.FallbacksTried) != 3 {
		t.Fatalf("FallbacksTried = %v, want all 3 windows", outcome.FallbacksTried)
	}
	if len(repo.receiptCalls) != 4 {
		t.Errorf("expected 4 date queries (original + ladder), got %d", len(repo.receiptCalls))
	}
}

func TestSearch_HybridTemporalSemantic(t *testing.T) {
	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		idsFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]string, error) {
			return []string{"r1", "r2"}, nil
		},
		hybridFn: func(_ context.Context, p searchstore.HybridParams) ([]domain.Result, error) {
			if len(p.ReceiptIDs) != 2 {
				t.Errorf("expected ID-constrained search, ids = %v", p.ReceiptIDs)
			}
			// Two embedding rows for the same entity: dedupe keeps the best.
			return []domain.Result{
				{ID: "e1", SourceType: domain.SourceReceipt, SourceID: "r1", Similarity: 0.8, CreatedAt: day},
				{ID: "e2", SourceType: domain.SourceReceipt, SourceID: "r1", Similarity: 0.9, CreatedAt: day},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "coffee receipts from last week", []float32{0.1})

	if outcome.SearchMethod != MethodHybridTemporal {
		t.Fatalf("method = %q, want hybrid_temporal_semantic", outcome.SearchMethod)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("dedupe failed: %d results", len(outcome.Results))
	}
	if outcome.Results[0].Similarity != 0.9 {
		t.Errorf("dedupe must keep highest score, got %v", outcome.Results[0].Similarity)
	}
}

func TestSearch_HybridShortCircuitsOnManyIDs(t *testing.T) {
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = "r"
	}
	repo := &mockRepo{
		idsFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]string, error) {
			return ids, nil
		},
		receiptsFn: func(_ context.Context, _ searchstore.ReceiptQuery) ([]domain.Result, error) {
			return []domain.Result{receiptResult("r1", fixedNow())}, nil
		},
	}

	outcome := runSearch(t, repo, "coffee receipts from last week", []float32{0.1})

	if outcome.SearchMethod != MethodDateFilter {
		t.Fatalf("method = %q, want date_filter_only short circuit", outcome.SearchMethod)
	}
	if len(repo.hybridCalls) != 0 {
		t.Error("semantic search must be skipped for large ID sets")
	}
}

func TestSearch_HybridShortCircuitsOnWideSpan(t *testing.T) {
	repo := &mockRepo{
		receiptsFn: func(_ context.Context, _ searchstore.ReceiptQuery) ([]domain.Result, error) {
			return []domain.Result{receiptResult("r1", fixedNow())}, nil
		},
	}

	// "last month" spans ~31 days: wider than the 14-day hybrid limit.
	outcome := runSearch(t, repo, "coffee receipts from last month", []float32{0.1})

	if outcome.SearchMethod != MethodDateFilter {
		t.Fatalf("method = %q, want date_filter_only", outcome.SearchMethod)
	}
	if len(repo.hybridCalls) != 0 {
		t.Error("semantic search must be skipped for wide spans")
	}
}

func TestSearch_HybridSemanticErrorFallsBack(t *testing.T) {
	repo := &mockRepo{
		idsFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]string, error) {
			return []string{"r1"}, nil
		},
		hybridFn: func(_ context.Context, _ searchstore.HybridParams) ([]domain.Result, error) {
			return nil, errors.New("procedure timeout")
		},
		receiptsFn: func(_ context.Context, _ searchstore.ReceiptQuery) ([]domain.Result, error) {
			return []domain.Result{receiptResult("r1", fixedNow())}, nil
		},
	}

	outcome := runSearch(t, repo, "coffee receipts from last week", []float32{0.1})

	if outcome.SearchMethod != MethodDateFilter {
		t.Fatalf("method = %q, want date filter fallback", outcome.SearchMethod)
	}
	if !outcome.IsFallback {
		t.Error("semantic failure fallback must be flagged")
	}
}

func TestSearch_HybridZeroSemanticRowsNotes(t *testing.T) {
	repo := &mockRepo{
		idsFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]string, error) {
			return []string{"r1"}, nil
		},
		hybridFn: func(_ context.Context, _ searchstore.HybridParams) ([]domain.Result, error) {
			return nil, nil // embeddings not yet generated
		},
		receiptsFn: func(_ context.Context, _ searchstore.ReceiptQuery) ([]domain.Result, error) {
			return []domain.Result{receiptResult("r1", fixedNow())}, nil
		},
	}

	outcome := runSearch(t, repo, "coffee receipts from last week", []float32{0.1})

	if outcome.Note == "" {
		t.Error("zero semantic rows must carry a user-facing note")
	}
	if !outcome.IsFallback {
		t.Error("expected fallback flag")
	}
}

func TestSearch_SemanticOnly(t *testing.T) {
	repo := &mockRepo{
		hybridFn: func(_ context.Context, p searchstore.HybridParams) ([]domain.Result, error) {
			if p.SemanticWeight != 0.6 || p.KeywordWeight != 0.25 || p.TrigramWeight != 0.15 {
				t.Errorf("weights = %v/%v/%v, want 0.6/0.25/0.15",
					p.SemanticWeight, p.KeywordWeight, p.TrigramWeight)
			}
			return []domain.Result{
				{ID: "e1", SourceType: domain.SourceReceipt, SourceID: "r1", Similarity: 0.7},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "coffee shops in petaling jaya", []float32{0.1})

	if outcome.SearchMethod != MethodEnhancedHybrid {
		t.Fatalf("method = %q, want enhanced_hybrid_search", outcome.SearchMethod)
	}
}

func TestSearch_SemanticFallsBackToLegacy(t *testing.T) {
	repo := &mockRepo{
		hybridFn: func(_ context.Context, _ searchstore.HybridParams) ([]domain.Result, error) {
			return nil, errors.New("procedure error")
		},
		legacyFn: func(_ context.Context, p searchstore.LegacyParams) ([]domain.Result, error) {
			return []domain.Result{
				{ID: "e1", SourceType: domain.SourceReceipt, SourceID: "r1", Similarity: 0.5},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "coffee shops in petaling jaya", []float32{0.1})

	if outcome.SearchMethod != MethodLegacyUnified {
		t.Fatalf("method = %q, want unified_search", outcome.SearchMethod)
	}
	if !outcome.IsFallback {
		t.Error("legacy path must be flagged as fallback")
	}
}

func TestSearch_AmountFilterBypassesThresholds(t *testing.T) {
	repo := &mockRepo{
		hybridFn: func(_ context.Context, p searchstore.HybridParams) ([]domain.Result, error) {
			if p.SimilarityThreshold != 0.0 || p.TrigramThreshold != 0.0 {
				t.Errorf("thresholds = %v/%v, want 0.0/0.0 with amount filter",
					p.SimilarityThreshold, p.TrigramThreshold)
			}
			if p.AmountMin == nil || *p.AmountMin != 100 {
				t.Errorf("AmountMin = %v, want 100", p.AmountMin)
			}
			return nil, nil
		},
	}

	// Monetary-only query: semantic route with strict lower bound.
	outcome := runSearch(t, repo, "transactions over rm100", []float32{0.1})

	if outcome.SearchMethod != MethodEnhancedHybrid {
		t.Fatalf("method = %q", outcome.SearchMethod)
	}
	if len(repo.hybridCalls) != 1 {
		t.Fatalf("expected one hybrid call, got %d", len(repo.hybridCalls))
	}
}

func monetaryResult(id string, total float64) domain.Result {
	return domain.Result{
		ID: id, SourceType: domain.SourceReceipt, SourceID: id,
		ContentType: "full_text", Similarity: 0.8,
		CreatedAt: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Metadata:  map[string]any{"total": total},
	}
}

func TestSearch_SemanticRouteEnforcesStrictAmounts(t *testing.T) {
	repo := &mockRepo{
		hybridFn: func(_ context.Context, _ searchstore.HybridParams) ([]domain.Result, error) {
			// The stored procedure compares inclusively, so the boundary
			// amount comes back.
			return []domain.Result{
				monetaryResult("r1", 50),
				monetaryResult("r2", 100),
				monetaryResult("r3", 150),
			}, nil
		},
	}

	outcome := runSearch(t, repo, "transactions over rm100", []float32{0.1})

	if len(outcome.Results) != 1 {
		t.Fatalf("results = %d, want only the 150 receipt", len(outcome.Results))
	}
	if outcome.Results[0].SourceID != "r3" {
		t.Errorf("survivor = %q, want r3", outcome.Results[0].SourceID)
	}
}

func TestSearch_SemanticRouteKeepsAmountlessResults(t *testing.T) {
	repo := &mockRepo{
		hybridFn: func(_ context.Context, _ searchstore.HybridParams) ([]domain.Result, error) {
			return []domain.Result{
				monetaryResult("r1", 100),
				{ID: "b1", SourceType: domain.SourceBusinessDirectory, SourceID: "b1",
					Similarity: 0.7, Metadata: map[string]any{}},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "transactions over rm100", []float32{0.1})

	if len(outcome.Results) != 1 || outcome.Results[0].SourceID != "b1" {
		t.Fatalf("results = %+v, want only the amount-less entry", outcome.Results)
	}
}

func TestSearch_LegacyFallbackEnforcesStrictAmounts(t *testing.T) {
	repo := &mockRepo{
		hybridFn: func(_ context.Context, _ searchstore.HybridParams) ([]domain.Result, error) {
			return nil, errors.New("procedure missing")
		},
		legacyFn: func(_ context.Context, _ searchstore.LegacyParams) ([]domain.Result, error) {
			// unified_search has no amount parameters at all.
			return []domain.Result{
				monetaryResult("r2", 100),
				monetaryResult("r3", 150),
			}, nil
		},
	}

	outcome := runSearch(t, repo, "transactions over rm100", []float32{0.1})

	if !outcome.IsFallback {
		t.Error("legacy path must be flagged as fallback")
	}
	if len(outcome.Results) != 1 || outcome.Results[0].SourceID != "r3" {
		t.Fatalf("results = %+v, want only the 150 receipt", outcome.Results)
	}
}

func TestSearch_HybridTemporalEnforcesStrictAmounts(t *testing.T) {
	repo := &mockRepo{
		idsFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]string, error) {
			return []string{"r2", "r3"}, nil
		},
		hybridFn: func(_ context.Context, _ searchstore.HybridParams) ([]domain.Result, error) {
			return []domain.Result{
				monetaryResult("r2", 100),
				monetaryResult("r3", 150),
			}, nil
		},
	}

	outcome := runSearch(t, repo, "coffee receipts from last week over rm100", []float32{0.1})

	if outcome.SearchMethod != MethodHybridTemporal {
		t.Fatalf("method = %q, want hybrid_temporal_semantic", outcome.SearchMethod)
	}
	if len(outcome.Results) != 1 || outcome.Results[0].SourceID != "r3" {
		t.Fatalf("results = %+v, want only the 150 receipt", outcome.Results)
	}
}

func TestSearch_LineItemRoute(t *testing.T) {
	repo := &mockRepo{
		lineFn: func(_ context.Context, q searchstore.LineItemQuery) ([]domain.Result, error) {
			if q.QueryText != "milo" {
				t.Errorf("query = %q", q.QueryText)
			}
			return []domain.Result{
				{ID: "li1", SourceType: domain.SourceLineItem, SourceID: "li1", Similarity: 0.9},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "milo", []float32{0.1})

	if outcome.SearchMethod != MethodLineItem {
		t.Fatalf("method = %q, want line_item_search", outcome.SearchMethod)
	}
}

func TestSearch_FinancialAnalysisSummary(t *testing.T) {
	repo := &mockRepo{
		aggFn: func(_ context.Context, _ request.Identity, dr filter.DateRange) (searchstore.Aggregates, error) {
			return searchstore.Aggregates{Total: 500.0, Average: 25.0, Count: 20}, nil
		},
	}

	outcome := runSearch(t, repo, "how much did i spend", nil)

	if outcome.SearchMethod != MethodFinancialAnalysis {
		t.Fatalf("method = %q, want financial_analysis", outcome.SearchMethod)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("expected one wrapped analysis result, got %d", len(outcome.Results))
	}
	res := outcome.Results[0]
	if res.SourceType != domain.SourceFinancialAnalysis {
		t.Errorf("sourceType = %q", res.SourceType)
	}
	if res.Metadata["total"] != 500.0 {
		t.Errorf("metadata total = %v", res.Metadata["total"])
	}
}

func TestSearch_FinancialAnalysisCategoryBreakdown(t *testing.T) {
	repo := &mockRepo{
		catFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]searchstore.CategorySpend, error) {
			return []searchstore.CategorySpend{
				{Category: "food", Total: 320.5, Count: 12},
				{Category: "transport", Total: 80.0, Count: 5},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "spending breakdown by category", nil)

	if outcome.SearchMethod != MethodFinancialAnalysis {
		t.Fatalf("method = %q, want financial_analysis", outcome.SearchMethod)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected one result per category, got %d", len(outcome.Results))
	}
	first := outcome.Results[0]
	if first.SourceID != "category:food" || first.Metadata["total"] != 320.5 {
		t.Errorf("first bucket = %q %v", first.SourceID, first.Metadata)
	}
	if first.Similarity <= outcome.Results[1].Similarity {
		t.Error("bucket order must be encoded into similarity")
	}
}

func TestSearch_FinancialAnalysisMonthlyTrend(t *testing.T) {
	repo := &mockRepo{
		trendFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]searchstore.TrendPoint, error) {
			return []searchstore.TrendPoint{
				{Month: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Total: 410.0, Count: 18},
				{Month: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Total: 290.0, Count: 11},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "monthly spending trend", nil)

	if len(outcome.Results) != 2 {
		t.Fatalf("expected one result per month, got %d", len(outcome.Results))
	}
	if outcome.Results[0].SourceID != "month:2025-04" {
		t.Errorf("first bucket = %q, want oldest month first", outcome.Results[0].SourceID)
	}
}

func TestSearch_FinancialAnalysisAnomalies(t *testing.T) {
	repo := &mockRepo{
		anomFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]searchstore.AnomalousReceipt, error) {
			return []searchstore.AnomalousReceipt{
				{ID: "r9", Merchant: "Electronics Hub", Total: 4200.0,
					Date: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "unusual spending", nil)

	if len(outcome.Results) != 1 {
		t.Fatalf("expected one anomaly, got %d", len(outcome.Results))
	}
	res := outcome.Results[0]
	if res.SourceID != "r9" || res.Metadata["total"] != 4200.0 {
		t.Errorf("anomaly = %q %v", res.SourceID, res.Metadata)
	}
}

func TestSearch_FinancialAnalysisMerchantStats(t *testing.T) {
	repo := &mockRepo{
		merchFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]searchstore.MerchantSpend, error) {
			return []searchstore.MerchantSpend{
				{Merchant: "Kopi Corner", Total: 150.0, Average: 7.5, Count: 20},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "spending by merchant", nil)

	if len(outcome.Results) != 1 {
		t.Fatalf("expected one merchant bucket, got %d", len(outcome.Results))
	}
	if outcome.Results[0].Title != "Kopi Corner" {
		t.Errorf("title = %q", outcome.Results[0].Title)
	}
}

func TestSearch_FinancialAnalysisTimePatterns(t *testing.T) {
	repo := &mockRepo{
		patternFn: func(_ context.Context, _ request.Identity, _ filter.DateRange) ([]searchstore.WeekdaySpend, error) {
			return []searchstore.WeekdaySpend{
				{Weekday: 1, Total: 90.0, Count: 6},
				{Weekday: 7, Total: 200.0, Count: 9},
			}, nil
		},
	}

	outcome := runSearch(t, repo, "spending patterns", nil)

	if len(outcome.Results) != 2 {
		t.Fatalf("expected one result per weekday, got %d", len(outcome.Results))
	}
	if outcome.Results[0].Title != "Monday" || outcome.Results[1].Title != "Sunday" {
		t.Errorf("weekdays = %q, %q", outcome.Results[0].Title, outcome.Results[1].Title)
	}
}
