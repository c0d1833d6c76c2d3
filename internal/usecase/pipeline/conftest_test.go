package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
	"github.com/kailas-cloud/finquery/internal/usecase/rerank"
	"github.com/kailas-cloud/finquery/internal/usecase/search"
)

// fakeClock lets collaborator mocks burn pipeline budget on demand. A
// non-zero step advances time on every read, simulating queueing delay.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mockPreprocessor struct {
	result domain.PreprocessResult
	onCall func()
}

func (m *mockPreprocessor) Preprocess(_ context.Context, query, _ string) domain.PreprocessResult {
	if m.onCall != nil {
		m.onCall()
	}
	if m.result.ExpandedQuery == "" {
		return domain.PreprocessResult{
			ExpandedQuery: query,
			Intent:        domain.IntentGeneralSearch,
			Confidence:    0.8,
		}
	}
	return m.result
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
	texts  []string
	onCall func()
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	m.texts = append(m.texts, text)
	if m.onCall != nil {
		m.onCall()
	}
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockSearcher struct {
	outcome search.Outcome
	err     error
	calls   int
	onCall  func()
}

func (m *mockSearcher) Search(_ context.Context, _ request.Request, _ request.Identity,
	_ temporal.ParsedQuery, _ []float32) (search.Outcome, error) {
	m.calls++
	if m.onCall != nil {
		m.onCall()
	}
	if m.err != nil {
		return search.Outcome{}, m.err
	}
	return m.outcome, nil
}

type mockReranker struct {
	result rerank.Result
	calls  int
	lastQ  rerank.Query
}

func (m *mockReranker) Rerank(_ context.Context, q rerank.Query,
	candidates []domain.Result, _ rerank.Strategy) rerank.Result {
	m.calls++
	m.lastQ = q
	if m.result.Results == nil {
		return rerank.Result{Results: candidates, Confidence: 1.0, ModelUsed: "none"}
	}
	return m.result
}

type mockStore struct {
	legacyFn    func(p searchstore.LegacyParams) ([]domain.Result, error)
	receiptsFn  func(q searchstore.ReceiptQuery) ([]domain.Result, error)
	detailsFn   func(ids []string) (map[string]searchstore.ReceiptDetail, error)
	histogramFn func(months int) ([]searchstore.MonthCount, error)

	legacyCalls   int
	receiptsCalls int
}

func (m *mockStore) LegacySearch(_ context.Context, p searchstore.LegacyParams) ([]domain.Result, error) {
	m.legacyCalls++
	if m.legacyFn == nil {
		return nil, nil
	}
	return m.legacyFn(p)
}

func (m *mockStore) ReceiptsByDateRange(_ context.Context, q searchstore.ReceiptQuery) ([]domain.Result, error) {
	m.receiptsCalls++
	if m.receiptsFn == nil {
		return nil, nil
	}
	return m.receiptsFn(q)
}

func (m *mockStore) ReceiptDetails(_ context.Context, ids []string) (map[string]searchstore.ReceiptDetail, error) {
	if m.detailsFn == nil {
		return map[string]searchstore.ReceiptDetail{}, nil
	}
	return m.detailsFn(ids)
}

func (m *mockStore) DateHistogram(_ context.Context, _ request.Identity, months int) ([]searchstore.MonthCount, error) {
	if m.histogramFn == nil {
		return nil, nil
	}
	return m.histogramFn(months)
}

type fixture struct {
	clock    *fakeClock
	pre      *mockPreprocessor
	embedder *mockEmbedder
	searcher *mockSearcher
	reranker *mockReranker
	store    *mockStore
	svc      *Service
}

func newFixture() *fixture {
	return newFixtureWithConfig(Config{RerankStrategy: rerank.StrategyFeature})
}

func newFixtureWithConfig(cfg Config) *fixture {
	f := &fixture{
		clock:    newFakeClock(),
		pre:      &mockPreprocessor{},
		embedder: &mockEmbedder{result: domain.EmbeddingResult{Embedding: make([]float32, domain.VectorDimensions)}},
		searcher: &mockSearcher{},
		reranker: &mockReranker{},
		store:    &mockStore{},
	}
	f.svc = New(
		temporal.New("MYR", f.clock.Now),
		f.pre, f.embedder, f.searcher, f.reranker, f.store,
		cfg,
		f.clock.Now, zap.NewNop(),
	)
	return f
}

func mustRequest(t *testing.T, query string, filters filter.Filters) request.Request {
	t.Helper()
	req, err := request.New(query, nil, filters, 0, 0, 0)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func testIdentity() request.Identity {
	return request.Identity{UserID: "user-1"}
}

func receiptResult(id string, sim float64) domain.Result {
	return domain.Result{
		ID: "emb-" + id, SourceType: domain.SourceReceipt, SourceID: id,
		ContentType: "full_text", Title: "Receipt " + id, Similarity: sim,
		Metadata:  map[string]any{},
		CreatedAt: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
	}
}
