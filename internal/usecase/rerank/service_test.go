package rerank

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
}

type mockCompleter struct {
	response string
	err      error
	calls    int
}

func (m *mockCompleter) Complete(_ context.Context, _ string, _ domain.CompletionConfig) (string, error) {
	m.calls++
	return m.response, m.err
}

func newTestService(mc *mockCompleter) *Service {
	return New(mc, "test-model", fixedNow, zap.NewNop())
}

func candidate(id string, sim float64, ageDays int) domain.Result {
	return domain.Result{
		ID: id, SourceType: domain.SourceReceipt, SourceID: id,
		Title: "Receipt " + id, Similarity: sim,
		CreatedAt: fixedNow().AddDate(0, 0, -ageDays),
		Metadata:  map[string]any{},
	}
}

func ids(results []domain.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestRerank_SkipSingleCandidate(t *testing.T) {
	mc := &mockCompleter{}
	svc := newTestService(mc)

	res := svc.Rerank(context.Background(), Query{Text: "coffee receipts"},
		[]domain.Result{candidate("a", 0.9, 1)}, StrategyHybrid)

	if res.ModelUsed != "none" {
		t.Errorf("ModelUsed = %q, want none", res.ModelUsed)
	}
	if mc.calls != 0 {
		t.Error("skip must not call the LLM")
	}
}

func TestRerank_SkipTrivialQuery(t *testing.T) {
	mc := &mockCompleter{}
	svc := newTestService(mc)

	cands := []domain.Result{
		candidate("a", 0.9, 1), candidate("b", 0.8, 2), candidate("c", 0.7, 3),
	}
	res := svc.Rerank(context.Background(), Query{Text: "milo"}, cands, StrategyHybrid)

	if res.ModelUsed != "none" {
		t.Errorf("trivial query with few candidates must skip, ModelUsed = %q", res.ModelUsed)
	}
	// Retrieval order preserved.
	got := ids(res.Results)
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order changed on skip: %v", got)
	}
}

func TestRerank_TrivialQueryManyCandidatesStillRanks(t *testing.T) {
	mc := &mockCompleter{err: errors.New("should fall back")}
	svc := newTestService(mc)

	cands := make([]domain.Result, 12)
	for i := range cands {
		cands[i] = candidate(fmt.Sprintf("c%d", i), 0.5, i)
	}

	res := svc.Rerank(context.Background(), Query{Text: "milo"}, cands, StrategyFeature)
	if res.ModelUsed != string(StrategyFeature) {
		t.Errorf("ModelUsed = %q, want feature_based for >10 candidates", res.ModelUsed)
	}
}

func TestRerank_SkipUnderBudgetPressure(t *testing.T) {
	mc := &mockCompleter{}
	svc := newTestService(mc)

	cands := []domain.Result{candidate("a", 0.9, 1), candidate("b", 0.8, 2)}
	res := svc.Rerank(context.Background(),
		Query{Text: "coffee receipts from june", BudgetUsed: 0.75}, cands, StrategyCrossEncoder)

	if res.ModelUsed != "none" {
		t.Errorf("ModelUsed = %q, want none at 75%% budget", res.ModelUsed)
	}
	if mc.calls != 0 {
		t.Error("budget skip must not call the LLM")
	}
}

func TestRerank_FeatureRecencyBreaksTies(t *testing.T) {
	svc := newTestService(&mockCompleter{})

	// Same similarity, same text; only age differs.
	old := candidate("old", 0.8, 120)
	fresh := candidate("fresh", 0.8, 1)

	res := svc.Rerank(context.Background(), Query{Text: "groceries receipts"},
		[]domain.Result{old, fresh}, StrategyFeature)

	if res.Results[0].ID != "fresh" {
		t.Errorf("recency decay must rank the fresh result first, got %v", ids(res.Results))
	}
	if res.ModelUsed != string(StrategyFeature) {
		t.Errorf("ModelUsed = %q", res.ModelUsed)
	}
}

func TestRerank_FeatureTermOverlap(t *testing.T) {
	svc := newTestService(&mockCompleter{})

	match := candidate("match", 0.7, 5)
	match.Title = "Starbucks coffee"
	miss := candidate("miss", 0.7, 5)
	miss.Title = "Hardware store"

	res := svc.Rerank(context.Background(), Query{Text: "starbucks coffee purchases"},
		[]domain.Result{miss, match}, StrategyFeature)

	if res.Results[0].ID != "match" {
		t.Errorf("term overlap must rank the matching result first, got %v", ids(res.Results))
	}
}

func TestRerank_CrossEncoder(t *testing.T) {
	mc := &mockCompleter{response: `{"ranking": [2, 0, 1], "confidence": 0.9}`}
	svc := newTestService(mc)

	cands := []domain.Result{
		candidate("a", 0.9, 1), candidate("b", 0.8, 2), candidate("c", 0.7, 3),
	}
	res := svc.Rerank(context.Background(),
		Query{Text: "coffee receipts from june"}, cands, StrategyCrossEncoder)

	if res.ModelUsed != string(StrategyCrossEncoder) {
		t.Fatalf("ModelUsed = %q", res.ModelUsed)
	}
	got := ids(res.Results)
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Errorf("permutation not applied: %v", got)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v", res.Confidence)
	}
	// Position boost: top result boosted most, never above 1.0.
	if res.Results[0].Similarity <= 0.7 {
		t.Errorf("top result must be boosted, similarity = %v", res.Results[0].Similarity)
	}
	for _, r := range res.Results {
		if r.Similarity > 1.0 {
			t.Errorf("similarity %v exceeds 1.0 after boost", r.Similarity)
		}
	}
}

func TestRerank_CrossEncoderMalformedFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{"completion error", "", errors.New("rate limited")},
		{"no json", "I ranked them mentally.", nil},
		{"empty ranking", `{"ranking": [], "confidence": 0.9}`, nil},
		{"invalid json", `{"ranking": [1,`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &mockCompleter{response: tt.response, err: tt.err}
			svc := newTestService(mc)

			cands := []domain.Result{
				candidate("a", 0.9, 1), candidate("b", 0.8, 2),
			}
			res := svc.Rerank(context.Background(),
				Query{Text: "coffee receipts from june"}, cands, StrategyCrossEncoder)

			if res.ModelUsed != string(StrategyFeature) {
				t.Errorf("ModelUsed = %q, want feature_based fallback", res.ModelUsed)
			}
			if len(res.Results) != 2 {
				t.Errorf("fallback must keep all candidates, got %d", len(res.Results))
			}
		})
	}
}

func TestRerank_CrossEncoderBadIndicesRepaired(t *testing.T) {
	// Index 7 is out of range, 0 repeats; 1 is omitted and must land at the tail.
	mc := &mockCompleter{response: `{"ranking": [2, 7, 0, 0], "confidence": 0.8}`}
	svc := newTestService(mc)

	cands := []domain.Result{
		candidate("a", 0.9, 1), candidate("b", 0.8, 2), candidate("c", 0.7, 3),
	}
	res := svc.Rerank(context.Background(),
		Query{Text: "coffee receipts from june"}, cands, StrategyCrossEncoder)

	got := ids(res.Results)
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Errorf("repaired permutation = %v, want [c a b]", got)
	}
}

func TestRerank_Hybrid(t *testing.T) {
	// Cross-encoder reverses whatever top slice it gets.
	mc := &mockCompleter{response: `{"ranking": [9, 8, 7, 6, 5, 4, 3, 2, 1, 0], "confidence": 0.85}`}
	svc := newTestService(mc)

	cands := make([]domain.Result, 15)
	for i := range cands {
		// Descending similarity so the feature pass keeps this order.
		cands[i] = candidate(fmt.Sprintf("c%02d", i), 0.9-float64(i)*0.01, 2)
	}

	res := svc.Rerank(context.Background(),
		Query{Text: "coffee receipts from june"}, cands, StrategyHybrid)

	if res.ModelUsed != string(StrategyHybrid) {
		t.Fatalf("ModelUsed = %q", res.ModelUsed)
	}
	if len(res.Results) != 15 {
		t.Fatalf("hybrid must keep all candidates, got %d", len(res.Results))
	}
	// Top 10 reversed by the cross-encoder, tail keeps feature order.
	got := ids(res.Results)
	if got[0] != "c09" {
		t.Errorf("head must follow cross-encoder order, got[0] = %s", got[0])
	}
	if got[10] != "c10" || got[14] != "c14" {
		t.Errorf("tail must keep feature order: %v", got[10:])
	}
}

func TestRerank_HybridCrossFailureKeepsFeatureOrder(t *testing.T) {
	mc := &mockCompleter{err: errors.New("overloaded")}
	svc := newTestService(mc)

	cands := []domain.Result{
		candidate("a", 0.9, 1), candidate("b", 0.8, 2), candidate("c", 0.7, 3),
	}
	res := svc.Rerank(context.Background(),
		Query{Text: "coffee receipts from june"}, cands, StrategyHybrid)

	if res.ModelUsed != string(StrategyFeature) {
		t.Errorf("ModelUsed = %q, want feature_based", res.ModelUsed)
	}
	if len(res.Results) != 3 {
		t.Errorf("expected all candidates, got %d", len(res.Results))
	}
}

func TestCrossEncode_FailuresCarrySentinel(t *testing.T) {
	cands := []domain.Result{candidate("a", 0.9, 1), candidate("b", 0.8, 2)}

	mc := &mockCompleter{err: errors.New("provider down")}
	_, _, err := newTestService(mc).crossEncode(context.Background(), Query{Text: "coffee"}, cands)
	if !errors.Is(err, domain.ErrRerank) {
		t.Errorf("completion failure = %v, want ErrRerank", err)
	}

	mc = &mockCompleter{response: "no json here"}
	_, _, err = newTestService(mc).crossEncode(context.Background(), Query{Text: "coffee"}, cands)
	if !errors.Is(err, domain.ErrRerank) {
		t.Errorf("malformed ranking = %v, want ErrRerank", err)
	}
}
