package domain

import (
	"testing"
	"time"
)

func TestDedupe_KeepsHighestScore(t *testing.T) {
	results := []Result{
		{ID: "emb-1", SourceType: SourceReceipt, SourceID: "r1", Similarity: 0.4},
		{ID: "emb-2", SourceType: SourceReceipt, SourceID: "r1", Similarity: 0.9},
	}

	out := Dedupe(results)

	if len(out) != 1 {
		t.Fatalf("expected 1 result after dedupe, got %d", len(out))
	}
	if out[0].Similarity != 0.9 {
		t.Errorf("expected surviving similarity 0.9, got %v", out[0].Similarity)
	}
	if out[0].ID != "emb-2" {
		t.Errorf("expected surviving row emb-2, got %s", out[0].ID)
	}
}

func TestDedupe_DistinctKeysSurvive(t *testing.T) {
	results := []Result{
		{ID: "a", SourceType: SourceReceipt, SourceID: "r1", Similarity: 0.5},
		{ID: "b", SourceType: SourceLineItem, SourceID: "r1", Similarity: 0.5},
		{ID: "c", SourceType: SourceReceipt, SourceID: "r2", Similarity: 0.7},
	}

	out := Dedupe(results)
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
}

func TestSortResults_Deterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	results := []Result{
		{ID: "b", Similarity: 0.5, CreatedAt: now},
		{ID: "a", Similarity: 0.5, CreatedAt: now},
		{ID: "c", Similarity: 0.9, CreatedAt: now.AddDate(0, 0, -10)},
		{ID: "d", Similarity: 0.5, CreatedAt: now.AddDate(0, 0, 1)},
	}

	SortResults(results)

	want := []string{"c", "d", "a", "b"}
	for i, id := range want {
		if results[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, results[i].ID)
		}
	}
}

func TestClampSimilarity(t *testing.T) {
	r := Result{Similarity: 1.17}
	r.ClampSimilarity()
	if r.Similarity != 1.0 {
		t.Errorf("expected clamp to 1.0, got %v", r.Similarity)
	}

	r.Similarity = -0.2
	r.ClampSimilarity()
	if r.Similarity != 0 {
		t.Errorf("expected clamp to 0, got %v", r.Similarity)
	}
}

func TestWithMeta_CopyOnWrite(t *testing.T) {
	orig := Result{Metadata: map[string]any{"merchant": "Kopitiam"}}

	flagged := orig.WithMeta("fallback", true)

	if _, ok := orig.Metadata["fallback"]; ok {
		t.Error("original metadata mutated")
	}
	if flagged.Metadata["fallback"] != true {
		t.Error("expected fallback flag on copy")
	}
	if flagged.Metadata["merchant"] != "Kopitiam" {
		t.Error("expected existing metadata carried over")
	}
}
