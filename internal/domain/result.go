package domain

import (
	"sort"
	"time"
)

// Result is the canonical candidate/result shape shared by every retrieval
// branch. Created during retrieval transformation; re-ranking may boost
// Similarity, filtering may drop whole results, nothing else mutates it.
type Result struct {
	ID          string
	SourceType  SourceType
	SourceID    string
	ContentType string
	Title       string
	Description string
	Similarity  float64
	Metadata    map[string]any
	AccessLevel AccessLevel
	CreatedAt   time.Time
}

// Key identifies the underlying entity for deduplication. Multiple embedding
// rows per entity collapse onto one key.
type Key struct {
	SourceType SourceType
	SourceID   string
}

// Key returns the deduplication key.
func (r *Result) Key() Key {
	return Key{SourceType: r.SourceType, SourceID: r.SourceID}
}

// ClampSimilarity bounds Similarity to [0,1] after boosting.
func (r *Result) ClampSimilarity() {
	if r.Similarity > 1.0 {
		r.Similarity = 1.0
	}
	if r.Similarity < 0 {
		r.Similarity = 0
	}
}

// WithMeta returns a shallow copy with one metadata entry added,
// copy-on-write so shared candidates are never mutated in place.
func (r Result) WithMeta(key string, value any) Result {
	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[key] = value
	r.Metadata = meta
	return r
}

// Dedupe collapses results sharing a (SourceType, SourceID) key, keeping the
// highest-scoring row. Relative order of survivors follows descending
// similarity, ties broken by newest CreatedAt, then ID for determinism.
func Dedupe(results []Result) []Result {
	best := make(map[Key]Result, len(results))
	for _, r := range results {
		k := r.Key()
		if cur, ok := best[k]; !ok || r.Similarity > cur.Similarity {
			best[k] = r
		}
	}

	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	SortResults(out)
	return out
}

// SortResults orders results deterministically: similarity desc, then
// CreatedAt desc, then ID asc. Used after any concurrent gather.
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
}
