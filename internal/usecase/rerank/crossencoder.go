package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/preprocess"
)

// positionBoostStep is the per-rank multiplicative boost applied after LLM
// re-ranking, scaled by the reported confidence.
const positionBoostStep = 0.03

// crossEncode asks the LLM for a ranked permutation of the candidates plus
// a confidence score, then applies a confidence-scaled position boost.
func (s *Service) crossEncode(ctx context.Context, q Query, candidates []domain.Result) ([]domain.Result, float64, error) {
	text, err := s.completer.Complete(ctx, buildRankPrompt(q.Text, candidates), domain.CompletionConfig{
		Temperature: 0.0,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("cross-encoder completion: %w: %v", domain.ErrRerank, err)
	}

	ranking, confidence, err := parseRanking(text, len(candidates))
	if err != nil {
		return nil, 0, fmt.Errorf("cross-encoder ranking: %w: %v", domain.ErrRerank, err)
	}

	reordered := applyPermutation(candidates, ranking)
	applyPositionBoost(reordered, confidence)

	return reordered, confidence, nil
}

func buildRankPrompt(query string, candidates []domain.Result) string {
	var b strings.Builder
	b.WriteString("Rank these search results by relevance to the query.\n\nQuery: ")
	b.WriteString(query)
	b.WriteString("\n\nResults:\n")

	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", i, c.Title)
		if c.Description != "" {
			fmt.Fprintf(&b, " — %s", c.Description)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nRespond with a single JSON object, no prose:\n")
	b.WriteString(`{"ranking": [most relevant index first], "confidence": 0.0}`)
	return b.String()
}

type rankPayload struct {
	Ranking    []int   `json:"ranking"`
	Confidence float64 `json:"confidence"`
}

// parseRanking extracts and validates the permutation. Out-of-range and
// duplicate indices are dropped; omitted candidates keep their relative
// order at the tail.
func parseRanking(text string, n int) ([]int, float64, error) {
	block, ok := preprocess.ExtractJSON(text)
	if !ok {
		return nil, 0, fmt.Errorf("no JSON object in ranking response")
	}

	var payload rankPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, 0, fmt.Errorf("parse ranking response: %w", err)
	}
	if len(payload.Ranking) == 0 {
		return nil, 0, fmt.Errorf("empty ranking in response")
	}

	seen := make(map[int]bool, n)
	ranking := make([]int, 0, n)
	for _, idx := range payload.Ranking {
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		ranking = append(ranking, idx)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			ranking = append(ranking, i)
		}
	}

	confidence := payload.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}

	return ranking, confidence, nil
}

func applyPermutation(candidates []domain.Result, ranking []int) []domain.Result {
	out := make([]domain.Result, 0, len(candidates))
	for _, idx := range ranking {
		out = append(out, candidates[idx])
	}
	return out
}

// applyPositionBoost multiplies similarity by a small factor growing with
// distance from the bottom, scaled by confidence and clamped to 1.0.
func applyPositionBoost(results []domain.Result, confidence float64) {
	n := len(results)
	for i := range results {
		distFromBottom := float64(n - 1 - i)
		factor := 1 + distFromBottom*positionBoostStep*confidence
		results[i].Similarity *= factor
		results[i].ClampSimilarity()
	}
}
