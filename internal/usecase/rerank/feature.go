package rerank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/temporal"
)

// Feature weights: term overlap, content-type relevance for the intent,
// recency, and the remaining signals (interaction, coherence, alignment).
const (
	weightOverlap     = 0.40
	weightContentType = 0.30
	weightRecency     = 0.20
	weightExtras      = 0.10

	// recencyHalfLifeDays halves a result's recency score every 30 days.
	recencyHalfLifeDays = 30.0

	featureConfidence = 0.7
)

// featureRank scores candidates deterministically and sorts them. It never
// fails, which makes it the ultimate fallback for every other strategy.
func (s *Service) featureRank(q Query, candidates []domain.Result) []domain.Result {
	now := s.now().UTC()
	queryTerms := contentTerms(q.Text)

	out := make([]domain.Result, len(candidates))
	copy(out, candidates)

	scores := make(map[string]float64, len(out))
	for _, c := range out {
		feature := s.featureScore(q, queryTerms, c, now)
		// The original similarity stays half the signal: features refine
		// retrieval order, they do not replace it.
		scores[c.ID] = (c.Similarity + feature) / 2
	}

	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i].ID] > scores[out[j].ID]
	})

	for i := range out {
		out[i].Similarity = scores[out[i].ID]
		out[i].ClampSimilarity()
	}

	return out
}

func (s *Service) featureScore(q Query, queryTerms []string, c domain.Result, now time.Time) float64 {
	overlap := termOverlap(queryTerms, c)
	relevance := contentTypeRelevance(q.Intent, c.SourceType)
	recency := recencyScore(c.CreatedAt, now)
	extras := (interactionScore(c) + coherenceScore(queryTerms, c) + entityAlignment(q.Entities, c)) / 3

	return weightOverlap*overlap +
		weightContentType*relevance +
		weightRecency*recency +
		weightExtras*extras
}

// termOverlap is the fraction of query content terms found in the
// candidate's title or description.
func termOverlap(queryTerms []string, c domain.Result) float64 {
	if len(queryTerms) == 0 {
		return 0.5
	}
	haystack := strings.ToLower(c.Title + " " + c.Description)
	hits := 0
	for _, t := range queryTerms {
		if strings.Contains(haystack, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// contentTypeRelevance scores how well a source type serves the detected
// intent.
func contentTypeRelevance(intent domain.QueryIntent, src domain.SourceType) float64 {
	switch intent {
	case domain.IntentFinancialAnalysis:
		switch src {
		case domain.SourceFinancialAnalysis:
			return 1.0
		case domain.SourceReceipt, domain.SourceClaim:
			return 0.8
		default:
			return 0.4
		}
	case domain.IntentDocumentRetrieval:
		switch src {
		case domain.SourceReceipt, domain.SourceClaim:
			return 1.0
		case domain.SourceLineItem:
			return 0.7
		default:
			return 0.5
		}
	case domain.IntentDataAnalysis:
		switch src {
		case domain.SourceFinancialAnalysis, domain.SourceLineItem:
			return 1.0
		default:
			return 0.5
		}
	default:
		return 0.5
	}
}

// recencyScore decays exponentially with a 30-day half-life.
func recencyScore(created time.Time, now time.Time) float64 {
	if created.IsZero() || created.After(now) {
		return 0.5
	}
	ageDays := now.Sub(created).Hours() / 24
	return math.Exp(-math.Ln2 * ageDays / recencyHalfLifeDays)
}

// interactionScore reads the prior user-interaction signal when the store
// provided one.
func interactionScore(c domain.Result) float64 {
	if v, ok := c.Metadata["interactionScore"]; ok {
		if f, ok := v.(float64); ok && f >= 0 && f <= 1 {
			return f
		}
	}
	return 0
}

// coherenceScore is a cheap proxy for semantic coherence: a candidate with
// descriptive text that touches the query reads as coherent, bare rows do not.
func coherenceScore(queryTerms []string, c domain.Result) float64 {
	if c.Description == "" && c.Title == "" {
		return 0.2
	}
	if termOverlap(queryTerms, c) > 0 {
		return 0.8
	}
	return 0.5
}

// entityAlignment checks whether any extracted entity appears in the
// candidate's title or merchant metadata.
func entityAlignment(entities []string, c domain.Result) float64 {
	if len(entities) == 0 {
		return 0.5
	}
	haystack := strings.ToLower(c.Title)
	if m, ok := c.Metadata["merchant"].(string); ok {
		haystack += " " + strings.ToLower(m)
	}
	for _, e := range entities {
		if e != "" && strings.Contains(haystack, strings.ToLower(e)) {
			return 1.0
		}
	}
	return 0
}

func contentTerms(query string) []string {
	return temporal.SemanticTerms(strings.ToLower(query))
}
