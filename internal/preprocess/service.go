// Package preprocess turns a raw user query into a structured understanding
// of it: intent, entities, an expanded query, and suggested sources.
package preprocess

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/metrics"
)

const (
	// LLMTimeout bounds the preprocessing call; the pipeline degrades
	// rather than waits.
	LLMTimeout = 10 * time.Second

	fastPathMaxLen        = 20
	fastPathConfidence    = 0.8
	degradedConfidence    = 0.4
	completionMaxTokens   = 400
	completionTemperature = 0.1
)

// completer is the consumer interface for the LLM provider (ISP).
type completer interface {
	Complete(ctx context.Context, prompt string, cfg domain.CompletionConfig) (string, error)
}

// resultCache is the consumer interface for the preprocess cache (ISP).
type resultCache interface {
	Get(ctx context.Context, query, userID string) (domain.PreprocessResult, bool)
	Set(ctx context.Context, query, userID string, result domain.PreprocessResult)
}

// Service is the query preprocessor.
type Service struct {
	completer completer
	cache     resultCache
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a preprocessor. cache may be nil to disable caching.
func New(c completer, cache resultCache, logger *zap.Logger) *Service {
	return &Service{
		completer: c,
		cache:     cache,
		timeout:   LLMTimeout,
		logger:    logger,
	}
}

// Preprocess analyzes a query. It never returns an error: a failed or
// timed-out LLM call produces a degraded low-confidence result instead.
func (s *Service) Preprocess(ctx context.Context, query, userID string) domain.PreprocessResult {
	trimmed := strings.TrimSpace(query)

	if isTrivial(trimmed) {
		return domain.PreprocessResult{
			ExpandedQuery: trimmed,
			Intent:        domain.IntentDocumentRetrieval,
			Confidence:    fastPathConfidence,
			QueryType:     "simple",
		}
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, trimmed, userID); ok {
			metrics.PreprocessCacheTotal.WithLabelValues("hit").Inc()
			return cached
		}
		metrics.PreprocessCacheTotal.WithLabelValues("miss").Inc()
	}

	result, ok := s.callLLM(ctx, trimmed)
	if !ok {
		return degraded(trimmed)
	}

	if s.cache != nil {
		s.cache.Set(ctx, trimmed, userID, result)
	}

	return result
}

// isTrivial reports whether the query can skip the LLM entirely: a single
// short token with no punctuation carries no structure worth analyzing.
func isTrivial(query string) bool {
	if len(query) == 0 || len(query) >= fastPathMaxLen {
		return false
	}
	if strings.ContainsFunc(query, unicode.IsSpace) {
		return false
	}
	for _, r := range query {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

// llmPayload mirrors the JSON shape the prompt asks for.
type llmPayload struct {
	ExpandedQuery    string   `json:"expandedQuery"`
	Intent           string   `json:"intent"`
	Entities         []string `json:"entities"`
	Confidence       float64  `json:"confidence"`
	QueryType        string   `json:"queryType"`
	SuggestedSources []string `json:"suggestedSources"`
}

func (s *Service) callLLM(ctx context.Context, query string) (domain.PreprocessResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.completer.Complete(ctx, buildPrompt(query), domain.CompletionConfig{
		Temperature: completionTemperature,
		MaxTokens:   completionMaxTokens,
	})
	if err != nil {
		s.logger.Warn("preprocess LLM call failed", zap.Error(err))
		return domain.PreprocessResult{}, false
	}

	block, ok := ExtractJSON(text)
	if !ok {
		s.logger.Warn("preprocess response contained no JSON object")
		return domain.PreprocessResult{}, false
	}

	var payload llmPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		s.logger.Warn("preprocess response JSON malformed", zap.Error(err))
		return domain.PreprocessResult{}, false
	}

	return normalize(query, payload), true
}

// normalize validates and bounds the LLM output. Invalid intents and
// out-of-range confidence are corrected, never rejected.
func normalize(query string, p llmPayload) domain.PreprocessResult {
	intent := domain.QueryIntent(p.Intent)
	if !intent.Valid() {
		intent = domain.IntentGeneralSearch
	}

	confidence := p.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = degradedConfidence
	}

	expanded := strings.TrimSpace(p.ExpandedQuery)
	if expanded == "" {
		expanded = query
	}

	var sources []domain.SourceType
	for _, s := range p.SuggestedSources {
		if st := domain.SourceType(s); st.Valid() {
			sources = append(sources, st)
		}
	}

	return domain.PreprocessResult{
		ExpandedQuery:    expanded,
		Intent:           intent,
		Entities:         p.Entities,
		Confidence:       confidence,
		QueryType:        p.QueryType,
		SuggestedSources: sources,
	}
}

func degraded(query string) domain.PreprocessResult {
	return domain.PreprocessResult{
		ExpandedQuery: query,
		Intent:        domain.IntentGeneralSearch,
		Confidence:    degradedConfidence,
		QueryType:     "degraded",
	}
}

func buildPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Analyze this search query over a user's financial documents ")
	b.WriteString("(receipts, line items, expense claims, business directory).\n\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nRespond with a single JSON object, no prose:\n")
	b.WriteString(`{
  "expandedQuery": "query expanded with synonyms and related terms",
  "intent": "one of: financial_analysis, document_retrieval, data_analysis, general_search",
  "entities": ["merchant names, product names, categories mentioned"],
  "confidence": 0.0,
  "queryType": "short label for the query kind",
  "suggestedSources": ["subset of: receipt, claim, line_item, custom_category, business_directory, team_member"]
}`)
	return b.String()
}
