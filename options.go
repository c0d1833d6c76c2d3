package finquery

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	dsn      string
	maxConns int

	cacheAddrs    []string
	cacheUsername string
	cachePassword string

	apiKey          string
	baseURL         string
	embeddingModel  string
	completionModel string
	provider        string

	embedder Embedder

	defaultCurrency string
	rerankStrategy  string
	disableRerank   bool
	budget          time.Duration

	preprocessTTL time.Duration
	embeddingTTL  time.Duration

	logger *zap.Logger
}

// WithPostgres configures the backing Postgres connection. Required.
func WithPostgres(dsn string, maxConns int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dsn = dsn
		c.maxConns = maxConns
	})
}

// WithCache configures the Redis cache used for preprocessing and
// embedding results. Required.
func WithCache(addrs []string, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheAddrs = addrs
		c.cacheUsername = username
		c.cachePassword = password
	})
}

// WithOpenAI sets the API key used for both embedding and completion
// calls. Required unless a custom Embedder is provided.
func WithOpenAI(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = apiKey
	})
}

// WithBaseURL points the provider client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.baseURL = url
	})
}

// WithEmbeddingModel overrides the embedding model.
// Default: text-embedding-3-small.
func WithEmbeddingModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.embeddingModel = model
	})
}

// WithCompletionModel overrides the completion model used for query
// preprocessing and cross-encoder re-ranking. Default: gpt-4o-mini.
func WithCompletionModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.completionModel = model
	})
}

// WithEmbedder replaces the OpenAI embedding provider with a custom one.
// Vectors are still reconciled to the storage dimension.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithDefaultCurrency sets the currency assumed for bare amounts in
// queries ("over 50"). Default: MYR.
func WithDefaultCurrency(code string) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultCurrency = code
	})
}

// WithRerankStrategy selects the re-ranking algorithm: RerankFeature,
// RerankCrossEncoder or RerankHybrid. Default: RerankHybrid.
func WithRerankStrategy(s RerankStrategy) Option {
	return optionFunc(func(c *clientConfig) {
		c.rerankStrategy = string(s)
	})
}

// WithoutReranker disables re-ranking entirely.
func WithoutReranker() Option {
	return optionFunc(func(c *clientConfig) {
		c.disableRerank = true
	})
}

// WithBudget overrides the per-search wall-clock budget. Default: 75s.
func WithBudget(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.budget = d
	})
}

// WithCacheTTLs overrides the preprocessing and embedding cache TTLs.
// Defaults: 1h and 24h.
func WithCacheTTLs(preprocess, embedding time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.preprocessTTL = preprocess
		c.embeddingTTL = embedding
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
