package finquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/finquery/internal/db/redis"
	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/preprocess"
	"github.com/kailas-cloud/finquery/internal/repository/embcache"
	"github.com/kailas-cloud/finquery/internal/repository/prepcache"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/repository/usagestore"
	"github.com/kailas-cloud/finquery/internal/temporal"
	openaiProv "github.com/kailas-cloud/finquery/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/finquery/internal/usecase/embedding"
	pipelineuc "github.com/kailas-cloud/finquery/internal/usecase/pipeline"
	rerankuc "github.com/kailas-cloud/finquery/internal/usecase/rerank"
	searchuc "github.com/kailas-cloud/finquery/internal/usecase/search"
	usageuc "github.com/kailas-cloud/finquery/internal/usecase/usage"
)

const defaultReadinessTimeout = 10 * time.Second

// executor runs one search through the pipeline.
type executor interface {
	Execute(ctx context.Context, req request.Request, id request.Identity) (pipelineuc.Output, error)
}

// Client is the finquery SDK entry point. It embeds the full search
// pipeline in-process, talking directly to Postgres and Redis.
type Client struct {
	pipeline executor
	usage    *usageuc.Service
	pg       *postgres.Client
	cache    *dbRedis.Cache
}

// New creates a finquery Client and connects to the backing stores.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		maxConns:        10,
		embeddingModel:  "text-embedding-3-small",
		completionModel: "gpt-4o-mini",
		provider:        "openai",
		defaultCurrency: "MYR",
		preprocessTTL:   time.Hour,
		embeddingTTL:    24 * time.Hour,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.dsn == "" {
		return nil, errors.New("finquery: postgres DSN required (use WithPostgres)")
	}
	if len(cfg.cacheAddrs) == 0 {
		return nil, errors.New("finquery: cache address required (use WithCache)")
	}
	if cfg.apiKey == "" && cfg.embedder == nil {
		return nil, errors.New("finquery: API key required (use WithOpenAI or WithEmbedder)")
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx := context.Background()

	pg, err := postgres.NewClient(ctx, postgres.Config{
		DSN:      cfg.dsn,
		MaxConns: cfg.maxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("finquery: create postgres client: %w", err)
	}
	if err := pg.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		pg.Close()
		return nil, fmt.Errorf("finquery: postgres not ready: %w", err)
	}

	cache, err := dbRedis.NewCache(dbRedis.Config{
		Addrs:    cfg.cacheAddrs,
		Username: cfg.cacheUsername,
		Password: cfg.cachePassword,
	})
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("finquery: create cache client: %w", err)
	}
	if err := cache.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		pg.Close()
		cache.Close()
		return nil, fmt.Errorf("finquery: cache not ready: %w", err)
	}

	return wireClient(pg, cache, cfg, logger), nil
}

func wireClient(pg *postgres.Client, cache *dbRedis.Cache, cfg *clientConfig, logger *zap.Logger) *Client {
	usageStore := usagestore.New(cache, 48*time.Hour, 62*24*time.Hour)

	var base domain.Embedder
	if cfg.embedder != nil {
		base = &embedderAdapter{inner: cfg.embedder}
	} else {
		base = openaiProv.NewEmbedder(&openaiProv.EmbedderConfig{
			APIKey:   cfg.apiKey,
			BaseURL:  cfg.baseURL,
			Model:    cfg.embeddingModel,
			Provider: cfg.provider,
			Usage:    usageStore,
			Logger:   logger,
		})
	}
	var embedder domain.Embedder = embcache.New(base, cache, cfg.embeddingTTL, nil, logger)
	embedder = embeddinguc.NewInstrumented(embedder, cfg.provider, cfg.embeddingModel, logger)
	embedder = embeddinguc.NewReconciling(embedder, logger)

	completer := openaiProv.NewCompleter(&openaiProv.CompleterConfig{
		APIKey:   cfg.apiKey,
		BaseURL:  cfg.baseURL,
		Model:    cfg.completionModel,
		Provider: cfg.provider,
		Usage:    usageStore,
		Logger:   logger,
	})

	repo := searchstore.New(pg.Pool())
	prepCache := prepcache.New(cache, cfg.preprocessTTL, logger)

	classifier := temporal.New(cfg.defaultCurrency, nil)
	preprocessor := preprocess.New(completer, prepCache, logger)
	searchSvc := searchuc.New(repo, searchuc.Config{}, nil, logger)
	rerankSvc := rerankuc.New(completer, cfg.completionModel, nil, logger)

	pipe := pipelineuc.New(
		classifier, preprocessor, embedder, searchSvc, rerankSvc, repo,
		pipelineuc.Config{
			RerankStrategy: rerankuc.Strategy(cfg.rerankStrategy),
			DisableRerank:  cfg.disableRerank,
			Budget:         cfg.budget,
		},
		nil, logger,
	)

	return &Client{
		pipeline: pipe,
		usage:    usageuc.New(usageStore, nil),
		pg:       pg,
		cache:    cache,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.pg != nil {
		c.pg.Close()
	}
	if c.cache != nil {
		c.cache.Close()
	}
}

// Ping checks connectivity of the backing stores.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.pg.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := c.cache.Ping(ctx); err != nil {
		return fmt.Errorf("ping cache: %w", err)
	}
	return nil
}

// Usage reports provider token consumption for the given period.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (UsageReport, error) {
	report, err := c.usage.GetReport(ctx, usageuc.Period(period))
	if err != nil {
		return UsageReport{}, err
	}
	return UsageReport{
		Period:           UsagePeriod(report.Period),
		Start:            report.Start,
		End:              report.End,
		EmbeddingTokens:  report.EmbeddingTokens,
		CompletionTokens: report.CompletionTokens,
		TotalTokens:      report.TotalTokens,
	}, nil
}

// Search starts a fluent search for the given query text.
func (c *Client) Search(query string) *SearchBuilder {
	return &SearchBuilder{client: c, query: query}
}

// Embedder converts text into a vector. Implement it to plug a custom
// embedding provider into the Client.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult is the outcome of a single embedding call.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
