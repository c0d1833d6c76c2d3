package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/config"
	"github.com/kailas-cloud/finquery/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/finquery/internal/db/redis"
	"github.com/kailas-cloud/finquery/internal/domain"
	logpkg "github.com/kailas-cloud/finquery/internal/logger"
	"github.com/kailas-cloud/finquery/internal/metrics"
	"github.com/kailas-cloud/finquery/internal/preprocess"
	"github.com/kailas-cloud/finquery/internal/repository/embcache"
	"github.com/kailas-cloud/finquery/internal/repository/prepcache"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/repository/usagestore"
	"github.com/kailas-cloud/finquery/internal/temporal"
	chiTransport "github.com/kailas-cloud/finquery/internal/transport/chi"
	openaiProv "github.com/kailas-cloud/finquery/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/finquery/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/finquery/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/finquery/internal/usecase/pipeline"
	rerankuc "github.com/kailas-cloud/finquery/internal/usecase/rerank"
	searchuc "github.com/kailas-cloud/finquery/internal/usecase/search"
	usageuc "github.com/kailas-cloud/finquery/internal/usecase/usage"
	"github.com/kailas-cloud/finquery/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting finquery API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	ctx := context.Background()

	pg, err := postgres.NewClient(ctx, postgres.Config{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Fatal("Failed to create postgres client", zap.Error(err))
	}
	defer pg.Close()

	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := pg.WaitForReady(ctx, readiness); err != nil {
		logger.Fatal("Postgres not ready", zap.Error(err))
	}
	logger.Info("Connected to postgres")

	cache, err := dbRedis.NewCache(dbRedis.Config{
		Addrs:    cfg.Cache.Addrs,
		Username: cfg.Cache.Username,
		Password: cfg.Cache.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create cache client", zap.Error(err))
	}
	defer cache.Close()

	if err := cache.WaitForReady(ctx, readiness); err != nil {
		logger.Fatal("Cache not ready", zap.Error(err))
	}
	logger.Info("Connected to cache")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	usageStore := usagestore.New(cache, 48*time.Hour, 62*24*time.Hour)

	// Embedder chain: provider -> cached (provider space) -> instrumented ->
	// reconciling. Reconciliation outermost so cached vectors pass through it.
	baseEmbedder := openaiProv.NewEmbedder(&openaiProv.EmbedderConfig{
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
		Provider: cfg.Embedding.Provider,
		Usage:    usageStore,
		Logger:   logger,
	})
	var embedder domain.Embedder = embcache.New(
		baseEmbedder, cache,
		time.Duration(cfg.Cache.EmbeddingTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)
	embedder = embeddinguc.NewInstrumented(embedder, cfg.Embedding.Provider, cfg.Embedding.Model, logger)
	embedder = embeddinguc.NewReconciling(embedder, logger)
	logger.Info("Embedder chain created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", domain.VectorDimensions),
	)

	completer := openaiProv.NewCompleter(&openaiProv.CompleterConfig{
		APIKey:   cfg.Completion.APIKey,
		BaseURL:  cfg.Completion.BaseURL,
		Model:    cfg.Completion.Model,
		Provider: cfg.Completion.Provider,
		Usage:    usageStore,
		Logger:   logger,
	})

	// Repositories
	searchRepo := searchstore.New(pg.Pool())
	prepCache := prepcache.New(cache,
		time.Duration(cfg.Cache.PreprocessTTLSec)*time.Second, logger)

	// Use case services
	classifier := temporal.New(cfg.Search.DefaultCurrency, nil)
	preprocessor := preprocess.New(completer, prepCache, logger)
	searchSvc := searchuc.New(searchRepo, searchuc.Config{
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		TrigramThreshold:    cfg.Search.TrigramThreshold,
		SemanticWeight:      cfg.Search.SemanticWeight,
		KeywordWeight:       cfg.Search.KeywordWeight,
		TrigramWeight:       cfg.Search.TrigramWeight,
	}, nil, logger)
	rerankSvc := rerankuc.New(completer, cfg.Completion.Model, nil, logger)

	pipelineSvc := pipelineuc.New(
		classifier, preprocessor, embedder, searchSvc, rerankSvc, searchRepo,
		pipelineuc.Config{
			RerankStrategy: rerankuc.Strategy(cfg.Pipeline.RerankStrategy),
			DisableRerank:  cfg.Pipeline.RerankerEnabled != nil && !*cfg.Pipeline.RerankerEnabled,
			Budget:         time.Duration(cfg.Pipeline.BudgetSec) * time.Second,
		},
		nil, logger,
	)

	healthSvc := healthuc.New(pg, cache, newEmbeddingHealthChecker(baseEmbedder))
	usageSvc := usageuc.New(usageStore, nil)

	server := chiTransport.NewServer(pipelineSvc, healthSvc, logger).WithUsage(usageSvc)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker wraps the provider to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.HealthChecker
}

func newEmbeddingHealthChecker(embedder domain.HealthChecker) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if err := h.embedder.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
