package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "searches_total",
			Help:      "Total number of search requests",
		},
		[]string{"routing_strategy", "status"},
	)

	SearchMethodTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "search_method_total",
			Help:      "Which retrieval method satisfied the request",
		},
		[]string{"method"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "fallbacks_total",
			Help:      "Fallback transitions by kind",
		},
		[]string{"kind"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finquery",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	RerankTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "rerank_total",
			Help:      "Re-ranking outcomes by model",
		},
		[]string{"model", "outcome"}, // outcome: applied / skipped / fallback
	)
)

// Embedding and completion provider metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finquery",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "completion_requests_total",
			Help:      "Total number of completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	CompletionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "completion_retries_total",
			Help:      "Completion retry attempts after transient failures",
		},
		[]string{"provider", "model"},
	)

	PreprocessCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finquery",
			Name:      "preprocess_cache_total",
			Help:      "Query preprocessing cache hits and misses",
		},
		[]string{"result"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchMethodTotal)
	prometheus.MustRegister(FallbacksTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(RerankTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(CompletionRequestsTotal)
	prometheus.MustRegister(CompletionRetriesTotal)
	prometheus.MustRegister(PreprocessCacheTotal)
	searchMetricsRegistered = true
}
