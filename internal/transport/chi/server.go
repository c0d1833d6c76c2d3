// Package chi is the HTTP transport: a thin JSON layer over the search
// pipeline with bearer-key auth, health and Prometheus endpoints.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/usecase/health"
	"github.com/kailas-cloud/finquery/internal/usecase/pipeline"
	"github.com/kailas-cloud/finquery/internal/usecase/usage"
)

// errorCode is the machine-readable error discriminator on the wire.
type errorCode string

const (
	codeBadRequest         errorCode = "bad_request"
	codeValidationFailed   errorCode = "validation_failed"
	codeUnauthorized       errorCode = "unauthorized"
	codeRateLimited        errorCode = "rate_limited"
	codeEmbeddingProvider  errorCode = "embedding_provider_error"
	codeCompletionProvider errorCode = "completion_provider_error"
	codeRetrievalError     errorCode = "retrieval_error"
	codePipelineTimeout    errorCode = "pipeline_timeout"
	codeInternalError      errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// executor is the consumer interface for the pipeline (ISP).
type executor interface {
	Execute(ctx context.Context, req request.Request, id request.Identity) (pipeline.Output, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	pipeline      executor
	health        *health.Service
	usage         usageReporter
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// usageReporter provides token consumption reports.
type usageReporter interface {
	GetReport(ctx context.Context, period usage.Period) (usage.Report, error)
}

// NewServer creates an HTTP API server.
func NewServer(p executor, h *health.Service, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: p,
		health:   h,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrAuth, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrCompletionProvider, http.StatusBadGateway, codeCompletionProvider),
		sentinelHandler(domain.ErrRetrieval, http.StatusBadGateway, codeRetrievalError),
		sentinelHandler(domain.ErrPipelineTimeout, http.StatusGatewayTimeout, codePipelineTimeout),
	}
	return s
}

// Routes mounts the API onto a chi router.
// WithUsage attaches the usage reporting endpoint.
func (s *Server) WithUsage(u usageReporter) *Server {
	s.usage = u
	return s
}

func (s *Server) Routes(r chirouter.Router) {
	r.Post("/v1/search", s.Search)
	r.Get("/v1/usage", s.Usage)
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
}

// Usage handles GET /v1/usage. Period defaults to "day".
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusNotFound, codeBadRequest, "usage reporting not configured")
		return
	}

	period := usage.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = usage.PeriodDay
	}

	report, err := s.usage.GetReport(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var payload searchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, id, err := payload.toRequest()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out, err := s.pipeline.Execute(r.Context(), req, id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outputToResponse(out))
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing provider internals. Validation errors carry their field detail.
func safeDomainMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrAuth,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProvider,
		domain.ErrCompletionProvider,
		domain.ErrRetrieval,
		domain.ErrPipelineTimeout,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
