package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/metrics"
)

// Some gateway deployments return provider failures as plain text in the
// completion body with a 200 status. These markers identify such responses.
var providerErrorMarkers = []string{
	"RATE_LIMIT_EXCEEDED",
	"OVERLOADED",
	"MODEL_UNAVAILABLE",
	"CONTEXT_LENGTH_EXCEEDED",
	"INTERNAL_PROVIDER_ERROR",
}

const (
	completionMaxAttempts = 3
	completionBackoffBase = time.Second
)

// Completer is a chat completion provider using the OpenAI-compatible API.
type Completer struct {
	client   *openai.Client
	model    string
	provider string
	usage    UsageRecorder
	logger   *zap.Logger
}

// CompleterConfig holds the completion provider settings.
type CompleterConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	Usage    UsageRecorder // optional
	Logger   *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Completer{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: cfg.Provider,
		usage:    cfg.Usage,
		logger:   cfg.Logger,
	}
}

// Complete implements domain.Completer. Transient provider failures (rate
// limits, overload) are retried with exponential backoff up to
// completionMaxAttempts; non-transient failures return immediately.
func (c *Completer) Complete(ctx context.Context, prompt string, cfg domain.CompletionConfig) (string, error) {
	var lastErr error

	for attempt := 0; attempt < completionMaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.CompletionRetriesTotal.WithLabelValues(c.provider, c.model).Inc()

			backoff := completionBackoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("completion retry wait: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		text, err := c.complete(ctx, prompt, cfg)
		if err == nil {
			metrics.CompletionRequestsTotal.WithLabelValues(c.provider, c.model, "success").Inc()
			return text, nil
		}

		lastErr = err
		if !errors.Is(err, domain.ErrRateLimited) {
			break
		}

		if c.logger != nil {
			c.logger.Warn("completion rate limited, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}
	}

	metrics.CompletionRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()

	return "", lastErr
}

func (c *Completer) complete(ctx context.Context, prompt string, cfg domain.CompletionConfig) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", parseCompletionError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrCompletionProvider)
	}

	recordUsage(ctx, c.usage, usageKindCompletion, int64(resp.Usage.TotalTokens), c.logger)

	text := resp.Choices[0].Message.Content
	if marker := scanErrorMarkers(text); marker != "" {
		if marker == "RATE_LIMIT_EXCEEDED" || marker == "OVERLOADED" {
			return "", fmt.Errorf("provider returned %s: %w", marker, domain.ErrRateLimited)
		}
		return "", fmt.Errorf("provider returned %s: %w", marker, domain.ErrCompletionProvider)
	}

	return text, nil
}

// scanErrorMarkers checks a completion body for known provider failure
// markers. Only short responses are scanned: a real answer that merely
// mentions a marker should not be treated as a failure.
func scanErrorMarkers(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 256 {
		return ""
	}
	for _, marker := range providerErrorMarkers {
		if strings.Contains(trimmed, marker) {
			return marker
		}
	}
	return ""
}

func parseCompletionError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("completion API error %d: %s: %w",
				apiErr.HTTPStatusCode, apiErr.Message, domain.ErrRateLimited)
		}
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrCompletionProvider)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), domain.ErrCompletionProvider)
	}

	return fmt.Errorf("completion request failed: %w", domain.ErrCompletionProvider)
}
