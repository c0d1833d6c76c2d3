package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed request. Rejected before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrAuth signals a missing or invalid identity. No retry, no fallback.
	ErrAuth = errors.New("authentication required")
	// ErrEmbeddingProvider signals an embedding provider failure or timeout.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrCompletionProvider signals a completion provider failure or timeout.
	ErrCompletionProvider = errors.New("completion provider error")
	// ErrRetrieval signals a data-store failure at a router branch.
	ErrRetrieval = errors.New("retrieval error")
	// ErrRerank signals a re-ranking failure. Always recovered locally.
	ErrRerank = errors.New("rerank error")
	// ErrPipelineTimeout signals an exhausted pipeline budget checkpoint.
	ErrPipelineTimeout = errors.New("pipeline budget exhausted")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation creates a field-level validation error.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
