package domain

import (
	"context"
	"fmt"
	"math"
)

// VectorDimensions is the pipeline's fixed embedding dimension. Every vector
// that reaches the data store has exactly this many elements.
const VectorDimensions = 1536

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Completer is the shared completion provider contract. The response is free
// text expected to contain a JSON object, possibly wrapped in markdown fences.
type Completer interface {
	Complete(ctx context.Context, prompt string, cfg CompletionConfig) (string, error)
}

// CompletionConfig tunes a single completion call.
type CompletionConfig struct {
	Temperature float32
	MaxTokens   int
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// ReconcileDimensions deterministically maps a provider vector onto the
// pipeline dimension. Downstream cosine comparisons are only meaningful if
// vector magnitude survives the transform, so each branch preserves the norm:
//
//   - provider dim * 2 == target: duplicate the vector
//   - provider dim < target: zero-pad, rescaling by sqrt(target/provider)
//   - provider dim > target: truncate, renormalizing to the original magnitude
func ReconcileDimensions(vec []float32, target int) ([]float32, error) {
	n := len(vec)
	if n == 0 {
		return nil, fmt.Errorf("empty provider vector: %w", ErrEmbeddingProvider)
	}
	if n == target {
		return vec, nil
	}

	if n*2 == target {
		out := make([]float32, target)
		copy(out, vec)
		copy(out[n:], vec)
		// Duplication doubles the squared norm; rescale to preserve magnitude.
		scale := float32(1 / math.Sqrt2)
		for i := range out {
			out[i] *= scale
		}
		return out, nil
	}

	if n < target {
		// Zero-pad, rescaling the non-zero prefix by sqrt(target/provider) so
		// per-component magnitude matches a native target-dimension vector.
		out := make([]float32, target)
		scale := float32(math.Sqrt(float64(target) / float64(n)))
		for i, v := range vec {
			out[i] = v * scale
		}
		return out, nil
	}

	// n > target: truncate, then renormalize so the magnitude matches the input.
	out := make([]float32, target)
	copy(out, vec)
	orig := norm(vec)
	trunc := norm(out)
	if trunc > 0 {
		scale := float32(orig / trunc)
		for i := range out {
			out[i] *= scale
		}
	}
	return out, nil
}

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
