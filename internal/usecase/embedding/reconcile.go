package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/domain"
)

// ReconcilingEmbedder adjusts provider vectors to the store's fixed
// dimensionality. It sits outermost in the decorator chain so that cached
// vectors, stored in provider space, are reconciled on every read too.
type ReconcilingEmbedder struct {
	inner  domain.Embedder
	target int
	logger *zap.Logger
}

// NewReconciling wraps an embedder with dimension reconciliation to
// domain.VectorDimensions.
func NewReconciling(inner domain.Embedder, logger *zap.Logger) *ReconcilingEmbedder {
	return &ReconcilingEmbedder{
		inner:  inner,
		target: domain.VectorDimensions,
		logger: logger,
	}
}

// Embed delegates to the inner embedder and reconciles the vector length.
func (r *ReconcilingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	result, err := r.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	if n := len(result.Embedding); n != r.target {
		r.logger.Debug("Reconciling embedding dimensions",
			zap.Int("provider_dimensions", n),
			zap.Int("target_dimensions", r.target),
		)
	}

	reconciled, err := domain.ReconcileDimensions(result.Embedding, r.target)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("reconcile dimensions: %w", err)
	}
	result.Embedding = reconciled

	return result, nil
}
