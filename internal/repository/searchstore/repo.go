// Package searchstore implements the retrieval repositories over Postgres.
// Hybrid scoring lives in stored procedures; this package owns the calls,
// the direct entity reads, and the row-to-domain mapping.
package searchstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/finquery/internal/domain"
)

// querier is the consumer interface for pgx query operations (ISP).
// Satisfied by *pgxpool.Pool and by pgxmock in tests.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo implements the retrieval repositories against Postgres.
type Repo struct {
	db querier
}

// New creates a search repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

// HybridParams carries the full parameter set of the enhanced_hybrid_search
// stored procedure. Nil pointers and empty slices become SQL NULLs so the
// procedure applies its own defaults.
type HybridParams struct {
	Embedding           []float32
	QueryText           string
	SourceTypes         []domain.SourceType
	ContentTypes        []string
	SimilarityThreshold float64
	TrigramThreshold    float64
	SemanticWeight      float64
	KeywordWeight       float64
	TrigramWeight       float64
	MatchCount          int
	UserID              string
	TeamID              string
	AmountMin           *float64
	AmountMax           *float64
	DateStart           *time.Time
	DateEnd             *time.Time
	ReceiptIDs          []string
}

const hybridSearchSQL = `
SELECT id, source_id, source_type, content_type, title, description,
       combined_score, metadata, created_at
FROM enhanced_hybrid_search(
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
)`

// HybridSearch runs the enhanced hybrid (semantic + keyword + trigram)
// stored procedure and maps scored rows into domain results.
func (r *Repo) HybridSearch(ctx context.Context, p HybridParams) ([]domain.Result, error) {
	rows, err := r.db.Query(ctx, hybridSearchSQL,
		pgvector.NewVector(p.Embedding),
		p.QueryText,
		sourceTypeStrings(p.SourceTypes),
		nullableSlice(p.ContentTypes),
		p.SimilarityThreshold,
		p.TrigramThreshold,
		p.SemanticWeight,
		p.KeywordWeight,
		p.TrigramWeight,
		p.MatchCount,
		p.UserID,
		nullableString(p.TeamID),
		p.AmountMin,
		p.AmountMax,
		p.DateStart,
		p.DateEnd,
		nullableSlice(p.ReceiptIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("enhanced_hybrid_search: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	return scanScoredRows(rows)
}

// LegacyParams carries the reduced parameter set of the single-signal
// unified_search procedure used as the last-resort retrieval path.
type LegacyParams struct {
	Embedding           []float32
	SourceTypes         []domain.SourceType
	SimilarityThreshold float64
	MatchCount          int
	UserID              string
}

const legacySearchSQL = `
SELECT id, source_id, source_type, content_type, title, description,
       similarity, metadata, created_at
FROM unified_search($1, $2, $3, $4, $5)`

// LegacySearch runs the legacy semantic-only stored procedure.
func (r *Repo) LegacySearch(ctx context.Context, p LegacyParams) ([]domain.Result, error) {
	rows, err := r.db.Query(ctx, legacySearchSQL,
		pgvector.NewVector(p.Embedding),
		sourceTypeStrings(p.SourceTypes),
		p.SimilarityThreshold,
		p.MatchCount,
		p.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("unified_search: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	return scanScoredRows(rows)
}

func sourceTypeStrings(types []domain.SourceType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func nullableSlice(s []string) any {
	if len(s) == 0 {
		return nil
	}
	return s
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
