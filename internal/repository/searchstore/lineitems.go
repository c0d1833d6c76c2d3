package searchstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
)

// LineItemQuery parameterizes the dedicated product-level search.
type LineItemQuery struct {
	Embedding           []float32
	QueryText           string
	Identity            request.Identity
	AmountRange         *filter.AmountRange
	SimilarityThreshold float64
	Limit               int
}

// LineItemSearch finds individual products across receipts by combining
// vector similarity with a name match. A name hit counts even when the
// vector signal is weak: people search products by the word on the receipt.
func (r *Repo) LineItemSearch(ctx context.Context, q LineItemQuery) ([]domain.Result, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT li.id, li.receipt_id, li.name, li.description, li.amount, li.currency,
       1 - (li.embedding <=> $1) AS similarity, r.merchant, r.receipt_date
FROM line_items li
JOIN receipts r ON r.id = li.receipt_id
WHERE r.user_id = $2
  AND (li.name ILIKE '%' || $3 || '%' OR 1 - (li.embedding <=> $1) >= $4)`)

	args := []any{
		pgvector.NewVector(q.Embedding),
		q.Identity.UserID,
		q.QueryText,
		q.SimilarityThreshold,
	}

	if q.Identity.TeamID != "" {
		args = append(args, q.Identity.TeamID)
		fmt.Fprintf(&sb, " AND r.team_id = $%d", len(args))
	}
	if a := q.AmountRange; a != nil {
		if a.Min != nil {
			args = append(args, *a.Min)
			fmt.Fprintf(&sb, " AND li.amount %s $%d", boundOp(">", a.StrictMin), len(args))
		}
		if a.Max != nil {
			args = append(args, *a.Max)
			fmt.Fprintf(&sb, " AND li.amount %s $%d", boundOp("<", a.StrictMax), len(args))
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY similarity DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("line item search: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var (
			id, receiptID, name, description, currency, merchant string
			amount, similarity                                   float64
			receiptDate                                          time.Time
		)
		if err := rows.Scan(
			&id, &receiptID, &name, &description, &amount, &currency,
			&similarity, &merchant, &receiptDate,
		); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}

		res := domain.Result{
			ID:          id,
			SourceType:  domain.SourceLineItem,
			SourceID:    id,
			ContentType: "product",
			Title:       name,
			Description: description,
			Similarity:  similarity,
			Metadata: map[string]any{
				"receiptId": receiptID,
				"merchant":  merchant,
				"amount":    amount,
				"currency":  currency,
				"date":      receiptDate.Format("2006-01-02"),
			},
			CreatedAt: receiptDate,
		}
		res.ClampSimilarity()
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}

	return results, nil
}
