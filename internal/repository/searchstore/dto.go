package searchstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/finquery/internal/domain"
)

// scanScoredRows maps stored-procedure output rows into domain results.
// Both procedures return the same shape; the score column is the seventh.
func scanScoredRows(rows pgx.Rows) ([]domain.Result, error) {
	var results []domain.Result

	for rows.Next() {
		var (
			res       domain.Result
			srcType   string
			score     float64
			metaRaw   []byte
			createdAt time.Time
		)
		if err := rows.Scan(
			&res.ID, &res.SourceID, &srcType, &res.ContentType,
			&res.Title, &res.Description, &score, &metaRaw, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}

		res.SourceType = domain.SourceType(srcType)
		res.Similarity = score
		res.CreatedAt = createdAt
		res.Metadata = parseMetadata(metaRaw)
		res.ClampSimilarity()

		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}

	return results, nil
}

// parseMetadata decodes a jsonb column. Malformed metadata degrades to an
// empty map rather than failing the whole result set.
func parseMetadata(raw []byte) map[string]any {
	meta := make(map[string]any)
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return make(map[string]any)
	}
	return meta
}
