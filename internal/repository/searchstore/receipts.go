package searchstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
)

// maxIDsInRange caps the candidate ID resolution for hybrid routing. Larger
// windows fall back to pure date filtering upstream.
const maxIDsInRange = 500

// ReceiptQuery parameterizes a direct date-range read of receipts.
type ReceiptQuery struct {
	Identity    request.Identity
	DateRange   filter.DateRange
	AmountRange *filter.AmountRange
	Limit       int
}

// ReceiptsByDateRange reads receipts in a date window, newest first.
// Rows carry similarity 1.0: a date match is an exact match, not a guess.
func (r *Repo) ReceiptsByDateRange(ctx context.Context, q ReceiptQuery) ([]domain.Result, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT id, merchant, total, currency, receipt_date, payment_method, metadata
FROM receipts
WHERE user_id = $1 AND receipt_date >= $2 AND receipt_date <= $3`)

	args := []any{q.Identity.UserID, q.DateRange.Start, q.DateRange.End}

	if q.Identity.TeamID != "" {
		args = append(args, q.Identity.TeamID)
		fmt.Fprintf(&sb, " AND team_id = $%d", len(args))
	}
	if a := q.AmountRange; a != nil {
		if a.Min != nil {
			args = append(args, *a.Min)
			fmt.Fprintf(&sb, " AND total %s $%d", boundOp(">", a.StrictMin), len(args))
		}
		if a.Max != nil {
			args = append(args, *a.Max)
			fmt.Fprintf(&sb, " AND total %s $%d", boundOp("<", a.StrictMax), len(args))
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY receipt_date DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("receipts by date range: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var (
			id, merchant, currency, payment string
			total                           float64
			receiptDate                     time.Time
			metaRaw                         []byte
		)
		if err := rows.Scan(&id, &merchant, &total, &currency, &receiptDate, &payment, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan receipt row: %w", err)
		}

		meta := parseMetadata(metaRaw)
		meta["merchant"] = merchant
		meta["total"] = total
		meta["currency"] = currency
		meta["paymentMethod"] = payment
		meta["date"] = receiptDate.Format("2006-01-02")

		results = append(results, domain.Result{
			ID:          id,
			SourceType:  domain.SourceReceipt,
			SourceID:    id,
			ContentType: "full_text",
			Title:       merchant,
			Description: fmt.Sprintf("%s %.2f on %s", currency, total, receiptDate.Format("2006-01-02")),
			Similarity:  1.0,
			Metadata:    meta,
			CreatedAt:   receiptDate,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt rows: %w", err)
	}

	return results, nil
}

// ReceiptIDsInRange resolves the receipt IDs inside a date window for the
// hybrid route's candidate set.
func (r *Repo) ReceiptIDsInRange(ctx context.Context, id request.Identity, dr filter.DateRange) ([]string, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id FROM receipts WHERE user_id = $1 AND receipt_date >= $2 AND receipt_date <= $3`)

	args := []any{id.UserID, dr.Start, dr.End}
	if id.TeamID != "" {
		args = append(args, id.TeamID)
		fmt.Fprintf(&sb, " AND team_id = $%d", len(args))
	}
	args = append(args, maxIDsInRange)
	fmt.Fprintf(&sb, " ORDER BY receipt_date DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("receipt ids in range: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, fmt.Errorf("scan receipt id: %w", err)
		}
		ids = append(ids, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt ids: %w", err)
	}

	return ids, nil
}

// ReceiptDetail is the hydration payload merged into top results.
type ReceiptDetail struct {
	Merchant string
	Total    float64
	Currency string
	Date     time.Time
}

const receiptDetailsSQL = `
SELECT id, merchant, total, currency, receipt_date
FROM receipts
WHERE id = ANY($1)`

// ReceiptDetails fetches detail rows for a batch of receipt IDs.
func (r *Repo) ReceiptDetails(ctx context.Context, ids []string) (map[string]ReceiptDetail, error) {
	if len(ids) == 0 {
		return map[string]ReceiptDetail{}, nil
	}

	rows, err := r.db.Query(ctx, receiptDetailsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("receipt details: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	details := make(map[string]ReceiptDetail, len(ids))
	for rows.Next() {
		var (
			id string
			d  ReceiptDetail
		)
		if err := rows.Scan(&id, &d.Merchant, &d.Total, &d.Currency, &d.Date); err != nil {
			return nil, fmt.Errorf("scan receipt detail: %w", err)
		}
		details[id] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt details: %w", err)
	}

	return details, nil
}

// Aggregates summarizes spend over a window for financial-analysis queries.
type Aggregates struct {
	Total   float64
	Average float64
	Count   int64
}

// FinancialAggregates computes spend totals over a date window.
func (r *Repo) FinancialAggregates(ctx context.Context, id request.Identity, dr filter.DateRange) (Aggregates, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT COALESCE(SUM(total), 0), COALESCE(AVG(total), 0), COUNT(*)
FROM receipts
WHERE user_id = $1 AND receipt_date >= $2 AND receipt_date <= $3`)

	args := []any{id.UserID, dr.Start, dr.End}
	if id.TeamID != "" {
		args = append(args, id.TeamID)
		fmt.Fprintf(&sb, " AND team_id = $%d", len(args))
	}

	var agg Aggregates
	row := r.db.QueryRow(ctx, sb.String(), args...)
	if err := row.Scan(&agg.Total, &agg.Average, &agg.Count); err != nil {
		return Aggregates{}, fmt.Errorf("financial aggregates: %w: %v", domain.ErrRetrieval, err)
	}

	return agg, nil
}

// MonthCount is one bucket of the document availability histogram.
type MonthCount struct {
	Month time.Time
	Count int64
}

const dateHistogramSQL = `
SELECT date_trunc('month', receipt_date)::date AS month, COUNT(*)
FROM receipts
WHERE user_id = $1
GROUP BY 1
ORDER BY 1 DESC
LIMIT $2`

// DateHistogram returns monthly document counts, newest month first. Used
// for smart date suggestions when a date filter finds nothing.
func (r *Repo) DateHistogram(ctx context.Context, id request.Identity, months int) ([]MonthCount, error) {
	if months <= 0 {
		months = 12
	}

	rows, err := r.db.Query(ctx, dateHistogramSQL, id.UserID, months)
	if err != nil {
		return nil, fmt.Errorf("date histogram: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var buckets []MonthCount
	for rows.Next() {
		var b MonthCount
		if err := rows.Scan(&b.Month, &b.Count); err != nil {
			return nil, fmt.Errorf("scan histogram bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate histogram buckets: %w", err)
	}

	return buckets, nil
}

// boundOp picks the strict or inclusive comparison for an amount bound.
func boundOp(strict string, isStrict bool) string {
	if isStrict {
		return strict
	}
	return strict + "="
}
