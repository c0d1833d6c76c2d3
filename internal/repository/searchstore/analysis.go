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

// merchantStatsLimit and anomalyLimit cap the per-bucket aggregations:
// analysis answers are summaries, not listings.
const (
	merchantStatsLimit = 10
	anomalyLimit       = 10
)

// CategorySpend is one bucket of the per-category breakdown.
type CategorySpend struct {
	Category string
	Total    float64
	Count    int64
}

// TrendPoint is one month of the spend trend.
type TrendPoint struct {
	Month time.Time
	Total float64
	Count int64
}

// MerchantSpend summarizes spend at one merchant.
type MerchantSpend struct {
	Merchant string
	Total    float64
	Average  float64
	Count    int64
}

// AnomalousReceipt is a receipt whose total sits far above the window mean.
type AnomalousReceipt struct {
	ID       string
	Merchant string
	Total    float64
	Date     time.Time
}

// WeekdaySpend is one day-of-week bucket, ISO numbering (1=Monday).
type WeekdaySpend struct {
	Weekday int
	Total   float64
	Count   int64
}

// analysisScope appends the identity and window predicate shared by the
// aggregation queries and returns the bound arguments.
func analysisScope(sb *strings.Builder, id request.Identity, dr filter.DateRange) []any {
	sb.WriteString(" WHERE user_id = $1 AND receipt_date >= $2 AND receipt_date <= $3")
	args := []any{id.UserID, dr.Start, dr.End}
	if id.TeamID != "" {
		args = append(args, id.TeamID)
		fmt.Fprintf(sb, " AND team_id = $%d", len(args))
	}
	return args
}

// CategoryBreakdown sums spend per category over a window, biggest first.
func (r *Repo) CategoryBreakdown(ctx context.Context, id request.Identity, dr filter.DateRange) ([]CategorySpend, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT COALESCE(NULLIF(category, ''), 'uncategorized'),
       COALESCE(SUM(total), 0), COUNT(*)
FROM receipts`)
	args := analysisScope(&sb, id, dr)
	sb.WriteString(" GROUP BY 1 ORDER BY 2 DESC")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var out []CategorySpend
	for rows.Next() {
		var c CategorySpend
		if err := rows.Scan(&c.Category, &c.Total, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category bucket: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category buckets: %w", err)
	}
	return out, nil
}

// MonthlyTrend sums spend per calendar month over a window, oldest first.
func (r *Repo) MonthlyTrend(ctx context.Context, id request.Identity, dr filter.DateRange) ([]TrendPoint, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT date_trunc('month', receipt_date)::date AS month,
       COALESCE(SUM(total), 0), COUNT(*)
FROM receipts`)
	args := analysisScope(&sb, id, dr)
	sb.WriteString(" GROUP BY 1 ORDER BY 1")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("monthly trend: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Month, &p.Total, &p.Count); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend points: %w", err)
	}
	return out, nil
}

// MerchantStats sums spend per merchant over a window, biggest first.
func (r *Repo) MerchantStats(ctx context.Context, id request.Identity, dr filter.DateRange) ([]MerchantSpend, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT merchant, COALESCE(SUM(total), 0), COALESCE(AVG(total), 0), COUNT(*)
FROM receipts`)
	args := analysisScope(&sb, id, dr)
	args = append(args, merchantStatsLimit)
	fmt.Fprintf(&sb, " GROUP BY 1 ORDER BY 2 DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("merchant stats: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var out []MerchantSpend
	for rows.Next() {
		var m MerchantSpend
		if err := rows.Scan(&m.Merchant, &m.Total, &m.Average, &m.Count); err != nil {
			return nil, fmt.Errorf("scan merchant bucket: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merchant buckets: %w", err)
	}
	return out, nil
}

// Anomalies finds receipts more than two standard deviations above the
// window mean, biggest first.
func (r *Repo) Anomalies(ctx context.Context, id request.Identity, dr filter.DateRange) ([]AnomalousReceipt, error) {
	var sb strings.Builder
	sb.WriteString(`
WITH scoped AS (
	SELECT id, merchant, total, receipt_date
	FROM receipts`)
	args := analysisScope(&sb, id, dr)
	args = append(args, anomalyLimit)
	fmt.Fprintf(&sb, `
), stats AS (
	SELECT AVG(total) AS mean, COALESCE(STDDEV_POP(total), 0) AS sd FROM scoped
)
SELECT s.id, s.merchant, s.total, s.receipt_date
FROM scoped s, stats
WHERE s.total > stats.mean + 2 * stats.sd
ORDER BY s.total DESC
LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("anomalies: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var out []AnomalousReceipt
	for rows.Next() {
		var a AnomalousReceipt
		if err := rows.Scan(&a.ID, &a.Merchant, &a.Total, &a.Date); err != nil {
			return nil, fmt.Errorf("scan anomaly row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomaly rows: %w", err)
	}
	return out, nil
}

// TimePatterns sums spend per ISO day of week over a window.
func (r *Repo) TimePatterns(ctx context.Context, id request.Identity, dr filter.DateRange) ([]WeekdaySpend, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT EXTRACT(ISODOW FROM receipt_date)::int AS weekday,
       COALESCE(SUM(total), 0), COUNT(*)
FROM receipts`)
	args := analysisScope(&sb, id, dr)
	sb.WriteString(" GROUP BY 1 ORDER BY 1")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("time patterns: %w: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var out []WeekdaySpend
	for rows.Next() {
		var w WeekdaySpend
		if err := rows.Scan(&w.Weekday, &w.Total, &w.Count); err != nil {
			return nil, fmt.Errorf("scan weekday bucket: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekday buckets: %w", err)
	}
	return out, nil
}
