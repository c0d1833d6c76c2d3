package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/temporal"
	"github.com/kailas-cloud/finquery/internal/usecase/classify"
)

// searchLineItems runs the dedicated product-level search.
func (s *Service) searchLineItems(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
	embedding []float32,
) (Outcome, error) {
	simThreshold, _ := s.thresholds(req, parsed)

	results, err := s.repo.LineItemSearch(ctx, searchstore.LineItemQuery{
		Embedding:           embedding,
		QueryText:           req.Query(),
		Identity:            id,
		AmountRange:         amountBounds(req, parsed),
		SimilarityThreshold: simThreshold,
		Limit:               req.Limit() + req.Offset(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("line item search: %w", err)
	}

	return Outcome{
		Results:      limitResults(domain.Dedupe(results), req.Offset(), req.Limit()),
		SearchMethod: MethodLineItem,
	}, nil
}

// searchFinancialAnalysis answers aggregation-style questions with the
// dedicated store aggregates, each bucket wrapped into the common result
// shape for uniform downstream handling.
func (s *Service) searchFinancialAnalysis(
	ctx context.Context,
	req request.Request,
	id request.Identity,
	parsed temporal.ParsedQuery,
) (Outcome, error) {
	dr := s.analysisRange(req, parsed)
	kind := s.preRouter.AnalysisKind(req.Query())

	var (
		results []domain.Result
		err     error
	)
	switch kind {
	case classify.AnalysisCategoryBreakdown:
		results, err = s.categoryBreakdown(ctx, id, dr)
	case classify.AnalysisMonthlyTrend:
		results, err = s.monthlyTrend(ctx, id, dr)
	case classify.AnalysisMerchantStats:
		results, err = s.merchantStats(ctx, id, dr)
	case classify.AnalysisAnomalies:
		results, err = s.anomalies(ctx, id, dr)
	case classify.AnalysisTimePatterns:
		results, err = s.timePatterns(ctx, id, dr)
	default:
		results, err = s.spendSummary(ctx, id, dr)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("financial analysis %s: %w", kind, err)
	}

	return Outcome{
		Results:      results,
		SearchMethod: MethodFinancialAnalysis,
	}, nil
}

// analysisResult wraps one aggregation bucket. rank is encoded into the
// similarity so downstream similarity ordering preserves the aggregation
// order.
func (s *Service) analysisResult(rank int, sourceID, title, description string, meta map[string]any) domain.Result {
	return domain.Result{
		ID:          uuid.NewString(),
		SourceType:  domain.SourceFinancialAnalysis,
		SourceID:    sourceID,
		ContentType: "analysis",
		Title:       title,
		Description: description,
		Similarity:  1.0 - float64(rank)*0.001,
		Metadata:    meta,
		CreatedAt:   s.now().UTC(),
	}
}

func (s *Service) spendSummary(ctx context.Context, id request.Identity, dr filter.DateRange) ([]domain.Result, error) {
	agg, err := s.repo.FinancialAggregates(ctx, id, dr)
	if err != nil {
		return nil, err
	}
	r := s.analysisResult(0, "aggregates", "Spending summary",
		fmt.Sprintf("%d documents from %s to %s",
			agg.Count, dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02")),
		map[string]any{
			"total":     agg.Total,
			"average":   agg.Average,
			"count":     agg.Count,
			"rangeFrom": dr.Start.Format("2006-01-02"),
			"rangeTo":   dr.End.Format("2006-01-02"),
		})
	return []domain.Result{r}, nil
}

func (s *Service) categoryBreakdown(ctx context.Context, id request.Identity, dr filter.DateRange) ([]domain.Result, error) {
	buckets, err := s.repo.CategoryBreakdown(ctx, id, dr)
	if err != nil {
		return nil, err
	}
	results := make([]domain.Result, 0, len(buckets))
	for i, b := range buckets {
		results = append(results, s.analysisResult(i,
			"category:"+b.Category, b.Category,
			fmt.Sprintf("%d receipts totalling %.2f", b.Count, b.Total),
			map[string]any{
				"analysis": string(classify.AnalysisCategoryBreakdown),
				"category": b.Category,
				"total":    b.Total,
				"count":    b.Count,
			}))
	}
	return results, nil
}

func (s *Service) monthlyTrend(ctx context.Context, id request.Identity, dr filter.DateRange) ([]domain.Result, error) {
	points, err := s.repo.MonthlyTrend(ctx, id, dr)
	if err != nil {
		return nil, err
	}
	results := make([]domain.Result, 0, len(points))
	for i, p := range points {
		month := p.Month.Format("2006-01")
		results = append(results, s.analysisResult(i,
			"month:"+month, month,
			fmt.Sprintf("%d receipts totalling %.2f", p.Count, p.Total),
			map[string]any{
				"analysis": string(classify.AnalysisMonthlyTrend),
				"month":    month,
				"total":    p.Total,
				"count":    p.Count,
			}))
	}
	return results, nil
}

func (s *Service) merchantStats(ctx context.Context, id request.Identity, dr filter.DateRange) ([]domain.Result, error) {
	stats, err := s.repo.MerchantStats(ctx, id, dr)
	if err != nil {
		return nil, err
	}
	results := make([]domain.Result, 0, len(stats))
	for i, m := range stats {
		results = append(results, s.analysisResult(i,
			"merchant:"+m.Merchant, m.Merchant,
			fmt.Sprintf("%d visits totalling %.2f, averaging %.2f", m.Count, m.Total, m.Average),
			map[string]any{
				"analysis": string(classify.AnalysisMerchantStats),
				"merchant": m.Merchant,
				"total":    m.Total,
				"average":  m.Average,
				"count":    m.Count,
			}))
	}
	return results, nil
}

func (s *Service) anomalies(ctx context.Context, id request.Identity, dr filter.DateRange) ([]domain.Result, error) {
	hits, err := s.repo.Anomalies(ctx, id, dr)
	if err != nil {
		return nil, err
	}
	results := make([]domain.Result, 0, len(hits))
	for i, a := range hits {
		results = append(results, s.analysisResult(i,
			a.ID, a.Merchant,
			fmt.Sprintf("unusually large: %.2f on %s", a.Total, a.Date.Format("2006-01-02")),
			map[string]any{
				"analysis":  string(classify.AnalysisAnomalies),
				"receiptId": a.ID,
				"merchant":  a.Merchant,
				"total":     a.Total,
				"date":      a.Date.Format("2006-01-02"),
			}))
	}
	return results, nil
}

func (s *Service) timePatterns(ctx context.Context, id request.Identity, dr filter.DateRange) ([]domain.Result, error) {
	buckets, err := s.repo.TimePatterns(ctx, id, dr)
	if err != nil {
		return nil, err
	}
	results := make([]domain.Result, 0, len(buckets))
	for i, w := range buckets {
		// ISO weekday 7 is Sunday, time.Weekday 0 is Sunday.
		day := time.Weekday(w.Weekday % 7).String()
		results = append(results, s.analysisResult(i,
			"weekday:"+day, day,
			fmt.Sprintf("%d receipts totalling %.2f", w.Count, w.Total),
			map[string]any{
				"analysis": string(classify.AnalysisTimePatterns),
				"weekday":  day,
				"total":    w.Total,
				"count":    w.Count,
			}))
	}
	return results, nil
}

// analysisRange defaults aggregation windows to the last three months when
// the query names none: trends need room.
func (s *Service) analysisRange(req request.Request, parsed temporal.ParsedQuery) filter.DateRange {
	if dr := req.Filters().DateRange(); dr != nil {
		return *dr
	}
	if parsed.DateRange != nil {
		return *parsed.DateRange
	}
	now := s.now().UTC()
	return filter.NewDateRange(now.AddDate(0, -3, 0), now)
}
