package search

import (
	"context"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
)

// Repository is the consumer interface for the retrieval store (ISP).
type Repository interface {
	HybridSearch(ctx context.Context, p searchstore.HybridParams) ([]domain.Result, error)
	LegacySearch(ctx context.Context, p searchstore.LegacyParams) ([]domain.Result, error)
	ReceiptsByDateRange(ctx context.Context, q searchstore.ReceiptQuery) ([]domain.Result, error)
	ReceiptIDsInRange(ctx context.Context, id request.Identity, dr filter.DateRange) ([]string, error)
	LineItemSearch(ctx context.Context, q searchstore.LineItemQuery) ([]domain.Result, error)
	FinancialAggregates(ctx context.Context, id request.Identity, dr filter.DateRange) (searchstore.Aggregates, error)
	CategoryBreakdown(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.CategorySpend, error)
	MonthlyTrend(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.TrendPoint, error)
	MerchantStats(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.MerchantSpend, error)
	Anomalies(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.AnomalousReceipt, error)
	TimePatterns(ctx context.Context, id request.Identity, dr filter.DateRange) ([]searchstore.WeekdaySpend, error)
}

// Outcome is the router's answer: the candidate set plus how it was found.
type Outcome struct {
	Results        []domain.Result
	SearchMethod   string
	IsFallback     bool
	FallbacksTried []string
	// Note carries a user-facing caveat, e.g. when semantic ranking was
	// unavailable for fresh uploads.
	Note string
	// OriginalRange and ExpandedRange are set when a fallback widened the
	// requested date window.
	OriginalRange *filter.DateRange
	ExpandedRange *filter.DateRange
}

// Search method names recorded in outcome metadata.
const (
	MethodDateFilter        = "date_filter_only"
	MethodHybridTemporal    = "hybrid_temporal_semantic"
	MethodEnhancedHybrid    = "enhanced_hybrid_search"
	MethodLegacyUnified     = "unified_search"
	MethodLineItem          = "line_item_search"
	MethodFinancialAnalysis = "financial_analysis"
)
