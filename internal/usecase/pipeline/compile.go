package pipeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/finquery/internal/domain"
	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
	"github.com/kailas-cloud/finquery/internal/domain/search/request"
	"github.com/kailas-cloud/finquery/internal/metrics"
	"github.com/kailas-cloud/finquery/internal/repository/searchstore"
	"github.com/kailas-cloud/finquery/internal/usecase/search"
)

const (
	// detailBatchSize caps one detail-hydration query; batches run
	// concurrently within the compile stage.
	detailBatchSize = 50

	// rescueWindowDays is the lookback for the zero-result temporal
	// rescue when the request carried only an amount filter.
	rescueWindowDays = 90

	// histogramMonths and maxSuggestions bound the smart-suggestion scan.
	histogramMonths = 12
	maxSuggestions  = 3
)

// Stage 5: enrich top results with entity detail rows. Batches are fetched
// concurrently; the gathered map is keyed by ID so arrival order cannot
// leak into result order. Hydration is enrichment only, its failure never
// fails the request.
func (s *Service) stageCompile(ctx context.Context, st state) (state, error) {
	ids := make([]string, 0, len(st.results))
	for _, r := range st.results {
		if r.SourceType == domain.SourceReceipt && r.Metadata["merchant"] == nil {
			ids = append(ids, r.SourceID)
		}
	}
	if len(ids) == 0 {
		domain.SortResults(st.results)
		return st, nil
	}

	details, err := s.fetchDetails(ctx, ids)
	if err != nil {
		s.logger.Warn("detail hydration failed, returning bare results", zap.Error(err))
		domain.SortResults(st.results)
		return st, nil
	}

	for i, r := range st.results {
		d, ok := details[r.SourceID]
		if !ok || r.SourceType != domain.SourceReceipt {
			continue
		}
		enriched := r.WithMeta("merchant", d.Merchant)
		enriched = enriched.WithMeta("total", d.Total)
		enriched = enriched.WithMeta("currency", d.Currency)
		enriched = enriched.WithMeta("date", d.Date.Format("2006-01-02"))
		st.results[i] = enriched
	}

	domain.SortResults(st.results)
	return st, nil
}

func (s *Service) fetchDetails(ctx context.Context, ids []string) (map[string]searchstore.ReceiptDetail, error) {
	batches := make([][]string, 0, len(ids)/detailBatchSize+1)
	for len(ids) > 0 {
		n := detailBatchSize
		if n > len(ids) {
			n = len(ids)
		}
		batches = append(batches, ids[:n])
		ids = ids[n:]
	}

	partial := make([]map[string]searchstore.ReceiptDetail, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			m, err := s.store.ReceiptDetails(gctx, batch)
			if err != nil {
				return err
			}
			partial[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]searchstore.ReceiptDetail)
	for _, m := range partial {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged, nil
}

// Stage 6: zero-result rescue and response assembly. An empty set behind a
// date or amount filter gets one direct temporal read before we give up;
// an empty date-filtered run additionally gets alternative ranges to try.
func (s *Service) stageRespond(ctx context.Context, st state) (Output, error) {
	var suggestions []Suggestion

	if len(st.results) == 0 {
		dr, hadDateFilter := s.rescueRange(st)
		if dr != nil {
			if st.meta.SearchMethod != search.MethodDateFilter {
				st = s.temporalRescue(ctx, st, *dr)
			}
			if len(st.results) == 0 && hadDateFilter {
				suggestions = s.dateSuggestions(ctx, st.id, *dr)
			}
		}
	}

	return Output{
		Results:      st.results,
		TotalResults: len(st.results),
		Metadata:     st.meta,
		Suggestions:  suggestions,
	}, nil
}

// rescueRange picks the window for the zero-result rescue: the explicit or
// parsed date filter, or a default lookback when only an amount filter is
// active. The second return reports whether a real date filter was in play.
func (s *Service) rescueRange(st state) (*filter.DateRange, bool) {
	if dr := st.req.Filters().DateRange(); dr != nil {
		return dr, true
	}
	if st.parsed.DateRange != nil {
		return st.parsed.DateRange, true
	}
	if st.req.Filters().HasAmount() || st.parsed.AmountRange != nil {
		end := s.now().UTC()
		dr := filter.NewDateRange(end.AddDate(0, 0, -rescueWindowDays), end)
		return &dr, false
	}
	return nil, false
}

func (s *Service) temporalRescue(ctx context.Context, st state, dr filter.DateRange) state {
	metrics.FallbacksTotal.WithLabelValues("zero_result_temporal").Inc()

	rescued, err := s.store.ReceiptsByDateRange(ctx, searchstore.ReceiptQuery{
		Identity:    st.id,
		DateRange:   dr,
		AmountRange: s.amountBounds(st),
		Limit:       st.req.Limit() + st.req.Offset(),
	})
	if err != nil || len(rescued) == 0 {
		if err != nil {
			s.logger.Warn("zero-result temporal rescue failed", zap.Error(err))
		}
		return st
	}

	st.results = page(rescued, st.req.Offset(), st.req.Limit())
	st.meta.SearchMethod = search.MethodDateFilter
	st.meta.IsFallback = true
	st.meta.FallbacksUsed = append(st.meta.FallbacksUsed, "zero_result_temporal")

	return st
}

func (s *Service) amountBounds(st state) *filter.AmountRange {
	if a := st.req.Filters().AmountRange(); a != nil && !a.IsZero() {
		return a
	}
	return st.parsed.AmountRange
}

// dateSuggestions offers the months with documents nearest the requested
// window, so an empty answer still tells the user where to look.
func (s *Service) dateSuggestions(ctx context.Context, id request.Identity, requested filter.DateRange) []Suggestion {
	histogram, err := s.store.DateHistogram(ctx, id, histogramMonths)
	if err != nil {
		s.logger.Warn("date histogram unavailable, no suggestions", zap.Error(err))
		return nil
	}

	type scored struct {
		mc   searchstore.MonthCount
		dist time.Duration
	}
	candidates := make([]scored, 0, len(histogram))
	for _, mc := range histogram {
		if mc.Count == 0 {
			continue
		}
		dist := requested.Start.Sub(mc.Month)
		if dist < 0 {
			dist = -dist
		}
		candidates = append(candidates, scored{mc: mc, dist: dist})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].mc.Month.After(candidates[j].mc.Month)
	})
	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}

	out := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		month := c.mc.Month
		out = append(out, Suggestion{
			Label: month.Format("January 2006"),
			Range: filter.NewDateRange(month, month.AddDate(0, 1, -1)),
			Count: c.mc.Count,
		})
	}
	return out
}
