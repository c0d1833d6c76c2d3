// Package usage reports provider token consumption per period.
package usage

import (
	"context"
	"fmt"
	"time"
)

// Period selects the reporting window.
type Period string

// Supported reporting periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Token consumer kinds tracked by the store.
const (
	KindEmbedding  = "embedding"
	KindCompletion = "completion"
)

// reader is the slice of the usage store this service needs.
type reader interface {
	DailyUsed(ctx context.Context, kind string, at time.Time) (int64, error)
	MonthlyUsed(ctx context.Context, kind string, at time.Time) (int64, error)
}

// Report is the token consumption for one period.
type Report struct {
	Period           Period    `json:"period"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	EmbeddingTokens  int64     `json:"embeddingTokens"`
	CompletionTokens int64     `json:"completionTokens"`
	TotalTokens      int64     `json:"totalTokens"`
}

// Service builds usage reports.
type Service struct {
	store reader
	now   func() time.Time
}

// New creates a Service. clock may be nil for wall-clock time.
func New(store reader, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, now: clock}
}

// GetReport returns token consumption for the given period.
func (s *Service) GetReport(ctx context.Context, period Period) (Report, error) {
	now := s.now().UTC()

	var (
		start, end time.Time
		used       func(ctx context.Context, kind string) (int64, error)
	)
	switch period {
	case PeriodDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		used = func(ctx context.Context, kind string) (int64, error) {
			return s.store.DailyUsed(ctx, kind, now)
		}
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		used = func(ctx context.Context, kind string) (int64, error) {
			return s.store.MonthlyUsed(ctx, kind, now)
		}
	default:
		return Report{}, fmt.Errorf("unknown usage period %q", period)
	}

	embedding, err := used(ctx, KindEmbedding)
	if err != nil {
		return Report{}, fmt.Errorf("usage report: %w", err)
	}
	completion, err := used(ctx, KindCompletion)
	if err != nil {
		return Report{}, fmt.Errorf("usage report: %w", err)
	}

	return Report{
		Period:           period,
		Start:            start,
		End:              end,
		EmbeddingTokens:  embedding,
		CompletionTokens: completion,
		TotalTokens:      embedding + completion,
	}, nil
}
