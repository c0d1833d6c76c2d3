// Package usagestore tracks provider token consumption in Redis.
// Counters roll up per day and per month and expire on their own.
package usagestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/finquery/internal/db"
)

// Key layouts. Kind is the consumer ("embedding", "completion").
const (
	dailyKeyLayout   = "2006-01-02"
	monthlyKeyLayout = "2006-01"
)

// store is the consumer interface for counter operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store implements token accounting on top of Redis (INCRBY + GET with TTL).
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a usage store.
// dailyTTL is the TTL for daily keys (recommended: 48h).
// monthTTL is the TTL for monthly keys (recommended: 62 days).
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{
		store:    s,
		dailyTTL: dailyTTL,
		monthTTL: monthTTL,
	}
}

// Record adds tokens to the daily and monthly counters for kind.
func (s *Store) Record(ctx context.Context, kind string, at time.Time, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	for _, key := range []string{dailyKey(kind, at), monthlyKey(kind, at)} {
		if err := s.incr(ctx, key, tokens); err != nil {
			return err
		}
	}
	return nil
}

// DailyUsed returns tokens consumed by kind on the given day.
func (s *Store) DailyUsed(ctx context.Context, kind string, at time.Time) (int64, error) {
	return s.get(ctx, dailyKey(kind, at))
}

// MonthlyUsed returns tokens consumed by kind in the given month.
func (s *Store) MonthlyUsed(ctx context.Context, kind string, at time.Time) (int64, error) {
	return s.get(ctx, monthlyKey(kind, at))
}

func (s *Store) incr(ctx context.Context, key string, val int64) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("usage INCRBY %s: %w", key, err)
	}

	// Set TTL only if the key has no expiry yet (NX, not reset on repeat).
	if err := s.store.Expire(ctx, key, s.ttlForKey(key), true); err != nil {
		return fmt.Errorf("usage EXPIRE %s: %w", key, err)
	}
	return nil
}

// get returns the counter value, 0 when the key does not exist.
func (s *Store) get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("usage GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage GET %s parse: %w", key, err)
	}
	return val, nil
}

func (s *Store) ttlForKey(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}

func dailyKey(kind string, at time.Time) string {
	return fmt.Sprintf("finquery:tokens:%s:daily:%s", kind, at.UTC().Format(dailyKeyLayout))
}

func monthlyKey(kind string, at time.Time) string {
	return fmt.Sprintf("finquery:tokens:%s:monthly:%s", kind, at.UTC().Format(monthlyKeyLayout))
}
