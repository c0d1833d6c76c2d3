// Package prepcache caches query-preprocessing results in the key-value
// store keyed by (query, user). A hit skips the LLM call entirely.
package prepcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finquery/internal/db"
	"github.com/kailas-cloud/finquery/internal/domain"
)

const cacheKeyPrefix = "finquery:prep_cache:"

// store is the consumer interface for the preprocess cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores preprocess results as JSON with a TTL.
type Cache struct {
	store  store
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a preprocess result cache.
func New(s store, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{store: s, ttl: ttl, logger: logger}
}

// Get returns a cached result for (query, userID), false on miss. Cache
// failures and corrupt entries count as misses.
func (c *Cache) Get(ctx context.Context, query, userID string) (domain.PreprocessResult, bool) {
	key := cacheKey(query, userID)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached preprocess result", zap.String("key", key), zap.Error(err))
		}
		return domain.PreprocessResult{}, false
	}

	var result domain.PreprocessResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Failed to parse cached preprocess result", zap.String("key", key), zap.Error(err))
		return domain.PreprocessResult{}, false
	}

	return result, true
}

// Set stores a result. Failures are logged, never surfaced.
func (c *Cache) Set(ctx context.Context, query, userID string, result domain.PreprocessResult) {
	key := cacheKey(query, userID)

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Failed to encode preprocess result", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache preprocess result", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(query, userID string) string {
	h := sha256.Sum256([]byte(query + "|" + userID))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}
