// Package cache puts a Redis read-through cache in front of a catalog source.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"cartflow/pkg/catalog"
	"cartflow/pkg/logger"
)

// DefaultKey is the Redis key holding the cached catalog.
const DefaultKey = "cartflow:catalog"

// Source serves the catalog from Redis, falling back to the wrapped source
// on a miss. Redis failures degrade to the wrapped source and are logged.
type Source struct {
	rdb   redis.Cmdable
	inner catalog.Source
	key   string
	ttl   time.Duration
	log   *logger.Logger
}

// New wraps inner with a cache stored under DefaultKey for ttl.
func New(rdb redis.Cmdable, inner catalog.Source, ttl time.Duration, log *logger.Logger) *Source {
	return &Source{rdb: rdb, inner: inner, key: DefaultKey, ttl: ttl, log: log}
}

// WithKey overrides the cache key.
func (s *Source) WithKey(key string) *Source {
	s.key = key
	return s
}

// Fetch returns cached items when present, otherwise fetches from the inner
// source and populates the cache.
func (s *Source) Fetch(ctx context.Context) ([]catalog.Item, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	switch {
	case err == nil:
		var items []catalog.Item
		if err := json.Unmarshal(raw, &items); err == nil {
			s.log.Debug(ctx, "catalog cache hit", "key", s.key, "items", len(items))
			return items, nil
		}
		s.log.Warn(ctx, "catalog cache entry corrupt", "key", s.key)
	case errors.Is(err, redis.Nil):
		s.log.Debug(ctx, "catalog cache miss", "key", s.key)
	default:
		s.log.Warn(ctx, "catalog cache unavailable", "key", s.key, "error", err)
	}

	items, err := s.inner.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(items); err == nil {
		if err := s.rdb.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
			s.log.Warn(ctx, "catalog cache write failed", "key", s.key, "error", err)
		}
	}
	return items, nil
}

// Invalidate drops the cached catalog.
func (s *Source) Invalidate(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "invalidate catalog cache")
	}
	return nil
}
