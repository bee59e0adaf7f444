package params

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a read-through cache shared between processes. Redis errors
// are logged and the read falls through to the wrapped store.
type RedisStore struct {
	next   Store
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisStore wraps next with a Redis cache.
func NewRedisStore(next Store, rdb *redis.Client, ttl time.Duration, prefix string, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
		logger: logger.With("component", "redis_store"),
	}
}

// Get returns the cached value or reads through to the wrapped store.
func (s *RedisStore) Get(ctx context.Context, name string) (string, error) {
	key := s.prefix + name

	v, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warn("redis read failed, falling through", "key", key, "err", err)
	}

	v, err = s.next.Get(ctx, name)
	if err != nil {
		return "", err
	}

	if err := s.rdb.Set(ctx, key, v, s.ttl).Err(); err != nil {
		s.logger.Warn("redis write failed", "key", key, "err", err)
	}
	return v, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
