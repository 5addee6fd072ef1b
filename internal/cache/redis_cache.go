package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore stores values as plain Redis strings. A zero ttl keeps keys
// until they are overwritten.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) Store {
	return &redisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("Failed to read key from redis", "key", key, "error", err)
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, true, nil
}

func (r *redisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to write key to redis", "key", key, "error", err)
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	r.logger.Debug("Stored key in redis", "key", key, "bytes", len(value))
	return nil
}
