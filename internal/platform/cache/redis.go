package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// RedisStore backs the volatile cache with a shared Redis instance.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

// Get returns the cached bytes for key, if present.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && s.logger != nil {
			s.logger.Warn("cache get", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	return payload, true
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("cache set", slog.String("key", key), slog.Any("error", err))
	}
}

// Invalidate drops a single key.
func (s *RedisStore) Invalidate(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil && err != redis.Nil && s.logger != nil {
		s.logger.Warn("cache invalidate", slog.String("key", key), slog.Any("error", err))
	}
}

// InvalidatePattern drops every key matching pattern using cursor-based SCAN
// so large keyspaces are never blocked on a single KEYS call.
func (s *RedisStore) InvalidatePattern(ctx context.Context, pattern string) {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("cache scan", slog.String("pattern", pattern), slog.Any("error", err))
			}
			return
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil && s.logger != nil {
				s.logger.Warn("cache pattern delete", slog.String("pattern", pattern), slog.Any("error", err))
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
