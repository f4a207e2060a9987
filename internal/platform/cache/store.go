// Package cache implements the volatile result cache shared by the board's
// request handlers. Two interchangeable backends exist: a shared Redis store
// and a bounded in-process map. Callers never observe which backend served a
// given call.
package cache

import (
	"context"
	"time"
)

// TTL tiers in seconds, from frequently-changing auth data up to slow-moving
// reference data.
const (
	TTLShort    = 300 * time.Second
	TTLMedium   = 1800 * time.Second
	TTLLong     = 7200 * time.Second
	TTLVeryLong = 14400 * time.Second
)

// Store memoizes expensive lookups for a bounded time window. Entries must be
// idempotently reproducible from the source of truth; writes are
// last-writer-wins.
type Store interface {
	// Get returns the cached value and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Invalidate drops a single key.
	Invalidate(ctx context.Context, key string)
	// InvalidatePattern drops every key matching a glob-like pattern
	// (e.g. "perms:user:42:*").
	InvalidatePattern(ctx context.Context, pattern string)
}
