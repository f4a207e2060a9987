package access

import (
	"context"
	"strconv"

	"github.com/nupkan/permhub/internal/platform/cache"
)

// ResolutionCacheKey composes the cache key for one (user, system) pair.
// An unscoped resolution uses the "all" segment.
func ResolutionCacheKey(userID int64, systemID string) string {
	scope := systemID
	if scope == "" {
		scope = "all"
	}
	return "perms:user:" + strconv.FormatInt(userID, 10) + ":" + scope
}

// CacheInvalidator drops every cached resolution for a user.
type CacheInvalidator struct {
	store cache.Store
}

// NewCacheInvalidator constructs a CacheInvalidator.
func NewCacheInvalidator(store cache.Store) CacheInvalidator {
	return CacheInvalidator{store: store}
}

// InvalidateUser removes all scoped and unscoped resolutions for userID.
func (c CacheInvalidator) InvalidateUser(ctx context.Context, userID int64) {
	if c.store == nil {
		return
	}
	c.store.InvalidatePattern(ctx, "perms:user:"+strconv.FormatInt(userID, 10)+":*")
}
