package rbac

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/formulafinance/licensehub/pkg/observability"
)

type cachedRole struct {
	role    Role
	hasRole bool
}

// CachedStore fronts a Store with an expiring LRU of role lookups.
// Writes through this instance invalidate the entry immediately; writes made
// elsewhere become visible after the TTL.
type CachedStore struct {
	*Store
	cache   *expirable.LRU[string, cachedRole]
	metrics *observability.Metrics
}

// NewCachedStore creates a role cache of the given size and TTL. metrics may be nil.
func NewCachedStore(store *Store, size int, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	if size <= 0 {
		size = 1024
	}
	return &CachedStore{
		Store:   store,
		cache:   expirable.NewLRU[string, cachedRole](size, nil, ttl),
		metrics: metrics,
	}
}

// GetRole returns the cached role, loading it from the store on a miss
func (c *CachedStore) GetRole(ctx context.Context, identity string) (Role, bool, error) {
	if entry, ok := c.cache.Get(identity); ok {
		if c.metrics != nil {
			c.metrics.RoleCacheHitsTotal.Inc()
		}
		return entry.role, entry.hasRole, nil
	}
	if c.metrics != nil {
		c.metrics.RoleCacheMissesTotal.Inc()
	}

	role, ok, err := c.Store.GetRole(ctx, identity)
	if err != nil {
		return "", false, err
	}
	c.cache.Add(identity, cachedRole{role: role, hasRole: ok})
	return role, ok, nil
}

// SetRole writes through and drops the cached entry
func (c *CachedStore) SetRole(ctx context.Context, identity string, role Role, createdBy string) (*RoleAssignment, error) {
	assignment, err := c.Store.SetRole(ctx, identity, role, createdBy)
	c.cache.Remove(identity)
	return assignment, err
}
