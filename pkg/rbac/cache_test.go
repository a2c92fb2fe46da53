package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/storage/storagetest"
)

func TestCachedStore(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cached := NewCachedStore(NewStore(db), 16, time.Minute, metrics)
	ctx := context.Background()

	_, ok, err := cached.GetRole(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Negative lookups are cached too
	_, ok, err = cached.GetRole(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RoleCacheHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RoleCacheMissesTotal))

	_, err = cached.SetRole(ctx, "user-1", RoleReseller, "admin")
	require.NoError(t, err)

	role, ok, err := cached.GetRole(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RoleReseller, role, "write through invalidates the entry")

	// A write that bypasses the cache is served stale until the TTL expires
	_, err = db.Exec(`UPDATE user_roles SET role = 'superadmin' WHERE user_id = 'user-1'`)
	require.NoError(t, err)
	role, _, err = cached.GetRole(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, RoleReseller, role)
}

func TestCachedStore_Expiry(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	cached := NewCachedStore(NewStore(db), 0, 50*time.Millisecond, nil)
	ctx := context.Background()

	_, ok, err := cached.GetRole(ctx, "user-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewStore(db).SetRole(ctx, "user-2", RoleClientProspect, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		role, ok, err := cached.GetRole(ctx, "user-2")
		return err == nil && ok && role == RoleClientProspect
	}, 2*time.Second, 20*time.Millisecond)
}
