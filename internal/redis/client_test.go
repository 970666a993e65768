package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewClientFromRedis(rdb)
}

func TestHostTenantCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss on empty cache", func(t *testing.T) {
		_, client := setupTestRedis(t)

		id, ok, err := client.GetHostTenant(ctx, "acme.projectmeats.app")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, uuid.Nil, id)
	})

	t.Run("set then get is case insensitive", func(t *testing.T) {
		_, client := setupTestRedis(t)
		tenantID := uuid.New()

		require.NoError(t, client.SetHostTenant(ctx, "ACME.projectmeats.app", tenantID, time.Minute))

		id, ok, err := client.GetHostTenant(ctx, "acme.projectmeats.app")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, tenantID, id)
	})

	t.Run("entries expire", func(t *testing.T) {
		mr, client := setupTestRedis(t)
		tenantID := uuid.New()

		require.NoError(t, client.SetHostTenant(ctx, "acme.projectmeats.app", tenantID, time.Minute))
		mr.FastForward(2 * time.Minute)

		_, ok, err := client.GetHostTenant(ctx, "acme.projectmeats.app")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalidate tenant drops all of its hosts only", func(t *testing.T) {
		_, client := setupTestRedis(t)
		acme, globex := uuid.New(), uuid.New()

		require.NoError(t, client.SetHostTenant(ctx, "acme.projectmeats.app", acme, time.Minute))
		require.NoError(t, client.SetHostTenant(ctx, "orders.acme.com", acme, time.Minute))
		require.NoError(t, client.SetHostTenant(ctx, "globex.projectmeats.app", globex, time.Minute))

		require.NoError(t, client.InvalidateTenant(ctx, acme))

		_, ok, err := client.GetHostTenant(ctx, "acme.projectmeats.app")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = client.GetHostTenant(ctx, "orders.acme.com")
		require.NoError(t, err)
		assert.False(t, ok)

		id, ok, err := client.GetHostTenant(ctx, "globex.projectmeats.app")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, globex, id)
	})

	t.Run("corrupt entry is a miss", func(t *testing.T) {
		mr, client := setupTestRedis(t)
		require.NoError(t, mr.Set(HostTenantKeyPrefix+"acme.projectmeats.app", "not-a-uuid"))

		_, ok, err := client.GetHostTenant(ctx, "acme.projectmeats.app")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, mr.Exists(HostTenantKeyPrefix+"acme.projectmeats.app"))
	})
}
