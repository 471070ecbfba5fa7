package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisLock(rdb), mr
}

func TestRedisLock_SingleFlight(t *testing.T) {
	l, mr := setupLock(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "sync-lock", "worker-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "sync-lock", "worker-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// a non-owner release leaves the lock in place
	require.NoError(t, l.Release(ctx, "sync-lock", "worker-b"))
	assert.True(t, mr.Exists("sync-lock"))

	require.NoError(t, l.Release(ctx, "sync-lock", "worker-a"))
	assert.False(t, mr.Exists("sync-lock"))

	ok, err = l.Acquire(ctx, "sync-lock", "worker-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Expires(t *testing.T) {
	l, mr := setupLock(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "sync-lock", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = l.Acquire(ctx, "sync-lock", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
