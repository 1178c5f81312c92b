package lock

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	client := newRedisTestClient(t)
	lockerContract(t, func(t *testing.T) Locker {
		return NewRedisLocker(client, "bookshare:test:"+uuid.NewString())
	})
}

func TestRedisLockerHoldExpires(t *testing.T) {
	client := newRedisTestClient(t)
	ctx := context.Background()
	l := NewRedisLocker(client, "bookshare:test:"+uuid.NewString())

	_, err := l.TryLock(ctx, "res-1", 0, 100*time.Millisecond)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "res-1", 0, time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	next, err := l.TryLock(ctx, "res-1", time.Second, time.Second)
	require.NoError(t, err)
	require.NoError(t, next.Unlock(ctx))
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   15,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at TEST_REDIS_ADDR=%s: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
