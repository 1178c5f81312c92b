package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockerContract(t *testing.T, newLocker func(t *testing.T) Locker) {
	ctx := context.Background()

	t.Run("Exclusive Until Unlock", func(t *testing.T) {
		l := newLocker(t)
		first, err := l.TryLock(ctx, "res-1", 0, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "res-1", first.Key())

		_, err = l.TryLock(ctx, "res-1", 30*time.Millisecond, time.Minute)
		assert.ErrorIs(t, err, ErrNotAcquired)

		// Other keys are independent.
		other, err := l.TryLock(ctx, "res-2", 0, time.Minute)
		require.NoError(t, err)
		require.NoError(t, other.Unlock(ctx))

		require.NoError(t, first.Unlock(ctx))
		second, err := l.TryLock(ctx, "res-1", 0, time.Minute)
		require.NoError(t, err)
		require.NoError(t, second.Unlock(ctx))
	})

	t.Run("Waiter Acquires After Release", func(t *testing.T) {
		l := newLocker(t)
		held, err := l.TryLock(ctx, "res-1", 0, time.Minute)
		require.NoError(t, err)

		go func() {
			time.Sleep(40 * time.Millisecond)
			_ = held.Unlock(ctx)
		}()

		next, err := l.TryLock(ctx, "res-1", 2*time.Second, time.Minute)
		require.NoError(t, err)
		require.NoError(t, next.Unlock(ctx))
	})

	t.Run("Unlock Is Idempotent", func(t *testing.T) {
		l := newLocker(t)
		held, err := l.TryLock(ctx, "res-1", 0, time.Minute)
		require.NoError(t, err)
		require.NoError(t, held.Unlock(ctx))

		successor, err := l.TryLock(ctx, "res-1", 0, time.Minute)
		require.NoError(t, err)

		// A repeated unlock by the old holder must not free the successor.
		require.NoError(t, held.Unlock(ctx))
		_, err = l.TryLock(ctx, "res-1", 0, time.Minute)
		assert.ErrorIs(t, err, ErrNotAcquired)

		require.NoError(t, successor.Unlock(ctx))
	})

	t.Run("Context Cancellation Stops Waiting", func(t *testing.T) {
		l := newLocker(t)
		held, err := l.TryLock(ctx, "res-1", 0, time.Minute)
		require.NoError(t, err)
		defer func() { _ = held.Unlock(ctx) }()

		cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err = l.TryLock(cctx, "res-1", 5*time.Second, time.Minute)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("Mutual Exclusion Under Contention", func(t *testing.T) {
		l := newLocker(t)
		const workers = 16
		var inside, maxInside, acquired int32
		var wg sync.WaitGroup

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				held, err := l.TryLock(ctx, "res-1", 5*time.Second, time.Minute)
				if err != nil {
					return
				}
				atomic.AddInt32(&acquired, 1)
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				_ = held.Unlock(ctx)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside, "never more than one holder")
		assert.Equal(t, int32(workers), acquired, "every worker eventually gets the lock")
	})

	t.Run("Blank Key Rejected", func(t *testing.T) {
		l := newLocker(t)
		_, err := l.TryLock(ctx, " ", 0, time.Minute)
		assert.Error(t, err)
	})
}
