package reservation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour every Store must share. shortTTL must be
// long enough to survive a few round trips; elapse moves time past it.
func storeContract(t *testing.T, newStore func(t *testing.T) Store, shortTTL time.Duration, elapse func(time.Duration)) {
	ctx := context.Background()

	t.Run("Put then Get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "res-1", "alice", Reservation{RequesterName: "Alice", LoanDays: 7}, time.Hour))

		r, ok, err := s.Get(ctx, "res-1", "alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "alice", r.RequesterID)
		assert.Equal(t, "Alice", r.RequesterName)
		assert.Equal(t, 7, r.LoanDays)
		assert.False(t, r.ExpiresAt.IsZero())

		_, ok, err = s.Get(ctx, "res-1", "bob")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Put Upserts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "res-1", "alice", Reservation{LoanDays: 7}, time.Hour))
		require.NoError(t, s.Put(ctx, "res-1", "alice", Reservation{LoanDays: 21}, time.Hour))

		all, err := s.List(ctx, "res-1")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 21, all["alice"].LoanDays)
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "res-1", "alice", Reservation{LoanDays: 7}, time.Hour))
		require.NoError(t, s.Put(ctx, "res-1", "bob", Reservation{LoanDays: 3}, time.Hour))

		r, ok, err := s.Remove(ctx, "res-1", "alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 7, r.LoanDays)

		_, ok, err = s.Remove(ctx, "res-1", "alice")
		require.NoError(t, err)
		assert.False(t, ok, "second remove finds nothing")

		all, err := s.List(ctx, "res-1")
		require.NoError(t, err)
		assert.Len(t, all, 1)
		assert.Contains(t, all, "bob")
	})

	t.Run("RemoveAll Clears Only One Resource", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "res-1", "alice", Reservation{LoanDays: 7}, time.Hour))
		require.NoError(t, s.Put(ctx, "res-1", "bob", Reservation{LoanDays: 3}, time.Hour))
		require.NoError(t, s.Put(ctx, "res-2", "carol", Reservation{LoanDays: 5}, time.Hour))

		removed, err := s.RemoveAll(ctx, "res-1")
		require.NoError(t, err)
		assert.Len(t, removed, 2)
		assert.Equal(t, 3, removed["bob"].LoanDays)

		again, err := s.RemoveAll(ctx, "res-1")
		require.NoError(t, err)
		assert.Empty(t, again)

		_, ok, err := s.Get(ctx, "res-2", "carol")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Entries Expire", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "res-1", "alice", Reservation{LoanDays: 7}, shortTTL))
		require.NoError(t, s.Put(ctx, "res-1", "bob", Reservation{LoanDays: 3}, 10*shortTTL))

		elapse(shortTTL + shortTTL/2)

		_, ok, err := s.Get(ctx, "res-1", "alice")
		require.NoError(t, err)
		assert.False(t, ok)

		removed, err := s.RemoveAll(ctx, "res-1")
		require.NoError(t, err)
		assert.Len(t, removed, 1)
		assert.Contains(t, removed, "bob")
	})

	t.Run("Concurrent Remove Has One Winner", func(t *testing.T) {
		s := newStore(t)
		const n = 8
		for i := range n {
			require.NoError(t, s.Put(ctx, "res-1", fmt.Sprintf("user-%d", i), Reservation{LoanDays: 1}, time.Hour))
		}

		var wg sync.WaitGroup
		results := make([]int, n)
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				removed, err := s.RemoveAll(ctx, "res-1")
				if err == nil {
					results[i] = len(removed)
				}
			}(i)
		}
		wg.Wait()

		total := 0
		for _, r := range results {
			total += r
		}
		assert.Equal(t, n, total, "every reservation is handed out exactly once")
	})

	t.Run("Blank Keys Rejected", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Put(ctx, "", "alice", Reservation{}, time.Hour))
		_, _, err := s.Get(ctx, "res-1", " ")
		assert.Error(t, err)
		_, err = s.RemoveAll(ctx, "")
		assert.Error(t, err)
	})
}
