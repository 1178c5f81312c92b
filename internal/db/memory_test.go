package db

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// store is a tiny keyed store that takes part in memory transactions the
// way the repositories do.
type store struct {
	mu    sync.Mutex
	items map[string]int
}

func newStore() *store {
	return &store{items: make(map[string]int)}
}

func (s *store) add(ctx context.Context, key string, d int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, existed := s.items[key]
	s.items[key] = before + d
	OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.items[key] = before
		} else {
			delete(s.items, key)
		}
	})
}

func (s *store) get(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[key]
}

func TestMemoryTxRunner(t *testing.T) {
	ctx := context.Background()
	a, b := newStore(), newStore()
	runner := NewMemoryTxRunner()

	t.Run("WithTx: Commit Keeps Changes", func(t *testing.T) {
		err := runner.WithTx(ctx, func(ctx context.Context) error {
			a.add(ctx, "x", 1)
			b.add(ctx, "x", 2)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, a.get("x"))
		assert.Equal(t, 2, b.get("x"))
	})

	t.Run("WithTx: Error Reverts Every Store", func(t *testing.T) {
		boom := errors.New("boom")
		err := runner.WithTx(ctx, func(ctx context.Context) error {
			a.add(ctx, "x", 10)
			a.add(ctx, "x", 10)
			b.add(ctx, "y", 5)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, a.get("x"))
		assert.Equal(t, 2, b.get("x"))
		b.mu.Lock()
		_, ok := b.items["y"]
		b.mu.Unlock()
		assert.False(t, ok)
	})

	t.Run("WithTx: Outside Writes Survive Rollback", func(t *testing.T) {
		err := runner.WithTx(ctx, func(txCtx context.Context) error {
			a.add(txCtx, "x", 100)
			a.add(ctx, "z", 7)
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.Equal(t, 1, a.get("x"))
		assert.Equal(t, 7, a.get("z"))
	})

	t.Run("WithTx: Nested Call Joins Outer", func(t *testing.T) {
		boom := errors.New("boom")
		err := runner.WithTx(ctx, func(ctx context.Context) error {
			a.add(ctx, "x", 1)
			if err := runner.WithTx(ctx, func(ctx context.Context) error {
				a.add(ctx, "x", 1)
				return nil
			}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, a.get("x"))
	})

	t.Run("WithTx: Transactions Are Serialized", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = runner.WithTx(ctx, func(ctx context.Context) error {
					// Unlocked read-modify-write; only the runner serializes it.
					v := b.get("x")
					b.mu.Lock()
					b.items["x"] = v + 1
					b.mu.Unlock()
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 52, b.get("x"))
	})

	t.Run("OnRollback: No Transaction", func(t *testing.T) {
		assert.False(t, OnRollback(ctx, func() {}))
	})
}
