package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/bookshare-backend/internal/db"
)

func TestMemoryRepositoryOneOpenEntryPerResource(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first, _ := NewPending("res", "alice", 7, t0)
	require.NoError(t, repo.Save(ctx, first))

	second, _ := NewPending("res", "bob", 7, t0)
	assert.ErrorIs(t, repo.Save(ctx, second), ErrOpenEntryExists)

	// Decided entries never conflict.
	require.NoError(t, repo.SaveAll(ctx, []*Entry{
		NewDecided("res", "bob", 7, OutcomePreoccupied, t0),
		NewDecided("res", "carol", 7, OutcomePreoccupied, t0),
	}))

	// Another resource is independent.
	other, _ := NewPending("other", "bob", 7, t0)
	require.NoError(t, repo.Save(ctx, other))

	open, err := repo.FindOpenByResource(ctx, "res")
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)
}

func TestMemoryRepositoryGuardedUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	e, _ := NewPending("res", "alice", 7, t0)
	require.NoError(t, repo.Save(ctx, e))

	// Two deciders read the same pending entry.
	a, err := repo.FindPendingByRequester(ctx, "res", "alice")
	require.NoError(t, err)
	b, err := repo.FindPendingByRequester(ctx, "res", "alice")
	require.NoError(t, err)

	require.NoError(t, a.Void(t0))
	require.NoError(t, repo.Update(ctx, a, nil))

	require.NoError(t, b.ConfirmLoan(t0))
	assert.ErrorIs(t, repo.Update(ctx, b, nil), ErrAlreadyDecided)

	_, err = repo.FindPendingByRequester(ctx, "res", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryCurrentOccupant(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.FindCurrentOccupant(ctx, "res")
	assert.ErrorIs(t, err, ErrNotFound)

	e, _ := NewPending("res", "alice", 7, t0)
	require.NoError(t, repo.Save(ctx, e))
	_, err = repo.FindCurrentOccupant(ctx, "res")
	assert.ErrorIs(t, err, ErrNotFound, "pending entries do not occupy the resource")

	require.NoError(t, e.ConfirmLoan(t0))
	require.NoError(t, repo.Update(ctx, e, nil))

	occ, err := repo.FindCurrentOccupant(ctx, "res")
	require.NoError(t, err)
	assert.Equal(t, "alice", occ.RequesterID)
}

func TestMemoryRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for i, who := range []string{"alice", "bob", "alice"} {
		e := NewDecided("res", who, 7, OutcomeCanceled, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Save(ctx, e))
	}
	require.NoError(t, repo.Save(ctx, NewDecided("other", "alice", 7, OutcomeCanceled, t0)))

	items, total, err := repo.List(ctx, Filter{ResourceID: "res", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, t0.Add(2*time.Minute), items[0].CreatedAt)

	items, total, err = repo.List(ctx, Filter{ResourceID: "res", RequesterID: "alice", Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 1)
}

func TestMemoryRepositoryRollback(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	runner := db.NewMemoryTxRunner()

	kept, _ := NewPending("res", "alice", 7, t0)
	require.NoError(t, repo.Save(ctx, kept))

	boom := errors.New("boom")
	err := runner.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, kept.ConfirmLoan(t0.Add(time.Hour)))
		require.NoError(t, repo.Update(txCtx, kept, nil))
		require.NoError(t, repo.Save(txCtx, NewDecided("res", "bob", 3, OutcomePreoccupied, t0)))
		// Written outside the transaction; survives the rollback.
		require.NoError(t, repo.Save(ctx, NewDecided("other", "bob", 3, OutcomeCanceled, t0)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.FindPendingByRequester(ctx, "res", "alice")
	require.NoError(t, err)
	assert.Equal(t, kept.ID, got.ID)

	_, total, err := repo.List(ctx, Filter{ResourceID: "res"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = repo.List(ctx, Filter{ResourceID: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
