package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/bookshare-backend/internal/db"
	"github.com/nekogravitycat/bookshare-backend/internal/testutil"
)

func TestPgxRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewPgxRepository(pool)
	ctx := context.Background()

	owner := testutil.CreateUser(t, pool)
	alice := testutil.CreateUser(t, pool)
	bob := testutil.CreateUser(t, pool)
	resourceID := testutil.CreateResource(t, pool, owner)
	now := time.Now().UTC().Truncate(time.Microsecond)

	pending, err := NewPending(resourceID, alice, 14, now)
	require.NoError(t, err)
	require.NoError(t, repo.SaveAll(ctx, []*Entry{
		pending,
		NewDecided(resourceID, bob, 7, OutcomePreoccupied, now),
	}))

	t.Run("SaveAll: Second Open Entry Rejected", func(t *testing.T) {
		other, err := NewPending(resourceID, bob, 3, now)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Save(ctx, other), ErrOpenEntryExists)
	})

	t.Run("Find: Pending By Requester", func(t *testing.T) {
		got, err := repo.FindPendingByRequester(ctx, resourceID, alice)
		require.NoError(t, err)
		assert.Equal(t, pending.ID, got.ID)
		assert.True(t, got.Pending())

		_, err = repo.FindPendingByRequester(ctx, resourceID, bob)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update: Guarded On Outcome", func(t *testing.T) {
		require.NoError(t, pending.ConfirmLoan(now.Add(time.Hour)))
		require.NoError(t, repo.Update(ctx, pending, nil))

		// A second writer that also read the entry as pending loses.
		stale := *pending
		assert.ErrorIs(t, repo.Update(ctx, &stale, nil), ErrAlreadyDecided)

		got, err := repo.FindCurrentOccupant(ctx, resourceID)
		require.NoError(t, err)
		assert.Equal(t, alice, got.RequesterID)
		require.NotNil(t, got.LoanStartedAt)
		assert.True(t, got.LoanStartedAt.Equal(now.Add(time.Hour)))
	})

	t.Run("WithTx: Rollback Discards Entries", func(t *testing.T) {
		runner := db.NewPgxTxRunner(pool)
		boom := errors.New("boom")
		err := runner.WithTx(ctx, func(txCtx context.Context) error {
			if err := repo.Save(txCtx, NewDecided(resourceID, bob, 1, OutcomeCanceled, now)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, total, err := repo.List(ctx, Filter{ResourceID: resourceID})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("List: Filter By Requester", func(t *testing.T) {
		items, total, err := repo.List(ctx, Filter{ResourceID: resourceID, RequesterID: bob, Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)
		assert.True(t, items[0].Is(OutcomePreoccupied))
	})
}
