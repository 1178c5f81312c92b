package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func TestNewPendingRejectsNonPositiveDays(t *testing.T) {
	_, err := NewPending("res", "alice", 0, t0)
	assert.ErrorIs(t, err, ErrInvalidLoanDays)

	e, err := NewPending("res", "alice", 14, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.True(t, e.Pending())
	assert.True(t, e.Open())
}

func TestEntryLifecycle(t *testing.T) {
	e, err := NewPending("res", "alice", 7, t0)
	require.NoError(t, err)

	start := t0.Add(time.Hour)
	require.NoError(t, e.ConfirmLoan(start))
	assert.True(t, e.Is(OutcomeLoaned))
	assert.True(t, e.Open())
	require.NotNil(t, e.LoanStartedAt)
	assert.Equal(t, start, *e.LoanStartedAt)

	end := start.AddDate(0, 0, 3)
	require.NoError(t, e.ConfirmReturn(end))
	assert.True(t, e.Is(OutcomeReturned))
	assert.False(t, e.Open())
	require.NotNil(t, e.ReturnedAt)
	assert.Equal(t, end, *e.ReturnedAt)
	assert.True(t, e.Outcome.Terminal())
}

func TestVoidOnlyOnce(t *testing.T) {
	e, err := NewPending("res", "alice", 7, t0)
	require.NoError(t, err)

	require.NoError(t, e.Void(t0))
	assert.True(t, e.Is(OutcomeRejected))

	err = e.Void(t0)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.True(t, e.Is(OutcomeRejected))
}

func TestDecidedEntriesRejectTransitions(t *testing.T) {
	for _, o := range []Outcome{OutcomeReturned, OutcomeCanceled, OutcomeRejected, OutcomePreoccupied} {
		e := NewDecided("res", "bob", 3, o, t0)
		assert.ErrorIs(t, e.ConfirmLoan(t0), ErrAlreadyDecided, string(o))
		assert.ErrorIs(t, e.Void(t0), ErrAlreadyDecided, string(o))
		assert.ErrorIs(t, e.ConfirmReturn(t0), ErrAlreadyDecided, string(o))
		assert.True(t, e.Is(o))
	}

	// LOANED can only be returned.
	e, _ := NewPending("res", "alice", 7, t0)
	require.NoError(t, e.ConfirmLoan(t0))
	assert.ErrorIs(t, e.ConfirmLoan(t0), ErrAlreadyDecided)
	assert.ErrorIs(t, e.Void(t0), ErrAlreadyDecided)
}

func TestConfirmReturnRequiresLoaned(t *testing.T) {
	e, _ := NewPending("res", "alice", 7, t0)
	assert.ErrorIs(t, e.ConfirmReturn(t0), ErrAlreadyDecided)
	assert.Nil(t, e.ReturnedAt)
}

func TestIsOverdue(t *testing.T) {
	e, _ := NewPending("res", "alice", 14, t0)
	assert.False(t, e.IsOverdue(t0.AddDate(1, 0, 0)), "a loan that never started is not overdue")

	require.NoError(t, e.ConfirmLoan(t0))
	assert.Equal(t, t0.AddDate(0, 0, 14), e.DueAt())
	assert.False(t, e.IsOverdue(t0.AddDate(0, 0, 14)))
	assert.True(t, e.IsOverdue(t0.AddDate(0, 0, 14).Add(time.Second)))

	require.NoError(t, e.ConfirmReturn(t0.AddDate(0, 0, 20)))
	assert.False(t, e.IsOverdue(t0.AddDate(0, 0, 30)), "returned loans are never overdue")
}
