package ledger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nekogravitycat/bookshare-backend/internal/pkg/apperror"
)

var (
	ErrNotFound = apperror.New(http.StatusNotFound, "loan entry not found")
	// ErrAlreadyDecided is returned when an entry that already has an outcome
	// is decided a second time.
	ErrAlreadyDecided = apperror.New(http.StatusConflict, "loan entry already decided")
	// ErrOpenEntryExists is returned when a second pending or loaned entry
	// would be stored for the same resource.
	ErrOpenEntryExists = apperror.New(http.StatusConflict, "resource already has an open loan")
	ErrInvalidLoanDays = apperror.New(http.StatusBadRequest, "loan days must be at least 1")
)

// Outcome is the final (or LOANED) result of a loan entry. A nil outcome
// means the entry is still pending.
type Outcome string

const (
	OutcomeLoaned      Outcome = "LOANED"
	OutcomeReturned    Outcome = "RETURNED"
	OutcomeCanceled    Outcome = "CANCELED"
	OutcomeRejected    Outcome = "REJECTED"
	OutcomePreoccupied Outcome = "PREOCCUPIED"
)

// Terminal reports whether no further transition is possible from o.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeReturned, OutcomeCanceled, OutcomeRejected, OutcomePreoccupied:
		return true
	}
	return false
}

// Entry is one row of the loan ledger.
type Entry struct {
	ID            string
	ResourceID    string
	RequesterID   string
	LoanDays      int
	LoanStartedAt *time.Time
	ReturnedAt    *time.Time
	Outcome       *Outcome
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPending creates an undecided entry, the record of an approved request.
func NewPending(resourceID, requesterID string, loanDays int, now time.Time) (*Entry, error) {
	if loanDays < 1 {
		return nil, ErrInvalidLoanDays
	}
	return &Entry{
		ID:          uuid.NewString(),
		ResourceID:  resourceID,
		RequesterID: requesterID,
		LoanDays:    loanDays,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewDecided creates an entry that is born with a terminal outcome, such as
// the CANCELED record of a withdrawn request.
func NewDecided(resourceID, requesterID string, loanDays int, outcome Outcome, now time.Time) *Entry {
	if loanDays < 1 {
		loanDays = 1
	}
	o := outcome
	return &Entry{
		ID:          uuid.NewString(),
		ResourceID:  resourceID,
		RequesterID: requesterID,
		LoanDays:    loanDays,
		Outcome:     &o,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Pending reports whether the entry has no outcome yet.
func (e *Entry) Pending() bool {
	return e.Outcome == nil
}

// Is reports whether the entry has outcome o.
func (e *Entry) Is(o Outcome) bool {
	return e.Outcome != nil && *e.Outcome == o
}

// Open reports whether the entry still blocks the resource: pending or LOANED.
func (e *Entry) Open() bool {
	return e.Pending() || e.Is(OutcomeLoaned)
}

// ConfirmLoan starts the loan clock. Only pending entries can be confirmed.
func (e *Entry) ConfirmLoan(now time.Time) error {
	if !e.Pending() {
		return e.decided("confirm loan")
	}
	o := OutcomeLoaned
	e.Outcome = &o
	e.LoanStartedAt = &now
	e.UpdatedAt = now
	return nil
}

// Void rejects a pending entry.
func (e *Entry) Void(now time.Time) error {
	if !e.Pending() {
		return e.decided("void")
	}
	o := OutcomeRejected
	e.Outcome = &o
	e.UpdatedAt = now
	return nil
}

// ConfirmReturn closes a LOANED entry.
func (e *Entry) ConfirmReturn(now time.Time) error {
	if !e.Is(OutcomeLoaned) {
		return e.decided("confirm return")
	}
	o := OutcomeReturned
	e.Outcome = &o
	e.ReturnedAt = &now
	e.UpdatedAt = now
	return nil
}

// DueAt returns when the loan is due back, or the zero time if it never started.
func (e *Entry) DueAt() time.Time {
	if e.LoanStartedAt == nil {
		return time.Time{}
	}
	return e.LoanStartedAt.AddDate(0, 0, e.LoanDays)
}

// IsOverdue reports whether a started, unreturned loan is past its due date.
func (e *Entry) IsOverdue(now time.Time) bool {
	if e.LoanStartedAt == nil || e.ReturnedAt != nil {
		return false
	}
	return now.After(e.DueAt())
}

func (e *Entry) decided(action string) error {
	state := "pending"
	if e.Outcome != nil {
		state = string(*e.Outcome)
	}
	return fmt.Errorf("%w: cannot %s entry %s in state %s", ErrAlreadyDecided, action, e.ID, state)
}

// Filter defines parameters for listing entries.
type Filter struct {
	ResourceID  string
	RequesterID string
	Page        int
	PageSize    int
}
