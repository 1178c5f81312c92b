package resource

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nekogravitycat/bookshare-backend/internal/pkg/apperror"
)

var (
	ErrNotFound      = apperror.New(http.StatusNotFound, "resource not found")
	ErrIllegalState  = apperror.New(http.StatusConflict, "action not allowed in current resource status")
	ErrEmptyTitle    = apperror.New(http.StatusBadRequest, "title cannot be empty")
	ErrInvalidOwner  = apperror.New(http.StatusBadRequest, "invalid owner_id")
	ErrInvalidStatus = apperror.New(http.StatusBadRequest, "invalid status")
	// ErrConcurrentUpdate is returned when a guarded update finds the status
	// changed underneath it.
	ErrConcurrentUpdate = apperror.New(http.StatusConflict, "resource status changed concurrently")
)

// Status is the lending status of a resource.
type Status string

const (
	StatusAvailable     Status = "AVAILABLE"
	StatusPendingLoan   Status = "PENDING_LOAN"
	StatusLoaned        Status = "LOANED"
	StatusPendingReturn Status = "PENDING_RETURN"

	// Administrative sink states. Every loan transition is rejected in them.
	StatusHidden  Status = "HIDDEN"
	StatusExpired Status = "EXPIRED"
	StatusBanned  Status = "BANNED"
)

// AllStatuses lists every status, lending and administrative.
var AllStatuses = []Status{
	StatusAvailable, StatusPendingLoan, StatusLoaned, StatusPendingReturn,
	StatusHidden, StatusExpired, StatusBanned,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Sink reports whether s is an administrative status that rejects every
// loan action.
func (s Status) Sink() bool {
	return s == StatusHidden || s == StatusExpired || s == StatusBanned
}

// HasHolder reports whether a resource in status s must have a holder.
func (s Status) HasHolder() bool {
	return s == StatusLoaned || s == StatusPendingReturn
}

// Resource is a lendable book copy.
type Resource struct {
	ID        string
	OwnerID   string
	Title     string
	Status    Status
	HolderID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter defines parameters for listing resources.
type Filter struct {
	OwnerID  string
	Status   Status
	Page     int
	PageSize int
}

// IsOwnedBy reports whether userID owns the resource.
func (r *Resource) IsOwnedBy(userID string) bool {
	return userID != "" && r.OwnerID == userID
}

// Holder returns the holder id, or "" when nobody holds the resource.
func (r *Resource) Holder() string {
	if r.HolderID == nil {
		return ""
	}
	return *r.HolderID
}

// RequireAvailable fails unless the resource can take new loan requests.
func (r *Resource) RequireAvailable() error {
	return r.expect("request loan", StatusAvailable)
}

// RequireLending fails when the resource sits in a sink status. Loan actions
// that leave the status alone, such as withdrawing a request, check it.
func (r *Resource) RequireLending(action string) error {
	if r.Status.Sink() {
		return fmt.Errorf("%w: cannot %s while %s", ErrIllegalState, action, r.Status)
	}
	return nil
}

// ApproveLoan moves AVAILABLE -> PENDING_LOAN.
func (r *Resource) ApproveLoan() error {
	if err := r.expect("approve loan", StatusAvailable); err != nil {
		return err
	}
	r.Status = StatusPendingLoan
	return nil
}

// ConfirmLoan moves PENDING_LOAN -> LOANED and hands the resource to holderID.
func (r *Resource) ConfirmLoan(holderID string) error {
	if err := r.expect("confirm loan", StatusPendingLoan); err != nil {
		return err
	}
	if holderID == "" {
		return fmt.Errorf("%w: confirm loan requires a holder", ErrIllegalState)
	}
	r.Status = StatusLoaned
	r.HolderID = &holderID
	return nil
}

// VoidLoan moves PENDING_LOAN -> AVAILABLE.
func (r *Resource) VoidLoan() error {
	if err := r.expect("void loan", StatusPendingLoan); err != nil {
		return err
	}
	r.Status = StatusAvailable
	r.HolderID = nil
	return nil
}

// RequestReturn moves LOANED -> PENDING_RETURN.
func (r *Resource) RequestReturn() error {
	if err := r.expect("request return", StatusLoaned); err != nil {
		return err
	}
	r.Status = StatusPendingReturn
	return nil
}

// CancelReturnRequest moves PENDING_RETURN -> LOANED.
func (r *Resource) CancelReturnRequest() error {
	if err := r.expect("cancel return request", StatusPendingReturn); err != nil {
		return err
	}
	r.Status = StatusLoaned
	return nil
}

// ConfirmReturn moves PENDING_RETURN -> AVAILABLE and clears the holder.
func (r *Resource) ConfirmReturn() error {
	if err := r.expect("confirm return", StatusPendingReturn); err != nil {
		return err
	}
	r.Status = StatusAvailable
	r.HolderID = nil
	return nil
}

// Hide moves AVAILABLE -> HIDDEN, taking the resource off the lending market.
func (r *Resource) Hide() error {
	if err := r.expect("hide", StatusAvailable); err != nil {
		return err
	}
	r.Status = StatusHidden
	return nil
}

// Unhide moves HIDDEN -> AVAILABLE.
func (r *Resource) Unhide() error {
	if err := r.expect("unhide", StatusHidden); err != nil {
		return err
	}
	r.Status = StatusAvailable
	return nil
}

func (r *Resource) expect(action string, want Status) error {
	if r.Status != want {
		return fmt.Errorf("%w: cannot %s while %s", ErrIllegalState, action, r.Status)
	}
	return nil
}
