package loan

import (
	"net/http"

	"github.com/nekogravitycat/bookshare-backend/internal/ledger"
	"github.com/nekogravitycat/bookshare-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/bookshare-backend/internal/resource"
)

// DefaultLoanDays applies when a request names no loan length.
const DefaultLoanDays = 14

var (
	ErrResourceNotFound = apperror.New(http.StatusNotFound, "resource not found")
	ErrUserNotFound     = apperror.New(http.StatusNotFound, "user not found")
	ErrLoanNotFound     = apperror.New(http.StatusNotFound, "no matching loan")
	// ErrStaleRequest means the loan request was already decided, withdrawn,
	// or has expired.
	ErrStaleRequest  = apperror.New(http.StatusGone, "loan request is no longer pending")
	ErrAccessDenied  = apperror.New(http.StatusForbidden, "not allowed to perform this action")
	ErrBusy          = apperror.NewRetryable(http.StatusServiceUnavailable, "resource is busy, try again")
	ErrInvalidInput  = apperror.New(http.StatusBadRequest, "invalid loan command")
	ErrUnknownAction = apperror.New(http.StatusBadRequest, "unknown loan action")
)

// Command asks the coordinator to perform one action on one resource.
type Command struct {
	ResourceID string
	// OwnerID is the caller for owner-initiated actions.
	OwnerID string
	// RequesterID is the caller for requester-initiated actions and names
	// the request being decided for owner-initiated ones. Return actions and
	// void derive it from the resource when empty.
	RequesterID string
	Action      Action
	// LoanDays is only read by REQUEST_LOAN. Zero means DefaultLoanDays.
	LoanDays int
	Comment  string
}

// Result is the state left behind by a successful action.
type Result struct {
	Resource *resource.Resource
	// Entry is the ledger entry created or decided, if any.
	Entry *ledger.Entry
}
