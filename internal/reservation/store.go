package reservation

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is the lease window of a loan request.
const DefaultTTL = 72 * time.Hour

// Reservation is a pending loan request by one requester for one resource.
type Reservation struct {
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	LoanDays      int       `json:"loan_days"`
	CreatedAt     time.Time `json:"created_at"`
	// ExpiresAt is stamped by the store on Put.
	ExpiresAt time.Time `json:"expires_at"`
}

// Remaining returns the lease left at now, never negative.
func (r Reservation) Remaining(now time.Time) time.Duration {
	return max(r.ExpiresAt.Sub(now), 0)
}

// Store keeps reservations keyed by (resource, requester). Entries disappear
// silently once their TTL elapses.
type Store interface {
	// Put creates or replaces the reservation of requesterID.
	Put(ctx context.Context, resourceID, requesterID string, r Reservation, ttl time.Duration) error
	Get(ctx context.Context, resourceID, requesterID string) (Reservation, bool, error)
	// List returns the live reservations of a resource without removing them.
	List(ctx context.Context, resourceID string) (map[string]Reservation, error)
	// Remove deletes and returns one reservation.
	Remove(ctx context.Context, resourceID, requesterID string) (Reservation, bool, error)
	// RemoveAll deletes and returns every reservation of a resource in one
	// atomic step. A concurrent Put lands either in the result or after it.
	RemoveAll(ctx context.Context, resourceID string) (map[string]Reservation, error)
}

var errKeyRequired = errors.New("resource id and requester id are required")

func normalizeKey(resourceID, requesterID string) (string, string, error) {
	resourceID = strings.TrimSpace(resourceID)
	requesterID = strings.TrimSpace(requesterID)
	if resourceID == "" || requesterID == "" {
		return "", "", errKeyRequired
	}
	return resourceID, requesterID, nil
}
