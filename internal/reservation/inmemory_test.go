package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nekogravitycat/bookshare-backend/internal/clock"
)

func TestInMemoryStore(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC))
	storeContract(t, func(t *testing.T) Store {
		return NewInMemoryStore(clk)
	}, time.Hour, clk.Advance)
}

func TestReservationRemaining(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	r := Reservation{ExpiresAt: now.Add(time.Hour)}

	assert.Equal(t, time.Hour, r.Remaining(now))
	assert.Equal(t, time.Duration(0), r.Remaining(now.Add(2*time.Hour)))
}
