package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the lock stays taken for the whole wait window.
var ErrNotAcquired = errors.New("lock not acquired within wait window")

// Locker hands out named mutual-exclusion locks. A lock is held until
// Unlock or until hold elapses, whichever comes first.
type Locker interface {
	// TryLock blocks for at most wait. It returns ErrNotAcquired when the
	// window closes, or the context error when ctx ends first.
	TryLock(ctx context.Context, key string, wait, hold time.Duration) (*Lock, error)
}

// Lock is a held lock. Unlock only releases the lock if this holder still
// owns it, so a holder whose hold expired cannot free a successor's lock.
type Lock struct {
	key     string
	token   string
	release func(ctx context.Context) error

	once sync.Once
	err  error
}

func newLock(key, token string, release func(ctx context.Context) error) *Lock {
	return &Lock{key: key, token: token, release: release}
}

func (l *Lock) Key() string {
	return l.key
}

// Unlock releases the lock. Safe to call more than once.
func (l *Lock) Unlock(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.release(ctx)
	})
	return l.err
}
