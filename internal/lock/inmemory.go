package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nekogravitycat/bookshare-backend/internal/clock"
)

type inMemoryEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryLocker is a single-process Locker.
type InMemoryLocker struct {
	mu      sync.Mutex
	clock   clock.Clock
	backoff backoff
	entries map[string]inMemoryEntry
}

func NewInMemoryLocker(clk clock.Clock) *InMemoryLocker {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &InMemoryLocker{
		clock:   clk,
		backoff: defaultBackoff(),
		entries: make(map[string]inMemoryEntry),
	}
}

func (m *InMemoryLocker) TryLock(ctx context.Context, key string, wait, hold time.Duration) (*Lock, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if hold <= 0 {
		return nil, errors.New("lock hold must be positive")
	}

	token := uuid.NewString()
	err := m.backoff.poll(ctx, wait, func(context.Context) (bool, error) {
		return m.acquire(key, token, hold), nil
	})
	if err != nil {
		return nil, err
	}

	return newLock(key, token, func(context.Context) error {
		m.release(key, token)
		return nil
	}), nil
}

func (m *InMemoryLocker) acquire(key, token string, hold time.Duration) bool {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok && now.Before(existing.expiresAt) {
		return false
	}
	m.entries[key] = inMemoryEntry{token: token, expiresAt: now.Add(hold)}
	return true
}

func (m *InMemoryLocker) release(key, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok && existing.token == token {
		delete(m.entries, key)
	}
}
