package reservation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nekogravitycat/bookshare-backend/internal/clock"
)

type InMemoryStore struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]map[string]Reservation
}

func NewInMemoryStore(clk clock.Clock) *InMemoryStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &InMemoryStore{
		clock: clk,
		items: make(map[string]map[string]Reservation),
	}
}

func (s *InMemoryStore) Put(_ context.Context, resourceID, requesterID string, r Reservation, ttl time.Duration) error {
	resourceID, requesterID, err := normalizeKey(resourceID, requesterID)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.RequesterID = requesterID
	r.ExpiresAt = s.clock.Now().Add(ttl)
	byRequester, ok := s.items[resourceID]
	if !ok {
		byRequester = make(map[string]Reservation)
		s.items[resourceID] = byRequester
	}
	byRequester[requesterID] = r
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, resourceID, requesterID string) (Reservation, bool, error) {
	resourceID, requesterID, err := normalizeKey(resourceID, requesterID)
	if err != nil {
		return Reservation{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(resourceID)
	r, ok := s.items[resourceID][requesterID]
	return r, ok, nil
}

func (s *InMemoryStore) List(_ context.Context, resourceID string) (map[string]Reservation, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, errors.New("resource id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(resourceID)
	out := make(map[string]Reservation, len(s.items[resourceID]))
	for id, r := range s.items[resourceID] {
		out[id] = r
	}
	return out, nil
}

func (s *InMemoryStore) Remove(_ context.Context, resourceID, requesterID string) (Reservation, bool, error) {
	resourceID, requesterID, err := normalizeKey(resourceID, requesterID)
	if err != nil {
		return Reservation{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(resourceID)
	r, ok := s.items[resourceID][requesterID]
	if !ok {
		return Reservation{}, false, nil
	}
	delete(s.items[resourceID], requesterID)
	if len(s.items[resourceID]) == 0 {
		delete(s.items, resourceID)
	}
	return r, true, nil
}

func (s *InMemoryStore) RemoveAll(_ context.Context, resourceID string) (map[string]Reservation, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, errors.New("resource id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(resourceID)
	out := s.items[resourceID]
	delete(s.items, resourceID)
	if out == nil {
		out = make(map[string]Reservation)
	}
	return out, nil
}

func (s *InMemoryStore) evictLocked(resourceID string) {
	now := s.clock.Now()
	for id, r := range s.items[resourceID] {
		if !now.Before(r.ExpiresAt) {
			delete(s.items[resourceID], id)
		}
	}
	if len(s.items[resourceID]) == 0 {
		delete(s.items, resourceID)
	}
}
