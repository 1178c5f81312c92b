package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nekogravitycat/bookshare-backend/internal/db"
)

// MemoryRepository is an in-memory Repository. It enforces the same
// one-open-entry-per-resource rule as the Postgres unique index.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Save(ctx context.Context, e *Entry) error {
	return m.SaveAll(ctx, []*Entry{e})
}

func (m *MemoryRepository) SaveAll(ctx context.Context, entries []*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := make(map[string]bool)
	for _, e := range m.entries {
		if e.Open() {
			open[e.ResourceID] = true
		}
	}
	for _, e := range entries {
		if !e.Open() {
			continue
		}
		if open[e.ResourceID] {
			return fmt.Errorf("%w: resource %s", ErrOpenEntryExists, e.ResourceID)
		}
		open[e.ResourceID] = true
	}

	added := make(map[string]bool, len(entries))
	for _, e := range entries {
		m.entries = append(m.entries, cloneEntry(*e))
		added[e.ID] = true
	}
	db.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		kept := m.entries[:0]
		for _, e := range m.entries {
			if !added[e.ID] {
				kept = append(kept, e)
			}
		}
		m.entries = kept
	})
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, e *Entry, prev *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		stored := &m.entries[i]
		if stored.ID != e.ID {
			continue
		}
		if !sameOutcome(stored.Outcome, prev) {
			return fmt.Errorf("%w: entry %s changed concurrently", ErrAlreadyDecided, e.ID)
		}
		before := cloneEntry(*stored)
		db.OnRollback(ctx, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i := range m.entries {
				if m.entries[i].ID == before.ID {
					m.entries[i] = before
					return
				}
			}
		})
		*stored = cloneEntry(*e)
		return nil
	}
	return ErrNotFound
}

func (m *MemoryRepository) FindOpenByResource(_ context.Context, resourceID string) (*Entry, error) {
	return m.findLatest(func(e *Entry) bool {
		return e.ResourceID == resourceID && e.Open()
	})
}

func (m *MemoryRepository) FindPendingByRequester(_ context.Context, resourceID, requesterID string) (*Entry, error) {
	return m.findLatest(func(e *Entry) bool {
		return e.ResourceID == resourceID && e.RequesterID == requesterID && e.Pending()
	})
}

func (m *MemoryRepository) FindCurrentOccupant(_ context.Context, resourceID string) (*Entry, error) {
	return m.findLatest(func(e *Entry) bool {
		return e.ResourceID == resourceID && e.Is(OutcomeLoaned)
	})
}

func (m *MemoryRepository) findLatest(match func(e *Entry) bool) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.entries) - 1; i >= 0; i-- {
		if match(&m.entries[i]) {
			out := cloneEntry(m.entries[i])
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) List(_ context.Context, filter Filter) ([]*Entry, int, error) {
	m.mu.Lock()
	var matched []Entry
	for _, e := range m.entries {
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if filter.RequesterID != "" && e.RequesterID != filter.RequesterID {
			continue
		}
		matched = append(matched, cloneEntry(e))
	}
	m.mu.Unlock()

	// Insertion order breaks ties so equal timestamps list newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	total := len(matched)
	start := min((filter.Page-1)*filter.PageSize, total)
	end := min(start+filter.PageSize, total)

	out := make([]*Entry, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, &matched[i])
	}
	return out, total, nil
}

func sameOutcome(a, b *Outcome) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneEntry(e Entry) Entry {
	if e.LoanStartedAt != nil {
		t := *e.LoanStartedAt
		e.LoanStartedAt = &t
	}
	if e.ReturnedAt != nil {
		t := *e.ReturnedAt
		e.ReturnedAt = &t
	}
	if e.Outcome != nil {
		o := *e.Outcome
		e.Outcome = &o
	}
	return e
}
