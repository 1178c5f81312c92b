package resource

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nekogravitycat/bookshare-backend/internal/clock"
	"github.com/nekogravitycat/bookshare-backend/internal/db"
)

// MemoryRepository is an in-memory Repository used by tests and local runs.
type MemoryRepository struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]Resource
}

func NewMemoryRepository(clk clock.Clock) *MemoryRepository {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &MemoryRepository{clock: clk, items: make(map[string]Resource)}
}

func (m *MemoryRepository) Create(ctx context.Context, res *Resource) error {
	if res.Status == "" {
		res.Status = StatusAvailable
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := m.clock.Now()
	res.CreatedAt = now
	res.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[res.ID] = cloneResource(*res)
	id := res.ID
	db.OnRollback(ctx, func() {
		m.mu.Lock()
		delete(m.items, id)
		m.mu.Unlock()
	})
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneResource(res)
	return &out, nil
}

func (m *MemoryRepository) GetForUpdate(ctx context.Context, id string) (*Resource, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryRepository) List(_ context.Context, filter Filter) ([]*Resource, int, error) {
	m.mu.Lock()
	var matched []Resource
	for _, res := range m.items {
		if filter.OwnerID != "" && res.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneResource(res))
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := min(start+filter.PageSize, total)

	out := make([]*Resource, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, &matched[i])
	}
	return out, total, nil
}

func (m *MemoryRepository) UpdateState(ctx context.Context, res *Resource, prev Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.items[res.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != prev {
		return ErrConcurrentUpdate
	}

	before := cloneResource(stored)
	db.OnRollback(ctx, func() {
		m.mu.Lock()
		m.items[before.ID] = before
		m.mu.Unlock()
	})

	res.UpdatedAt = m.clock.Now()
	stored.Status = res.Status
	stored.HolderID = res.HolderID
	stored.UpdatedAt = res.UpdatedAt
	m.items[res.ID] = cloneResource(stored)
	return nil
}

func cloneResource(r Resource) Resource {
	if r.HolderID != nil {
		h := *r.HolderID
		r.HolderID = &h
	}
	return r
}
