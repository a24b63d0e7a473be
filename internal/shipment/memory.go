package shipment

import (
	"context"
	"sync"
)

// InMemory is a mutex-guarded shipment store for development and tests.
type InMemory struct {
	mu    sync.RWMutex
	byID  map[string]Shipment
	order []string // ids, oldest first
}

var _ Store = (*InMemory)(nil)

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]Shipment)}
}

func (m *InMemory) Create(ctx context.Context, s *Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = *s
	m.order = append(m.order, s.ID)
	return nil
}

func (m *InMemory) Shipment(ctx context.Context, id string) (Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return Shipment{}, ErrNotFound
	}
	return s, nil
}

func (m *InMemory) Update(ctx context.Context, s *Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[s.ID]; !ok {
		return ErrNotFound
	}
	m.byID[s.ID] = *s
	return nil
}

func (m *InMemory) List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Shipment, int, error) {
	scope := make(map[string]struct{}, len(warehouseIDs))
	for _, id := range warehouseIDs {
		scope[id] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Shipment
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.byID[m.order[i]]
		if len(scope) > 0 {
			if _, ok := scope[s.SourceWarehouseID]; !ok {
				continue
			}
		}
		matched = append(matched, s)
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *InMemory) HasActive(ctx context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.byID {
		if s.Status == StatusInDelivery && s.AssignedTo == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *InMemory) CountByStatus(ctx context.Context) (map[Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Status]int)
	for _, s := range m.byID {
		counts[s.Status]++
	}
	return counts, nil
}

// Counter is a process-local Sequence.
type Counter struct {
	mu sync.Mutex
	n  int64
}

var _ Sequence = (*Counter)(nil)

func (c *Counter) Next(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}
