package order

import (
	"context"
	"sort"
	"sync"
)

// InMemory is a mutex-guarded order store for development and tests.
type InMemory struct {
	mu    sync.RWMutex
	byID  map[string]Order
	order []string // ids, oldest first
}

var _ Store = (*InMemory)(nil)

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]Order)}
}

func (m *InMemory) Create(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = cloneOrder(*o)
	m.order = append(m.order, o.ID)
	return nil
}

func (m *InMemory) Order(ctx context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.byID[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *InMemory) Update(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[o.ID]; !ok {
		return ErrNotFound
	}
	m.byID[o.ID] = cloneOrder(*o)
	return nil
}

func (m *InMemory) List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Order, int, error) {
	scope := make(map[string]struct{}, len(warehouseIDs))
	for _, id := range warehouseIDs {
		scope[id] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Order
	for i := len(m.order) - 1; i >= 0; i-- {
		o := m.byID[m.order[i]]
		if len(scope) > 0 {
			if _, ok := scope[o.WarehouseID]; !ok {
				continue
			}
		}
		matched = append(matched, cloneOrder(o))
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

func (m *InMemory) CountByStatus(ctx context.Context) (map[Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Status]int)
	for _, o := range m.byID {
		counts[o.Status]++
	}
	return counts, nil
}

func (m *InMemory) TopSellingProducts(ctx context.Context, limit int) ([]ProductSales, error) {
	m.mu.RLock()
	totals := make(map[string]int)
	for _, o := range m.byID {
		for _, l := range o.Lines {
			totals[l.ProductName] += l.Quantity
		}
	}
	m.mu.RUnlock()

	ranked := make([]ProductSales, 0, len(totals))
	for name, qty := range totals {
		ranked = append(ranked, ProductSales{ProductName: name, Quantity: qty})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		return ranked[i].ProductName < ranked[j].ProductName
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func cloneOrder(o Order) Order {
	lines := make([]Line, len(o.Lines))
	copy(lines, o.Lines)
	o.Lines = lines
	return o
}
