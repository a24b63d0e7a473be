package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stockyard.org/internal/ids"
)

// InMemory implements Catalog and Ledger with in-process concurrency safety.
// A single mutex makes multi-row mutations (batch consume, transfer
// completion) atomic.
type InMemory struct {
	mu         sync.RWMutex
	warehouses map[string]*Warehouse
	products   map[string]*Product
	stocks     map[string]*Stock
	stockOrder []string // insertion order, listings return newest first
	now        func() time.Time
}

var (
	_ Catalog = (*InMemory)(nil)
	_ Ledger  = (*InMemory)(nil)
)

// NewInMemory creates an empty inventory.
func NewInMemory() *InMemory {
	return &InMemory{
		warehouses: make(map[string]*Warehouse),
		products:   make(map[string]*Product),
		stocks:     make(map[string]*Stock),
		now:        time.Now,
	}
}

func (s *InMemory) CreateWarehouse(ctx context.Context, w *Warehouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = ids.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now().UTC()
	}
	s.warehouses[w.ID] = w
	return nil
}

func (s *InMemory) Warehouse(ctx context.Context, id string) (Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warehouses[id]
	if !ok {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return *w, nil
}

func (s *InMemory) Warehouses(ctx context.Context) ([]Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Warehouse, 0, len(s.warehouses))
	for _, w := range s.warehouses {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListWarehouses(ctx context.Context, offset, limit int) ([]Warehouse, int, error) {
	all, err := s.Warehouses(ctx)
	if err != nil {
		return nil, 0, err
	}
	return paginate(all, offset, limit), len(all), nil
}

func (s *InMemory) CreateProduct(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku := strings.TrimSpace(p.SKU)
	for _, existing := range s.products {
		if existing.SKU == sku {
			return ErrSKUExists
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.SKU = sku
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.products[p.ID] = p
	return nil
}

func (s *InMemory) Product(ctx context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (s *InMemory) Products(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListProducts(ctx context.Context, offset, limit int) ([]Product, int, error) {
	all, err := s.Products(ctx)
	if err != nil {
		return nil, 0, err
	}
	return paginate(all, offset, limit), len(all), nil
}

func (s *InMemory) Stock(ctx context.Context, id string) (Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stocks[id]
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	return *st, nil
}

func (s *InMemory) StockFor(ctx context.Context, warehouseID, productID string) (Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stockFor(warehouseID, productID)
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	return *st, nil
}

func (s *InMemory) StocksByWarehouse(ctx context.Context, warehouseID string) ([]Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Stock
	for _, id := range s.stockOrder {
		if st := s.stocks[id]; st.WarehouseID == warehouseID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (s *InMemory) ListStocks(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Stock, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := make(map[string]struct{}, len(warehouseIDs))
	for _, id := range warehouseIDs {
		scope[id] = struct{}{}
	}
	var all []Stock
	// newest first
	for i := len(s.stockOrder) - 1; i >= 0; i-- {
		st := s.stocks[s.stockOrder[i]]
		if len(scope) > 0 {
			if _, ok := scope[st.WarehouseID]; !ok {
				continue
			}
		}
		all = append(all, *st)
	}
	return paginate(all, offset, limit), len(all), nil
}

func (s *InMemory) Reserve(ctx context.Context, stockID string, qty int) (Stock, error) {
	if qty <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[stockID]
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	if qty > st.Quantity-st.Allocated {
		return Stock{}, ErrInsufficientStock
	}
	st.Allocated += qty
	st.UpdatedAt = s.now().UTC()
	return *st, nil
}

func (s *InMemory) Release(ctx context.Context, stockID string, qty int) (Stock, error) {
	if qty <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[stockID]
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	if qty > st.Allocated {
		return Stock{}, ErrInvalidQuantity
	}
	st.Allocated -= qty
	st.UpdatedAt = s.now().UTC()
	return *st, nil
}

func (s *InMemory) Receive(ctx context.Context, warehouseID, productID string, qty int, actor string) (Stock, error) {
	if qty <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.warehouses[warehouseID]; !ok {
		return Stock{}, ErrWarehouseNotFound
	}
	if _, ok := s.products[productID]; !ok {
		return Stock{}, ErrProductNotFound
	}
	st := s.receive(warehouseID, productID, qty, actor)
	return *st, nil
}

func (s *InMemory) Consume(ctx context.Context, warehouseID, productID string, qty int) (Stock, error) {
	if qty <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stockFor(warehouseID, productID)
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	if qty > st.Quantity {
		return Stock{}, ErrInsufficientStock
	}
	if st.Quantity-qty < st.Allocated {
		// would leave allocated > quantity
		return Stock{}, ErrInsufficientStock
	}
	st.Quantity -= qty
	st.UpdatedAt = s.now().UTC()
	return *st, nil
}

func (s *InMemory) ConsumeBatch(ctx context.Context, warehouseID string, demands []Demand, actor string) error {
	totals, err := totalDemands(demands)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Verify every product's combined demand before touching any row.
	matched := make(map[string]*Stock, len(totals))
	for productID, qty := range totals {
		st, ok := s.stockFor(warehouseID, productID)
		if !ok {
			return ErrStockNotFound
		}
		if st.Quantity < qty || st.Quantity-qty < st.Allocated {
			return ErrInsufficientStock
		}
		matched[productID] = st
	}
	now := s.now().UTC()
	for productID, qty := range totals {
		st := matched[productID]
		st.Quantity -= qty
		st.UpdatedAt = now
		st.UpdatedBy = actor
	}
	return nil
}

// totalDemands folds duplicate product lines into one quantity per product.
// An order may legitimately list the same product twice; the stock check has
// to run against the combined demand.
func totalDemands(demands []Demand) (map[string]int, error) {
	totals := make(map[string]int, len(demands))
	for _, d := range demands {
		if d.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		totals[d.ProductID] += d.Quantity
	}
	return totals, nil
}

func (s *InMemory) CompleteTransfer(ctx context.Context, stockID, destWarehouseID string, qty int, actor string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.stocks[stockID]
	if !ok {
		return ErrStockNotFound
	}
	if qty > src.Quantity || qty > src.Allocated {
		return ErrInsufficientStock
	}
	if _, ok := s.warehouses[destWarehouseID]; !ok {
		return ErrWarehouseNotFound
	}
	src.Quantity -= qty
	src.Allocated -= qty
	src.UpdatedAt = s.now().UTC()
	src.UpdatedBy = actor
	s.receive(destWarehouseID, src.ProductID, qty, actor)
	return nil
}

func (s *InMemory) QuantityByWarehouse(ctx context.Context) ([]WarehouseQuantity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[string]int)
	for _, st := range s.stocks {
		totals[st.WarehouseID] += st.Quantity
	}
	out := make([]WarehouseQuantity, 0, len(totals))
	for warehouseID, qty := range totals {
		name := warehouseID
		if w, ok := s.warehouses[warehouseID]; ok {
			name = w.Name
		}
		out = append(out, WarehouseQuantity{WarehouseName: name, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WarehouseName < out[j].WarehouseName })
	return out, nil
}

// stockFor must be called with the lock held.
func (s *InMemory) stockFor(warehouseID, productID string) (*Stock, bool) {
	for _, st := range s.stocks {
		if st.WarehouseID == warehouseID && st.ProductID == productID {
			return st, true
		}
	}
	return nil, false
}

// receive must be called with the lock held.
func (s *InMemory) receive(warehouseID, productID string, qty int, actor string) *Stock {
	now := s.now().UTC()
	if st, ok := s.stockFor(warehouseID, productID); ok {
		st.Quantity += qty
		st.UpdatedAt = now
		st.UpdatedBy = actor
		return st
	}
	st := &Stock{
		ID:          ids.New(),
		WarehouseID: warehouseID,
		ProductID:   productID,
		Quantity:    qty,
		Allocated:   0,
		CreatedAt:   now,
		CreatedBy:   actor,
		UpdatedAt:   now,
		UpdatedBy:   actor,
	}
	s.stocks[st.ID] = st
	s.stockOrder = append(s.stockOrder, st.ID)
	return st
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
