package inventory

import "context"

// Catalog manages warehouses and products.
type Catalog interface {
	CreateWarehouse(ctx context.Context, w *Warehouse) error
	Warehouse(ctx context.Context, id string) (Warehouse, error)
	Warehouses(ctx context.Context) ([]Warehouse, error)
	ListWarehouses(ctx context.Context, offset, limit int) ([]Warehouse, int, error)

	CreateProduct(ctx context.Context, p *Product) error
	Product(ctx context.Context, id string) (Product, error)
	Products(ctx context.Context) ([]Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]Product, int, error)
}

// Ledger owns stock records and enforces the quantity invariants. Every
// mutation either completes whole or leaves no partial state; none may break
// 0 <= allocated <= quantity.
type Ledger interface {
	Stock(ctx context.Context, id string) (Stock, error)
	StockFor(ctx context.Context, warehouseID, productID string) (Stock, error)
	StocksByWarehouse(ctx context.Context, warehouseID string) ([]Stock, error)
	ListStocks(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Stock, int, error)

	// Reserve commits qty units of available stock to an in-flight shipment.
	Reserve(ctx context.Context, stockID string, qty int) (Stock, error)
	// Release returns qty previously reserved units.
	Release(ctx context.Context, stockID string, qty int) (Stock, error)
	// Receive adds qty units, creating the stock row lazily on first
	// receipt into a warehouse.
	Receive(ctx context.Context, warehouseID, productID string, qty int, actor string) (Stock, error)
	// Consume removes qty on-hand units. The check runs against raw
	// quantity, not available: order fulfillment does not reserve ahead.
	Consume(ctx context.Context, warehouseID, productID string, qty int) (Stock, error)
	// ConsumeBatch verifies every demand against the warehouse's stock
	// before mutating anything, then decrements all rows in one unit.
	ConsumeBatch(ctx context.Context, warehouseID string, demands []Demand, actor string) error
	// CompleteTransfer finishes a shipment in one unit: source quantity
	// and allocated both drop by qty, destination quantity grows by qty.
	CompleteTransfer(ctx context.Context, stockID, destWarehouseID string, qty int, actor string) error

	QuantityByWarehouse(ctx context.Context) ([]WarehouseQuantity, error)
}
