package inventory

import (
	"errors"
	"time"
)

// Warehouse is a physical location holding stock.
type Warehouse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a sellable item. Price is kept in minor units; no floats.
type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Stock is the per-(warehouse, product) inventory counter pair. Allocated is
// the portion of quantity committed to in-flight shipments but not yet moved.
// Invariant: 0 <= allocated <= quantity at all times.
type Stock struct {
	ID          string    `json:"id"`
	WarehouseID string    `json:"warehouse_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	Allocated   int       `json:"allocated"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
}

// Available is the quantity not reserved by in-flight shipments.
func (s Stock) Available() int { return s.Quantity - s.Allocated }

// Demand is one product requirement inside a batch consumption.
type Demand struct {
	ProductID string
	Quantity  int
}

// WarehouseQuantity aggregates on-hand quantity per warehouse.
type WarehouseQuantity struct {
	WarehouseName string `json:"label"`
	Quantity      int    `json:"value"`
}

var (
	ErrWarehouseNotFound = errors.New("inventory: warehouse not found")
	ErrProductNotFound   = errors.New("inventory: product not found")
	ErrStockNotFound     = errors.New("inventory: stock not found")
	ErrSKUExists         = errors.New("inventory: product with the given SKU already exists")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)
