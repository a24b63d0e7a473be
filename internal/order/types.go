package order

import (
	"context"
	"errors"
	"time"
)

// Status is the order lifecycle stage: created PENDING, fulfilled once to
// COMPLETED.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Line is one product requirement inside an order. UnitPrice is the product
// price snapshotted at order creation, in minor units.
type Line struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// Order is a customer request served out of a single warehouse.
type Order struct {
	ID          string    `json:"id"`
	WarehouseID string    `json:"warehouse_id"`
	Customer    string    `json:"customer"`
	Status      Status    `json:"status"`
	Lines       []Line    `json:"lines"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
}

// Total is the computed order price in minor units.
func (o Order) Total() int64 {
	var sum int64
	for _, l := range o.Lines {
		sum += l.UnitPrice * int64(l.Quantity)
	}
	return sum
}

var (
	ErrNotFound = errors.New("order: not found")
	// ErrNotPermitted covers business-rule failures: wrong warehouse,
	// non-PENDING order.
	ErrNotPermitted = errors.New("order: operation not permitted")
	// ErrQuantityRequirementNotFulfilled means at least one line asks for
	// more units than the warehouse holds.
	ErrQuantityRequirementNotFulfilled = errors.New("order: product quantity requirement not fulfilled")
)

// ProductSales aggregates sold quantity per product for the dashboard.
type ProductSales struct {
	ProductName string `json:"label"`
	Quantity    int    `json:"value"`
}

// Store persists orders. List returns newest first, scoped to the given
// warehouses; empty scope means no filter.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Order(ctx context.Context, id string) (Order, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Order, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// TopSellingProducts ranks products by total ordered quantity,
	// descending, at most limit entries.
	TopSellingProducts(ctx context.Context, limit int) ([]ProductSales, error)
}
