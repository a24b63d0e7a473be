package shipment

import (
	"context"
	"errors"
	"time"
)

// Status is the shipment lifecycle stage. Transitions move forward only:
// PENDING -> IN_DELIVERY -> ALMOST_THERE -> DELIVERED.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusInDelivery  Status = "IN_DELIVERY"
	StatusAlmostThere Status = "ALMOST_THERE"
	StatusDelivered   Status = "DELIVERED"
)

// Shipment moves a fixed quantity of one product between two warehouses.
// AssignedTo holds the courier's email once the shipment leaves PENDING.
type Shipment struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	StockID           string    `json:"stock_id"`
	SourceWarehouseID string    `json:"source_warehouse_id"`
	DestWarehouseID   string    `json:"dest_warehouse_id"`
	ProductID         string    `json:"product_id"`
	Quantity          int       `json:"quantity"`
	Status            Status    `json:"status"`
	AssignedTo        string    `json:"assigned_to,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	CreatedBy         string    `json:"created_by,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
	UpdatedBy         string    `json:"updated_by,omitempty"`
}

var (
	ErrNotFound              = errors.New("shipment: not found")
	ErrInvalidState          = errors.New("shipment: invalid state for the requested transition")
	ErrNotPermitted          = errors.New("shipment: operation not permitted")
	ErrDestWarehouseNotFound = errors.New("shipment: destination warehouse not found")
)

// Store persists shipments. List returns newest first, scoped to the given
// source warehouses; empty scope means no filter.
type Store interface {
	Create(ctx context.Context, s *Shipment) error
	Shipment(ctx context.Context, id string) (Shipment, error)
	Update(ctx context.Context, s *Shipment) error
	List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Shipment, int, error)
	// HasActive reports whether the actor already has a shipment in
	// IN_DELIVERY.
	HasActive(ctx context.Context, email string) (bool, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Sequence hands out the monotonic counter embedded in shipment codes. A
// single shared sequence backs every creation.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// Assignments answers whether an actor is tied to a warehouse. Satisfied by
// auth.Gate.
type Assignments interface {
	Assigned(ctx context.Context, actorID, warehouseID string) (bool, error)
}
