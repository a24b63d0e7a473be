package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockyard.org/internal/auth"
	"stockyard.org/internal/events"
	"stockyard.org/internal/ids"
	"stockyard.org/internal/inventory"
)

// Assignments answers whether an actor is tied to a warehouse. Satisfied by
// auth.Gate.
type Assignments interface {
	Assigned(ctx context.Context, actorID, warehouseID string) (bool, error)
}

// Fulfillment creates orders and commits them against the stock ledger.
// Fulfill is all-or-nothing: every line is checked before any stock row is
// touched.
type Fulfillment struct {
	store       Store
	ledger      inventory.Ledger
	catalog     inventory.Catalog
	assignments Assignments
	bus         *events.Bus
	now         func() time.Time
}

// Option tweaks fulfillment construction.
type Option func(*Fulfillment)

// WithClock overrides the time source. Meant for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Fulfillment) { f.now = now }
}

// NewFulfillment wires the service to its collaborators.
func NewFulfillment(store Store, ledger inventory.Ledger, catalog inventory.Catalog, assignments Assignments, bus *events.Bus, opts ...Option) (*Fulfillment, error) {
	if store == nil || ledger == nil || catalog == nil || assignments == nil || bus == nil {
		return nil, fmt.Errorf("order: all fulfillment collaborators are required")
	}
	f := &Fulfillment{
		store:       store,
		ledger:      ledger,
		catalog:     catalog,
		assignments: assignments,
		bus:         bus,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Demand is one requested product inside Create.
type Demand struct {
	ProductID string
	Quantity  int
}

// Create opens a PENDING order, snapshotting the current product prices into
// its lines. Stock is not checked or reserved here; the check happens at
// fulfillment time.
func (f *Fulfillment) Create(ctx context.Context, createdBy, warehouseID, customer string, demands []Demand) (Order, error) {
	if len(demands) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one line", ErrNotPermitted)
	}
	if _, err := f.catalog.Warehouse(ctx, warehouseID); err != nil {
		return Order{}, err
	}

	lines := make([]Line, 0, len(demands))
	for _, d := range demands {
		if d.Quantity <= 0 {
			return Order{}, inventory.ErrInvalidQuantity
		}
		p, err := f.catalog.Product(ctx, d.ProductID)
		if err != nil {
			return Order{}, err
		}
		lines = append(lines, Line{ProductID: p.ID, ProductName: p.Name, Quantity: d.Quantity, UnitPrice: p.Price})
	}

	now := f.now()
	o := Order{
		ID:          ids.New(),
		WarehouseID: warehouseID,
		Customer:    customer,
		Status:      StatusPending,
		Lines:       lines,
		CreatedAt:   now,
		CreatedBy:   createdBy,
		UpdatedAt:   now,
		UpdatedBy:   createdBy,
	}
	if err := f.store.Create(ctx, &o); err != nil {
		return Order{}, err
	}

	f.bus.Broadcast(events.OrderCreated)
	return o, nil
}

// Fulfill commits a PENDING order: every line's stock is verified first, and
// only then are the quantities decremented and the order marked COMPLETED.
// A single failing line leaves every stock row and the order untouched.
func (f *Fulfillment) Fulfill(ctx context.Context, actor auth.ActorContext, orderID string) (Order, error) {
	o, err := f.store.Order(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrNotPermitted, o.ID, o.Status)
	}
	ok, err := f.assignments.Assigned(ctx, actor.UserID, o.WarehouseID)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, fmt.Errorf("%w: actor %s is not tied to warehouse %s", ErrNotPermitted, actor.Email, o.WarehouseID)
	}

	demands := make([]inventory.Demand, 0, len(o.Lines))
	for _, l := range o.Lines {
		demands = append(demands, inventory.Demand{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	if err := f.ledger.ConsumeBatch(ctx, o.WarehouseID, demands, actor.Email); err != nil {
		if errors.Is(err, inventory.ErrStockNotFound) || errors.Is(err, inventory.ErrInsufficientStock) {
			return Order{}, fmt.Errorf("%w: %v", ErrQuantityRequirementNotFulfilled, err)
		}
		return Order{}, err
	}

	o.Status = StatusCompleted
	o.UpdatedAt = f.now()
	o.UpdatedBy = actor.Email
	if err := f.store.Update(ctx, &o); err != nil {
		return Order{}, err
	}

	f.bus.Broadcast(events.OrderUpdated)
	return o, nil
}

// Order loads one order by id.
func (f *Fulfillment) Order(ctx context.Context, id string) (Order, error) {
	return f.store.Order(ctx, id)
}

// List returns orders for the given warehouses, newest first.
func (f *Fulfillment) List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Order, int, error) {
	return f.store.List(ctx, warehouseIDs, offset, limit)
}

// CountByStatus aggregates orders per lifecycle stage.
func (f *Fulfillment) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return f.store.CountByStatus(ctx)
}

// TopSellingProducts ranks products by ordered quantity.
func (f *Fulfillment) TopSellingProducts(ctx context.Context, limit int) ([]ProductSales, error) {
	return f.store.TopSellingProducts(ctx, limit)
}
