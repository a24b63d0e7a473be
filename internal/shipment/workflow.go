// Package shipment drives the warehouse-to-warehouse transfer state machine.
//
// The IN_DELIVERY -> ALMOST_THERE advance runs on an in-process one-shot
// timer. It is not persisted: if the process dies before the timer fires,
// the shipment stays IN_DELIVERY until corrected externally.
package shipment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockyard.org/internal/auth"
	"stockyard.org/internal/events"
	"stockyard.org/internal/ids"
	"stockyard.org/internal/inventory"
	"stockyard.org/internal/obs"
)

// DefaultAdvanceAfter is how long an assigned shipment stays IN_DELIVERY
// before the automatic advance to ALMOST_THERE.
const DefaultAdvanceAfter = 10 * time.Second

// Workflow owns every shipment transition. Creation reserves source stock;
// finishing moves the units and releases the reservation in one unit.
type Workflow struct {
	store       Store
	ledger      inventory.Ledger
	catalog     inventory.Catalog
	seq         Sequence
	assignments Assignments
	bus         *events.Bus

	now          func() time.Time
	advanceAfter time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Option tweaks workflow construction.
type Option func(*Workflow)

// WithClock overrides the time source. Meant for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithAdvanceAfter overrides the delay before the automatic advance to
// ALMOST_THERE.
func WithAdvanceAfter(d time.Duration) Option {
	return func(w *Workflow) { w.advanceAfter = d }
}

// NewWorkflow wires the workflow to its collaborators.
func NewWorkflow(store Store, ledger inventory.Ledger, catalog inventory.Catalog, seq Sequence, assignments Assignments, bus *events.Bus, opts ...Option) (*Workflow, error) {
	if store == nil || ledger == nil || catalog == nil || seq == nil || assignments == nil || bus == nil {
		return nil, fmt.Errorf("shipment: all workflow collaborators are required")
	}
	w := &Workflow{
		store:        store,
		ledger:       ledger,
		catalog:      catalog,
		seq:          seq,
		assignments:  assignments,
		bus:          bus,
		now:          time.Now,
		advanceAfter: DefaultAdvanceAfter,
		timers:       make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Create opens a new PENDING shipment of qty units out of the given stock
// row. The actor must be tied to the source warehouse, the destination must
// exist and differ from the source, and qty must fit within the stock's
// available units. The reserved units stay allocated until Finish.
func (w *Workflow) Create(ctx context.Context, actor auth.ActorContext, stockID, destWarehouseID string, qty int) (Shipment, error) {
	if qty <= 0 {
		return Shipment{}, inventory.ErrInvalidQuantity
	}
	stock, err := w.ledger.Stock(ctx, stockID)
	if err != nil {
		return Shipment{}, err
	}
	ok, err := w.assignments.Assigned(ctx, actor.UserID, stock.WarehouseID)
	if err != nil {
		return Shipment{}, err
	}
	if !ok {
		return Shipment{}, fmt.Errorf("%w: actor %s is not tied to warehouse %s", ErrNotPermitted, actor.Email, stock.WarehouseID)
	}
	if qty > stock.Available() {
		return Shipment{}, fmt.Errorf("%w: requested %d, available %d", inventory.ErrInsufficientStock, qty, stock.Available())
	}
	dest, err := w.catalog.Warehouse(ctx, destWarehouseID)
	if err != nil {
		if errors.Is(err, inventory.ErrWarehouseNotFound) {
			return Shipment{}, ErrDestWarehouseNotFound
		}
		return Shipment{}, err
	}
	if dest.ID == stock.WarehouseID {
		return Shipment{}, fmt.Errorf("%w: source and destination warehouse are the same", ErrNotPermitted)
	}
	src, err := w.catalog.Warehouse(ctx, stock.WarehouseID)
	if err != nil {
		return Shipment{}, err
	}

	if _, err := w.ledger.Reserve(ctx, stock.ID, qty); err != nil {
		return Shipment{}, err
	}

	code, err := w.nextCode(ctx, src.Code, dest.Code)
	if err != nil {
		// Put the units back; the shipment was never persisted.
		if _, rerr := w.ledger.Release(ctx, stock.ID, qty); rerr != nil {
			return Shipment{}, fmt.Errorf("shipment: code generation failed (%v) and release failed: %w", err, rerr)
		}
		return Shipment{}, err
	}

	now := w.now()
	sh := Shipment{
		ID:                ids.New(),
		Code:              code,
		StockID:           stock.ID,
		SourceWarehouseID: stock.WarehouseID,
		DestWarehouseID:   dest.ID,
		ProductID:         stock.ProductID,
		Quantity:          qty,
		Status:            StatusPending,
		CreatedAt:         now,
		CreatedBy:         actor.Email,
		UpdatedAt:         now,
		UpdatedBy:         actor.Email,
	}
	if err := w.store.Create(ctx, &sh); err != nil {
		if _, rerr := w.ledger.Release(ctx, stock.ID, qty); rerr != nil {
			return Shipment{}, fmt.Errorf("shipment: persist failed (%v) and release failed: %w", err, rerr)
		}
		return Shipment{}, err
	}

	obs.ObserveShipmentTransition(string(StatusPending))
	w.bus.Broadcast(events.ShipmentCreated)
	return sh, nil
}

// AssignSelf puts the calling actor on a PENDING shipment and moves it to
// IN_DELIVERY. An actor carries at most one IN_DELIVERY shipment at a time.
// The automatic advance to ALMOST_THERE is scheduled here.
func (w *Workflow) AssignSelf(ctx context.Context, actor auth.ActorContext, shipmentID string) (Shipment, error) {
	sh, err := w.store.Shipment(ctx, shipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if sh.Status != StatusPending {
		return Shipment{}, fmt.Errorf("%w: shipment %s is %s", ErrInvalidState, sh.Code, sh.Status)
	}
	ok, err := w.assignments.Assigned(ctx, actor.UserID, sh.SourceWarehouseID)
	if err != nil {
		return Shipment{}, err
	}
	if !ok {
		return Shipment{}, fmt.Errorf("%w: actor %s is not tied to warehouse %s", ErrNotPermitted, actor.Email, sh.SourceWarehouseID)
	}
	active, err := w.store.HasActive(ctx, actor.Email)
	if err != nil {
		return Shipment{}, err
	}
	if active {
		return Shipment{}, fmt.Errorf("%w: actor %s already has a shipment in delivery", ErrNotPermitted, actor.Email)
	}

	sh.AssignedTo = actor.Email
	sh.Status = StatusInDelivery
	sh.UpdatedAt = w.now()
	sh.UpdatedBy = actor.Email
	if err := w.store.Update(ctx, &sh); err != nil {
		return Shipment{}, err
	}

	w.scheduleAdvance(sh.ID)
	obs.ObserveShipmentTransition(string(StatusInDelivery))
	w.bus.Broadcast(events.ShipmentUpdated)
	return sh, nil
}

// Finish completes an ALMOST_THERE shipment. Only the assigned actor may
// call it. Source quantity and allocated both drop by the shipment quantity
// and the destination stock grows by the same amount, atomically.
func (w *Workflow) Finish(ctx context.Context, actor auth.ActorContext, shipmentID string) (Shipment, error) {
	sh, err := w.store.Shipment(ctx, shipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if sh.AssignedTo == "" || sh.AssignedTo != actor.Email {
		return Shipment{}, fmt.Errorf("%w: shipment %s is not assigned to %s", ErrNotPermitted, sh.Code, actor.Email)
	}
	if sh.Status != StatusAlmostThere {
		return Shipment{}, fmt.Errorf("%w: shipment %s is %s", ErrInvalidState, sh.Code, sh.Status)
	}

	if err := w.ledger.CompleteTransfer(ctx, sh.StockID, sh.DestWarehouseID, sh.Quantity, actor.Email); err != nil {
		return Shipment{}, err
	}

	sh.Status = StatusDelivered
	sh.UpdatedAt = w.now()
	sh.UpdatedBy = actor.Email
	if err := w.store.Update(ctx, &sh); err != nil {
		return Shipment{}, err
	}

	obs.ObserveShipmentTransition(string(StatusDelivered))
	w.bus.Broadcast(events.ShipmentUpdated)
	return sh, nil
}

// Shipment loads one shipment by id.
func (w *Workflow) Shipment(ctx context.Context, id string) (Shipment, error) {
	return w.store.Shipment(ctx, id)
}

// List returns shipments sourced from the given warehouses, newest first.
func (w *Workflow) List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]Shipment, int, error) {
	return w.store.List(ctx, warehouseIDs, offset, limit)
}

// CountByStatus aggregates shipments per lifecycle stage.
func (w *Workflow) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return w.store.CountByStatus(ctx)
}

// Stop cancels all pending automatic advances. Shipments already IN_DELIVERY
// stay there; the advance does not survive a restart.
func (w *Workflow) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *Workflow) scheduleAdvance(shipmentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timers[shipmentID] = time.AfterFunc(w.advanceAfter, func() {
		w.advance(shipmentID)
	})
}

// advance is the timer body. Fire-once, no retry: any failure leaves the
// shipment IN_DELIVERY.
func (w *Workflow) advance(shipmentID string) {
	w.mu.Lock()
	delete(w.timers, shipmentID)
	w.mu.Unlock()

	ctx := context.Background()
	sh, err := w.store.Shipment(ctx, shipmentID)
	if err != nil {
		return
	}
	if sh.Status != StatusInDelivery {
		return
	}
	sh.Status = StatusAlmostThere
	sh.UpdatedAt = w.now()
	if err := w.store.Update(ctx, &sh); err != nil {
		return
	}
	obs.ObserveShipmentTransition(string(StatusAlmostThere))
	w.bus.Broadcast(events.ShipmentUpdated)
}

func (w *Workflow) nextCode(ctx context.Context, srcCode, destCode string) (string, error) {
	n, err := w.seq.Next(ctx)
	if err != nil {
		return "", err
	}
	now := w.now()
	return fmt.Sprintf("%s-%s-%d-%d-%d-%d", srcCode, destCode, now.Year(), int(now.Month()), now.Day(), n), nil
}
