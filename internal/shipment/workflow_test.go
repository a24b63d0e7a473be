package shipment

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockyard.org/internal/auth"
	"stockyard.org/internal/events"
	"stockyard.org/internal/ids"
	"stockyard.org/internal/inventory"
)

// assignmentsFunc adapts a func into the Assignments interface.
type assignmentsFunc func(actorID, warehouseID string) bool

func (f assignmentsFunc) Assigned(ctx context.Context, actorID, warehouseID string) (bool, error) {
	return f(actorID, warehouseID), nil
}

type fixture struct {
	wf    *Workflow
	inv   *inventory.InMemory
	store *InMemory
	src   inventory.Warehouse
	dst   inventory.Warehouse
	stock inventory.Stock
	actor auth.ActorContext
}

// newFixture seeds two warehouses, 100 units of one product in the source,
// and an actor tied only to the source warehouse. The automatic advance is
// shortened so tests can wait for it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	inv := inventory.NewInMemory()
	src := inventory.Warehouse{ID: ids.New(), Code: "ALA", Name: "Almaty"}
	dst := inventory.Warehouse{ID: ids.New(), Code: "AST", Name: "Astana"}
	for _, w := range []*inventory.Warehouse{&src, &dst} {
		if err := inv.CreateWarehouse(ctx, w); err != nil {
			t.Fatalf("CreateWarehouse: %v", err)
		}
	}
	p := inventory.Product{ID: ids.New(), SKU: "SKU-100", Name: "Widget", Price: 1450}
	if err := inv.CreateProduct(ctx, &p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	stock, err := inv.Receive(ctx, src.ID, p.ID, 100, "seed")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	actor := auth.ActorContext{UserID: ids.New(), Email: "courier@stockyard.org", RoleName: "AREA_MANAGER"}
	assigned := assignmentsFunc(func(actorID, warehouseID string) bool {
		return actorID == actor.UserID && warehouseID == src.ID
	})

	store := NewInMemory()
	wf, err := NewWorkflow(store, inv, inv, &Counter{}, assigned, events.NewBus(),
		WithAdvanceAfter(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	t.Cleanup(wf.Stop)

	return &fixture{wf: wf, inv: inv, store: store, src: src, dst: dst, stock: stock, actor: actor}
}

func (f *fixture) waitForStatus(t *testing.T, id string, want Status) Shipment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sh, err := f.wf.Shipment(context.Background(), id)
		if err != nil {
			t.Fatalf("Shipment: %v", err)
		}
		if sh.Status == want {
			return sh
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("shipment %s never reached %s", id, want)
	return Shipment{}
}

func TestCreateReservesAndGeneratesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 40)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sh.Status != StatusPending {
		t.Fatalf("status = %s, want %s", sh.Status, StatusPending)
	}

	wantPrefix := "ALA-AST-"
	if len(sh.Code) <= len(wantPrefix) || sh.Code[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("code = %q, want prefix %q", sh.Code, wantPrefix)
	}
	if sh.Code[len(sh.Code)-1] != '1' {
		t.Fatalf("code = %q, want counter 1", sh.Code)
	}

	st, err := f.inv.Stock(ctx, f.stock.ID)
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if st.Allocated != 40 || st.Quantity != 100 {
		t.Fatalf("stock after create: quantity=%d allocated=%d", st.Quantity, st.Allocated)
	}

	// Counter is shared across creations.
	second, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 10)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.Code[len(second.Code)-1] != '2' {
		t.Fatalf("second code = %q, want counter 2", second.Code)
	}
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 0); !errors.Is(err, inventory.ErrInvalidQuantity) {
		t.Fatalf("zero qty: err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 101); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("over available: err = %v, want ErrInsufficientStock", err)
	}
	if _, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.src.ID, 10); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("same warehouse: err = %v, want ErrNotPermitted", err)
	}
	if _, err := f.wf.Create(ctx, f.actor, f.stock.ID, ids.New(), 10); !errors.Is(err, ErrDestWarehouseNotFound) {
		t.Fatalf("unknown dest: err = %v, want ErrDestWarehouseNotFound", err)
	}

	stranger := auth.ActorContext{UserID: ids.New(), Email: "stranger@stockyard.org"}
	if _, err := f.wf.Create(ctx, stranger, f.stock.ID, f.dst.ID, 10); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("untied actor: err = %v, want ErrNotPermitted", err)
	}

	// Failed creations must not leak reservations.
	st, err := f.inv.Stock(ctx, f.stock.ID)
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if st.Allocated != 0 {
		t.Fatalf("allocated = %d after failed creates, want 0", st.Allocated)
	}
}

func TestCreateAvailabilityCheckedBeforeDestination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// When the quantity is unfillable the caller hears about the stock,
	// even if the destination id is bogus too.
	if _, err := f.wf.Create(ctx, f.actor, f.stock.ID, ids.New(), 101); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("over available + unknown dest: err = %v, want ErrInsufficientStock", err)
	}

	// Reserving part of the stock shrinks what a new shipment may take.
	if _, err := f.inv.Reserve(ctx, f.stock.ID, 95); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 10); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("over remaining: err = %v, want ErrInsufficientStock", err)
	}
	if _, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 5); err != nil {
		t.Fatalf("within remaining: %v", err)
	}
}

func TestAssignSelfOnceAndAutoAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 25)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := f.wf.AssignSelf(ctx, f.actor, sh.ID)
	if err != nil {
		t.Fatalf("AssignSelf: %v", err)
	}
	if got.Status != StatusInDelivery || got.AssignedTo != f.actor.Email {
		t.Fatalf("after assign: status=%s assignedTo=%q", got.Status, got.AssignedTo)
	}

	// Second assign on the same shipment fails once it left PENDING.
	if _, err := f.wf.AssignSelf(ctx, f.actor, sh.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second assign: err = %v, want ErrInvalidState", err)
	}

	f.waitForStatus(t, sh.ID, StatusAlmostThere)
}

func TestSingleActiveShipmentPerActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.wf.AssignSelf(ctx, f.actor, first.ID); err != nil {
		t.Fatalf("AssignSelf first: %v", err)
	}
	if _, err := f.wf.AssignSelf(ctx, f.actor, second.ID); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("assign while in delivery: err = %v, want ErrNotPermitted", err)
	}
}

func TestFinishRoundTripConservesUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 30)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.wf.AssignSelf(ctx, f.actor, sh.ID); err != nil {
		t.Fatalf("AssignSelf: %v", err)
	}

	// Finishing before the advance fires is rejected.
	if _, err := f.wf.Finish(ctx, f.actor, sh.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("early finish: err = %v, want ErrInvalidState", err)
	}

	f.waitForStatus(t, sh.ID, StatusAlmostThere)

	// Only the assigned actor may finish.
	stranger := auth.ActorContext{UserID: ids.New(), Email: "stranger@stockyard.org"}
	if _, err := f.wf.Finish(ctx, stranger, sh.ID); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("foreign finish: err = %v, want ErrNotPermitted", err)
	}

	done, err := f.wf.Finish(ctx, f.actor, sh.ID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if done.Status != StatusDelivered {
		t.Fatalf("status = %s, want %s", done.Status, StatusDelivered)
	}

	src, err := f.inv.Stock(ctx, f.stock.ID)
	if err != nil {
		t.Fatalf("source Stock: %v", err)
	}
	if src.Quantity != 70 || src.Allocated != 0 {
		t.Fatalf("source after finish: quantity=%d allocated=%d", src.Quantity, src.Allocated)
	}
	dst, err := f.inv.StockFor(ctx, f.dst.ID, sh.ProductID)
	if err != nil {
		t.Fatalf("dest StockFor: %v", err)
	}
	if dst.Quantity != 30 || dst.Allocated != 0 {
		t.Fatalf("dest after finish: quantity=%d allocated=%d", dst.Quantity, dst.Allocated)
	}
	if src.Quantity+dst.Quantity != 100 {
		t.Fatalf("system-wide units = %d, want 100", src.Quantity+dst.Quantity)
	}
}

func TestFinishUnassignedShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.wf.Finish(ctx, f.actor, sh.ID); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("finish unassigned: err = %v, want ErrNotPermitted", err)
	}
	if _, err := f.wf.Finish(ctx, f.actor, ids.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finish missing: err = %v, want ErrNotFound", err)
	}
}

func TestListScopedNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := f.wf.Create(ctx, f.actor, f.stock.ID, f.dst.ID, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, total, err := f.wf.List(ctx, []string{f.src.ID}, 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("total=%d len=%d, want 2/2", total, len(got))
	}
	if got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("list order not newest first")
	}

	got, total, err = f.wf.List(ctx, []string{f.dst.ID}, 0, 10)
	if err != nil {
		t.Fatalf("List scoped: %v", err)
	}
	if total != 0 || len(got) != 0 {
		t.Fatalf("dest scope total=%d len=%d, want 0/0", total, len(got))
	}
}
