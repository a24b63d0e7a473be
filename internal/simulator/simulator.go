// Package simulator feeds the system with synthetic customer orders so the
// dashboard has something to show outside business hours.
package simulator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"stockyard.org/internal/inventory"
	"stockyard.org/internal/obs"
	"stockyard.org/internal/order"
	"stockyard.org/internal/sysconfig"
)

// DefaultInterval between simulation passes.
const DefaultInterval = 2 * time.Minute

var customerNames = []string{
	"Yuki Tanaka", "Hiroshi Sato", "Kenji Suzuki",
	"Akiko Takahashi", "Minoru Watanabe", "Haruto Ito",
	"Yua Yamamoto", "Ren Nakamura", "Daiki Shimizu",
	"Nanami Yamazaki", "Kouta Mori", "Rin Abe",
	"Takumi Ikeda", "Hana Hashimoto", "Ryota Yamashita",
	"James Smith", "Emma Johnson", "Robert Williams",
	"Olivia Brown", "Michael Jones", "Sophia Garcia",
	"William Miller", "Isabella Davis", "David Rodriguez",
	"Mia Martinez", "Richard Hernandez", "Charlotte Lopez",
	"Joseph Gonzalez", "Amelia Wilson", "Thomas Anderson",
}

// Simulator periodically creates a random PENDING order while the
// SIMULATION_RUN_FLAG toggle reads true. Each order has 1-3 lines of 1-10
// units against random products in a random warehouse.
type Simulator struct {
	flags    sysconfig.Store
	catalog  inventory.Catalog
	orders   *order.Fulfillment
	interval time.Duration
	rnd      *rand.Rand
}

// Option tweaks simulator construction.
type Option func(*Simulator)

// WithInterval overrides the pass interval.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) { s.interval = d }
}

// WithSeed makes the random choices reproducible. Meant for tests.
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.rnd = rand.New(rand.NewSource(seed)) }
}

// New wires the simulator to its collaborators.
func New(flags sysconfig.Store, catalog inventory.Catalog, orders *order.Fulfillment, opts ...Option) *Simulator {
	s := &Simulator{
		flags:    flags,
		catalog:  catalog,
		orders:   orders,
		interval: DefaultInterval,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops until the context is cancelled. Pass failures are logged and
// retried on the next tick.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				obs.Logger().Printf(`{"level":"warn","msg":"simulator pass failed","err":%q}`, err.Error())
			}
		}
	}
}

// Tick runs a single simulation pass. A missing or disabled flag and an
// empty catalog are quiet no-ops.
func (s *Simulator) Tick(ctx context.Context) error {
	flag, err := s.flags.Get(ctx, sysconfig.SimulationRunFlag)
	if err != nil {
		if errors.Is(err, sysconfig.ErrNotFound) {
			return nil
		}
		return err
	}
	if !flag.Enabled() {
		return nil
	}

	products, err := s.catalog.Products(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}
	warehouses, err := s.catalog.Warehouses(ctx)
	if err != nil {
		return err
	}
	if len(warehouses) == 0 {
		return nil
	}

	customer := customerNames[s.rnd.Intn(len(customerNames))]
	warehouse := warehouses[s.rnd.Intn(len(warehouses))]

	n := s.rnd.Intn(3) + 1
	demands := make([]order.Demand, 0, n)
	for i := 0; i < n; i++ {
		p := products[s.rnd.Intn(len(products))]
		demands = append(demands, order.Demand{ProductID: p.ID, Quantity: s.rnd.Intn(10) + 1})
	}

	o, err := s.orders.Create(ctx, customer, warehouse.ID, customer, demands)
	if err != nil {
		return err
	}
	obs.Logger().Printf(`{"level":"info","msg":"simulated order created","order_id":%q,"customer":%q}`, o.ID, customer)
	return nil
}
