package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockyard.org/internal/auth"
	"stockyard.org/internal/events"
	"stockyard.org/internal/httpapi"
	"stockyard.org/internal/inventory"
	"stockyard.org/internal/obs"
	"stockyard.org/internal/order"
	"stockyard.org/internal/shipment"
	"stockyard.org/internal/simulator"
	"stockyard.org/internal/store/pg"
	"stockyard.org/internal/sysconfig"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("STOCKYARD_AUTH_SECRET")
	if secret == "" {
		log.Fatal("STOCKYARD_AUTH_SECRET is required")
	}
	ttl := time.Hour
	if raw := os.Getenv("STOCKYARD_AUTH_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			log.Fatalf("invalid STOCKYARD_AUTH_TTL: %q", raw)
		}
		ttl = parsed
	}
	addr := os.Getenv("STOCKYARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	tokens, err := auth.NewTokens(secret, "stockyard", ttl)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	// Persistence: Postgres when a DSN is configured, in-memory demo mode
	// otherwise.
	var (
		db         *sql.DB
		authStore  auth.Store
		creds      auth.Credentials
		catalog    inventory.Catalog
		ledger     inventory.Ledger
		shipStore  shipment.Store
		seq        shipment.Sequence
		orderStore order.Store
		flags      sysconfig.Store
	)
	if dsn := os.Getenv("STOCKYARD_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		db = store.DB()
		authStore = store
		creds = store
		catalog = store
		ledger = store
		shipStore = store.Shipments()
		seq = store.Shipments()
		orderStore = store.Orders()
		flags = store
	} else {
		log.Println("STOCKYARD_PG_DSN not set, running with in-memory state")
		mem := auth.NewInMemory()
		roleID := mem.AddRole(auth.SystemRoleKey, "System", true)
		mem.AddActor("admin@stockyard.org", "Admin", roleID, "changeme")
		authStore = mem
		creds = mem
		inv := inventory.NewInMemory()
		catalog = inv
		ledger = inv
		shipStore = shipment.NewInMemory()
		seq = &shipment.Counter{}
		orderStore = order.NewInMemory()
		flags = sysconfig.NewInMemory(map[string]string{
			sysconfig.SimulationRunFlag: "false",
		})
	}

	gate, err := auth.NewGate(tokens, authStore, creds, auth.DefaultPublicPaths())
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	bus := events.NewBus()
	stopHeartbeat := bus.StartHeartbeat(events.DefaultHeartbeatInterval)
	defer stopHeartbeat()

	workflow, err := shipment.NewWorkflow(shipStore, ledger, catalog, seq, gate, bus)
	if err != nil {
		log.Fatalf("shipment workflow: %v", err)
	}
	defer workflow.Stop()

	orders, err := order.NewFulfillment(orderStore, ledger, catalog, gate, bus)
	if err != nil {
		log.Fatalf("order fulfillment: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := simulator.New(flags, catalog, orders)
	go sim.Run(ctx)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Gate:       gate,
		AuthStore:  authStore,
		Catalog:    catalog,
		Ledger:     ledger,
		Shipments:  workflow,
		Orders:     orders,
		Bus:        bus,
		Flags:      flags,
		SessionTTL: ttl,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// The dashboard stream stays open far longer than a normal
		// request; WriteTimeout would sever it.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting stockyard-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
