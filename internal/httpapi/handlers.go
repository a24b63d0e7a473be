package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockyard.org/internal/auth"
	"stockyard.org/internal/events"
	"stockyard.org/internal/inventory"
	"stockyard.org/internal/obs"
	"stockyard.org/internal/order"
	"stockyard.org/internal/shipment"
	"stockyard.org/internal/sysconfig"
)

// ReadyProbe — readiness check (DB ping when a pool is configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the collaborators behind the HTTP surface.
type Deps struct {
	Gate      *auth.Gate
	AuthStore auth.Store
	Catalog   inventory.Catalog
	Ledger    inventory.Ledger
	Shipments *shipment.Workflow
	Orders    *order.Fulfillment
	Bus       *events.Bus
	Flags     sysconfig.Store

	// SessionTTL controls the max-age of the login cookie. Should match
	// the token TTL.
	SessionTTL time.Duration
}

// API — HTTP layer.
type API struct {
	mux        *http.ServeMux
	gate       *auth.Gate
	authStore  auth.Store
	catalog    inventory.Catalog
	ledger     inventory.Ledger
	shipments  *shipment.Workflow
	orders     *order.Fulfillment
	bus        *events.Bus
	flags      sysconfig.Store
	readyProbe ReadyProbe
	version    string
	sessionTTL time.Duration

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		gate:       deps.Gate,
		authStore:  deps.AuthStore,
		catalog:    deps.Catalog,
		ledger:     deps.Ledger,
		shipments:  deps.Shipments,
		orders:     deps.Orders,
		bus:        deps.Bus,
		flags:      deps.Flags,
		readyProbe: rp,
		version:    version,
		sessionTTL: deps.SessionTTL,
		rateBurst:  40,
		ratePerSec: 20,
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = time.Hour
	}

	// health/ready/probes
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/api/health/check", a.HealthCheck)

	// session
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)

	// catalog
	a.mux.HandleFunc("/api/product/create", a.handleProductCreate)
	a.mux.HandleFunc("/api/product/filter", a.handleProductFilter)
	a.mux.HandleFunc("/api/product/dropdown", a.handleProductDropdown)
	a.mux.HandleFunc("/api/warehouse/filter", a.handleWarehouseFilter)
	a.mux.HandleFunc("/api/warehouse/dropdown", a.handleWarehouseDropdown)
	a.mux.HandleFunc("/api/warehouse/details", a.handleWarehouseDetails)

	// stock
	a.mux.HandleFunc("/api/stock/create", a.handleStockCreate)
	a.mux.HandleFunc("/api/stock/filter", a.handleStockFilter)
	a.mux.HandleFunc("/api/stock/details", a.handleStockDetails)

	// shipments
	a.mux.HandleFunc("/api/shipment/create", a.handleShipmentCreate)
	a.mux.HandleFunc("/api/shipment/filter", a.handleShipmentFilter)
	a.mux.HandleFunc("/api/shipment/assign-myself", a.handleShipmentAssign)
	a.mux.HandleFunc("/api/shipment/finish", a.handleShipmentFinish)

	// orders
	a.mux.HandleFunc("/api/order/filter", a.handleOrderFilter)
	a.mux.HandleFunc("/api/order/fulfill", a.handleOrderFulfill)

	// dashboard
	a.mux.HandleFunc("/api/dashboard/charts", a.handleDashboardCharts)
	a.mux.HandleFunc("/api/dashboard/stream", a.handleDashboardStream)

	// sysconfig
	a.mux.HandleFunc("/api/sysconfig/get-simulation-flag", a.handleGetSimulationFlag)
	a.mux.HandleFunc("/api/sysconfig/toggle-simulation", a.handleToggleSimulation)
	a.mux.HandleFunc("/api/sysconfig/list-permissions", a.handleListPermissions)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- probes ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "stockyard-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
}

// --- shared response shapes ---

type messageResponse struct {
	Message string `json:"message"`
}

type idResponse struct {
	ID string `json:"id"`
}

type pageResponse struct {
	Data        any `json:"data"`
	CurrentPage int `json:"currentPage"`
	TotalItems  int `json:"totalItems"`
	TotalPages  int `json:"totalPages"`
}

func writePage(w http.ResponseWriter, data any, page, size, total int) {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Data:        data,
		CurrentPage: page,
		TotalItems:  total,
		TotalPages:  pages,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// pageParams reads page/size query parameters. Page numbering starts at 0.
func pageParams(q url.Values) (page, size int, err error) {
	page, err = parseBoundedInt(q.Get("page"), 0, 0, 1<<30)
	if err != nil {
		return 0, 0, errors.New("page must be a non-negative integer")
	}
	size, err = parseBoundedInt(q.Get("size"), 10, 1, 100)
	if err != nil {
		return 0, 0, errors.New("size must be between 1 and 100")
	}
	return page, size, nil
}

func parseBoundedInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}

// requiredID reads the id query parameter shared by the entity endpoints.
func requiredID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "id query parameter is required")
		return "", false
	}
	return id, true
}
