package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"stockyard.org/internal/auth"
	"stockyard.org/internal/events"
	"stockyard.org/internal/inventory"
	"stockyard.org/internal/order"
	"stockyard.org/internal/shipment"
	"stockyard.org/internal/sysconfig"
)

type testEnv struct {
	t       *testing.T
	baseURL string
	client  *http.Client

	store  *auth.InMemory
	inv    *inventory.InMemory
	bus    *events.Bus
	orders *order.Fulfillment

	rootID     string
	viewerID   string
	viewerRole string

	mainWH  inventory.Warehouse
	otherWH inventory.Warehouse
	coffee  inventory.Product
	stock   inventory.Stock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := auth.NewInMemory()
	systemID := store.AddRole(auth.SystemRoleKey, "System", true)
	viewerRole := store.AddRole("AREA_MANAGER", "Area Manager", true)
	rootID := store.AddActor("root@example.com", "Root Admin", systemID, "root-pw")
	viewerID := store.AddActor("viewer@example.com", "Plain Viewer", viewerRole, "viewer-pw")

	tokens, err := auth.NewTokens("test-secret", "stockyard", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	gate, err := auth.NewGate(tokens, store, store, auth.DefaultPublicPaths())
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	inv := inventory.NewInMemory()
	ctx := t.Context()
	mainWH := inventory.Warehouse{Code: "ALA", Name: "Almaty"}
	otherWH := inventory.Warehouse{Code: "AST", Name: "Astana"}
	if err := inv.CreateWarehouse(ctx, &mainWH); err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	if err := inv.CreateWarehouse(ctx, &otherWH); err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	coffee := inventory.Product{SKU: "COF-001", Name: "Coffee", Price: 900}
	if err := inv.CreateProduct(ctx, &coffee); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	stock, err := inv.Receive(ctx, mainWH.ID, coffee.ID, 100, "seed")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	store.Assign(rootID, mainWH.ID)

	bus := events.NewBus()
	wf, err := shipment.NewWorkflow(shipment.NewInMemory(), inv, inv, &shipment.Counter{}, gate, bus,
		shipment.WithAdvanceAfter(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	t.Cleanup(wf.Stop)

	orders, err := order.NewFulfillment(order.NewInMemory(), inv, inv, gate, bus)
	if err != nil {
		t.Fatalf("NewFulfillment: %v", err)
	}

	flags := sysconfig.NewInMemory(map[string]string{
		sysconfig.SimulationRunFlag: "false",
	})

	api := New(ReadyProbe{}, "test", Deps{
		Gate:       gate,
		AuthStore:  store,
		Catalog:    inv,
		Ledger:     inv,
		Shipments:  wf,
		Orders:     orders,
		Bus:        bus,
		Flags:      flags,
		SessionTTL: time.Hour,
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewTLSServer(api.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := srv.Client()
	client.Jar = jar

	return &testEnv{
		t:        t,
		baseURL:  srv.URL,
		client:   client,
		store:    store,
		inv:      inv,
		bus:      bus,
		orders:   orders,
		rootID:     rootID,
		viewerID:   viewerID,
		viewerRole: viewerRole,
		mainWH:   mainWH,
		otherWH:  otherWH,
		coffee:   coffee,
		stock:    stock,
	}
}

func (e *testEnv) do(method, path string, params url.Values, body any) *http.Response {
	e.t.Helper()
	u, err := url.Parse(e.baseURL + path)
	if err != nil {
		e.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, u.String(), bytes.NewReader(payload))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (e *testEnv) get(path string, params url.Values) *http.Response {
	return e.do(http.MethodGet, path, params, nil)
}

func (e *testEnv) post(path string, body any) *http.Response {
	return e.do(http.MethodPost, path, nil, body)
}

func (e *testEnv) patch(path string, params url.Values) *http.Response {
	return e.do(http.MethodPatch, path, params, nil)
}

func (e *testEnv) login(email, password string) {
	e.t.Helper()
	resp := e.post("/api/auth/login", map[string]any{
		"email":    email,
		"password": password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("login status: %d", resp.StatusCode)
	}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthCheckIsPublic(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get("/api/health/check", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["message"] != "OK" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get("/api/product/filter", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != "Unauthorized" {
		t.Fatalf("unexpected error payload: %v", body)
	}
}

func TestPermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	env.login("viewer@example.com", "viewer-pw")

	resp := env.get("/api/product/filter", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestLoginMeLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/auth/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	me := decode[map[string]any](t, resp)
	if me["email"] != "root@example.com" || me["roleName"] != "System" {
		t.Fatalf("unexpected identity: %v", me)
	}

	resp = env.post("/api/auth/logout", map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}

	// The cookie is cleared and the token revoked; cached tokens fail too.
	resp = env.get("/api/auth/me", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestProductAndStockFlow(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.post("/api/product/create", map[string]any{
		"sku":   "TEA-001",
		"name":  "Tea",
		"price": 400,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("product create status: %d", resp.StatusCode)
	}
	created := decode[map[string]any](t, resp)
	productID, _ := created["id"].(string)
	if productID == "" {
		t.Fatalf("missing product id: %v", created)
	}

	// Duplicate SKU is a validation failure.
	resp = env.post("/api/product/create", map[string]any{
		"sku":   "TEA-001",
		"name":  "Tea Again",
		"price": 400,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate sku, got %d", resp.StatusCode)
	}

	resp = env.post("/api/stock/create", map[string]any{
		"warehouseId": env.mainWH.ID,
		"productId":   productID,
		"quantity":    25,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("stock create status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get("/api/stock/filter", url.Values{"page": {"0"}, "size": {"10"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stock filter status: %d", resp.StatusCode)
	}
	pageBody := decode[map[string]any](t, resp)
	if int(pageBody["totalItems"].(float64)) != 2 {
		t.Fatalf("expected 2 stocks in scope, got %v", pageBody["totalItems"])
	}
	if int(pageBody["currentPage"].(float64)) != 0 {
		t.Fatalf("unexpected currentPage: %v", pageBody["currentPage"])
	}

	resp = env.get("/api/warehouse/details", url.Values{"id": {env.mainWH.ID}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("warehouse details status: %d", resp.StatusCode)
	}
	details := decode[map[string]any](t, resp)
	stocks, _ := details["stocks"].([]any)
	if len(stocks) != 2 {
		t.Fatalf("expected 2 stock rows, got %d", len(stocks))
	}
}

func TestStockDetails(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/stock/details", url.Values{"id": {env.stock.ID}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("details status: %d", resp.StatusCode)
	}
	details := decode[map[string]any](t, resp)
	stock, _ := details["stock"].(map[string]any)
	if stock["id"] != env.stock.ID {
		t.Fatalf("unexpected stock: %v", details["stock"])
	}
	product, _ := details["product"].(map[string]any)
	if product["name"] != "Coffee" {
		t.Fatalf("unexpected product: %v", details["product"])
	}
	warehouse, _ := details["warehouse"].(map[string]any)
	if warehouse["id"] != env.mainWH.ID {
		t.Fatalf("unexpected warehouse: %v", details["warehouse"])
	}

	resp = env.get("/api/stock/details", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400, got %d", resp.StatusCode)
	}

	resp = env.get("/api/stock/details", url.Values{"id": {"no-such-stock"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown stock: expected 400, got %d", resp.StatusCode)
	}
}

func TestStockDetailsRequiresAssignment(t *testing.T) {
	env := newTestEnv(t)
	// Viewer may call the endpoint but is not tied to the stock's warehouse.
	env.store.AddPermission(env.viewerRole, "/api/stock/details")
	env.login("viewer@example.com", "viewer-pw")

	resp := env.get("/api/stock/details", url.Values{"id": {env.stock.ID}})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unassigned actor, got %d", resp.StatusCode)
	}
}

func TestProductDropdown(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/product/dropdown", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dropdown status: %d", resp.StatusCode)
	}
	items := decode[[]map[string]any](t, resp)
	if len(items) != 1 || items[0]["name"] != "Coffee" {
		t.Fatalf("unexpected dropdown: %v", items)
	}
}

func TestOrderFilterRequiresAssignment(t *testing.T) {
	env := newTestEnv(t)
	// Viewer holds no warehouse assignment; grant the endpoint permission so
	// the failure comes from scoping, not from the permission check.
	env.store.AddPermission(env.viewerRole, "/api/order/filter")
	env.login("viewer@example.com", "viewer-pw")

	resp := env.get("/api/order/filter", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unassigned actor, got %d", resp.StatusCode)
	}
}

func TestScopedFiltersRequireAssignment(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPermission(env.viewerRole, "/api/stock/filter")
	env.store.AddPermission(env.viewerRole, "/api/shipment/filter")
	env.login("viewer@example.com", "viewer-pw")

	for _, path := range []string{"/api/stock/filter", "/api/shipment/filter"} {
		resp := env.get(path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 for unassigned actor, got %d", path, resp.StatusCode)
		}
	}
}

func TestOrderFilterIncludesTotalPrice(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.orders.Create(t.Context(), "seed", env.mainWH.ID, "ACME Ltd", []order.Demand{
		{ProductID: env.coffee.ID, Quantity: 3},
	}); err != nil {
		t.Fatalf("Create order: %v", err)
	}
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/order/filter", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("order filter status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 order, got %v", body)
	}
	item, _ := data[0].(map[string]any)
	// 3 units of Coffee at 900 minor units each.
	if got := item["totalPrice"]; got != float64(2700) {
		t.Fatalf("totalPrice = %v, want 2700", got)
	}
}

func TestDashboardCharts(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/dashboard/charts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("charts status: %d", resp.StatusCode)
	}
	charts := decode[map[string]any](t, resp)
	for _, key := range []string{"ordersByStatus", "shipmentsByStatus", "inventoryByWarehouse", "topSellingProducts"} {
		if _, ok := charts[key]; !ok {
			t.Fatalf("charts response missing %q: %v", key, charts)
		}
	}
}

func TestSimulationFlagToggle(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/sysconfig/get-simulation-flag", nil)
	flag := decode[map[string]any](t, resp)
	if flag["enabled"] != false {
		t.Fatalf("expected flag off, got %v", flag)
	}

	resp = env.post("/api/sysconfig/toggle-simulation", map[string]any{})
	flag = decode[map[string]any](t, resp)
	if flag["enabled"] != true {
		t.Fatalf("expected flag on after toggle, got %v", flag)
	}
}

func TestListPermissions(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPermission("some-role", "/api/order/filter")
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/sysconfig/list-permissions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("permissions status: %d", resp.StatusCode)
	}
	items := decode[[]map[string]any](t, resp)
	if len(items) != 1 || items[0]["resourcePath"] != "/api/order/filter" {
		t.Fatalf("unexpected permission list: %v", items)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.get("/api/product/create", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("unexpected Allow header: %q", resp.Header.Get("Allow"))
	}
}
