package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"stockyard.org/internal/events"
)

func TestShipmentLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	resp := env.post("/api/shipment/create", map[string]any{
		"stockId":         env.stock.ID,
		"destWarehouseId": env.otherWH.ID,
		"quantity":        30,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("shipment create status: %d", resp.StatusCode)
	}
	created := decode[map[string]any](t, resp)
	shipmentID, _ := created["id"].(string)
	if shipmentID == "" {
		t.Fatalf("missing shipment id: %v", created)
	}

	resp = env.get("/api/shipment/filter", nil)
	page := decode[map[string]any](t, resp)
	if int(page["totalItems"].(float64)) != 1 {
		t.Fatalf("expected 1 shipment in scope, got %v", page["totalItems"])
	}

	resp = env.patch("/api/shipment/assign-myself", url.Values{"id": {shipmentID}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign status: %d", resp.StatusCode)
	}

	// Finishing before the automatic advance is a state violation.
	resp = env.patch("/api/shipment/finish", url.Values{"id": {shipmentID}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 before ALMOST_THERE, got %d", resp.StatusCode)
	}

	waitForShipmentStatus(t, env, shipmentID, "ALMOST_THERE")

	resp = env.patch("/api/shipment/finish", url.Values{"id": {shipmentID}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish status: %d", resp.StatusCode)
	}

	// Units moved into the destination warehouse.
	stock, err := env.inv.StockFor(t.Context(), env.otherWH.ID, env.coffee.ID)
	if err != nil {
		t.Fatalf("StockFor: %v", err)
	}
	if stock.Quantity != 30 {
		t.Fatalf("destination quantity = %d, want 30", stock.Quantity)
	}
	src, err := env.inv.Stock(t.Context(), env.stock.ID)
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if src.Quantity != 70 || src.Allocated != 0 {
		t.Fatalf("source quantity/allocated = %d/%d, want 70/0", src.Quantity, src.Allocated)
	}
}

func waitForShipmentStatus(t *testing.T, env *testEnv, id, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp := env.get("/api/shipment/filter", nil)
		page := decode[map[string]any](t, resp)
		items, _ := page["data"].([]any)
		for _, it := range items {
			m, _ := it.(map[string]any)
			if m["id"] == id && m["status"] == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("shipment %s never reached %s", id, want)
}

func TestDashboardStreamDeliversEvents(t *testing.T) {
	env := newTestEnv(t)
	env.login("root@example.com", "root-pw")

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.baseURL+"/api/dashboard/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", got)
	}
	if resp.Header.Get("X-Accel-Buffering") != "no" {
		t.Fatalf("missing X-Accel-Buffering header")
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read opening comment: %v", err)
	}
	if !strings.HasPrefix(line, ":") {
		t.Fatalf("expected SSE comment, got %q", line)
	}

	// Wait for the handler to register before broadcasting.
	deadline := time.Now().Add(time.Second)
	for env.bus.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	env.bus.Broadcast(events.OrderCreated)

	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, events.OrderCreated) {
				t.Fatalf("unexpected event payload: %q", line)
			}
			return
		}
	}
}
