package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"stockyard.org/internal/inventory"
	"stockyard.org/internal/order"
)

const topProductsLimit = 5

type chartDatum struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

type chartsResponse struct {
	OrdersByStatus       []chartDatum                  `json:"ordersByStatus"`
	ShipmentsByStatus    []chartDatum                  `json:"shipmentsByStatus"`
	InventoryByWarehouse []inventory.WarehouseQuantity `json:"inventoryByWarehouse"`
	TopSellingProducts   []order.ProductSales          `json:"topSellingProducts"`
}

func (a *API) handleDashboardCharts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	orderCounts, err := a.orders.CountByStatus(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	shipmentCounts, err := a.shipments.CountByStatus(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	byWarehouse, err := a.ledger.QuantityByWarehouse(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	topProducts, err := a.orders.TopSellingProducts(r.Context(), topProductsLimit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	ordersByStatus := make([]chartDatum, 0, len(orderCounts))
	for status, n := range orderCounts {
		ordersByStatus = append(ordersByStatus, chartDatum{Label: string(status), Value: n})
	}
	shipmentsByStatus := make([]chartDatum, 0, len(shipmentCounts))
	for status, n := range shipmentCounts {
		shipmentsByStatus = append(shipmentsByStatus, chartDatum{Label: string(status), Value: n})
	}
	sortCharts(ordersByStatus)
	sortCharts(shipmentsByStatus)

	writeJSON(w, http.StatusOK, chartsResponse{
		OrdersByStatus:       ordersByStatus,
		ShipmentsByStatus:    shipmentsByStatus,
		InventoryByWarehouse: byWarehouse,
		TopSellingProducts:   topProducts,
	})
}

func sortCharts(data []chartDatum) {
	sort.Slice(data, func(i, j int) bool { return data[i].Label < data[j].Label })
}

// handleDashboardStream serves the Server-Sent Events feed of domain events.
// Heartbeat messages go out as SSE comments so clients see traffic without an
// event to dispatch.
func (a *API) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.bus == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, ch := a.bus.Subscribe()
	defer a.bus.Unsubscribe(id)

	// Initial comment establishes the stream on the client side.
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			if msg.Heartbeat {
				_, _ = w.Write([]byte(":heartbeat\n\n"))
				flusher.Flush()
				continue
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
