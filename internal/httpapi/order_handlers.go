package httpapi

import (
	"errors"
	"net/http"

	"stockyard.org/internal/order"
)

// orderItem carries an order plus its computed total, which is not stored.
type orderItem struct {
	order.Order
	TotalPrice int64 `json:"totalPrice"`
}

// handleOrderFilter lists orders scoped to the actor's warehouses. An actor
// with no assignments cannot see any orders and gets an explicit error, not
// an empty page.
func (a *API) handleOrderFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	page, size, err := pageParams(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scope, err := a.gate.WarehouseIDs(r.Context(), act.UserID)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	items, total, err := a.orders.List(r.Context(), scope, page*size, size)
	if err != nil {
		handleOrderError(w, r, err)
		return
	}
	data := make([]orderItem, 0, len(items))
	for _, o := range items {
		data = append(data, orderItem{Order: o, TotalPrice: o.Total()})
	}
	writePage(w, data, page, size, total)
}

func (a *API) handleOrderFulfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	id, ok := requiredID(w, r)
	if !ok {
		return
	}
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if _, err := a.orders.Fulfill(r.Context(), act, id); err != nil {
		handleOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
}

func handleOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotPermitted):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrQuantityRequirementNotFulfilled):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
