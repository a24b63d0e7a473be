package httpapi

import (
	"errors"
	"net/http"

	"stockyard.org/internal/inventory"
	"stockyard.org/internal/shipment"
)

type createShipmentRequest struct {
	StockID         string `json:"stockId"`
	DestWarehouseID string `json:"destWarehouseId"`
	Quantity        int    `json:"quantity"`
}

func (a *API) handleShipmentCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createShipmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.StockID == "" || req.DestWarehouseID == "" {
		writeError(w, r, http.StatusBadRequest, "stockId and destWarehouseId are required")
		return
	}

	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s, err := a.shipments.Create(r.Context(), act, req.StockID, req.DestWarehouseID, req.Quantity)
	if err != nil {
		handleShipmentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: s.ID})
}

func (a *API) handleShipmentFilter(w http.ResponseWriter, r *http.Request) {
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
	items, total, err := a.shipments.List(r.Context(), scope, page*size, size)
	if err != nil {
		handleShipmentError(w, r, err)
		return
	}
	writePage(w, items, page, size, total)
}

func (a *API) handleShipmentAssign(w http.ResponseWriter, r *http.Request) {
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
	if _, err := a.shipments.AssignSelf(r.Context(), act, id); err != nil {
		handleShipmentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
}

func (a *API) handleShipmentFinish(w http.ResponseWriter, r *http.Request) {
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
	if _, err := a.shipments.Finish(r.Context(), act, id); err != nil {
		handleShipmentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
}

func handleShipmentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shipment.ErrNotPermitted):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, shipment.ErrNotFound),
		errors.Is(err, shipment.ErrInvalidState),
		errors.Is(err, shipment.ErrDestWarehouseNotFound),
		errors.Is(err, inventory.ErrStockNotFound),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
