package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"stockyard.org/internal/inventory"
)

type createProductRequest struct {
	SKU   string `json:"sku"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type createStockRequest struct {
	WarehouseID string `json:"warehouseId"`
	ProductID   string `json:"productId"`
	Quantity    int    `json:"quantity"`
}

type dropdownItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type warehouseDetailsResponse struct {
	Warehouse inventory.Warehouse `json:"warehouse"`
	Stocks    []inventory.Stock   `json:"stocks"`
}

type stockDetailsResponse struct {
	Stock     inventory.Stock     `json:"stock"`
	Product   inventory.Product   `json:"product"`
	Warehouse inventory.Warehouse `json:"warehouse"`
}

func (a *API) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "sku and name are required")
		return
	}
	if req.Price < 0 {
		writeError(w, r, http.StatusBadRequest, "price must be >= 0")
		return
	}

	act, _ := actor(r)
	p := inventory.Product{
		SKU:       strings.TrimSpace(req.SKU),
		Name:      strings.TrimSpace(req.Name),
		Price:     req.Price,
		CreatedBy: act.Email,
	}
	if err := a.catalog.CreateProduct(r.Context(), &p); err != nil {
		handleInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: p.ID})
}

func (a *API) handleProductFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	page, size, err := pageParams(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := a.catalog.ListProducts(r.Context(), page*size, size)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	writePage(w, items, page, size, total)
}

func (a *API) handleProductDropdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	products, err := a.catalog.Products(r.Context())
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	items := make([]dropdownItem, 0, len(products))
	for _, p := range products {
		items = append(items, dropdownItem{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleWarehouseFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	page, size, err := pageParams(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := a.catalog.ListWarehouses(r.Context(), page*size, size)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	writePage(w, items, page, size, total)
}

func (a *API) handleWarehouseDropdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	warehouses, err := a.catalog.Warehouses(r.Context())
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	items := make([]dropdownItem, 0, len(warehouses))
	for _, wh := range warehouses {
		items = append(items, dropdownItem{ID: wh.ID, Name: wh.Name})
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleWarehouseDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := requiredID(w, r)
	if !ok {
		return
	}
	wh, err := a.catalog.Warehouse(r.Context(), id)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	stocks, err := a.ledger.StocksByWarehouse(r.Context(), id)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warehouseDetailsResponse{Warehouse: wh, Stocks: stocks})
}

// handleStockCreate receives units into a warehouse, creating the stock row
// on first receipt.
func (a *API) handleStockCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createStockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.WarehouseID == "" || req.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, "warehouseId and productId are required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, r, http.StatusBadRequest, "quantity must be > 0")
		return
	}
	if _, err := a.catalog.Warehouse(r.Context(), req.WarehouseID); err != nil {
		handleInventoryError(w, r, err)
		return
	}
	if _, err := a.catalog.Product(r.Context(), req.ProductID); err != nil {
		handleInventoryError(w, r, err)
		return
	}

	act, _ := actor(r)
	stock, err := a.ledger.Receive(r.Context(), req.WarehouseID, req.ProductID, req.Quantity, act.Email)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: stock.ID})
}

// handleStockDetails resolves one stock row with its product and warehouse.
// The actor must hold an assignment to the stock's warehouse.
func (a *API) handleStockDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
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
	stock, err := a.ledger.Stock(r.Context(), id)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	assigned, err := a.gate.Assigned(r.Context(), act.UserID, stock.WarehouseID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !assigned {
		writeError(w, r, http.StatusForbidden, "operation not permitted")
		return
	}
	product, err := a.catalog.Product(r.Context(), stock.ProductID)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	warehouse, err := a.catalog.Warehouse(r.Context(), stock.WarehouseID)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stockDetailsResponse{
		Stock:     stock,
		Product:   product,
		Warehouse: warehouse,
	})
}

func (a *API) handleStockFilter(w http.ResponseWriter, r *http.Request) {
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
	items, total, err := a.ledger.ListStocks(r.Context(), scope, page*size, size)
	if err != nil {
		handleInventoryError(w, r, err)
		return
	}
	writePage(w, items, page, size, total)
}

func handleInventoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, inventory.ErrWarehouseNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, inventory.ErrStockNotFound),
		errors.Is(err, inventory.ErrSKUExists),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
