package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockyard.org/internal/ids"
	"stockyard.org/internal/inventory"
)

var (
	_ inventory.Catalog = (*Store)(nil)
	_ inventory.Ledger  = (*Store)(nil)
)

func (s *Store) CreateWarehouse(ctx context.Context, w *inventory.Warehouse) error {
	if w.ID == "" {
		w.ID = ids.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into warehouses (id, code, name, created_at)
		values ($1, $2, $3, $4)
	`, w.ID, w.Code, w.Name, w.CreatedAt)
	return err
}

func (s *Store) Warehouse(ctx context.Context, id string) (inventory.Warehouse, error) {
	var w inventory.Warehouse
	err := s.db.QueryRowContext(ctx, `
		select id, code, name, created_at from warehouses where id = $1
	`, id).Scan(&w.ID, &w.Code, &w.Name, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Warehouse{}, inventory.ErrWarehouseNotFound
	}
	if err != nil {
		return inventory.Warehouse{}, err
	}
	return w, nil
}

func (s *Store) Warehouses(ctx context.Context) ([]inventory.Warehouse, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, code, name, created_at from warehouses order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Warehouse
	for rows.Next() {
		var w inventory.Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (s *Store) ListWarehouses(ctx context.Context, offset, limit int) ([]inventory.Warehouse, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from warehouses`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, code, name, created_at
		from warehouses
		order by created_at desc
		offset $1 limit $2
	`, offset, normalizeLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []inventory.Warehouse
	for rows.Next() {
		var w inventory.Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.CreatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, w)
	}
	return result, total, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, p *inventory.Product) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into products (id, sku, name, price, created_at, created_by)
		values ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.SKU, p.Name, p.Price, p.CreatedAt, p.CreatedBy)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return inventory.ErrSKUExists
	}
	return err
}

func (s *Store) Product(ctx context.Context, id string) (inventory.Product, error) {
	var p inventory.Product
	err := s.db.QueryRowContext(ctx, `
		select id, sku, name, price, created_at, coalesce(created_by, '')
		from products where id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.CreatedAt, &p.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	if err != nil {
		return inventory.Product{}, err
	}
	return p, nil
}

func (s *Store) Products(ctx context.Context) ([]inventory.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, sku, name, price, created_at, coalesce(created_by, '')
		from products order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Product
	for rows.Next() {
		var p inventory.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.CreatedAt, &p.CreatedBy); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, offset, limit int) ([]inventory.Product, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from products`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, sku, name, price, created_at, coalesce(created_by, '')
		from products
		order by created_at desc
		offset $1 limit $2
	`, offset, normalizeLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []inventory.Product
	for rows.Next() {
		var p inventory.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.CreatedAt, &p.CreatedBy); err != nil {
			return nil, 0, err
		}
		result = append(result, p)
	}
	return result, total, rows.Err()
}

const stockColumns = `id, warehouse_id, product_id, quantity, allocated,
	created_at, coalesce(created_by, ''), updated_at, coalesce(updated_by, '')`

func scanStock(row interface{ Scan(...any) error }) (inventory.Stock, error) {
	var st inventory.Stock
	err := row.Scan(&st.ID, &st.WarehouseID, &st.ProductID, &st.Quantity, &st.Allocated,
		&st.CreatedAt, &st.CreatedBy, &st.UpdatedAt, &st.UpdatedBy)
	return st, err
}

func (s *Store) Stock(ctx context.Context, id string) (inventory.Stock, error) {
	st, err := scanStock(s.db.QueryRowContext(ctx,
		`select `+stockColumns+` from stocks where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	if err != nil {
		return inventory.Stock{}, err
	}
	return st, nil
}

func (s *Store) StockFor(ctx context.Context, warehouseID, productID string) (inventory.Stock, error) {
	st, err := scanStock(s.db.QueryRowContext(ctx,
		`select `+stockColumns+` from stocks where warehouse_id = $1 and product_id = $2`,
		warehouseID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	if err != nil {
		return inventory.Stock{}, err
	}
	return st, nil
}

func (s *Store) StocksByWarehouse(ctx context.Context, warehouseID string) ([]inventory.Stock, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+stockColumns+` from stocks where warehouse_id = $1 order by created_at desc`,
		warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Stock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) ListStocks(ctx context.Context, warehouseIDs []string, offset, limit int) ([]inventory.Stock, int, error) {
	where, args := inClause("warehouse_id", warehouseIDs, 0)

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from stocks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `select ` + stockColumns + ` from stocks` + where +
		fmt.Sprintf(` order by created_at desc offset $%d limit $%d`, n+1, n+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, offset, normalizeLimit(limit))...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []inventory.Stock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, st)
	}
	return result, total, rows.Err()
}

func (s *Store) Reserve(ctx context.Context, stockID string, qty int) (inventory.Stock, error) {
	if qty <= 0 {
		return inventory.Stock{}, inventory.ErrInvalidQuantity
	}
	var out inventory.Stock
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := lockStock(ctx, tx, stockID)
		if err != nil {
			return err
		}
		if qty > st.Available() {
			return fmt.Errorf("%w: requested %d, available %d", inventory.ErrInsufficientStock, qty, st.Available())
		}
		st.Allocated += qty
		st.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			update stocks set allocated = $2, updated_at = $3 where id = $1
		`, st.ID, st.Allocated, st.UpdatedAt); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

func (s *Store) Release(ctx context.Context, stockID string, qty int) (inventory.Stock, error) {
	if qty <= 0 {
		return inventory.Stock{}, inventory.ErrInvalidQuantity
	}
	var out inventory.Stock
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := lockStock(ctx, tx, stockID)
		if err != nil {
			return err
		}
		if qty > st.Allocated {
			return fmt.Errorf("%w: release %d exceeds allocated %d", inventory.ErrInvalidQuantity, qty, st.Allocated)
		}
		st.Allocated -= qty
		st.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			update stocks set allocated = $2, updated_at = $3 where id = $1
		`, st.ID, st.Allocated, st.UpdatedAt); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

func (s *Store) Receive(ctx context.Context, warehouseID, productID string, qty int, actor string) (inventory.Stock, error) {
	if qty <= 0 {
		return inventory.Stock{}, inventory.ErrInvalidQuantity
	}
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		insert into stocks (id, warehouse_id, product_id, quantity, allocated,
			created_at, created_by, updated_at, updated_by)
		values ($1, $2, $3, $4, 0, $5, $6, $5, $6)
		on conflict (warehouse_id, product_id) do update
		set quantity = stocks.quantity + excluded.quantity,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
		returning `+stockColumns, ids.New(), warehouseID, productID, qty, now, actor)
	st, err := scanStock(row)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return inventory.Stock{}, inventory.ErrWarehouseNotFound
	}
	if err != nil {
		return inventory.Stock{}, err
	}
	return st, nil
}

func (s *Store) Consume(ctx context.Context, warehouseID, productID string, qty int) (inventory.Stock, error) {
	if qty <= 0 {
		return inventory.Stock{}, inventory.ErrInvalidQuantity
	}
	var out inventory.Stock
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := lockStockFor(ctx, tx, warehouseID, productID)
		if err != nil {
			return err
		}
		if err := applyConsume(&st, qty); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update stocks set quantity = $2, updated_at = $3 where id = $1
		`, st.ID, st.Quantity, st.UpdatedAt); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

func (s *Store) ConsumeBatch(ctx context.Context, warehouseID string, demands []inventory.Demand, actor string) error {
	if len(demands) == 0 {
		return nil
	}
	// Duplicate product lines fold into one combined demand per product, so
	// each row is locked and checked exactly once.
	totals := make(map[string]int, len(demands))
	products := make([]string, 0, len(demands))
	for _, d := range demands {
		if d.Quantity <= 0 {
			return inventory.ErrInvalidQuantity
		}
		if _, seen := totals[d.ProductID]; !seen {
			products = append(products, d.ProductID)
		}
		totals[d.ProductID] += d.Quantity
	}
	// Stable lock order avoids deadlocks between concurrent batches.
	sort.Strings(products)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		locked := make([]inventory.Stock, 0, len(products))
		for _, productID := range products {
			st, err := lockStockFor(ctx, tx, warehouseID, productID)
			if err != nil {
				return err
			}
			if err := applyConsume(&st, totals[productID]); err != nil {
				return err
			}
			locked = append(locked, st)
		}
		for _, st := range locked {
			if _, err := tx.ExecContext(ctx, `
				update stocks set quantity = $2, updated_at = $3, updated_by = $4 where id = $1
			`, st.ID, st.Quantity, st.UpdatedAt, actor); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CompleteTransfer(ctx context.Context, stockID, destWarehouseID string, qty int, actor string) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := lockStock(ctx, tx, stockID)
		if err != nil {
			return err
		}
		if qty > st.Quantity || qty > st.Allocated {
			return fmt.Errorf("%w: transfer %d exceeds quantity %d or allocated %d",
				inventory.ErrInsufficientStock, qty, st.Quantity, st.Allocated)
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			update stocks
			set quantity = quantity - $2, allocated = allocated - $2, updated_at = $3, updated_by = $4
			where id = $1
		`, st.ID, qty, now, actor); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into stocks (id, warehouse_id, product_id, quantity, allocated,
				created_at, created_by, updated_at, updated_by)
			values ($1, $2, $3, $4, 0, $5, $6, $5, $6)
			on conflict (warehouse_id, product_id) do update
			set quantity = stocks.quantity + excluded.quantity,
				updated_at = excluded.updated_at,
				updated_by = excluded.updated_by
		`, ids.New(), destWarehouseID, st.ProductID, qty, now, actor); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) QuantityByWarehouse(ctx context.Context) ([]inventory.WarehouseQuantity, error) {
	rows, err := s.db.QueryContext(ctx, `
		select w.name, coalesce(sum(s.quantity), 0)
		from warehouses w
		left join stocks s on s.warehouse_id = w.id
		group by w.name
		order by w.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.WarehouseQuantity
	for rows.Next() {
		var wq inventory.WarehouseQuantity
		if err := rows.Scan(&wq.WarehouseName, &wq.Quantity); err != nil {
			return nil, err
		}
		result = append(result, wq)
	}
	return result, rows.Err()
}

// --- helpers ---

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func lockStock(ctx context.Context, tx *sql.Tx, stockID string) (inventory.Stock, error) {
	st, err := scanStock(tx.QueryRowContext(ctx,
		`select `+stockColumns+` from stocks where id = $1 for update`, stockID))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	return st, err
}

func lockStockFor(ctx context.Context, tx *sql.Tx, warehouseID, productID string) (inventory.Stock, error) {
	st, err := scanStock(tx.QueryRowContext(ctx,
		`select `+stockColumns+` from stocks where warehouse_id = $1 and product_id = $2 for update`,
		warehouseID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	return st, err
}

// applyConsume checks against raw quantity, then keeps the allocation
// invariant intact after the decrement.
func applyConsume(st *inventory.Stock, qty int) error {
	if qty > st.Quantity {
		return fmt.Errorf("%w: requested %d, on hand %d", inventory.ErrInsufficientStock, qty, st.Quantity)
	}
	if st.Quantity-qty < st.Allocated {
		return fmt.Errorf("%w: consuming %d would break the allocation of %d", inventory.ErrInsufficientStock, qty, st.Allocated)
	}
	st.Quantity -= qty
	st.UpdatedAt = time.Now().UTC()
	return nil
}

// inClause builds an optional "where <column> in (...)" clause.
func inClause(column string, keys []string, offset int) (string, []any) {
	if len(keys) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, id := range keys {
		placeholders[i] = fmt.Sprintf("$%d", offset+i+1)
		args[i] = id
	}
	return " where " + column + " in (" + strings.Join(placeholders, ", ") + ")", args
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
