package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockyard.org/internal/ids"
	"stockyard.org/internal/order"
)

// Orders exposes the order persistence operations of a Store.
type Orders struct {
	store *Store
}

// Orders returns the order-facing view of the store.
func (s *Store) Orders() *Orders { return &Orders{store: s} }

var _ order.Store = (*Orders)(nil)

func (s *Orders) Create(ctx context.Context, o *order.Order) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into orders (id, warehouse_id, customer_name, status,
				created_at, created_by, updated_at, updated_by)
			values ($1, $2, $3, $4, $5, nullif($6, ''), $7, nullif($8, ''))
		`, o.ID, o.WarehouseID, o.Customer, o.Status,
			o.CreatedAt, o.CreatedBy, o.UpdatedAt, o.UpdatedBy); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: warehouse %s", order.ErrNotPermitted, o.WarehouseID)
			}
			return err
		}
		for _, l := range o.Lines {
			if _, err := tx.ExecContext(ctx, `
				insert into order_products (id, order_id, product_id, quantity, price)
				values ($1, $2, $3, $4, $5)
			`, ids.New(), o.ID, l.ProductID, l.Quantity, l.UnitPrice); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Orders) Order(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	err := s.store.db.QueryRowContext(ctx, `
		select id, warehouse_id, customer_name, status,
			created_at, coalesce(created_by, ''), updated_at, coalesce(updated_by, '')
		from orders where id = $1
	`, id).Scan(&o.ID, &o.WarehouseID, &o.Customer, &o.Status,
		&o.CreatedAt, &o.CreatedBy, &o.UpdatedAt, &o.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, err
	}
	lines, err := s.lines(ctx, []string{o.ID})
	if err != nil {
		return order.Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (s *Orders) Update(ctx context.Context, o *order.Order) error {
	res, err := s.store.db.ExecContext(ctx, `
		update orders
		set status = $2, updated_at = $3, updated_by = nullif($4, '')
		where id = $1
	`, o.ID, o.Status, o.UpdatedAt, o.UpdatedBy)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (s *Orders) List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]order.Order, int, error) {
	where, args := inClause("warehouse_id", warehouseIDs, 0)

	var total int
	if err := s.store.db.QueryRowContext(ctx, `select count(*) from orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `
		select id, warehouse_id, customer_name, status,
			created_at, coalesce(created_by, ''), updated_at, coalesce(updated_by, '')
		from orders` + where +
		fmt.Sprintf(` order by created_at desc offset $%d limit $%d`, n+1, n+2)
	rows, err := s.store.db.QueryContext(ctx, query, append(args, offset, normalizeLimit(limit))...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		result   []order.Order
		orderIDs []string
	)
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.WarehouseID, &o.Customer, &o.Status,
			&o.CreatedAt, &o.CreatedBy, &o.UpdatedAt, &o.UpdatedBy); err != nil {
			return nil, 0, err
		}
		result = append(result, o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(orderIDs) > 0 {
		lines, err := s.lines(ctx, orderIDs)
		if err != nil {
			return nil, 0, err
		}
		for i := range result {
			result[i].Lines = lines[result[i].ID]
		}
	}
	return result, total, nil
}

func (s *Orders) CountByStatus(ctx context.Context) (map[order.Status]int, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		select status, count(*) from orders group by status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[order.Status]int)
	for rows.Next() {
		var (
			st order.Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

func (s *Orders) TopSellingProducts(ctx context.Context, limit int) ([]order.ProductSales, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		select p.name, sum(op.quantity)
		from order_products op
		join products p on p.id = op.product_id
		group by p.name
		order by sum(op.quantity) desc, p.name
		limit $1
	`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []order.ProductSales
	for rows.Next() {
		var ps order.ProductSales
		if err := rows.Scan(&ps.ProductName, &ps.Quantity); err != nil {
			return nil, err
		}
		result = append(result, ps)
	}
	return result, rows.Err()
}

// lines loads order lines for the given order ids, keyed by order id.
func (s *Orders) lines(ctx context.Context, orderIDs []string) (map[string][]order.Line, error) {
	where, args := inClause("op.order_id", orderIDs, 0)
	rows, err := s.store.db.QueryContext(ctx, `
		select op.order_id, op.product_id, p.name, op.quantity, op.price
		from order_products op
		join products p on p.id = op.product_id`+where+`
		order by op.order_id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]order.Line)
	for rows.Next() {
		var (
			orderID string
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		result[orderID] = append(result[orderID], l)
	}
	return result, rows.Err()
}
