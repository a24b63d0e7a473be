package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockyard.org/internal/shipment"
)

// Shipments exposes the shipment persistence operations of a Store. The
// wrapper exists because the shipment and order interfaces share method
// names.
type Shipments struct {
	store *Store
}

// Shipments returns the shipment-facing view of the store.
func (s *Store) Shipments() *Shipments { return &Shipments{store: s} }

var (
	_ shipment.Store    = (*Shipments)(nil)
	_ shipment.Sequence = (*Shipments)(nil)
)

const shipmentColumns = `id, code, stock_id, source_warehouse_id, dest_warehouse_id, product_id,
	quantity, status, coalesce(assigned_to, ''),
	created_at, coalesce(created_by, ''), updated_at, coalesce(updated_by, '')`

func scanShipment(row interface{ Scan(...any) error }) (shipment.Shipment, error) {
	var sh shipment.Shipment
	err := row.Scan(&sh.ID, &sh.Code, &sh.StockID, &sh.SourceWarehouseID, &sh.DestWarehouseID,
		&sh.ProductID, &sh.Quantity, &sh.Status, &sh.AssignedTo,
		&sh.CreatedAt, &sh.CreatedBy, &sh.UpdatedAt, &sh.UpdatedBy)
	return sh, err
}

func (s *Shipments) Create(ctx context.Context, sh *shipment.Shipment) error {
	_, err := s.store.db.ExecContext(ctx, `
		insert into shipments (id, code, stock_id, source_warehouse_id, dest_warehouse_id,
			product_id, quantity, status, assigned_to,
			created_at, created_by, updated_at, updated_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, nullif($9, ''), $10, $11, $12, $13)
	`, sh.ID, sh.Code, sh.StockID, sh.SourceWarehouseID, sh.DestWarehouseID,
		sh.ProductID, sh.Quantity, sh.Status, sh.AssignedTo,
		sh.CreatedAt, sh.CreatedBy, sh.UpdatedAt, sh.UpdatedBy)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return shipment.ErrDestWarehouseNotFound
	}
	return err
}

func (s *Shipments) Shipment(ctx context.Context, id string) (shipment.Shipment, error) {
	sh, err := scanShipment(s.store.db.QueryRowContext(ctx,
		`select `+shipmentColumns+` from shipments where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return shipment.Shipment{}, shipment.ErrNotFound
	}
	if err != nil {
		return shipment.Shipment{}, err
	}
	return sh, nil
}

func (s *Shipments) Update(ctx context.Context, sh *shipment.Shipment) error {
	res, err := s.store.db.ExecContext(ctx, `
		update shipments
		set status = $2, assigned_to = nullif($3, ''), updated_at = $4, updated_by = nullif($5, '')
		where id = $1
	`, sh.ID, sh.Status, sh.AssignedTo, sh.UpdatedAt, sh.UpdatedBy)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shipment.ErrNotFound
	}
	return nil
}

func (s *Shipments) List(ctx context.Context, warehouseIDs []string, offset, limit int) ([]shipment.Shipment, int, error) {
	where, args := inClause("source_warehouse_id", warehouseIDs, 0)

	var total int
	if err := s.store.db.QueryRowContext(ctx, `select count(*) from shipments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `select ` + shipmentColumns + ` from shipments` + where +
		fmt.Sprintf(` order by created_at desc offset $%d limit $%d`, n+1, n+2)
	rows, err := s.store.db.QueryContext(ctx, query, append(args, offset, normalizeLimit(limit))...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []shipment.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, sh)
	}
	return result, total, rows.Err()
}

func (s *Shipments) HasActive(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.store.db.QueryRowContext(ctx, `
		select 1 from shipments where assigned_to = $1 and status = $2 limit 1
	`, email, shipment.StatusInDelivery).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Shipments) CountByStatus(ctx context.Context) (map[shipment.Status]int, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		select status, count(*) from shipments group by status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[shipment.Status]int)
	for rows.Next() {
		var (
			st shipment.Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// Next advances the shared shipment code counter.
func (s *Shipments) Next(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.db.QueryRowContext(ctx, `
		update counters set value = value + 1 where name = 'shipment_code' returning value
	`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("pg: shipment_code counter row missing")
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
