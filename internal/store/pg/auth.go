package pg

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"stockyard.org/internal/auth"
)

var (
	_ auth.Store       = (*Store)(nil)
	_ auth.Credentials = (*Store)(nil)
)

func (s *Store) Role(ctx context.Context, roleID string) (auth.RoleConfig, error) {
	var r auth.RoleConfig
	err := s.db.QueryRowContext(ctx, `
		select id, key, name, active
		from roles
		where id = $1 and active
	`, roleID).Scan(&r.ID, &r.Key, &r.Name, &r.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RoleConfig{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RoleConfig{}, err
	}
	return r, nil
}

func (s *Store) PermissionExists(ctx context.Context, roleID, resourcePath string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		select 1
		from permissions
		where role_id = $1 and resource_path = $2 and active
	`, roleID, resourcePath).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Permissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, role_id, resource_path, active
		from permissions
		where active
		order by resource_path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.ResourcePath, &p.Active); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AssignmentsFor(ctx context.Context, actorID string) ([]auth.WarehouseAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select warehouse_id, user_id, created_at
		from warehouses_users
		where user_id = $1
	`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.WarehouseAssignment
	for rows.Next() {
		var a auth.WarehouseAssignment
		if err := rows.Scan(&a.WarehouseID, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		select 1 from revoked_tokens where token = $1
	`, token).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Revoke(ctx context.Context, rec auth.RevokedToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (token, expires_at, created_by, created_at)
		values ($1, $2, $3, $4)
		on conflict (token) do nothing
	`, rec.Token, rec.ExpiresAt, rec.CreatedBy, rec.CreatedAt)
	return err
}

// Verify checks the login secret against the stored sha256 digest. Lookup
// failure and digest mismatch are indistinguishable to the caller.
func (s *Store) Verify(ctx context.Context, email, secret string) (auth.Actor, error) {
	var (
		a      auth.Actor
		digest string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, full_name, role_id, secret, status, created_at, updated_at
		from users
		where email = $1 and status = 'ACTIVE'
	`, email).Scan(&a.ID, &a.Email, &a.FullName, &a.RoleID, &digest, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Actor{}, fmt.Errorf("%w: unknown or inactive user", auth.ErrUnauthorized)
	}
	if err != nil {
		return auth.Actor{}, err
	}

	sum := sha256.Sum256([]byte(secret))
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(digest)) != 1 {
		return auth.Actor{}, fmt.Errorf("%w: secret mismatch", auth.ErrUnauthorized)
	}
	a.Secret = digest
	return a, nil
}
