package pg

import (
	"context"
	"database/sql"
	"errors"

	"stockyard.org/internal/sysconfig"
)

var _ sysconfig.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key string) (sysconfig.Config, error) {
	var c sysconfig.Config
	err := s.db.QueryRowContext(ctx, `
		select key, value, updated_at, coalesce(updated_by, '')
		from sysconfigs where key = $1
	`, key).Scan(&c.Key, &c.Value, &c.UpdatedAt, &c.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return sysconfig.Config{}, sysconfig.ErrNotFound
	}
	if err != nil {
		return sysconfig.Config{}, err
	}
	return c, nil
}

func (s *Store) Set(ctx context.Context, key, value, actor string) (sysconfig.Config, error) {
	var c sysconfig.Config
	err := s.db.QueryRowContext(ctx, `
		update sysconfigs
		set value = $2, updated_at = now(), updated_by = nullif($3, '')
		where key = $1
		returning key, value, updated_at, coalesce(updated_by, '')
	`, key, value, actor).Scan(&c.Key, &c.Value, &c.UpdatedAt, &c.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return sysconfig.Config{}, sysconfig.ErrNotFound
	}
	if err != nil {
		return sysconfig.Config{}, err
	}
	return c, nil
}
