// Package sysconfig holds runtime toggles stored as key/value rows.
package sysconfig

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SimulationRunFlag gates the background order simulator. Value is the
// string "true" or "false".
const SimulationRunFlag = "SIMULATION_RUN_FLAG"

// Config is one toggle row.
type Config struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Enabled reports whether the value reads as the literal "true".
func (c Config) Enabled() bool { return c.Value == "true" }

var ErrNotFound = errors.New("sysconfig: key not found")

// Store persists toggles. Set only updates existing keys; the key space is
// seeded, not open-ended.
type Store interface {
	Get(ctx context.Context, key string) (Config, error)
	Set(ctx context.Context, key, value, actor string) (Config, error)
}

// InMemory is a mutex-guarded toggle store for development and tests.
type InMemory struct {
	mu   sync.RWMutex
	byKy map[string]Config
	now  func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory seeds the store with the given initial values.
func NewInMemory(seed map[string]string) *InMemory {
	s := &InMemory{byKy: make(map[string]Config), now: time.Now}
	for k, v := range seed {
		s.byKy[k] = Config{Key: k, Value: v, UpdatedAt: s.now()}
	}
	return s
}

func (s *InMemory) Get(ctx context.Context, key string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byKy[key]
	if !ok {
		return Config{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemory) Set(ctx context.Context, key, value, actor string) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byKy[key]
	if !ok {
		return Config{}, ErrNotFound
	}
	c.Value = value
	c.UpdatedAt = s.now()
	c.UpdatedBy = actor
	s.byKy[key] = c
	return c, nil
}

// Toggle flips a "true"/"false" key and returns the new state.
func Toggle(ctx context.Context, s Store, key, actor string) (Config, error) {
	c, err := s.Get(ctx, key)
	if err != nil {
		return Config{}, err
	}
	next := "true"
	if c.Enabled() {
		next = "false"
	}
	return s.Set(ctx, key, next, actor)
}
