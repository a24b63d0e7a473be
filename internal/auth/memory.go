package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"stockyard.org/internal/ids"
)

// InMemory implements Store and Credentials with in-process state. Used by
// tests and demo mode; production deployments persist through the pg store.
type InMemory struct {
	mu          sync.RWMutex
	actors      map[string]*Actor // by id
	actorEmails map[string]string // email -> id
	roles       map[string]*RoleConfig
	permissions []Permission
	assignments []WarehouseAssignment
	revoked     map[string]RevokedToken
	now         func() time.Time
}

var (
	_ Store       = (*InMemory)(nil)
	_ Credentials = (*InMemory)(nil)
)

// NewInMemory creates an empty in-memory auth store.
func NewInMemory() *InMemory {
	return &InMemory{
		actors:      make(map[string]*Actor),
		actorEmails: make(map[string]string),
		roles:       make(map[string]*RoleConfig),
		revoked:     make(map[string]RevokedToken),
		now:         time.Now,
	}
}

// AddRole seeds a role configuration row and returns its id.
func (s *InMemory) AddRole(key, name string, active bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ids.New()
	s.roles[id] = &RoleConfig{ID: id, Key: key, Name: name, Active: active}
	return id
}

// AddActor seeds an actor and returns its id.
func (s *InMemory) AddActor(email, fullName, roleID, secret string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ids.New()
	email = strings.ToLower(strings.TrimSpace(email))
	s.actors[id] = &Actor{
		ID:        id,
		Email:     email,
		FullName:  fullName,
		RoleID:    roleID,
		Secret:    secret,
		Status:    "active",
		CreatedAt: s.now().UTC(),
	}
	s.actorEmails[email] = id
	return id
}

// AddPermission seeds an active permission row.
func (s *InMemory) AddPermission(roleID, resourcePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = append(s.permissions, Permission{
		ID:           ids.New(),
		RoleID:       roleID,
		ResourcePath: resourcePath,
		Active:       true,
	})
}

// Assign ties an actor to a warehouse.
func (s *InMemory) Assign(actorID, warehouseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, WarehouseAssignment{
		WarehouseID: warehouseID,
		ActorID:     actorID,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *InMemory) Role(ctx context.Context, roleID string) (RoleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[roleID]
	if !ok || !role.Active {
		return RoleConfig{}, ErrNotFound
	}
	return *role, nil
}

func (s *InMemory) PermissionExists(ctx context.Context, roleID, resourcePath string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.Active && p.RoleID == roleID && p.ResourcePath == resourcePath {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) Permissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemory) AssignmentsFor(ctx context.Context, actorID string) ([]WarehouseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WarehouseAssignment
	for _, a := range s.assignments {
		if a.ActorID == actorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *InMemory) IsRevoked(ctx context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[token]
	return ok, nil
}

func (s *InMemory) Revoke(ctx context.Context, rec RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.revoked[rec.Token] = rec
	return nil
}

// Verify compares the submitted secret against the seeded one. The in-memory
// store keeps secrets in the clear; real deployments sit behind a credential
// store that owns hashing.
func (s *InMemory) Verify(ctx context.Context, email, secret string) (Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.actorEmails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Actor{}, ErrUnauthorized
	}
	actor := s.actors[id]
	if actor.Status != "active" {
		return Actor{}, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(actor.Secret), []byte(secret)) != 1 {
		return Actor{}, ErrUnauthorized
	}
	return *actor, nil
}
