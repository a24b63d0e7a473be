package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type gateFixture struct {
	gate      *Gate
	store     *InMemory
	tokens    *Tokens
	roleID    string
	systemID  string
	actorID   string
	systemUID string
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	tokens, err := NewTokens("test-secret", "stockyard", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	store := NewInMemory()
	roleID := store.AddRole("AREA_MANAGER", "Area Manager", true)
	systemID := store.AddRole(SystemRoleKey, "System", true)
	actorID := store.AddActor("jane@example.com", "Jane Doe", roleID, "pw")
	systemUID := store.AddActor("root@example.com", "Root", systemID, "pw")

	gate, err := NewGate(tokens, store, store, DefaultPublicPaths())
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return &gateFixture{
		gate:      gate,
		store:     store,
		tokens:    tokens,
		roleID:    roleID,
		systemID:  systemID,
		actorID:   actorID,
		systemUID: systemUID,
	}
}

func (f *gateFixture) token(t *testing.T, actorID string) string {
	t.Helper()
	token, _, _, err := f.gate.Login(context.Background(), f.store.actors[actorID].Email, "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return token
}

func TestAuthorizePublicPathWithoutToken(t *testing.T) {
	f := newGateFixture(t)
	actor, err := f.gate.Authorize(context.Background(), "", "/api/auth/login")
	if err != nil {
		t.Fatalf("public path should not require a token: %v", err)
	}
	if actor.UserID != "" {
		t.Fatalf("expected unauthenticated context, got %+v", actor)
	}
}

func TestAuthorizeMissingToken(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.gate.Authorize(context.Background(), "", "/api/shipment/filter")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorizeGarbageToken(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.gate.Authorize(context.Background(), "nonsense", "/api/shipment/filter")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorizePermissionGrantAndDeny(t *testing.T) {
	f := newGateFixture(t)
	f.store.AddPermission(f.roleID, "/api/shipment/filter")
	token := f.token(t, f.actorID)

	actor, err := f.gate.Authorize(context.Background(), token, "/api/shipment/filter")
	if err != nil {
		t.Fatalf("expected grant: %v", err)
	}
	if actor.UserID != f.actorID || actor.Email != "jane@example.com" {
		t.Fatalf("unexpected actor context: %+v", actor)
	}

	_, err = f.gate.Authorize(context.Background(), token, "/api/order/filter")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAuthorizeSystemRoleBypassesPermissions(t *testing.T) {
	f := newGateFixture(t)
	token := f.token(t, f.systemUID)

	for _, path := range []string{"/api/shipment/filter", "/api/order/filter", "/api/anything/else"} {
		if _, err := f.gate.Authorize(context.Background(), token, path); err != nil {
			t.Fatalf("system role should reach %s: %v", path, err)
		}
	}
}

func TestAuthorizeInvalidRole(t *testing.T) {
	f := newGateFixture(t)
	token := f.token(t, f.actorID)

	f.store.mu.Lock()
	f.store.roles[f.roleID].Active = false
	f.store.mu.Unlock()

	_, err := f.gate.Authorize(context.Background(), token, "/api/shipment/filter")
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("invalid role must stay distinct from unauthorized")
	}
}

func TestAuthorizeRevokedToken(t *testing.T) {
	f := newGateFixture(t)
	f.store.AddPermission(f.roleID, "/api/shipment/filter")
	token := f.token(t, f.actorID)

	if _, err := f.gate.Authorize(context.Background(), token, "/api/shipment/filter"); err != nil {
		t.Fatalf("pre-revocation grant failed: %v", err)
	}

	actor := ActorContext{UserID: f.actorID, Email: "jane@example.com"}
	f.gate.Logout(context.Background(), actor, token)

	_, err := f.gate.Authorize(context.Background(), token, "/api/shipment/filter")
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked token must map to unauthorized")
	}
}

func TestLogoutTwice(t *testing.T) {
	f := newGateFixture(t)
	f.store.AddPermission(f.roleID, "/api/shipment/filter")
	token := f.token(t, f.actorID)
	actor := ActorContext{UserID: f.actorID, Email: "jane@example.com"}

	f.gate.Logout(context.Background(), actor, token)
	// Second logout with the same token must not panic or error out; the
	// caller still gets its session-clearing cookie.
	f.gate.Logout(context.Background(), actor, token)

	if _, err := f.gate.Authorize(context.Background(), token, "/api/shipment/filter"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
}

func TestWarehouseIDs(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate.WarehouseIDs(context.Background(), f.actorID)
	if !errors.Is(err, ErrNotTiedToWarehouse) {
		t.Fatalf("expected ErrNotTiedToWarehouse, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatalf("scoping error must not be conflated with forbidden")
	}

	f.store.Assign(f.actorID, "w-1")
	f.store.Assign(f.actorID, "w-2")
	ids, err := f.gate.WarehouseIDs(context.Background(), f.actorID)
	if err != nil {
		t.Fatalf("WarehouseIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 warehouses, got %v", ids)
	}

	ok, err := f.gate.Assigned(context.Background(), f.actorID, "w-1")
	if err != nil || !ok {
		t.Fatalf("expected assignment to w-1, got ok=%v err=%v", ok, err)
	}
	ok, _ = f.gate.Assigned(context.Background(), f.actorID, "w-9")
	if ok {
		t.Fatalf("unexpected assignment to w-9")
	}
}

func TestRoleAccessResolution(t *testing.T) {
	system := RoleConfig{Key: SystemRoleKey}
	if system.Access() != AccessUnrestricted {
		t.Fatalf("SYSTEM role must resolve to unrestricted access")
	}
	regular := RoleConfig{Key: "AREA_MANAGER"}
	if regular.Access() != AccessRequiresPermission {
		t.Fatalf("regular role must require permission checks")
	}
}
