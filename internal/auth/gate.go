package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"stockyard.org/internal/obs"
)

// Gate decides per-request authorization. Every inbound call passes through
// Authorize before reaching workflow code; warehouse-scoped queries
// additionally resolve the actor's assignment set.
type Gate struct {
	tokens *Tokens
	store  Store
	creds  Credentials
	public PublicPaths
	log    *log.Logger
}

// NewGate wires the authorization pipeline.
func NewGate(tokens *Tokens, store Store, creds Credentials, public PublicPaths) (*Gate, error) {
	if tokens == nil {
		return nil, errors.New("auth: tokens are required")
	}
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &Gate{
		tokens: tokens,
		store:  store,
		creds:  creds,
		public: public,
		log:    obs.Logger(),
	}, nil
}

// Authorize runs the ordered authorization pipeline for a resource path,
// short-circuiting on the first failure. Public paths skip the pipeline
// entirely; the zero ActorContext then marks an unauthenticated call.
func (g *Gate) Authorize(ctx context.Context, rawToken, resourcePath string) (ActorContext, error) {
	if g.public.Contains(resourcePath) {
		return ActorContext{}, nil
	}
	if rawToken == "" {
		return ActorContext{}, ErrUnauthorized
	}
	claims, err := g.tokens.Parse(rawToken)
	if err != nil {
		return ActorContext{}, ErrUnauthorized
	}
	revoked, err := g.store.IsRevoked(ctx, rawToken)
	if err != nil {
		return ActorContext{}, err
	}
	if revoked {
		return ActorContext{}, ErrTokenRevoked
	}
	role, err := g.store.Role(ctx, claims.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ActorContext{}, ErrInvalidRole
		}
		return ActorContext{}, err
	}
	if role.Access() != AccessUnrestricted {
		ok, err := g.store.PermissionExists(ctx, claims.RoleID, resourcePath)
		if err != nil {
			return ActorContext{}, err
		}
		if !ok {
			return ActorContext{}, ErrForbidden
		}
	}
	return ActorContext{
		UserID:   claims.UserID,
		Email:    claims.Email,
		RoleID:   claims.RoleID,
		RoleName: claims.RoleName,
		FullName: claims.FullName,
	}, nil
}

// WarehouseIDs resolves the warehouses the actor may touch. An actor with
// zero assignments deciding a warehouse-scoped query fails with
// ErrNotTiedToWarehouse; this is distinct from ErrForbidden.
func (g *Gate) WarehouseIDs(ctx context.Context, actorID string) ([]string, error) {
	assignments, err := g.store.AssignmentsFor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, ErrNotTiedToWarehouse
	}
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.WarehouseID)
	}
	return ids, nil
}

// Assigned reports whether the actor holds an assignment to the warehouse.
func (g *Gate) Assigned(ctx context.Context, actorID, warehouseID string) (bool, error) {
	assignments, err := g.store.AssignmentsFor(ctx, actorID)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if a.WarehouseID == warehouseID {
			return true, nil
		}
	}
	return false, nil
}

// Login authenticates credentials and mints a session token.
func (g *Gate) Login(ctx context.Context, email, secret string) (string, time.Time, ActorContext, error) {
	if g.creds == nil {
		return "", time.Time{}, ActorContext{}, ErrUnauthorized
	}
	actor, err := g.creds.Verify(ctx, email, secret)
	if err != nil {
		return "", time.Time{}, ActorContext{}, ErrUnauthorized
	}
	role, err := g.store.Role(ctx, actor.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ActorContext{}, ErrInvalidRole
		}
		return "", time.Time{}, ActorContext{}, err
	}
	token, expiresAt, err := g.tokens.Generate(actor.ID, actor.Email, role.ID, role.Name, actor.FullName)
	if err != nil {
		return "", time.Time{}, ActorContext{}, err
	}
	return token, expiresAt, ActorContext{
		UserID:   actor.ID,
		Email:    actor.Email,
		RoleID:   role.ID,
		RoleName: role.Name,
		FullName: actor.FullName,
	}, nil
}

// Logout records the presented token as revoked. Failures are logged and
// swallowed so the caller can always issue the session-clearing cookie.
func (g *Gate) Logout(ctx context.Context, actor ActorContext, rawToken string) {
	expiresAt, err := g.tokens.Expiry(rawToken)
	if err != nil {
		g.log.Printf(`{"level":"warn","msg":"logout with undecodable token","email":%q}`, actor.Email)
		return
	}
	err = g.store.Revoke(ctx, RevokedToken{
		Token:     rawToken,
		ExpiresAt: expiresAt,
		CreatedBy: actor.Email,
	})
	if err != nil {
		g.log.Printf(`{"level":"warn","msg":"token revocation failed","email":%q}`, actor.Email)
	}
}
