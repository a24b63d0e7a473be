package auth

import (
	"context"
	"strings"
)

// Store describes persistence operations required by the authorization gate.
type Store interface {
	// Role resolves an active role configuration row. Missing or
	// soft-deleted roles return ErrNotFound.
	Role(ctx context.Context, roleID string) (RoleConfig, error)
	// PermissionExists reports whether an active permission row grants the
	// role access to the exact resource path.
	PermissionExists(ctx context.Context, roleID, resourcePath string) (bool, error)
	// Permissions lists all active permission rows.
	Permissions(ctx context.Context) ([]Permission, error)
	// AssignmentsFor lists the actor's warehouse assignments.
	AssignmentsFor(ctx context.Context, actorID string) ([]WarehouseAssignment, error)
	// IsRevoked reports whether the raw token has been revoked.
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Revoke records a token as revoked until its natural expiry.
	Revoke(ctx context.Context, rec RevokedToken) error
}

// Credentials verifies login secrets. Hashing and comparison live behind the
// collaborator; the gate only consumes the verdict.
type Credentials interface {
	// Verify returns the actor matching email with a valid secret, or
	// ErrUnauthorized.
	Verify(ctx context.Context, email, secret string) (Actor, error)
}

// PublicPaths is the explicit allow-list of resource paths reachable without
// a token. Kept as configuration rather than inferred from intent.
type PublicPaths struct {
	Exact    []string
	Prefixes []string
}

// DefaultPublicPaths covers login, static assets and operational probes.
func DefaultPublicPaths() PublicPaths {
	return PublicPaths{
		Exact: []string{
			"/",
			"/index.html",
			"/healthz",
			"/readyz",
			"/metrics",
			"/api/auth/login",
			"/api/health/check",
		},
		Prefixes: []string{
			"/assets/",
			"/static/",
		},
	}
}

// Contains reports whether the path is publicly reachable.
func (p PublicPaths) Contains(path string) bool {
	for _, e := range p.Exact {
		if path == e {
			return true
		}
	}
	for _, prefix := range p.Prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
