package auth

import "time"

// SystemRoleKey is the sentinel role configuration key whose holders bypass
// per-resource permission checks.
const SystemRoleKey = "SYSTEM"

// Actor is an identity able to authenticate against the service.
type Actor struct {
	ID         string
	Email      string
	FullName   string
	RoleID     string
	Secret     string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RoleConfig is a named role stored as configuration data.
type RoleConfig struct {
	ID     string
	Key    string
	Name   string
	Active bool
}

// Access classifies what a resolved role is allowed to do. Resolving it once
// per role lookup keeps the sentinel comparison out of call sites.
type Access int

const (
	// AccessRequiresPermission means endpoint access is decided by
	// permission rows.
	AccessRequiresPermission Access = iota
	// AccessUnrestricted grants every resource path unconditionally.
	AccessUnrestricted
)

// Access resolves the role's authorization mode.
func (r RoleConfig) Access() Access {
	if r.Key == SystemRoleKey {
		return AccessUnrestricted
	}
	return AccessRequiresPermission
}

// Permission grants a role access to one exact resource path.
type Permission struct {
	ID           string
	RoleID       string
	ResourcePath string
	Active       bool
}

// WarehouseAssignment ties an actor to a warehouse. Permissions gate which
// endpoints a role may call; assignments gate which warehouses' data an
// actor may touch.
type WarehouseAssignment struct {
	WarehouseID string
	ActorID     string
	CreatedAt   time.Time
}

// RevokedToken invalidates a previously issued token until its natural expiry.
type RevokedToken struct {
	Token     string
	ExpiresAt time.Time
	CreatedBy string
	CreatedAt time.Time
}

// ActorContext is the identity attached to a request after authorization.
type ActorContext struct {
	UserID   string
	Email    string
	RoleID   string
	RoleName string
	FullName string
}
