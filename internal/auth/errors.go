package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("auth: not found")

	// ErrUnauthorized covers missing, malformed, expired and revoked tokens.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrInvalidRole means the token references a role that no longer exists.
	// Deliberately not a child of ErrUnauthorized: the token itself is valid,
	// its content is stale.
	ErrInvalidRole = errors.New("auth: invalid role")

	// ErrForbidden means the resolved role has no permission row for the
	// requested resource path.
	ErrForbidden = errors.New("auth: no permission")

	// ErrNotTiedToWarehouse means a warehouse-scoped query was attempted by
	// an actor with zero warehouse assignments.
	ErrNotTiedToWarehouse = errors.New("auth: not tied to any warehouse")
)

// ErrTokenRevoked is an ErrUnauthorized variant; callers seeing it should
// also instruct the client to drop its session cookie.
var ErrTokenRevoked = fmt.Errorf("%w: token revoked", ErrUnauthorized)
