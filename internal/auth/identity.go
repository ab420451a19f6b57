// Package auth resolves signed session credentials into caller identities
// and applies the access checks that guard every tenant-scoped operation.
//
// Identities are plain values. The HTTP layer resolves one per request and
// passes it explicitly to services; nothing in this package reads a
// "current user" from ambient context.
package auth

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

var (
	// ErrUnauthenticated is the root of every credential failure.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMissingCredential is returned when no credential was presented.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	// ErrInvalidCredential covers malformed tokens, bad signatures, and bad claims.
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrUnauthenticated)
	// ErrExpiredCredential is returned for tokens past their expiry.
	ErrExpiredCredential = fmt.Errorf("%w: credential expired", ErrUnauthenticated)

	// ErrForbidden is the root of every authorization failure.
	ErrForbidden = errors.New("forbidden")
	// ErrRoleMismatch is returned when the caller lacks the required role.
	ErrRoleMismatch = fmt.Errorf("%w: role not permitted", ErrForbidden)
	// ErrTenantMismatch is returned when a client addresses another tenant.
	ErrTenantMismatch = fmt.Errorf("%w: tenant isolation violation", ErrForbidden)
	// ErrSubscriptionInactive is returned when the caller's tenant is
	// suspended or its subscription is not active.
	ErrSubscriptionInactive = fmt.Errorf("%w: subscription inactive", ErrForbidden)
)

// Identity is the verified caller of an authenticated request.
type Identity struct {
	UserID   string
	TenantID string // empty for admins
	Role     domain.Role
	Email    string
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool { return id.Role == domain.RoleAdmin }

// IsZero reports whether id is the zero identity.
func (id Identity) IsZero() bool { return id.UserID == "" }
