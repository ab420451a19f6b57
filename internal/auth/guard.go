package auth

import (
	"context"
	"errors"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/observability"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
)

// TenantStatusLookup loads the tenant a client identity is bound to.
// Unknown tenants are reported as repo.ErrNotFound.
type TenantStatusLookup interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
}

// RequireRole fails with ErrRoleMismatch unless id carries role.
func RequireRole(id Identity, role domain.Role) error {
	if id.Role != role {
		return ErrRoleMismatch
	}
	return nil
}

// RequireTenantMatch passes admins unconditionally and clients only when
// tenantID is the tenant signed into their credential.
func RequireTenantMatch(id Identity, tenantID string) error {
	if id.IsAdmin() {
		return nil
	}
	if id.Role != domain.RoleClient || id.TenantID == "" || id.TenantID != tenantID {
		observability.TenantIsolationDenials.Inc()
		return ErrTenantMismatch
	}
	return nil
}

// Policy describes the checks a route requires. A zero Role skips the role
// check; an empty TenantID skips the tenant-match check.
type Policy struct {
	Role               domain.Role
	TenantID           string
	ActiveSubscription bool
}

// Guard applies Policy checks. Only the subscription check touches storage.
type Guard struct {
	Tenants TenantStatusLookup
}

// NewGuard builds a Guard backed by lookup.
func NewGuard(lookup TenantStatusLookup) *Guard { return &Guard{Tenants: lookup} }

// RequireActiveSubscription passes admins; a client passes only while its
// tenant is active and its subscription status is "active".
func (g *Guard) RequireActiveSubscription(ctx context.Context, id Identity) error {
	if id.IsAdmin() {
		return nil
	}
	if id.TenantID == "" {
		return ErrSubscriptionInactive
	}
	t, err := g.Tenants.GetTenant(ctx, id.TenantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSubscriptionInactive
		}
		return err
	}
	if !t.Serviceable() {
		return ErrSubscriptionInactive
	}
	return nil
}

// Authorize applies the checks of p in order: role, tenant match,
// subscription. The first failure is returned and later checks never run.
func (g *Guard) Authorize(ctx context.Context, id Identity, p Policy) error {
	if id.IsZero() {
		return ErrMissingCredential
	}
	if p.Role != "" {
		if err := RequireRole(id, p.Role); err != nil {
			return err
		}
	}
	if p.TenantID != "" {
		if err := RequireTenantMatch(id, p.TenantID); err != nil {
			return err
		}
	}
	if p.ActiveSubscription {
		if err := g.RequireActiveSubscription(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
