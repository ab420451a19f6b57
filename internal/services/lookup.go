package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
)

// TenantLookup loads a tenant by id and reports unknown ids as
// repo.ErrNotFound. Both RepoTenants and cache.TenantCache satisfy it.
type TenantLookup interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
}

// TenantInvalidator drops a cached tenant after it changed.
type TenantInvalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// RepoTenants reads tenants straight from the database.
type RepoTenants struct {
	DB *gorm.DB
}

// GetTenant implements TenantLookup.
func (r RepoTenants) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	return repo.GetTenant(ctx, r.DB, id)
}

func invalidate(ctx context.Context, c TenantInvalidator, tenantID string) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, tenantID); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("tenant cache invalidation failed")
	}
}

// notFound converts a repository miss into ErrNotFound and passes other
// errors through.
func notFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// conflict converts a unique violation into ErrConflict with detail.
func conflict(err error, detail string) error {
	if repo.IsDuplicate(err) {
		return wrapConflict(detail)
	}
	return err
}

func wrapConflict(detail string) error {
	return fmt.Errorf("%w: %s", ErrConflict, detail)
}
