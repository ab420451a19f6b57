package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/observability"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UsageAccounting gates message creation on the tenant's plan quota.
//
// Admit consumes one message from the tenant's cycle quota, or fails with
// ErrQuotaExceeded, ErrSubscriptionInactive, or ErrNotFound. Refund returns
// a message admitted for a turn that was never written.
type UsageAccounting interface {
	Admit(ctx context.Context, tenantID string) error
	Refund(ctx context.Context, tenantID string) error
}

// DBUsage implements UsageAccounting with a single conditional UPDATE, so
// concurrent admissions can never push usage past the limit.
type DBUsage struct {
	DB *gorm.DB
}

// Admit implements UsageAccounting.
func (u *DBUsage) Admit(ctx context.Context, tenantID string) error {
	ctx, span := otel.Tracer("services/DBUsage").Start(ctx, "Admit",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	ok, err := repo.IncrementUsage(ctx, u.DB, tenantID)
	if err != nil {
		observability.UsageAdmissions.WithLabelValues("error").Inc()
		return err
	}
	if ok {
		observability.UsageAdmissions.WithLabelValues("admitted").Inc()
		return nil
	}

	// Nothing matched: find out which condition failed.
	t, err := repo.GetTenant(ctx, u.DB, tenantID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		observability.UsageAdmissions.WithLabelValues("not_found").Inc()
		return ErrNotFound
	case err != nil:
		observability.UsageAdmissions.WithLabelValues("error").Inc()
		return err
	case !t.Serviceable():
		observability.UsageAdmissions.WithLabelValues("subscription_inactive").Inc()
		return ErrSubscriptionInactive
	default:
		observability.UsageAdmissions.WithLabelValues("quota_exceeded").Inc()
		return ErrQuotaExceeded
	}
}

// Refund implements UsageAccounting.
func (u *DBUsage) Refund(ctx context.Context, tenantID string) error {
	if err := repo.DecrementUsage(ctx, u.DB, tenantID); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("usage refund failed")
		return err
	}
	observability.UsageAdmissions.WithLabelValues("refunded").Inc()
	return nil
}
