package services

import (
	"context"
	"errors"
	"strings"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/observability"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WidgetConfig is what anonymous widget traffic may learn about a tenant
// once its origin has been validated.
type WidgetConfig struct {
	TenantID string
	Name     string
	// Origin is the normalized domain the request was validated against.
	Origin  string
	Enabled bool
	Config  domain.ChatbotConfig
}

// OriginValidator is the gate for unauthenticated widget requests: nothing
// about a tenant is released until the request origin is in its allowed
// domains.
type OriginValidator struct {
	Tenants TenantLookup
}

// Validate resolves tenantID and checks origin (an Origin or Referer value,
// or a bare domain) against the tenant's allowed domains. Both inputs are
// required before any lookup happens. A disabled chatbot is not an error: the result has Enabled false and an empty Config.
func (v *OriginValidator) Validate(ctx context.Context, tenantID, origin string) (*WidgetConfig, error) {
	ctx, span := otel.Tracer("services/OriginValidator").Start(ctx, "Validate",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("widget.origin", origin),
		),
	)
	defer span.End()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		observability.OriginChecks.WithLabelValues("invalid").Inc()
		return nil, invalid("clientId", "is required")
	}
	if strings.TrimSpace(origin) == "" {
		observability.OriginChecks.WithLabelValues("invalid").Inc()
		return nil, invalid("origin", "is required")
	}

	t, err := v.Tenants.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			observability.OriginChecks.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound
		}
		observability.OriginChecks.WithLabelValues("error").Inc()
		return nil, err
	}
	if !t.IsActive {
		observability.OriginChecks.WithLabelValues("tenant_inactive").Inc()
		return nil, ErrTenantInactive
	}

	normalized := domain.NormalizeOrigin(origin)
	if !t.AllowsDomain(normalized) {
		observability.OriginChecks.WithLabelValues("denied").Inc()
		return nil, ErrOriginNotAllowed
	}

	out := &WidgetConfig{TenantID: t.ID, Name: t.Name, Origin: normalized, Enabled: t.ChatbotConfig.Enabled}
	if !out.Enabled {
		observability.OriginChecks.WithLabelValues("disabled").Inc()
		return out, nil
	}
	out.Config = t.ChatbotConfig
	observability.OriginChecks.WithLabelValues("allowed").Inc()
	return out, nil
}
