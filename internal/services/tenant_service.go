// Package services – TenantService
//
// TenantService is the write side of the tenant directory. Owners change
// their chatbot settings and extra embed domains; admins provision, suspend,
// re-plan, reset, and delete tenants. Every mutation drops the cached copy
// used by the widget path.
package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
	"github.com/tbourn/go-chatwidget-saas/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateTenantInput is the admin provisioning request. Plan defaults to
// starter and MessageLimit to the plan's catalogue limit.
type CreateTenantInput struct {
	Name             string
	Domain           string
	AllowedDomains   []string
	Plan             domain.Plan
	MessageLimit     *int64
	StripeCustomerID *string
}

// SettingsInput is the owner's self-service update. Nil fields are left
// unchanged. AllowedDomains, when set, replaces the extra domains; the
// tenant's own domain is always kept.
type SettingsInput struct {
	WelcomeMessage *string
	Tone           *domain.Tone
	Enabled        *bool
	PrimaryColor   *string
	Position       *domain.Position
	AllowedDomains []string
}

// AdminTenantInput is the admin override. Nil fields are left unchanged.
// A plan change applies the catalogue limit unless MessageLimit is also set.
type AdminTenantInput struct {
	Name               *string
	Domain             *string
	AllowedDomains     []string
	Plan               *domain.Plan
	MessageLimit       *int64
	SubscriptionStatus *domain.SubscriptionStatus
	IsActive           *bool
	StripeCustomerID   *string
}

// TenantService manages tenant records.
type TenantService struct {
	DB    *gorm.DB
	Guard *auth.Guard
	Cache TenantInvalidator

	// WidgetScriptURL is the public URL of widget.js used in EmbedSnippet.
	WidgetScriptURL string
}

func tenantSpan(ctx context.Context, op, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer("services/TenantService").Start(ctx, op,
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
}

// newTenant builds a validated tenant record from provisioning input. The
// tenant's own domain is always the first allowed domain.
func newTenant(name, rawDomain string, extra []string, plan domain.Plan, limit *int64) (*domain.Tenant, error) {
	dom, err := domain.NormalizeDomain(rawDomain)
	if err != nil {
		return nil, invalid("domain", "must be a valid domain such as example.com")
	}
	allowed, err := domain.NormalizeDomains(append([]string{dom}, extra...))
	if err != nil {
		return nil, invalid("allowedDomains", "contains an invalid domain")
	}
	if plan == "" {
		plan = domain.PlanStarter
	}
	if !domain.ValidPlan(plan) {
		return nil, invalid("plan", "must be one of starter, business, pro")
	}
	msgLimit := domain.LimitsFor(plan).MessageLimit
	if limit != nil {
		msgLimit = *limit
	}
	t := &domain.Tenant{
		Name:               strings.TrimSpace(name),
		Domain:             dom,
		AllowedDomains:     allowed,
		ChatbotConfig:      domain.DefaultChatbotConfig(),
		Plan:               plan,
		MessageLimit:       msgLimit,
		SubscriptionStatus: domain.SubscriptionActive,
		IsActive:           true,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Create provisions a tenant without an owner. Admin only.
func (s *TenantService) Create(ctx context.Context, id auth.Identity, in CreateTenantInput) (*domain.Tenant, error) {
	ctx, span := tenantSpan(ctx, "Create", "")
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return nil, err
	}
	t, err := newTenant(in.Name, in.Domain, in.AllowedDomains, in.Plan, in.MessageLimit)
	if err != nil {
		return nil, err
	}
	if in.StripeCustomerID != nil && strings.TrimSpace(*in.StripeCustomerID) != "" {
		cus := strings.TrimSpace(*in.StripeCustomerID)
		t.StripeCustomerID = &cus
	}
	if err := repo.CreateTenant(ctx, s.DB, t); err != nil {
		return nil, conflict(err, "domain or billing customer already registered")
	}
	return t, nil
}

// Get returns a tenant the caller may see: a client only its own, an admin
// any. Clients additionally need an active subscription.
func (s *TenantService) Get(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error) {
	ctx, span := tenantSpan(ctx, "Get", tenantID)
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{TenantID: tenantID, ActiveSubscription: true}); err != nil {
		return nil, err
	}
	t, err := repo.GetTenant(ctx, s.DB, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// UpdateSettings applies an owner's chatbot settings. The tenant is the one
// signed into the caller's credential; no other tenant id is accepted.
func (s *TenantService) UpdateSettings(ctx context.Context, id auth.Identity, in SettingsInput) (*domain.Tenant, error) {
	ctx, span := tenantSpan(ctx, "UpdateSettings", id.TenantID)
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{
		Role:               domain.RoleClient,
		TenantID:           id.TenantID,
		ActiveSubscription: true,
	}); err != nil {
		return nil, err
	}

	t, err := repo.GetTenant(ctx, s.DB, id.TenantID)
	if err != nil {
		return nil, notFound(err)
	}

	cfg := t.ChatbotConfig
	if in.WelcomeMessage != nil {
		cfg.WelcomeMessage = domain.NormalizeText(*in.WelcomeMessage)
	}
	if in.Tone != nil {
		cfg.Tone = *in.Tone
	}
	if in.Enabled != nil {
		cfg.Enabled = *in.Enabled
	}
	if in.PrimaryColor != nil {
		cfg.PrimaryColor = strings.TrimSpace(*in.PrimaryColor)
	}
	if in.Position != nil {
		cfg.Position = *in.Position
	}
	t.ChatbotConfig = cfg

	if in.AllowedDomains != nil {
		allowed, err := domain.NormalizeDomains(append([]string{t.Domain}, in.AllowedDomains...))
		if err != nil {
			return nil, invalid("allowedDomains", "contains an invalid domain")
		}
		t.AllowedDomains = allowed
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := repo.UpdateTenantColumns(ctx, s.DB, t, repo.TenantSettingsColumns...); err != nil {
		return nil, notFound(err)
	}
	invalidate(ctx, s.Cache, t.ID)
	return t, nil
}

// AdminUpdate applies plan, status, and domain overrides. Admin only.
func (s *TenantService) AdminUpdate(ctx context.Context, id auth.Identity, tenantID string, in AdminTenantInput) (*domain.Tenant, error) {
	ctx, span := tenantSpan(ctx, "AdminUpdate", tenantID)
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return nil, err
	}
	t, err := repo.GetTenant(ctx, s.DB, tenantID)
	if err != nil {
		return nil, notFound(err)
	}

	cols := []string{}
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
		cols = append(cols, "name")
	}
	if in.Domain != nil || in.AllowedDomains != nil {
		previous := t.Domain
		if in.Domain != nil {
			dom, err := domain.NormalizeDomain(*in.Domain)
			if err != nil {
				return nil, invalid("domain", "must be a valid domain such as example.com")
			}
			t.Domain = dom
			cols = append(cols, "domain")
		}
		var extra []string
		if in.AllowedDomains != nil {
			extra = in.AllowedDomains
		} else {
			// Kept extras carry over, the replaced domain does not.
			for _, d := range t.AllowedDomains {
				if d == previous && previous != t.Domain {
					continue
				}
				extra = append(extra, d)
			}
		}
		allowed, err := domain.NormalizeDomains(append([]string{t.Domain}, extra...))
		if err != nil {
			return nil, invalid("allowedDomains", "contains an invalid domain")
		}
		t.AllowedDomains = allowed
		cols = append(cols, "allowed_domains")
	}
	if in.Plan != nil {
		if !domain.ValidPlan(*in.Plan) {
			return nil, invalid("plan", "must be one of starter, business, pro")
		}
		t.Plan = *in.Plan
		t.MessageLimit = domain.LimitsFor(t.Plan).MessageLimit
		cols = append(cols, "plan", "message_limit")
	}
	if in.MessageLimit != nil {
		t.MessageLimit = *in.MessageLimit
		cols = append(cols, "message_limit")
	}
	if in.SubscriptionStatus != nil {
		t.SubscriptionStatus = *in.SubscriptionStatus
		cols = append(cols, "subscription_status")
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
		cols = append(cols, "is_active")
	}
	if in.StripeCustomerID != nil {
		cus := strings.TrimSpace(*in.StripeCustomerID)
		if cus == "" {
			t.StripeCustomerID = nil
		} else {
			t.StripeCustomerID = &cus
		}
		cols = append(cols, "stripe_customer_id")
	}
	if len(cols) == 0 {
		return t, nil
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := repo.UpdateTenantColumns(ctx, s.DB, t, cols...); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, wrapConflict("domain or billing customer already registered")
		}
		return nil, notFound(err)
	}
	invalidate(ctx, s.Cache, t.ID)
	return t, nil
}

// SetActive flips the admin kill switch. Suspension leaves data intact.
func (s *TenantService) SetActive(ctx context.Context, id auth.Identity, tenantID string, active bool) (*domain.Tenant, error) {
	return s.AdminUpdate(ctx, id, tenantID, AdminTenantInput{IsActive: &active})
}

// Suspend deactivates a tenant.
func (s *TenantService) Suspend(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error) {
	return s.SetActive(ctx, id, tenantID, false)
}

// Reactivate re-enables a suspended tenant.
func (s *TenantService) Reactivate(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error) {
	return s.SetActive(ctx, id, tenantID, true)
}

// Delete hard-deletes a tenant together with its conversations, messages,
// and idempotency records, and unbinds (and deactivates) its users, in one
// transaction. Admin only.
func (s *TenantService) Delete(ctx context.Context, id auth.Identity, tenantID string) error {
	ctx, span := tenantSpan(ctx, "Delete", tenantID)
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DetachTenantUsers(ctx, tx, tenantID); err != nil {
			return err
		}
		return repo.DeleteTenantCascade(ctx, tx, tenantID)
	})
	if err != nil {
		return notFound(err)
	}
	invalidate(ctx, s.Cache, tenantID)
	return nil
}

// List returns a page of tenants, newest first. Admin only.
func (s *TenantService) List(ctx context.Context, id auth.Identity, page, pageSize int) ([]domain.Tenant, int64, error) {
	ctx, span := otel.Tracer("services/TenantService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return nil, 0, err
	}
	page, pageSize = clampPage(page, pageSize)
	total, err := repo.CountTenants(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Tenant{}, 0, nil
	}
	items, err := repo.ListTenantsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	return items, total, err
}

// ResetUsage zeroes the cycle usage counter. Admin only; this is also the
// hook a billing-cycle job calls.
func (s *TenantService) ResetUsage(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error) {
	ctx, span := tenantSpan(ctx, "ResetUsage", tenantID)
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return nil, err
	}
	if err := repo.ResetUsage(ctx, s.DB, tenantID); err != nil {
		return nil, notFound(err)
	}
	invalidate(ctx, s.Cache, tenantID)
	t, err := repo.GetTenant(ctx, s.DB, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// EmbedSnippet returns the script tag a tenant places on its site. The
// tenant id is public by construction; origin validation guards it.
func (s *TenantService) EmbedSnippet(t *domain.Tenant) string {
	src := s.WidgetScriptURL
	if src == "" {
		src = "/widget.js"
	}
	return fmt.Sprintf(`<script src="%s" data-client-id="%s" async></script>`,
		html.EscapeString(src), html.EscapeString(t.ID))
}

func clampPage(page, pageSize int) (int, int) {
	return utils.ClampPage(page, pageSize)
}
