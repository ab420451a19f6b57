// Package services – BillingService
//
// BillingService keeps a tenant's subscription status in sync with Stripe.
// Only subscription lifecycle events are consumed; the tenant is matched by
// its Stripe customer id.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// BillingService applies Stripe webhook events.
type BillingService struct {
	DB            *gorm.DB
	WebhookSecret string
	Cache         TenantInvalidator
}

// BillingResult reports what a webhook event changed.
type BillingResult struct {
	EventType string
	TenantID  string
	Status    domain.SubscriptionStatus
	// Ignored is true for unhandled event types and unknown customers.
	Ignored bool
}

// SubscriptionStatusFromStripe maps a Stripe subscription status onto the
// tenant's three-valued status.
func SubscriptionStatusFromStripe(s stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return domain.SubscriptionPastDue
	default:
		return domain.SubscriptionCancelled
	}
}

// HandleStripeEvent verifies signature against the raw payload and applies
// the event.
func (s *BillingService) HandleStripeEvent(ctx context.Context, payload []byte, signature string) (*BillingResult, error) {
	ctx, span := otel.Tracer("services/BillingService").Start(ctx, "HandleStripeEvent")
	defer span.End()

	if s.WebhookSecret == "" {
		return nil, ErrBillingDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	span.SetAttributes(attribute.String("stripe.event_type", string(event.Type)))

	res := &BillingResult{EventType: string(event.Type)}
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
	default:
		res.Ignored = true
		return res, nil
	}

	if event.Data == nil {
		return nil, invalid("data", "missing event data")
	}
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, invalid("data", "malformed subscription object")
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, invalid("customer", "missing customer id")
	}

	status := SubscriptionStatusFromStripe(sub.Status)
	if event.Type == "customer.subscription.deleted" {
		status = domain.SubscriptionCancelled
	}
	res.Status = status

	t, err := repo.GetTenantByStripeCustomer(ctx, s.DB, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Info().Str("stripe_customer", sub.Customer.ID).Str("event", res.EventType).
				Msg("stripe event for unknown customer ignored")
			res.Ignored = true
			return res, nil
		}
		return nil, err
	}
	res.TenantID = t.ID
	span.SetAttributes(attribute.String("tenant.id", t.ID))

	if _, err := repo.SetSubscriptionByCustomer(ctx, s.DB, sub.Customer.ID, status); err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, t.ID)
	log.Info().Str("tenant_id", t.ID).Str("status", string(status)).Str("event", res.EventType).
		Msg("subscription status updated")
	return res, nil
}
