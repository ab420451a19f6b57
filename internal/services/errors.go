// Package services implements the tenant directory, origin validation, the
// conversation ledger, usage accounting, and the flows built on them (widget
// chat, accounts, dashboard, billing).
//
// This file centralizes the service-level error values. Handlers translate
// them into HTTP status codes with errors.Is / errors.As; services never
// format transport responses themselves.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// Authentication and authorization errors. They share roots with the auth
// package so a guard failure and a service failure map to the same status.
var (
	ErrUnauthenticated = auth.ErrUnauthenticated
	ErrForbidden       = auth.ErrForbidden

	// ErrTenantIsolation is returned when a client addresses another tenant.
	ErrTenantIsolation = auth.ErrTenantMismatch

	// ErrSubscriptionInactive is returned when the tenant's subscription is
	// not active or the tenant has been suspended.
	ErrSubscriptionInactive = auth.ErrSubscriptionInactive

	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)

	// ErrAccountDisabled is returned by Login for a deactivated user.
	ErrAccountDisabled = fmt.Errorf("%w: account disabled", ErrForbidden)
)

// Widget errors.
var (
	// ErrTenantInactive indicates the tenant was switched off by an admin.
	ErrTenantInactive = fmt.Errorf("%w: tenant inactive", ErrForbidden)

	// ErrOriginNotAllowed indicates the request origin is not in the
	// tenant's allowed domains.
	ErrOriginNotAllowed = fmt.Errorf("%w: origin not allowed", ErrForbidden)

	// ErrChatbotDisabled is returned when a visitor posts a message to a
	// tenant whose chatbot is disabled.
	ErrChatbotDisabled = fmt.Errorf("%w: chatbot disabled", ErrForbidden)
)

var (
	// ErrNotFound indicates that the requested record does not exist or is
	// not visible to the caller's tenant.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned when a non-pro tenant has used its
	// message limit for the current cycle.
	ErrQuotaExceeded = errors.New("message quota exceeded")

	// ErrConflict indicates a uniqueness violation (domain, email, owner, or
	// a second active conversation).
	ErrConflict = errors.New("conflict")

	// ErrInvalidSignature is returned for a billing webhook whose signature
	// does not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrBillingDisabled is returned when no webhook secret is configured.
	ErrBillingDisabled = errors.New("billing webhook not configured")
)

// ValidationError reports malformed input on a named field.
type ValidationError = domain.ValidationError

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
