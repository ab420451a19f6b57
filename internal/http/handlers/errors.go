// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case. Generic codes mirror HTTP status semantics;
// the domain codes tell a widget or dashboard client exactly which gate
// refused the request, so it can show the right message without parsing text.
//
// Example response:
//
//	{
//	  "success": false,
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "quota_exceeded",
//	  "message": "message quota exceeded"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/http/middleware"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidCredentials   = "invalid_credentials"
	ErrCodeSessionExpired       = "session_expired"
	ErrCodeAccountDisabled      = "account_disabled"
	ErrCodeTenantMismatch       = "tenant_mismatch"
	ErrCodeSubscriptionInactive = "subscription_inactive"
	ErrCodeTenantInactive       = "tenant_inactive"
	ErrCodeOriginNotAllowed     = "origin_not_allowed"
	ErrCodeChatbotDisabled      = "chatbot_disabled"
	ErrCodeQuotaExceeded        = "quota_exceeded"
	ErrCodeInvalidSignature     = "invalid_signature"
	ErrCodeBillingDisabled      = "billing_disabled"
)

// statusFor maps a service error to its HTTP status, code, and client
// message. The most specific sentinel wins, so forbidden sub-kinds are
// checked before the ErrForbidden root.
func statusFor(err error) (int, string, string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrCodeValidation, ve.Error()

	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password"
	case errors.Is(err, auth.ErrExpiredCredential):
		return http.StatusUnauthorized, ErrCodeSessionExpired, "session expired"
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required"

	case errors.Is(err, services.ErrAccountDisabled):
		return http.StatusForbidden, ErrCodeAccountDisabled, "account disabled"
	case errors.Is(err, services.ErrTenantIsolation):
		return http.StatusForbidden, ErrCodeTenantMismatch, "access to this tenant is not permitted"
	case errors.Is(err, services.ErrSubscriptionInactive):
		return http.StatusForbidden, ErrCodeSubscriptionInactive, "subscription inactive"
	case errors.Is(err, services.ErrTenantInactive):
		return http.StatusForbidden, ErrCodeTenantInactive, "this chatbot is not available"
	case errors.Is(err, services.ErrOriginNotAllowed):
		return http.StatusForbidden, ErrCodeOriginNotAllowed, "origin is not allowed for this widget"
	case errors.Is(err, services.ErrChatbotDisabled):
		return http.StatusForbidden, ErrCodeChatbotDisabled, "chatbot disabled"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden, "forbidden"

	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "resource not found"
	case errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusTooManyRequests, ErrCodeQuotaExceeded, "message quota exceeded"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	case errors.Is(err, services.ErrInvalidSignature):
		return http.StatusBadRequest, ErrCodeInvalidSignature, "invalid webhook signature"
	case errors.Is(err, services.ErrBillingDisabled):
		return http.StatusServiceUnavailable, ErrCodeBillingDisabled, "billing webhook not configured"
	}
	return http.StatusInternalServerError, ErrCodeInternal, "internal error"
}

// writeServiceError translates err into the error envelope. Errors without
// a mapping are logged with their cause and reported as a generic 500.
func writeServiceError(c *gin.Context, err error) {
	status, code, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Err(err).
			Int("status", status).
			Str("code", code).
			Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody(c, code, msg))
}
