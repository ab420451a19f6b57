package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// maxWebhookBody bounds Stripe webhook payloads.
const maxWebhookBody = 64 << 10

// WebhookResponse acknowledges a billing event.
type WebhookResponse struct {
	Success   bool                      `json:"success" example:"true"`
	EventType string                    `json:"event_type" example:"customer.subscription.updated"`
	TenantID  string                    `json:"tenant_id,omitempty"`
	Status    domain.SubscriptionStatus `json:"status,omitempty" example:"past_due"`
	Ignored   bool                      `json:"ignored"`
}

// StripeWebhook godoc
// @ID          stripeWebhook
// @Summary     Stripe webhook
// @Description Verifies the Stripe-Signature header and applies subscription lifecycle events to the matching tenant. Unrelated events and unknown customers are acknowledged and ignored.
// @Tags        Billing
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature  header  string  true  "Stripe signature"
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad signature or payload"
// @Failure     503  {object}  handlers.ErrorResponse  "Webhook secret not configured"
// @Router      /billing/stripe/webhook [post]
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}
	if len(payload) > maxWebhookBody {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "payload too large")
		return
	}

	res, err := h.billing.HandleStripeEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, WebhookResponse{
		Success:   true,
		EventType: res.EventType,
		TenantID:  res.TenantID,
		Status:    res.Status,
		Ignored:   res.Ignored,
	})
}
