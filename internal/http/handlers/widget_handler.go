// Widget HTTP handlers.
//
// These endpoints are called cross-origin by the embeddable widget script
// and carry no session. The tenant comes from the clientId the snippet was
// generated with and is trusted only after its origin check passed:
//   - GET  /widget/config?clientId=   (settings or a disabled marker)
//   - POST /widget/messages           (visitor turn plus reply)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/http/middleware"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

// HeaderIdempotentReplay marks a response served from an earlier request
// with the same Idempotency-Key.
const HeaderIdempotentReplay = "Idempotent-Replay"

// WidgetConfigResponse is returned by the config endpoint. When Enabled is
// false Config is omitted and the widget stays hidden.
type WidgetConfigResponse struct {
	Success  bool                  `json:"success" example:"true"`
	Enabled  bool                  `json:"enabled" example:"true"`
	ClientID string                `json:"client_id" example:"7d0c1a0e-5c2b-4b3e-9a43-1f6f5f0e3c11"`
	Name     string                `json:"name,omitempty" example:"Acme"`
	Config   *domain.ChatbotConfig `json:"config,omitempty"`
}

// WidgetMessageRequest is the visitor turn posted by the widget script.
type WidgetMessageRequest struct {
	// ClientID is the tenant id from the embed snippet.
	ClientID string `json:"clientId" example:"7d0c1a0e-5c2b-4b3e-9a43-1f6f5f0e3c11"`
	// Message is the visitor text (1–5000 characters).
	Message string `json:"message" example:"What are your opening hours?"`
	// ConversationID continues a known conversation.
	ConversationID string `json:"conversationId,omitempty"`
	// VisitorID is the widget's stable visitor token; one is issued when empty.
	VisitorID string `json:"visitorId,omitempty" example:"v_3f9a2c"`
	// Source is the channel; defaults to website.
	Source domain.Source `json:"source,omitempty" example:"website"`
}

// WidgetMessageResponse carries the stored visitor message and the reply.
type WidgetMessageResponse struct {
	Success        bool            `json:"success" example:"true"`
	VisitorID      string          `json:"visitor_id"`
	ConversationID string          `json:"conversation_id"`
	Message        *domain.Message `json:"message"`
	Reply          *domain.Message `json:"reply"`
	Replayed       bool            `json:"replayed"`
}

// WidgetConfig godoc
// @ID          getWidgetConfig
// @Summary     Widget configuration
// @Description Validates the calling page against the tenant's allowed domains and returns its chatbot settings, or enabled=false when the chatbot is switched off.
// @Tags        Widget
// @Produce     json
//
// @Param       clientId  query   string  true  "Tenant id from the embed snippet"  format(uuid)
// @Param       Origin    header  string  false "Set by the browser"  example(https://www.acme.com)
//
// @Success     200  {object}  handlers.WidgetConfigResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing clientId or origin"
// @Failure     403  {object}  handlers.ErrorResponse  "Origin not allowed or tenant inactive"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown tenant"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /widget/config [get]
func (h *Handlers) WidgetConfig(c *gin.Context) {
	clientID := strings.TrimSpace(c.Query("clientId"))
	if clientID == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "clientId: is required")
		return
	}

	cfg, err := h.widget.Config(c.Request.Context(), clientID, middleware.GetWidgetOrigin(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := WidgetConfigResponse{Success: true, Enabled: cfg.Enabled, ClientID: cfg.TenantID}
	if cfg.Enabled {
		conf := cfg.Config
		resp.Name = cfg.Name
		resp.Config = &conf
	}
	c.Header("Cache-Control", "private, max-age=60")
	ok(c, http.StatusOK, resp)
}

// WidgetMessage godoc
// @ID          postWidgetMessage
// @Summary     Send a visitor message
// @Description Records a visitor message and the assistant reply. Each new message consumes one unit of the tenant's quota; retries with the same Idempotency-Key replay the first result without charging again.
// @Tags        Widget
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Deduplicates widget retries"  example(4e1f0c1a-msg-1)
// @Param       body             body    handlers.WidgetMessageRequest  true  "Visitor turn"
//
// @Success     201  {object}  handlers.WidgetMessageResponse
// @Success     200  {object}  handlers.WidgetMessageResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Origin, tenant, or subscription refused"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown tenant or conversation"
// @Failure     429  {object}  handlers.ErrorResponse  "Quota exceeded or rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /widget/messages [post]
func (h *Handlers) WidgetMessage(c *gin.Context) {
	var req WidgetMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	started := h.now()
	res, err := h.widget.Chat(c.Request.Context(), services.ChatInput{
		TenantID:       req.ClientID,
		Origin:         middleware.GetWidgetOrigin(c),
		VisitorID:      req.VisitorID,
		ConversationID: req.ConversationID,
		Source:         req.Source,
		Message:        req.Message,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	lg := middleware.LoggerFrom(c)
	lg.Debug().
		Str("tenant_id", req.ClientID).
		Str("conversation_id", res.Conversation.ID).
		Bool("replayed", res.Replayed).
		Dur("elapsed", h.now().Sub(started)).
		Msg("widget message")

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		c.Header(HeaderIdempotentReplay, "true")
	}
	ok(c, status, WidgetMessageResponse{
		Success:        true,
		VisitorID:      res.VisitorID,
		ConversationID: res.Conversation.ID,
		Message:        res.UserMessage,
		Reply:          res.Reply,
		Replayed:       res.Replayed,
	})
}
