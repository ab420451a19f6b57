// Dashboard HTTP handlers for signed-in business owners.
//
// The tenant is always the one in the caller's session; these routes take
// no tenant id from the path or body. Conversation endpoints are shared with
// the admin surface, which passes the tenant from the path instead.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

// SettingsRequest updates the chatbot settings. Omitted fields are kept.
// AllowedDomains, when present, replaces the extra embed domains; the
// tenant's own domain is always kept.
type SettingsRequest struct {
	WelcomeMessage *string          `json:"welcome_message,omitempty" example:"Hi! How can we help?"`
	Tone           *domain.Tone     `json:"tone,omitempty" example:"friendly"`
	Enabled        *bool            `json:"enabled,omitempty" example:"true"`
	PrimaryColor   *string          `json:"primary_color,omitempty" example:"#0055ff"`
	Position       *domain.Position `json:"position,omitempty" example:"bottom-right"`
	AllowedDomains []string         `json:"allowed_domains,omitempty"`
}

// SettingsResponse returns the tenant with its embed snippet.
type SettingsResponse struct {
	Success      bool           `json:"success" example:"true"`
	Tenant       *domain.Tenant `json:"tenant"`
	EmbedSnippet string         `json:"embed_snippet"`
}

// StatsResponse wraps tenant dashboard figures.
type StatsResponse struct {
	Success bool                  `json:"success" example:"true"`
	Stats   *services.TenantStats `json:"stats"`
}

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Success       bool                  `json:"success" example:"true"`
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// ConversationResponse is a conversation with its messages in order.
type ConversationResponse struct {
	Success bool `json:"success" example:"true"`
	*services.ConversationDetail
}

// UpdateConversationRequest changes a conversation's status and/or marks
// all of its messages read.
type UpdateConversationRequest struct {
	Status   *domain.ConversationStatus `json:"status,omitempty" example:"resolved"`
	MarkRead bool                       `json:"mark_read,omitempty"`
}

// UpdateConversationResponse reports the outcome of a conversation update.
type UpdateConversationResponse struct {
	Success      bool                 `json:"success" example:"true"`
	Conversation *domain.Conversation `json:"conversation,omitempty"`
	MarkedRead   int64                `json:"marked_read"`
}

// UpdateMessageRequest sets the triage flags of one message.
type UpdateMessageRequest struct {
	IsRead    *bool `json:"is_read,omitempty"`
	IsFlagged *bool `json:"is_flagged,omitempty"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Success bool            `json:"success" example:"true"`
	Message *domain.Message `json:"message"`
}

// GetSettings godoc
// @ID          getSettings
// @Summary     Chatbot settings
// @Tags        Dashboard
// @Produce     json
// @Security    SessionCookie
// @Success     200  {object}  handlers.SettingsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Router      /dashboard/settings [get]
func (h *Handlers) GetSettings(c *gin.Context) {
	id := identity(c)
	t, err := h.tenants.Get(c.Request.Context(), id, id.TenantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, SettingsResponse{Success: true, Tenant: t, EmbedSnippet: h.tenants.EmbedSnippet(t)})
}

// UpdateSettings godoc
// @ID          updateSettings
// @Summary     Update chatbot settings
// @Tags        Dashboard
// @Accept      json
// @Produce     json
// @Security    SessionCookie
// @Param       body  body  handlers.SettingsRequest  true  "Fields to change"
// @Success     200  {object}  handlers.SettingsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Subscription inactive"
// @Router      /dashboard/settings [put]
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.tenants.UpdateSettings(c.Request.Context(), identity(c), services.SettingsInput{
		WelcomeMessage: req.WelcomeMessage,
		Tone:           req.Tone,
		Enabled:        req.Enabled,
		PrimaryColor:   req.PrimaryColor,
		Position:       req.Position,
		AllowedDomains: req.AllowedDomains,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, SettingsResponse{Success: true, Tenant: t, EmbedSnippet: h.tenants.EmbedSnippet(t)})
}

// DashboardStats godoc
// @ID          dashboardStats
// @Summary     Tenant statistics
// @Tags        Dashboard
// @Produce     json
// @Security    SessionCookie
// @Success     200  {object}  handlers.StatsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Subscription inactive"
// @Router      /dashboard/stats [get]
func (h *Handlers) DashboardStats(c *gin.Context) {
	id := identity(c)
	st, err := h.dashboard.Stats(c.Request.Context(), id, id.TenantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, StatsResponse{Success: true, Stats: st})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Most recent activity first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Dashboard
// @Produce     json
// @Security    SessionCookie
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       status         query   string  false "active, resolved or abandoned"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListConversationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad status filter"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Router      /dashboard/conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	h.listConversations(c, identity(c).TenantID)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Conversation with messages
// @Tags        Dashboard
// @Produce     json
// @Security    SessionCookie
// @Param       id  path  string  true  "Conversation ID"  format(uuid)
// @Success     200  {object}  handlers.ConversationResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /dashboard/conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	h.getConversation(c, identity(c).TenantID, c.Param("id"))
}

// UpdateConversation godoc
// @ID          updateConversation
// @Summary     Resolve, abandon, reopen, or mark read
// @Tags        Dashboard
// @Accept      json
// @Produce     json
// @Security    SessionCookie
// @Param       id    path  string  true  "Conversation ID"  format(uuid)
// @Param       body  body  handlers.UpdateConversationRequest  true  "Changes"
// @Success     200  {object}  handlers.UpdateConversationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Nothing to change or bad status"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Visitor already has an active conversation"
// @Router      /dashboard/conversations/{id} [patch]
func (h *Handlers) UpdateConversation(c *gin.Context) {
	var req UpdateConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Status == nil && !req.MarkRead {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "status or mark_read is required")
		return
	}

	ctx := c.Request.Context()
	id := identity(c)
	convID := c.Param("id")
	resp := UpdateConversationResponse{Success: true}

	if req.Status != nil {
		conv, err := h.dashboard.SetConversationStatus(ctx, id, id.TenantID, convID, *req.Status)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		resp.Conversation = conv
	}
	if req.MarkRead {
		n, err := h.dashboard.MarkConversationRead(ctx, id, id.TenantID, convID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		resp.MarkedRead = n
	}
	ok(c, http.StatusOK, resp)
}

// UpdateMessage godoc
// @ID          updateMessage
// @Summary     Set message read/flagged markers
// @Tags        Dashboard
// @Accept      json
// @Produce     json
// @Security    SessionCookie
// @Param       id    path  string  true  "Message ID"  format(uuid)
// @Param       body  body  handlers.UpdateMessageRequest  true  "Flags"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Nothing to change"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /dashboard/messages/{id} [patch]
func (h *Handlers) UpdateMessage(c *gin.Context) {
	var req UpdateMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsRead == nil && req.IsFlagged == nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "is_read or is_flagged is required")
		return
	}
	id := identity(c)
	m, err := h.dashboard.SetMessageFlags(c.Request.Context(), id, id.TenantID, c.Param("id"),
		services.MessageFlags{IsRead: req.IsRead, IsFlagged: req.IsFlagged})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Success: true, Message: m})
}

//
// Shared with the admin surface
//

func (h *Handlers) listConversations(c *gin.Context, tenantID string) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)
	status := domain.ConversationStatus(strings.TrimSpace(c.Query("status")))

	items, total, err := h.dashboard.ListConversations(ctx, identity(c), tenantID, services.ConversationFilter{
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	// ETag after the access check, best effort.
	if count, version, err := h.dashboard.ConversationsVersion(ctx, tenantID); err == nil {
		etag := fmt.Sprintf(`W/"convs:%s:%s:%d:%d:%d:%s"`, tenantID, status, page, pageSize, count, version)
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	ok(c, http.StatusOK, ListConversationsResponse{
		Success:       true,
		Conversations: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}

func (h *Handlers) getConversation(c *gin.Context, tenantID, conversationID string) {
	detail, err := h.dashboard.GetConversation(c.Request.Context(), identity(c), tenantID, conversationID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationResponse{Success: true, ConversationDetail: detail})
}
