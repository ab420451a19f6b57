// Admin HTTP handlers: tenant provisioning and lifecycle, cross-tenant
// conversation access, user administration, and platform statistics.
// The tenant id on these routes comes from the path.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

// CreateTenantRequest provisions a tenant without an owner.
type CreateTenantRequest struct {
	Name             string      `json:"name" example:"Acme"`
	Domain           string      `json:"domain" example:"acme.com"`
	AllowedDomains   []string    `json:"allowed_domains,omitempty"`
	Plan             domain.Plan `json:"plan,omitempty" example:"business"`
	MessageLimit     *int64      `json:"message_limit,omitempty" example:"5000"`
	StripeCustomerID *string     `json:"stripe_customer_id,omitempty" example:"cus_123"`
}

// UpdateTenantRequest applies admin overrides. Omitted fields are kept; a
// plan change applies the plan's limit unless message_limit is also set.
type UpdateTenantRequest struct {
	Name               *string                    `json:"name,omitempty"`
	Domain             *string                    `json:"domain,omitempty"`
	AllowedDomains     []string                   `json:"allowed_domains,omitempty"`
	Plan               *domain.Plan               `json:"plan,omitempty" example:"pro"`
	MessageLimit       *int64                     `json:"message_limit,omitempty"`
	SubscriptionStatus *domain.SubscriptionStatus `json:"subscription_status,omitempty" example:"active"`
	IsActive           *bool                      `json:"is_active,omitempty"`
	StripeCustomerID   *string                    `json:"stripe_customer_id,omitempty"`
}

// TenantResponse wraps a single tenant.
type TenantResponse struct {
	Success bool           `json:"success" example:"true"`
	Tenant  *domain.Tenant `json:"tenant"`
}

// ListTenantsResponse wraps a page of tenants.
type ListTenantsResponse struct {
	Success    bool            `json:"success" example:"true"`
	Tenants    []domain.Tenant `json:"tenants"`
	Pagination Pagination      `json:"pagination"`
}

// UpdateUserRequest activates or deactivates a user.
type UpdateUserRequest struct {
	IsActive *bool `json:"is_active" example:"false"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	Success bool         `json:"success" example:"true"`
	User    *domain.User `json:"user"`
}

// ListUsersResponse wraps a page of users.
type ListUsersResponse struct {
	Success    bool          `json:"success" example:"true"`
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// GlobalStatsResponse wraps platform-wide figures.
type GlobalStatsResponse struct {
	Success bool              `json:"success" example:"true"`
	Stats   *repo.GlobalStats `json:"stats"`
}

func (h *Handlers) tenantResult(c *gin.Context, status int, t *domain.Tenant, err error) {
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, status, TenantResponse{Success: true, Tenant: t})
}

// ListTenants godoc
// @ID          adminListTenants
// @Summary     List tenants
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListTenantsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Router      /admin/tenants [get]
func (h *Handlers) ListTenants(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.tenants.List(c.Request.Context(), identity(c), page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListTenantsResponse{Success: true, Tenants: items, Pagination: newPagination(page, pageSize, total)})
}

// CreateTenant godoc
// @ID          adminCreateTenant
// @Summary     Provision a tenant
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    SessionCookie
// @Param       body  body  handlers.CreateTenantRequest  true  "Tenant"
// @Success     201  {object}  handlers.TenantResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "Domain already registered"
// @Router      /admin/tenants [post]
func (h *Handlers) CreateTenant(c *gin.Context) {
	var req CreateTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.tenants.Create(c.Request.Context(), identity(c), services.CreateTenantInput{
		Name:             req.Name,
		Domain:           req.Domain,
		AllowedDomains:   req.AllowedDomains,
		Plan:             req.Plan,
		MessageLimit:     req.MessageLimit,
		StripeCustomerID: req.StripeCustomerID,
	})
	h.tenantResult(c, http.StatusCreated, t, err)
}

// GetTenant godoc
// @ID          adminGetTenant
// @Summary     Get a tenant
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       id  path  string  true  "Tenant ID"  format(uuid)
// @Success     200  {object}  handlers.TenantResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Router      /admin/tenants/{id} [get]
func (h *Handlers) GetTenant(c *gin.Context) {
	t, err := h.tenants.Get(c.Request.Context(), identity(c), c.Param("id"))
	h.tenantResult(c, http.StatusOK, t, err)
}

// UpdateTenant godoc
// @ID          adminUpdateTenant
// @Summary     Update plan, limits, status, or domains
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    SessionCookie
// @Param       id    path  string  true  "Tenant ID"  format(uuid)
// @Param       body  body  handlers.UpdateTenantRequest  true  "Overrides"
// @Success     200  {object}  handlers.TenantResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Domain already registered"
// @Router      /admin/tenants/{id} [patch]
func (h *Handlers) UpdateTenant(c *gin.Context) {
	var req UpdateTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.tenants.AdminUpdate(c.Request.Context(), identity(c), c.Param("id"), services.AdminTenantInput{
		Name:               req.Name,
		Domain:             req.Domain,
		AllowedDomains:     req.AllowedDomains,
		Plan:               req.Plan,
		MessageLimit:       req.MessageLimit,
		SubscriptionStatus: req.SubscriptionStatus,
		IsActive:           req.IsActive,
		StripeCustomerID:   req.StripeCustomerID,
	})
	h.tenantResult(c, http.StatusOK, t, err)
}

// SuspendTenant godoc
// @ID          adminSuspendTenant
// @Summary     Suspend a tenant
// @Description Stops widget traffic and dashboard writes until reactivated.
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       id  path  string  true  "Tenant ID"  format(uuid)
// @Success     200  {object}  handlers.TenantResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Router      /admin/tenants/{id}/suspend [post]
func (h *Handlers) SuspendTenant(c *gin.Context) {
	t, err := h.tenants.Suspend(c.Request.Context(), identity(c), c.Param("id"))
	h.tenantResult(c, http.StatusOK, t, err)
}

// ReactivateTenant godoc
// @ID          adminReactivateTenant
// @Summary     Reactivate a tenant
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       id  path  string  true  "Tenant ID"  format(uuid)
// @Success     200  {object}  handlers.TenantResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Router      /admin/tenants/{id}/reactivate [post]
func (h *Handlers) ReactivateTenant(c *gin.Context) {
	t, err := h.tenants.Reactivate(c.Request.Context(), identity(c), c.Param("id"))
	h.tenantResult(c, http.StatusOK, t, err)
}

// ResetTenantUsage godoc
// @ID          adminResetUsage
// @Summary     Reset the billing-cycle usage counter
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       id  path  string  true  "Tenant ID"  format(uuid)
// @Success     200  {object}  handlers.TenantResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Router      /admin/tenants/{id}/usage/reset [post]
func (h *Handlers) ResetTenantUsage(c *gin.Context) {
	t, err := h.tenants.ResetUsage(c.Request.Context(), identity(c), c.Param("id"))
	h.tenantResult(c, http.StatusOK, t, err)
}

// DeleteTenant godoc
// @ID          adminDeleteTenant
// @Summary     Delete a tenant and all of its data
// @Tags        Admin
// @Security    SessionCookie
// @Param       id  path  string  true  "Tenant ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant not found"
// @Router      /admin/tenants/{id} [delete]
func (h *Handlers) DeleteTenant(c *gin.Context) {
	if err := h.tenants.Delete(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	noContent(c)
}

// AdminListConversations godoc
// @ID          adminListConversations
// @Summary     List a tenant's conversations
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       id         path   string  true   "Tenant ID"  format(uuid)
// @Param       status     query  string  false  "active, resolved or abandoned"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListConversationsResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Router      /admin/tenants/{id}/conversations [get]
func (h *Handlers) AdminListConversations(c *gin.Context) {
	h.listConversations(c, c.Param("id"))
}

// AdminGetConversation godoc
// @ID          adminGetConversation
// @Summary     Get a tenant's conversation with messages
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       id   path  string  true  "Tenant ID"        format(uuid)
// @Param       cid  path  string  true  "Conversation ID"  format(uuid)
// @Success     200  {object}  handlers.ConversationResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /admin/tenants/{id}/conversations/{cid} [get]
func (h *Handlers) AdminGetConversation(c *gin.Context) {
	h.getConversation(c, c.Param("id"), c.Param("cid"))
}

// ListUsers godoc
// @ID          adminListUsers
// @Summary     List users
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Param       role       query  string  false  "client or admin"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListUsersResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad role filter"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Router      /admin/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	role := domain.Role(strings.TrimSpace(c.Query("role")))
	if role != "" && !role.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "role: must be client or admin")
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.accounts.ListUsers(c.Request.Context(), identity(c), role, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Success: true, Users: items, Pagination: newPagination(page, pageSize, total)})
}

// UpdateUser godoc
// @ID          adminUpdateUser
// @Summary     Activate or deactivate a user
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    SessionCookie
// @Param       id    path  string  true  "User ID"  format(uuid)
// @Param       body  body  handlers.UpdateUserRequest  true  "Change"
// @Success     200  {object}  handlers.UserResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /admin/users/{id} [patch]
func (h *Handlers) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsActive == nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "is_active: is required")
		return
	}
	u, err := h.accounts.SetUserActive(c.Request.Context(), identity(c), c.Param("id"), *req.IsActive)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, UserResponse{Success: true, User: u})
}

// GlobalStats godoc
// @ID          adminStats
// @Summary     Platform statistics
// @Tags        Admin
// @Produce     json
// @Security    SessionCookie
// @Success     200  {object}  handlers.GlobalStatsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Router      /admin/stats [get]
func (h *Handlers) GlobalStats(c *gin.Context) {
	st, err := h.dashboard.GlobalStats(c.Request.Context(), identity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, GlobalStatsResponse{Success: true, Stats: st})
}
