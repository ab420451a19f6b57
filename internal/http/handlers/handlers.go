package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/http/middleware"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

//
// Service contracts (context-aware)
//

// WidgetService serves anonymous widget traffic.
type WidgetService interface {
	// Config validates origin for tenantID and returns its widget settings.
	Config(ctx context.Context, tenantID, origin string) (*services.WidgetConfig, error)
	// Chat records a visitor message and the generated reply.
	Chat(ctx context.Context, in services.ChatInput) (*services.ChatResult, error)
}

// AccountService covers signup, login, and user administration.
type AccountService interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.Account, *services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Account, *services.Session, error)
	Me(ctx context.Context, id auth.Identity) (*services.Account, error)
	ListUsers(ctx context.Context, id auth.Identity, role domain.Role, page, pageSize int) ([]domain.User, int64, error)
	SetUserActive(ctx context.Context, id auth.Identity, userID string, active bool) (*domain.User, error)
}

// TenantService manages tenant records for owners and admins.
type TenantService interface {
	Create(ctx context.Context, id auth.Identity, in services.CreateTenantInput) (*domain.Tenant, error)
	Get(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error)
	UpdateSettings(ctx context.Context, id auth.Identity, in services.SettingsInput) (*domain.Tenant, error)
	AdminUpdate(ctx context.Context, id auth.Identity, tenantID string, in services.AdminTenantInput) (*domain.Tenant, error)
	Suspend(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error)
	Reactivate(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error)
	Delete(ctx context.Context, id auth.Identity, tenantID string) error
	List(ctx context.Context, id auth.Identity, page, pageSize int) ([]domain.Tenant, int64, error)
	ResetUsage(ctx context.Context, id auth.Identity, tenantID string) (*domain.Tenant, error)
	EmbedSnippet(t *domain.Tenant) string
}

// DashboardService is the read and triage side of the ledger.
type DashboardService interface {
	ListConversations(ctx context.Context, id auth.Identity, tenantID string, f services.ConversationFilter) ([]domain.Conversation, int64, error)
	GetConversation(ctx context.Context, id auth.Identity, tenantID, conversationID string) (*services.ConversationDetail, error)
	SetConversationStatus(ctx context.Context, id auth.Identity, tenantID, conversationID string, status domain.ConversationStatus) (*domain.Conversation, error)
	MarkConversationRead(ctx context.Context, id auth.Identity, tenantID, conversationID string) (int64, error)
	SetMessageFlags(ctx context.Context, id auth.Identity, tenantID, messageID string, f services.MessageFlags) (*domain.Message, error)
	Stats(ctx context.Context, id auth.Identity, tenantID string) (*services.TenantStats, error)
	GlobalStats(ctx context.Context, id auth.Identity) (*repo.GlobalStats, error)
	// ConversationsVersion returns the count and last change marker used
	// for list ETags.
	ConversationsVersion(ctx context.Context, tenantID string) (int64, string, error)
}

// BillingService applies payment provider webhooks.
type BillingService interface {
	HandleStripeEvent(ctx context.Context, payload []byte, signature string) (*services.BillingResult, error)
}

//
// Handler wiring
//

// CookieOptions controls the session cookie set on signup and login.
type CookieOptions struct {
	Name   string
	Secure bool
	Domain string
}

// Deps are the services the handlers delegate to.
type Deps struct {
	Widget    WidgetService
	Accounts  AccountService
	Tenants   TenantService
	Dashboard DashboardService
	Billing   BillingService
	Cookie    CookieOptions
}

// Handlers groups all HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	widget    WidgetService
	accounts  AccountService
	tenants   TenantService
	dashboard DashboardService
	billing   BillingService
	cookie    CookieOptions

	now func() time.Time
}

// New constructs a Handlers bound to the given services.
func New(d Deps) *Handlers {
	if d.Cookie.Name == "" {
		d.Cookie.Name = "session"
	}
	return &Handlers{
		widget:    d.Widget,
		accounts:  d.Accounts,
		tenants:   d.Tenants,
		dashboard: d.Dashboard,
		billing:   d.Billing,
		cookie:    d.Cookie,
		now:       time.Now,
	}
}

// identity returns the caller resolved by middleware.Authenticate. Routes
// mounted without that middleware see the zero identity and every service
// rejects it as unauthenticated.
func identity(c *gin.Context) auth.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

// bindJSON decodes the body or writes a 400 and returns false.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}
