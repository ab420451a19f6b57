// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Two CORS postures coexist. Widget routes are called from arbitrary customer
// sites, so they echo the caller's Origin without credentials and leave the
// real decision to the per-tenant origin check. Everything else follows the
// configured dashboard allowlist.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/docs"
	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/cache"
	"github.com/tbourn/go-chatwidget-saas/internal/config"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/http/handlers"
	"github.com/tbourn/go-chatwidget-saas/internal/http/middleware"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

// Deps are the long-lived resources the routes are built on.
type Deps struct {
	DB       *gorm.DB
	Sessions *auth.Sessions
	// TenantCache fronts widget tenant lookups. Nil reads the database.
	TenantCache *cache.TenantCache
}

// NewHandlers builds the service graph over deps and returns the handlers.
func NewHandlers(d Deps, cfg config.Config) *handlers.Handlers {
	db := d.DB
	direct := services.RepoTenants{DB: db}

	var lookup services.TenantLookup = direct
	var invalidator services.TenantInvalidator
	if d.TenantCache != nil {
		lookup = d.TenantCache
		invalidator = d.TenantCache
	}

	// Authorization always reads the database so suspensions apply at once.
	guard := auth.NewGuard(direct)
	ledger := &services.Ledger{DB: db}

	tenants := &services.TenantService{
		DB:              db,
		Guard:           guard,
		Cache:           invalidator,
		WidgetScriptURL: widgetScriptURL(cfg.Widget.PublicBaseURL),
	}
	widget := &services.WidgetService{
		DB:             db,
		Origins:        &services.OriginValidator{Tenants: lookup},
		Ledger:         ledger,
		Usage:          &services.DBUsage{DB: db},
		Replies:        services.CannedReplies{},
		IdempotencyTTL: cfg.IdempotencyTTL,
	}

	return handlers.New(handlers.Deps{
		Widget:    widget,
		Accounts:  &services.AccountService{DB: db, Sessions: d.Sessions, Guard: guard, Tenants: tenants},
		Tenants:   tenants,
		Dashboard: &services.Dashboard{DB: db, Guard: guard, Ledger: ledger},
		Billing:   &services.BillingService{DB: db, WebhookSecret: cfg.Billing.StripeWebhookSecret, Cache: invalidator},
		Cookie: handlers.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
	})
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS (widget or dashboard posture by path) and security headers
//
// Group middleware then adds origin capture, idempotency validation, and the
// widget rate limiter on widget routes, and Authenticate plus the per-user
// rate limiter on dashboard and admin routes.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	widgetPrefix := strings.TrimRight(apiBase, "/") + "/widget"

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture. It runs on every request, including preflights for
	// routes that only register GET or POST.
	r.Use(corsByPath(widgetPrefix, widgetCORS(), dashboardCORS(cfg.CORS)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = groupWithPrefix(r, apiBase).BasePath()
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := NewHandlers(d, cfg)
	authn := middleware.Authenticate(d.Sessions, cfg.Session.CookieName)
	apiRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIdentityOrIP())
	widgetRL := middleware.NewRateLimiter(cfg.Widget.RateRPS, cfg.Widget.RateBurst, middleware.KeyByWidgetClient())

	api := groupWithPrefix(r, apiBase)

	// Widget (anonymous, cross-origin)
	widget := api.Group("/widget",
		middleware.SecurityHeaders(middleware.SecurityOptions{CrossOrigin: true}),
		middleware.WidgetOrigin(cfg.Widget.TrustClaimedOrigin),
		widgetRL.Handler(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: services.MaxIdempotencyKeyLen}),
	)
	{
		widget.GET("/config", h.WidgetConfig)
		widget.POST("/messages", h.WidgetMessage)
	}

	// Accounts (public)
	authGroup := api.Group("/auth", apiRL.Handler())
	{
		authGroup.POST("/signup", h.Signup)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
	}

	// Billing webhooks are authenticated by signature.
	api.POST("/billing/stripe/webhook", h.StripeWebhook)

	// Session required
	api.GET("/me", authn, apiRL.Handler(), h.Me)

	dash := api.Group("/dashboard", authn, middleware.RequireRole(domain.RoleClient), apiRL.Handler(), gzip.Gzip(gzip.DefaultCompression))
	{
		dash.GET("/settings", h.GetSettings)
		dash.PUT("/settings", h.UpdateSettings)
		dash.GET("/stats", h.DashboardStats)
		dash.GET("/conversations", h.ListConversations)
		dash.GET("/conversations/:id", h.GetConversation)
		dash.PATCH("/conversations/:id", h.UpdateConversation)
		dash.PATCH("/messages/:id", h.UpdateMessage)
	}

	admin := api.Group("/admin", authn, middleware.RequireRole(domain.RoleAdmin), apiRL.Handler(), gzip.Gzip(gzip.DefaultCompression))
	{
		admin.GET("/tenants", h.ListTenants)
		admin.POST("/tenants", h.CreateTenant)
		admin.GET("/tenants/:id", h.GetTenant)
		admin.PATCH("/tenants/:id", h.UpdateTenant)
		admin.DELETE("/tenants/:id", h.DeleteTenant)
		admin.POST("/tenants/:id/suspend", h.SuspendTenant)
		admin.POST("/tenants/:id/reactivate", h.ReactivateTenant)
		admin.POST("/tenants/:id/usage/reset", h.ResetTenantUsage)
		admin.GET("/tenants/:id/conversations", h.AdminListConversations)
		admin.GET("/tenants/:id/conversations/:cid", h.AdminGetConversation)
		admin.GET("/users", h.ListUsers)
		admin.PATCH("/users/:id", h.UpdateUser)
		admin.GET("/stats", h.GlobalStats)
	}
}

// widgetCORS accepts any calling page and echoes its Origin. Whether that
// page may use a tenant's widget is decided per request against the tenant's
// allowed domains, so credentials stay off.
func widgetCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.HeaderIdempotencyKey, middleware.HeaderWidgetOrigin},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           10 * time.Minute,
	})
}

// dashboardCORS builds the allowlist posture. With no origins configured
// any origin may call the API, but without credentials, so only Bearer
// tokens work cross-site.
func dashboardCORS(c config.CORSConfig) gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(c.AllowedOrigins) == 0 {
		return cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		})
	}
	return cors.New(cors.Config{
		AllowOrigins:     c.AllowedOrigins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// corsByPath dispatches to the widget posture under widgetPrefix and to the
// dashboard posture everywhere else.
func corsByPath(widgetPrefix string, widget, dashboard gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if p == widgetPrefix || strings.HasPrefix(p, widgetPrefix+"/") {
			widget(c)
			return
		}
		dashboard(c)
	}
}

func widgetScriptURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	return base + "/widget.js"
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
