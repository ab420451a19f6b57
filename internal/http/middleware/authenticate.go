package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

const identityKey = "identity"

// SessionResolver turns a presented token into a verified identity.
// *auth.Sessions satisfies it.
type SessionResolver interface {
	Resolve(token string) (auth.Identity, error)
}

// SessionToken returns the credential presented on the request: the session
// cookie first, then an "Authorization: Bearer" header.
func SessionToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate resolves the session credential and stores the identity in
// the context. Requests without a valid credential are rejected with 401;
// nothing after this middleware runs for them.
func Authenticate(res SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := res.Resolve(SessionToken(c, cookieName))
		if err != nil {
			msg := "authentication required"
			switch {
			case errors.Is(err, auth.ErrExpiredCredential):
				msg = "session expired"
			case errors.Is(err, auth.ErrInvalidCredential):
				msg = "invalid session"
			}
			c.Header("WWW-Authenticate", `Bearer realm="dashboard"`)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", msg)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole admits only identities holding role. It runs after
// Authenticate and guards a whole route group, so a client session never
// reaches an admin handler even for its own tenant.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if err := auth.RequireRole(id, role); err != nil {
			LoggerFrom(c).Warn().
				Str("user_id", id.UserID).
				Str("role", string(id.Role)).
				Str("required_role", string(role)).
				Msg("role denied")
			abortJSON(c, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && !id.IsZero()
}
