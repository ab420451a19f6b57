// Account HTTP handlers: signup, login, logout, and the current account.
//
// Signup and login set the session cookie and also return the token so
// non-browser clients can send it as a Bearer credential.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

// SignupRequest registers a business and its owner account.
type SignupRequest struct {
	Email        string      `json:"email" example:"owner@acme.com"`
	Password     string      `json:"password" example:"correct-horse-battery"`
	BusinessName string      `json:"business_name" example:"Acme"`
	Domain       string      `json:"domain" example:"acme.com"`
	Plan         domain.Plan `json:"plan,omitempty" example:"starter"`
}

// LoginRequest exchanges credentials for a session.
type LoginRequest struct {
	Email    string `json:"email" example:"owner@acme.com"`
	Password string `json:"password" example:"correct-horse-battery"`
}

// AccountResponse describes the signed-in user and, for clients, their
// tenant and embed snippet.
type AccountResponse struct {
	Success      bool           `json:"success" example:"true"`
	User         *domain.User   `json:"user"`
	Tenant       *domain.Tenant `json:"tenant,omitempty"`
	EmbedSnippet string         `json:"embed_snippet,omitempty"`
}

// SessionResponse is returned by signup and login.
type SessionResponse struct {
	AccountResponse
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" example:"2025-01-02T15:04:05Z"`
}

func accountResponse(a *services.Account) AccountResponse {
	return AccountResponse{Success: true, User: a.User, Tenant: a.Tenant, EmbedSnippet: a.Snippet}
}

func (h *Handlers) setSession(c *gin.Context, s *services.Session) {
	maxAge := int(s.ExpiresAt.Sub(h.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, s.Token, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *Handlers) writeSession(c *gin.Context, status int, a *services.Account, s *services.Session) {
	h.setSession(c, s)
	ok(c, status, SessionResponse{
		AccountResponse: accountResponse(a),
		Token:           s.Token,
		ExpiresAt:       s.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Signup godoc
// @ID          signup
// @Summary     Create an account
// @Description Creates the owner user and its tenant (allowed domains = [domain]) and signs the user in.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SignupRequest  true  "Signup payload"
// @Success     201  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "Email or domain already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if !bindJSON(c, &req) {
		return
	}
	acct, sess, err := h.accounts.Signup(c.Request.Context(), services.SignupInput{
		Email:        req.Email,
		Password:     req.Password,
		BusinessName: req.BusinessName,
		Domain:       req.Domain,
		Plan:         req.Plan,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.writeSession(c, http.StatusCreated, acct, sess)
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     403  {object}  handlers.ErrorResponse  "Account disabled"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	acct, sess, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.writeSession(c, http.StatusOK, acct, sess)
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Clears the session cookie. Tokens are stateless and stay valid until they expire.
// @Tags        Auth
// @Success     204  {string}  string  "No Content"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
	noContent(c)
}

// Me godoc
// @ID          me
// @Summary     Current account
// @Tags        Auth
// @Produce     json
// @Security    SessionCookie
// @Success     200  {object}  handlers.AccountResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Account disabled"
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	acct, err := h.accounts.Me(c.Request.Context(), identity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, accountResponse(acct))
}
