package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

func authEngine(a AccountService) *gin.Engine {
	h := New(Deps{Accounts: a, Cookie: CookieOptions{Name: "session", Secure: true}})
	r := newEngine()
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	authed(r).GET("/me", h.Me)
	return r
}

func testAccount() *services.Account {
	tid := "t-1"
	return &services.Account{
		User:    &domain.User{ID: "u-client", Email: "owner@acme.com", Role: domain.RoleClient, TenantID: &tid, IsActive: true},
		Tenant:  &domain.Tenant{ID: tid, Domain: "acme.com"},
		Snippet: `<script data-client-id="t-1"></script>`,
	}
}

func sessionCookie(t *testing.T, header http.Header) string {
	t.Helper()
	for _, c := range header.Values("Set-Cookie") {
		if strings.HasPrefix(c, "session=") {
			return c
		}
	}
	t.Fatalf("no session cookie in %v", header.Values("Set-Cookie"))
	return ""
}

func TestSignup_SetsCookieAndReturnsAccount(t *testing.T) {
	var got services.SignupInput
	stub := &stubAccounts{signup: func(_ context.Context, in services.SignupInput) (*services.Account, *services.Session, error) {
		got = in
		return testAccount(), &services.Session{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}
	r := authEngine(stub)

	w := doJSON(t, r, http.MethodPost, "/auth/signup", "", SignupRequest{
		Email: "owner@acme.com", Password: "s3cret-password", BusinessName: "Acme", Domain: "acme.com", Plan: domain.PlanBusiness,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got.BusinessName != "Acme" || got.Plan != domain.PlanBusiness || got.Domain != "acme.com" {
		t.Fatalf("input not mapped: %+v", got)
	}

	resp := decode[SessionResponse](t, w)
	if !resp.Success || resp.Token != "tok-1" || resp.Tenant == nil || resp.EmbedSnippet == "" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("response leaks password material: %s", w.Body.String())
	}

	c := sessionCookie(t, w.Header())
	for _, attr := range []string{"session=tok-1", "HttpOnly", "Secure", "SameSite=Lax", "Path=/"} {
		if !strings.Contains(c, attr) {
			t.Fatalf("cookie %q missing %q", c, attr)
		}
	}
}

func TestSignup_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&services.ValidationError{Field: "email", Reason: "must be a valid email address"}, http.StatusBadRequest, ErrCodeValidation},
		{services.ErrConflict, http.StatusConflict, ErrCodeConflict},
	}
	for _, tc := range cases {
		r := authEngine(&stubAccounts{signup: func(context.Context, services.SignupInput) (*services.Account, *services.Session, error) {
			return nil, nil, tc.err
		}})
		wantError(t, doJSON(t, r, http.MethodPost, "/auth/signup", "", SignupRequest{Email: "x"}), tc.status, tc.code)
	}
}

func TestLogin(t *testing.T) {
	stub := &stubAccounts{login: func(_ context.Context, email, password string) (*services.Account, *services.Session, error) {
		switch {
		case email == "blocked@acme.com":
			return nil, nil, services.ErrAccountDisabled
		case password != "s3cret-password":
			return nil, nil, services.ErrInvalidCredentials
		}
		return testAccount(), &services.Session{Token: "tok-2", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}
	r := authEngine(stub)

	w := doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "owner@acme.com", Password: "s3cret-password"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if c := sessionCookie(t, w.Header()); !strings.HasPrefix(c, "session=tok-2") {
		t.Fatalf("cookie=%q", c)
	}

	wantError(t, doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "owner@acme.com", Password: "nope"}),
		http.StatusUnauthorized, ErrCodeInvalidCredentials)
	wantError(t, doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "blocked@acme.com", Password: "s3cret-password"}),
		http.StatusForbidden, ErrCodeAccountDisabled)
	wantError(t, doJSON(t, r, http.MethodPost, "/auth/login", "", "[]"), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestLogout_ClearsCookie(t *testing.T) {
	r := authEngine(&stubAccounts{})
	w := doJSON(t, r, http.MethodPost, "/auth/logout", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	c := sessionCookie(t, w.Header())
	if !strings.Contains(c, "Max-Age=0") {
		t.Fatalf("cookie not expired: %q", c)
	}
}

func TestMe(t *testing.T) {
	var seen auth.Identity
	stub := &stubAccounts{me: func(_ context.Context, id auth.Identity) (*services.Account, error) {
		seen = id
		return testAccount(), nil
	}}
	r := authEngine(stub)

	w := doJSON(t, r, http.MethodGet, "/me", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if seen != clientID {
		t.Fatalf("identity not passed through: %+v", seen)
	}
	resp := decode[AccountResponse](t, w)
	if resp.User == nil || resp.User.ID != "u-client" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	wantError(t, doJSON(t, r, http.MethodGet, "/me", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
	wantError(t, doJSON(t, r, http.MethodGet, "/me", "forged", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}
