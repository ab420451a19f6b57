package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func ptr(s string) *string { return &s }

func newTestSessions(t *testing.T) *Sessions {
	t.Helper()
	s, err := NewSessions(testSecret, "chatwidget", time.Hour)
	require.NoError(t, err)
	return s
}

func TestNewSessions_Validation(t *testing.T) {
	_, err := NewSessions("short", "x", time.Hour)
	assert.Error(t, err)
	_, err = NewSessions(testSecret, "x", 0)
	assert.Error(t, err)
}

func TestIssueResolve_Client(t *testing.T) {
	s := newTestSessions(t)
	u := &domain.User{ID: "u1", Email: "a@acme.com", Role: domain.RoleClient, TenantID: ptr("t1")}

	tok, exp, err := s.Issue(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := s.Resolve(tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", TenantID: "t1", Role: domain.RoleClient, Email: "a@acme.com"}, id)
}

func TestIssueResolve_AdminHasNoTenant(t *testing.T) {
	s := newTestSessions(t)
	u := &domain.User{ID: "a1", Email: "root@x.io", Role: domain.RoleAdmin, TenantID: ptr("t1")}

	tok, _, err := s.Issue(u)
	require.NoError(t, err)
	id, err := s.Resolve(tok)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())
	assert.Empty(t, id.TenantID)
}

func TestIssue_ClientWithoutTenant(t *testing.T) {
	s := newTestSessions(t)
	_, _, err := s.Issue(&domain.User{ID: "u1", Role: domain.RoleClient})
	assert.Error(t, err)
}

func TestResolve_Failures(t *testing.T) {
	s := newTestSessions(t)
	u := &domain.User{ID: "u1", Role: domain.RoleClient, TenantID: ptr("t1")}
	good, _, err := s.Issue(u)
	require.NoError(t, err)

	_, err = s.Resolve("")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.Resolve("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// Flip one character of the signature.
	tampered := good[:len(good)-2] + flip(good[len(good)-2]) + good[len(good)-1:]
	_, err = s.Resolve(tampered)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	other, err := NewSessions(strings.Repeat("z", 32), "chatwidget", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue(u)
	require.NoError(t, err)
	_, err = s.Resolve(foreign)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	wrongIssuer, err := NewSessions(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	tok, _, err := wrongIssuer.Issue(u)
	require.NoError(t, err)
	_, err = s.Resolve(tok)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolve_Expired(t *testing.T) {
	s := newTestSessions(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := s.Issue(&domain.User{ID: "u1", Role: domain.RoleClient, TenantID: ptr("t1")})
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Resolve(tok)
	assert.ErrorIs(t, err, ErrExpiredCredential)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolve_RejectsUnsignedAndForgedClaims(t *testing.T) {
	s := newTestSessions(t)

	// alg=none token claiming admin.
	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "chatwidget", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             domain.RoleAdmin,
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Resolve(unsigned)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// Properly signed but with an unknown role.
	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "chatwidget", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "owner",
	})
	signed, err := bad.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = s.Resolve(signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// Client claim without a tenant binding.
	noTid := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "chatwidget", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             domain.RoleClient,
	})
	signed, err = noTid.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = s.Resolve(signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// No expiry at all.
	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "chatwidget"},
		Role:             domain.RoleAdmin,
	})
	signed, err = noExp.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = s.Resolve(signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func flip(b byte) string {
	if b == 'A' {
		return "B"
	}
	return "A"
}
