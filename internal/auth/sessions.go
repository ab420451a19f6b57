package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// MinSecretLen is the minimum HMAC key size accepted by NewSessions.
const MinSecretLen = 32

// Claims is the signed payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string      `json:"tid,omitempty"`
	Role     domain.Role `json:"role"`
	Email    string      `json:"email"`
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions builds a token issuer/verifier.
func NewSessions(secret, issuer string, ttl time.Duration) (*Sessions, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLen)
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be > 0")
	}
	return &Sessions{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a session token for u.
func (s *Sessions) Issue(u *domain.User) (string, time.Time, error) {
	if u == nil || u.ID == "" || !u.Role.Valid() {
		return "", time.Time{}, errors.New("cannot issue session for invalid user")
	}
	tid := ""
	if u.Role == domain.RoleClient {
		if u.TenantID == nil || *u.TenantID == "" {
			return "", time.Time{}, errors.New("client user has no tenant")
		}
		tid = *u.TenantID
	}

	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: tid,
		Role:     u.Role,
		Email:    u.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Resolve verifies token and returns the identity signed into it. Only
// signed claims are used; an admin token never yields a tenant binding.
func (s *Sessions) Resolve(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredCredential
		}
		return Identity{}, ErrInvalidCredential
	}

	if claims.Subject == "" || !claims.Role.Valid() {
		return Identity{}, ErrInvalidCredential
	}
	id := Identity{UserID: claims.Subject, Role: claims.Role, Email: claims.Email}
	if claims.Role == domain.RoleClient {
		if claims.TenantID == "" {
			return Identity{}, ErrInvalidCredential
		}
		id.TenantID = claims.TenantID
	}
	return id, nil
}
