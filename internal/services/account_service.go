// Package services – AccountService
//
// AccountService handles sign-up, sign-in, and user administration. A
// sign-up creates the client user and its tenant together; the pair is the
// 1:1 owner binding every client identity is derived from.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SignupInput is the self-service registration request.
type SignupInput struct {
	Email        string
	Password     string
	BusinessName string
	Domain       string
	Plan         domain.Plan
}

// Session is an issued credential.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Account is a user together with the tenant it owns (nil for admins).
type Account struct {
	User    *domain.User
	Tenant  *domain.Tenant
	Snippet string
}

// AccountService manages users and sessions.
type AccountService struct {
	DB       *gorm.DB
	Sessions *auth.Sessions
	Guard    *auth.Guard
	Tenants  *TenantService
}

func accountSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/AccountService").Start(ctx, op, trace.WithAttributes(attrs...))
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !strings.Contains(raw, "@") {
		return "", invalid("email", "must be a valid email address")
	}
	return strings.ToLower(raw), nil
}

// Signup registers a client user and provisions its tenant in one
// transaction, then issues a session.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*Account, *Session, error) {
	ctx, span := accountSpan(ctx, "Signup", attribute.String("tenant.domain", in.Domain))
	defer span.End()

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, nil, invalid("password", "must be between 8 and 72 bytes")
		}
		return nil, nil, err
	}
	t, err := newTenant(in.BusinessName, in.Domain, nil, in.Plan, nil)
	if err != nil {
		return nil, nil, err
	}

	userID := uuid.NewString()
	t.ID = uuid.NewString()
	t.OwnerUserID = &userID
	u := &domain.User{
		ID:           userID,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleClient,
		TenantID:     &t.ID,
		IsActive:     true,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetUserByEmail(ctx, tx, email); err == nil {
			return wrapConflict("email already registered")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := repo.CreateUser(ctx, tx, u); err != nil {
			return conflict(err, "email already registered")
		}
		if err := repo.CreateTenant(ctx, tx, t); err != nil {
			return conflict(err, "domain already registered")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return s.account(u, t), sess, nil
}

// Login verifies credentials and issues a session. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Account, *Session, error) {
	ctx, span := accountSpan(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Burn comparable time so response latency does not reveal
			// which emails exist.
			burnPasswordCheck(password)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	var t *domain.Tenant
	if u.Role == domain.RoleClient {
		if u.TenantID == nil {
			return nil, nil, ErrAccountDisabled
		}
		t, err = repo.GetTenant(ctx, s.DB, *u.TenantID)
		if err != nil {
			return nil, nil, notFound(err)
		}
	}

	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.TouchLogin(ctx, s.DB, u.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("last login not recorded")
	}
	return s.account(u, t), sess, nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// burnPasswordCheck runs one bcrypt comparison against a throwaway hash.
func burnPasswordCheck(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = auth.HashPassword(uuid.NewString())
	})
	auth.CheckPassword(dummyHash, password)
}

func (s *AccountService) issue(ctx context.Context, u *domain.User) (*Session, error) {
	tok, exp, err := s.Sessions.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, ExpiresAt: exp}, nil
}

func (s *AccountService) account(u *domain.User, t *domain.Tenant) *Account {
	a := &Account{User: u, Tenant: t}
	if t != nil && s.Tenants != nil {
		a.Snippet = s.Tenants.EmbedSnippet(t)
	}
	return a
}

// Me returns the caller's account. A client whose subscription lapsed can
// still read it, so this is the one tenant view without that check.
func (s *AccountService) Me(ctx context.Context, id auth.Identity) (*Account, error) {
	ctx, span := accountSpan(ctx, "Me", attribute.String("user.id", id.UserID))
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{}); err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, id.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, auth.ErrInvalidCredential
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}
	var t *domain.Tenant
	if id.Role == domain.RoleClient {
		if u.TenantID == nil || *u.TenantID != id.TenantID {
			return nil, ErrTenantIsolation
		}
		t, err = repo.GetTenant(ctx, s.DB, id.TenantID)
		if err != nil {
			return nil, notFound(err)
		}
	}
	return s.account(u, t), nil
}

// ListUsers returns a page of users, optionally filtered by role. Admin only.
func (s *AccountService) ListUsers(ctx context.Context, id auth.Identity, role domain.Role, page, pageSize int) ([]domain.User, int64, error) {
	ctx, span := accountSpan(ctx, "ListUsers",
		attribute.String("user.role", string(role)),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize))
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return nil, 0, err
	}
	if role != "" && !role.Valid() {
		return nil, 0, invalid("role", "must be one of client, admin")
	}
	page, pageSize = clampPage(page, pageSize)
	total, err := repo.CountUsers(ctx, s.DB, role)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}
	items, err := repo.ListUsersPage(ctx, s.DB, role, (page-1)*pageSize, pageSize)
	return items, total, err
}

// SetUserActive enables or disables a user. Admin only; admins cannot
// disable themselves.
func (s *AccountService) SetUserActive(ctx context.Context, id auth.Identity, userID string, active bool) (*domain.User, error) {
	ctx, span := accountSpan(ctx, "SetUserActive", attribute.String("user.id", userID))
	defer span.End()

	if err := s.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return nil, err
	}
	if userID == id.UserID && !active {
		return nil, invalid("isActive", "admins cannot disable their own account")
	}
	if err := repo.SetUserActive(ctx, s.DB, userID, active); err != nil {
		return nil, notFound(err)
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// CreateAdmin creates an admin account. It is used by the provisioning CLI
// and performs no identity check.
func (s *AccountService) CreateAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := accountSpan(ctx, "CreateAdmin")
	defer span.End()

	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, invalid("password", "must be between 8 and 72 bytes")
		}
		return nil, err
	}
	u := &domain.User{
		Email:        addr,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		IsActive:     true,
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		return nil, conflict(err, "email already registered")
	}
	return u, nil
}
