package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/http/middleware"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

// ---------- identities ----------

var (
	clientID = auth.Identity{UserID: "u-client", TenantID: "t-1", Role: domain.RoleClient, Email: "owner@acme.com"}
	adminID  = auth.Identity{UserID: "u-admin", Role: domain.RoleAdmin, Email: "root@example.com"}
)

// tokenResolver maps bearer tokens straight to identities.
type tokenResolver map[string]auth.Identity

func (r tokenResolver) Resolve(token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, auth.ErrMissingCredential
	}
	id, ok := r[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidCredential
	}
	return id, nil
}

var testTokens = tokenResolver{"client-token": clientID, "admin-token": adminID}

// ---------- service stubs ----------

type stubWidget struct {
	config func(ctx context.Context, tenantID, origin string) (*services.WidgetConfig, error)
	chat   func(ctx context.Context, in services.ChatInput) (*services.ChatResult, error)
}

func (s *stubWidget) Config(ctx context.Context, tenantID, origin string) (*services.WidgetConfig, error) {
	return s.config(ctx, tenantID, origin)
}

func (s *stubWidget) Chat(ctx context.Context, in services.ChatInput) (*services.ChatResult, error) {
	return s.chat(ctx, in)
}

type stubAccounts struct {
	signup    func(ctx context.Context, in services.SignupInput) (*services.Account, *services.Session, error)
	login     func(ctx context.Context, email, password string) (*services.Account, *services.Session, error)
	me        func(ctx context.Context, id auth.Identity) (*services.Account, error)
	listUsers func(ctx context.Context, id auth.Identity, role domain.Role, page, pageSize int) ([]domain.User, int64, error)
	setActive func(ctx context.Context, id auth.Identity, userID string, active bool) (*domain.User, error)
}

func (s *stubAccounts) Signup(ctx context.Context, in services.SignupInput) (*services.Account, *services.Session, error) {
	return s.signup(ctx, in)
}

func (s *stubAccounts) Login(ctx context.Context, email, password string) (*services.Account, *services.Session, error) {
	return s.login(ctx, email, password)
}

func (s *stubAccounts) Me(ctx context.Context, id auth.Identity) (*services.Account, error) {
	return s.me(ctx, id)
}

func (s *stubAccounts) ListUsers(ctx context.Context, id auth.Identity, role domain.Role, page, pageSize int) ([]domain.User, int64, error) {
	return s.listUsers(ctx, id, role, page, pageSize)
}

func (s *stubAccounts) SetUserActive(ctx context.Context, id auth.Identity, userID string, active bool) (*domain.User, error) {
	return s.setActive(ctx, id, userID, active)
}

// stubTenants records the last tenant id addressed and returns tenant.
type stubTenants struct {
	tenant   *domain.Tenant
	err      error
	lastID   string
	lastCall string
	settings services.SettingsInput
	admin    services.AdminTenantInput
	create   services.CreateTenantInput
}

func (s *stubTenants) result(call, tenantID string) (*domain.Tenant, error) {
	s.lastCall, s.lastID = call, tenantID
	return s.tenant, s.err
}

func (s *stubTenants) Create(_ context.Context, _ auth.Identity, in services.CreateTenantInput) (*domain.Tenant, error) {
	s.create = in
	return s.result("Create", "")
}

func (s *stubTenants) Get(_ context.Context, _ auth.Identity, tenantID string) (*domain.Tenant, error) {
	return s.result("Get", tenantID)
}

func (s *stubTenants) UpdateSettings(_ context.Context, id auth.Identity, in services.SettingsInput) (*domain.Tenant, error) {
	s.settings = in
	return s.result("UpdateSettings", id.TenantID)
}

func (s *stubTenants) AdminUpdate(_ context.Context, _ auth.Identity, tenantID string, in services.AdminTenantInput) (*domain.Tenant, error) {
	s.admin = in
	return s.result("AdminUpdate", tenantID)
}

func (s *stubTenants) Suspend(_ context.Context, _ auth.Identity, tenantID string) (*domain.Tenant, error) {
	return s.result("Suspend", tenantID)
}

func (s *stubTenants) Reactivate(_ context.Context, _ auth.Identity, tenantID string) (*domain.Tenant, error) {
	return s.result("Reactivate", tenantID)
}

func (s *stubTenants) Delete(_ context.Context, _ auth.Identity, tenantID string) error {
	_, err := s.result("Delete", tenantID)
	return err
}

func (s *stubTenants) List(_ context.Context, _ auth.Identity, page, pageSize int) ([]domain.Tenant, int64, error) {
	s.lastCall = "List"
	if s.err != nil {
		return nil, 0, s.err
	}
	return []domain.Tenant{*s.tenant}, 1, nil
}

func (s *stubTenants) ResetUsage(_ context.Context, _ auth.Identity, tenantID string) (*domain.Tenant, error) {
	return s.result("ResetUsage", tenantID)
}

func (s *stubTenants) EmbedSnippet(t *domain.Tenant) string {
	return `<script data-client-id="` + t.ID + `"></script>`
}

// stubDashboard serves a fixed conversation set and records the tenant ids
// it was asked about.
type stubDashboard struct {
	convs   []domain.Conversation
	version string
	err     error

	lastTenant string
	lastFilter services.ConversationFilter
	lastFlags  services.MessageFlags
	calls      []string
}

func (s *stubDashboard) record(call, tenantID string) {
	s.calls = append(s.calls, call)
	s.lastTenant = tenantID
}

func (s *stubDashboard) ListConversations(_ context.Context, _ auth.Identity, tenantID string, f services.ConversationFilter) ([]domain.Conversation, int64, error) {
	s.record("ListConversations", tenantID)
	s.lastFilter = f
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.convs, int64(len(s.convs)), nil
}

func (s *stubDashboard) GetConversation(_ context.Context, _ auth.Identity, tenantID, conversationID string) (*services.ConversationDetail, error) {
	s.record("GetConversation", tenantID)
	if s.err != nil {
		return nil, s.err
	}
	return &services.ConversationDetail{
		Conversation: domain.Conversation{ID: conversationID, TenantID: tenantID},
		Messages:     []domain.Message{{ID: "m-1", Content: "hi"}},
	}, nil
}

func (s *stubDashboard) SetConversationStatus(_ context.Context, _ auth.Identity, tenantID, conversationID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	s.record("SetConversationStatus", tenantID)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Conversation{ID: conversationID, TenantID: tenantID, Status: status}, nil
}

func (s *stubDashboard) MarkConversationRead(_ context.Context, _ auth.Identity, tenantID, _ string) (int64, error) {
	s.record("MarkConversationRead", tenantID)
	return 3, s.err
}

func (s *stubDashboard) SetMessageFlags(_ context.Context, _ auth.Identity, tenantID, messageID string, f services.MessageFlags) (*domain.Message, error) {
	s.record("SetMessageFlags", tenantID)
	s.lastFlags = f
	if s.err != nil {
		return nil, s.err
	}
	m := &domain.Message{ID: messageID, TenantID: tenantID}
	if f.IsFlagged != nil {
		m.IsFlagged = *f.IsFlagged
	}
	return m, nil
}

func (s *stubDashboard) Stats(_ context.Context, _ auth.Identity, tenantID string) (*services.TenantStats, error) {
	s.record("Stats", tenantID)
	if s.err != nil {
		return nil, s.err
	}
	return &services.TenantStats{Plan: domain.PlanStarter, UsageCount: 2, MessageLimit: 500}, nil
}

func (s *stubDashboard) GlobalStats(_ context.Context, id auth.Identity) (*repo.GlobalStats, error) {
	s.record("GlobalStats", "")
	if !id.IsAdmin() {
		return nil, auth.ErrRoleMismatch
	}
	return &repo.GlobalStats{Tenants: 4, ActiveTenants: 3}, nil
}

func (s *stubDashboard) ConversationsVersion(_ context.Context, tenantID string) (int64, string, error) {
	return int64(len(s.convs)), s.version, nil
}

type stubBilling struct {
	payload   []byte
	signature string
	res       *services.BillingResult
	err       error
}

func (s *stubBilling) HandleStripeEvent(_ context.Context, payload []byte, signature string) (*services.BillingResult, error) {
	s.payload, s.signature = payload, signature
	return s.res, s.err
}

// ---------- HTTP helpers ----------

func init() { gin.SetMode(gin.TestMode) }

// newEngine returns a gin engine with request ids; protected routes are
// grouped behind Authenticate by the caller.
func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	return r
}

func authed(r *gin.Engine) *gin.RouterGroup {
	return r.Group("", middleware.Authenticate(testTokens, "session"))
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v; body=%s", err, w.Body.String())
	}
	return v
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	er := decode[ErrorResponse](t, w)
	if er.Success || er.Code != code {
		t.Fatalf("unexpected envelope: %+v (want code %q)", er, code)
	}
	if er.RequestID == "" {
		t.Fatalf("missing request_id: %+v", er)
	}
}
