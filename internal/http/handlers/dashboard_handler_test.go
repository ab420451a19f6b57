package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
)

func dashboardEngine(d *stubDashboard, tn *stubTenants) *gin.Engine {
	h := New(Deps{Dashboard: d, Tenants: tn})
	r := newEngine()
	g := authed(r).Group("/dashboard")
	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.UpdateSettings)
	g.GET("/stats", h.DashboardStats)
	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/:id", h.GetConversation)
	g.PATCH("/conversations/:id", h.UpdateConversation)
	g.PATCH("/messages/:id", h.UpdateMessage)
	return r
}

func TestSettings_UseSessionTenant(t *testing.T) {
	tn := &stubTenants{tenant: &domain.Tenant{ID: "t-1", Domain: "acme.com"}}
	r := dashboardEngine(&stubDashboard{}, tn)

	w := doJSON(t, r, http.MethodGet, "/dashboard/settings", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if tn.lastCall != "Get" || tn.lastID != clientID.TenantID {
		t.Fatalf("service saw %s(%q)", tn.lastCall, tn.lastID)
	}
	resp := decode[SettingsResponse](t, w)
	if resp.EmbedSnippet == "" || resp.Tenant.ID != "t-1" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	body := `{"welcome_message":"Hey","enabled":false,"allowed_domains":["shop.acme.com"]}`
	w = doJSON(t, r, http.MethodPut, "/dashboard/settings", "client-token", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	in := tn.settings
	if in.WelcomeMessage == nil || *in.WelcomeMessage != "Hey" || in.Enabled == nil || *in.Enabled ||
		in.Tone != nil || len(in.AllowedDomains) != 1 {
		t.Fatalf("settings not mapped: %+v", in)
	}

	tn.err = services.ErrSubscriptionInactive
	wantError(t, doJSON(t, r, http.MethodPut, "/dashboard/settings", "client-token", `{}`), http.StatusForbidden, ErrCodeSubscriptionInactive)
	wantError(t, doJSON(t, r, http.MethodGet, "/dashboard/settings", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestListConversations_PaginationAndETag(t *testing.T) {
	d := &stubDashboard{
		convs:   []domain.Conversation{{ID: "c1"}, {ID: "c2"}},
		version: "20250101T000000.000000000",
	}
	r := dashboardEngine(d, &stubTenants{})

	w := doJSON(t, r, http.MethodGet, "/dashboard/conversations?status=active&page=0&page_size=500", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if d.lastTenant != clientID.TenantID {
		t.Fatalf("listed tenant %q", d.lastTenant)
	}
	if d.lastFilter.Status != domain.ConversationActive || d.lastFilter.Page != 1 || d.lastFilter.PageSize != 100 {
		t.Fatalf("filter not clamped: %+v", d.lastFilter)
	}
	resp := decode[ListConversationsResponse](t, w)
	if len(resp.Conversations) != 2 || resp.Pagination.Total != 2 || resp.Pagination.TotalPages != 1 || resp.Pagination.HasNext {
		t.Fatalf("unexpected body: %+v", resp)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	w = doJSON(t, r, http.MethodGet, "/dashboard/conversations?status=active&page=0&page_size=500", "client-token", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	// A different page is a different representation.
	w = doJSON(t, r, http.MethodGet, "/dashboard/conversations?page=2", "client-token", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for another page, got %d", w.Code)
	}

	d.err = &services.ValidationError{Field: "status", Reason: "must be one of active, resolved, abandoned"}
	wantError(t, doJSON(t, r, http.MethodGet, "/dashboard/conversations?status=archived", "client-token", nil, "If-None-Match", etag),
		http.StatusBadRequest, ErrCodeValidation)
}

func TestConversationDetailAndUpdates(t *testing.T) {
	d := &stubDashboard{}
	r := dashboardEngine(d, &stubTenants{})

	w := doJSON(t, r, http.MethodGet, "/dashboard/conversations/c9", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	detail := decode[services.ConversationDetail](t, w)
	if detail.Conversation.ID != "c9" || len(detail.Messages) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	wantError(t, doJSON(t, r, http.MethodPatch, "/dashboard/conversations/c9", "client-token", `{}`), http.StatusBadRequest, ErrCodeValidation)

	d.calls = nil
	w = doJSON(t, r, http.MethodPatch, "/dashboard/conversations/c9", "client-token", `{"status":"resolved","mark_read":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	resp := decode[UpdateConversationResponse](t, w)
	if resp.Conversation == nil || resp.Conversation.Status != domain.ConversationResolved || resp.MarkedRead != 3 {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if len(d.calls) != 2 || d.calls[0] != "SetConversationStatus" || d.calls[1] != "MarkConversationRead" {
		t.Fatalf("calls=%v", d.calls)
	}

	wantError(t, doJSON(t, r, http.MethodPatch, "/dashboard/messages/m1", "client-token", `{}`), http.StatusBadRequest, ErrCodeValidation)
	w = doJSON(t, r, http.MethodPatch, "/dashboard/messages/m1", "client-token", `{"is_flagged":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if d.lastFlags.IsRead != nil || d.lastFlags.IsFlagged == nil || !*d.lastFlags.IsFlagged {
		t.Fatalf("flags not mapped: %+v", d.lastFlags)
	}
	if m := decode[MessageResponse](t, w); !m.Message.IsFlagged || m.Message.TenantID != "t-1" {
		t.Fatalf("unexpected message: %+v", m.Message)
	}

	d.err = services.ErrNotFound
	wantError(t, doJSON(t, r, http.MethodGet, "/dashboard/conversations/other", "client-token", nil), http.StatusNotFound, ErrCodeNotFound)
	d.err = services.ErrConflict
	wantError(t, doJSON(t, r, http.MethodPatch, "/dashboard/conversations/c9", "client-token", `{"status":"active"}`), http.StatusConflict, ErrCodeConflict)
}

func TestDashboardStats(t *testing.T) {
	d := &stubDashboard{}
	r := dashboardEngine(d, &stubTenants{})

	w := doJSON(t, r, http.MethodGet, "/dashboard/stats", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if st := decode[StatsResponse](t, w); st.Stats.UsageCount != 2 || st.Stats.MessageLimit != 500 {
		t.Fatalf("unexpected stats: %+v", st.Stats)
	}

	d.err = services.ErrTenantIsolation
	wantError(t, doJSON(t, r, http.MethodGet, "/dashboard/stats", "client-token", nil), http.StatusForbidden, ErrCodeTenantMismatch)
}
