// Package services – Dashboard
//
// Dashboard is the authenticated face of the ledger. Each method runs the
// access checks (role, tenant match, subscription) for the tenant it is
// asked about before any ledger query is issued. Client routes pass the
// tenant id from the caller's identity; admin routes pass the path id.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TenantStats is the dashboard summary of one tenant.
type TenantStats struct {
	repo.TenantStats
	Plan          domain.Plan `json:"plan"`
	UsageCount    int64       `json:"usage_count"`
	MessageLimit  int64       `json:"message_limit"`
	Unlimited     bool        `json:"unlimited"`
	TotalMessages int64       `json:"total_messages"`
}

// Dashboard serves tenant-scoped reads and flag updates to signed-in users.
type Dashboard struct {
	DB     *gorm.DB
	Guard  *auth.Guard
	Ledger *Ledger
}

func (d *Dashboard) authorize(ctx context.Context, id auth.Identity, tenantID string) error {
	return d.Guard.Authorize(ctx, id, auth.Policy{TenantID: tenantID, ActiveSubscription: true})
}

// ListConversations lists a tenant's conversations.
func (d *Dashboard) ListConversations(ctx context.Context, id auth.Identity, tenantID string, f ConversationFilter) ([]domain.Conversation, int64, error) {
	if err := d.authorize(ctx, id, tenantID); err != nil {
		return nil, 0, err
	}
	return d.Ledger.ListConversations(ctx, tenantID, f)
}

// GetConversation returns one conversation with its messages.
func (d *Dashboard) GetConversation(ctx context.Context, id auth.Identity, tenantID, conversationID string) (*ConversationDetail, error) {
	if err := d.authorize(ctx, id, tenantID); err != nil {
		return nil, err
	}
	return d.Ledger.GetConversationWithMessages(ctx, tenantID, conversationID)
}

// SetConversationStatus changes a conversation's status.
func (d *Dashboard) SetConversationStatus(ctx context.Context, id auth.Identity, tenantID, conversationID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	if err := d.authorize(ctx, id, tenantID); err != nil {
		return nil, err
	}
	return d.Ledger.SetConversationStatus(ctx, tenantID, conversationID, status)
}

// MarkConversationRead marks all of a conversation's messages read.
func (d *Dashboard) MarkConversationRead(ctx context.Context, id auth.Identity, tenantID, conversationID string) (int64, error) {
	if err := d.authorize(ctx, id, tenantID); err != nil {
		return 0, err
	}
	return d.Ledger.MarkConversationRead(ctx, tenantID, conversationID)
}

// SetMessageFlags updates a message's read and flagged markers.
func (d *Dashboard) SetMessageFlags(ctx context.Context, id auth.Identity, tenantID, messageID string, f MessageFlags) (*domain.Message, error) {
	if err := d.authorize(ctx, id, tenantID); err != nil {
		return nil, err
	}
	return d.Ledger.SetMessageFlags(ctx, tenantID, messageID, f)
}

// Stats summarizes a tenant's conversations, messages, and quota.
func (d *Dashboard) Stats(ctx context.Context, id auth.Identity, tenantID string) (*TenantStats, error) {
	ctx, span := otel.Tracer("services/Dashboard").Start(ctx, "Stats",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	if err := d.authorize(ctx, id, tenantID); err != nil {
		return nil, err
	}
	t, err := repo.GetTenant(ctx, d.DB, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	st, err := repo.LoadTenantStats(ctx, d.DB, tenantID)
	if err != nil {
		return nil, err
	}
	return &TenantStats{
		TenantStats:   st,
		Plan:          t.Plan,
		UsageCount:    t.UsageCount,
		MessageLimit:  t.MessageLimit,
		Unlimited:     t.Unlimited(),
		TotalMessages: t.TotalMessages,
	}, nil
}

// GlobalStats summarizes the whole platform. Admin only.
func (d *Dashboard) GlobalStats(ctx context.Context, id auth.Identity) (*repo.GlobalStats, error) {
	ctx, span := otel.Tracer("services/Dashboard").Start(ctx, "GlobalStats")
	defer span.End()

	if err := d.Guard.Authorize(ctx, id, auth.Policy{Role: domain.RoleAdmin}); err != nil {
		return nil, err
	}
	st, err := repo.LoadGlobalStats(ctx, d.DB)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ConversationsVersion returns the conversation count and last update of a
// tenant, used by handlers to compute list ETags. Callers must already have
// authorized the tenant.
func (d *Dashboard) ConversationsVersion(ctx context.Context, tenantID string) (int64, string, error) {
	n, ts, err := repo.ConversationsStats(ctx, d.DB, tenantID)
	if err != nil || ts == nil {
		return n, "", err
	}
	return n, ts.UTC().Format("20060102T150405.000000000"), nil
}
