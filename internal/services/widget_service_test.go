package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
)

func chatIn(tn *domain.Tenant, visitor, msg string) ChatInput {
	return ChatInput{
		TenantID:  tn.ID,
		Origin:    "https://www." + tn.Domain + "/pricing?ref=ad",
		VisitorID: visitor,
		Message:   msg,
	}
}

func TestChat_QuotaAndIsolationScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.tenant(t, "acme.com", domain.PlanStarter, 2)
	other := e.tenant(t, "other.io", domain.PlanStarter, 10)

	first, err := e.widget.Chat(ctx, chatIn(acme, "v1", "Hello there"))
	require.NoError(t, err)
	second, err := e.widget.Chat(ctx, chatIn(acme, "v1", "What are your prices?"))
	require.NoError(t, err)

	assert.Equal(t, first.Conversation.ID, second.Conversation.ID, "same visitor continues the conversation")
	assert.EqualValues(t, 4, second.Conversation.MessageCount)
	assert.EqualValues(t, 2, e.reload(t, acme.ID).UsageCount)

	_, err = e.widget.Chat(ctx, chatIn(acme, "v1", "and a third"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	after := e.reload(t, acme.ID)
	assert.EqualValues(t, 2, after.UsageCount)
	assert.EqualValues(t, 2, after.TotalMessages)

	conv, err := repo.GetConversation(ctx, e.db, acme.ID, first.Conversation.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, conv.MessageCount, "rejected turn writes nothing")

	// A client of another tenant cannot see acme's data by any route.
	intruder := clientOf(other)
	_, _, err = e.dashboard.ListConversations(ctx, intruder, acme.ID, ConversationFilter{})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = e.dashboard.GetConversation(ctx, intruder, acme.ID, first.Conversation.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = e.dashboard.GetConversation(ctx, intruder, other.ID, first.Conversation.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// An admin can.
	items, total, err := e.dashboard.ListConversations(ctx, admin, acme.ID, ConversationFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	detail, err := e.dashboard.GetConversation(ctx, admin, acme.ID, first.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 4)
	assert.Equal(t, domain.MessageUser, detail.Messages[0].Role)
	assert.Equal(t, "Hello there", detail.Messages[0].Content)
	assert.Equal(t, domain.MessageAssistant, detail.Messages[1].Role)
	for _, m := range detail.Messages {
		assert.Equal(t, acme.ID, m.TenantID)
	}
}

func TestChat_ReplyCarriesMetadataAndFlags(t *testing.T) {
	e := newEnv(t)
	acme := e.tenant(t, "acme.com", domain.PlanBusiness, 100)

	res, err := e.widget.Chat(context.Background(), chatIn(acme, "v1", "hi"))
	require.NoError(t, err)

	assert.False(t, res.UserMessage.IsRead, "visitor turns start unread")
	assert.True(t, res.Reply.IsRead)
	require.NotNil(t, res.Reply.AIMetadata)
	assert.Equal(t, CannedModel, res.Reply.AIMetadata.Model)
	assert.Nil(t, res.UserMessage.AIMetadata)
	assert.NotEmpty(t, res.Reply.Content)
}

func TestChat_OriginGate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	in := chatIn(acme, "v1", "hello")
	in.Origin = "https://acme.com.evil.net"
	_, err := e.widget.Chat(ctx, in)
	assert.ErrorIs(t, err, ErrOriginNotAllowed)

	in.Origin = ""
	_, err = e.widget.Chat(ctx, in)
	assert.ErrorIs(t, err, ErrOriginNotAllowed)

	in = chatIn(acme, "v1", "hello")
	in.TenantID = "00000000-0000-0000-0000-000000000000"
	_, err = e.widget.Chat(ctx, in)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.EqualValues(t, 0, e.reload(t, acme.ID).UsageCount)
}

func TestChat_DisabledAndInactive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	_, err := e.tenants.UpdateSettings(ctx, clientOf(acme), SettingsInput{Enabled: ptr(false)})
	require.NoError(t, err)
	_, err = e.widget.Chat(ctx, chatIn(acme, "v1", "hello"))
	assert.ErrorIs(t, err, ErrChatbotDisabled)

	_, err = e.tenants.UpdateSettings(ctx, clientOf(acme), SettingsInput{Enabled: ptr(true)})
	require.NoError(t, err)
	_, err = e.tenants.AdminUpdate(ctx, admin, acme.ID, AdminTenantInput{
		SubscriptionStatus: ptr(domain.SubscriptionPastDue),
	})
	require.NoError(t, err)
	_, err = e.widget.Chat(ctx, chatIn(acme, "v1", "hello"))
	assert.ErrorIs(t, err, ErrSubscriptionInactive)

	_, err = e.tenants.Suspend(ctx, admin, acme.ID)
	require.NoError(t, err)
	_, err = e.widget.Chat(ctx, chatIn(acme, "v1", "hello"))
	assert.ErrorIs(t, err, ErrTenantInactive)

	assert.EqualValues(t, 0, e.reload(t, acme.ID).UsageCount)
}

func TestChat_IdempotentRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	in := chatIn(acme, "v1", "hello")
	in.IdempotencyKey = "retry-1"
	first, err := e.widget.Chat(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := e.widget.Chat(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.UserMessage.ID, again.UserMessage.ID)
	assert.Equal(t, first.Reply.ID, again.Reply.ID)

	assert.EqualValues(t, 1, e.reload(t, acme.ID).UsageCount, "replay is not charged")
	conv, err := repo.GetConversation(ctx, e.db, acme.ID, first.Conversation.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, conv.MessageCount)

	// The key is scoped per visitor.
	in.VisitorID = "v2"
	fresh, err := e.widget.Chat(ctx, in)
	require.NoError(t, err)
	assert.False(t, fresh.Replayed)
	assert.NotEqual(t, first.Conversation.ID, fresh.Conversation.ID)
}

func TestChat_ExplicitConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.tenant(t, "acme.com", domain.PlanStarter, 10)
	other := e.tenant(t, "other.io", domain.PlanStarter, 10)

	theirs, err := e.widget.Chat(ctx, chatIn(other, "v9", "hello"))
	require.NoError(t, err)

	in := chatIn(acme, "", "hello")
	in.ConversationID = theirs.Conversation.ID
	_, err = e.widget.Chat(ctx, in)
	assert.ErrorIs(t, err, ErrNotFound, "another tenant's conversation id must not resolve")
	assert.EqualValues(t, 0, e.reload(t, acme.ID).UsageCount)

	// Continuing by id without a visitor id adopts the conversation's visitor.
	mine, err := e.widget.Chat(ctx, chatIn(acme, "", "hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, mine.VisitorID)

	in = chatIn(acme, "", "again")
	in.ConversationID = mine.Conversation.ID
	next, err := e.widget.Chat(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, mine.Conversation.ID, next.Conversation.ID)
	assert.Equal(t, mine.VisitorID, next.VisitorID)

	// A different visitor may not post into it.
	in.VisitorID = "someone-else"
	_, err = e.widget.Chat(ctx, in)
	assert.ErrorIs(t, err, ErrNotFound)

	// Resolved conversations do not accept new turns; a fresh one opens.
	_, err = e.ledger.SetConversationStatus(ctx, acme.ID, mine.Conversation.ID, domain.ConversationResolved)
	require.NoError(t, err)
	in.VisitorID = mine.VisitorID
	_, err = e.widget.Chat(ctx, in)
	assert.ErrorIs(t, err, ErrNotFound)
	reopened, err := e.widget.Chat(ctx, chatIn(acme, mine.VisitorID, "back again"))
	require.NoError(t, err)
	assert.NotEqual(t, mine.Conversation.ID, reopened.Conversation.ID)
}

func TestChat_ValidationRejectsEarly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	cases := map[string]ChatInput{
		"missing client":  {Origin: "acme.com", Message: "hi"},
		"empty message":   chatIn(acme, "v1", "   "),
		"long message":    chatIn(acme, "v1", strings.Repeat("x", domain.MaxMessageContentLen+1)),
		"bad visitor":     chatIn(acme, "v 1", "hi"),
		"bad source":      {TenantID: acme.ID, Origin: "acme.com", Message: "hi", Source: "fax"},
		"long idempotent": {TenantID: acme.ID, Origin: "acme.com", Message: "hi", IdempotencyKey: strings.Repeat("k", 129)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.widget.Chat(ctx, in)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
	assert.EqualValues(t, 0, e.reload(t, acme.ID).UsageCount)
}

func TestChat_ProPlanIsUnlimitedButCounted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pro := e.tenant(t, "bigco.com", domain.PlanPro, 0)

	for i := 0; i < 3; i++ {
		_, err := e.widget.Chat(ctx, chatIn(pro, "v1", "hello"))
		require.NoError(t, err)
	}
	got := e.reload(t, pro.ID)
	assert.EqualValues(t, 3, got.UsageCount)
	assert.EqualValues(t, 3, got.TotalMessages)
}

func TestWidgetConfig(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	cfg, err := e.widget.Config(ctx, acme.ID, "https://acme.com")
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "acme.com", cfg.Origin)
	assert.Equal(t, domain.DefaultChatbotConfig(), cfg.Config)
}
