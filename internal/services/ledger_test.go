package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
)

func TestLedger_ConversationContinuity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	c1, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceWebsite, c1.Source)
	assert.Equal(t, domain.ConversationActive, c1.Status)

	for i := 1; i <= 3; i++ {
		_, err := e.ledger.AppendMessage(ctx, tn.ID, c1.ID, domain.MessageUser, "turn", nil)
		require.NoError(t, err)
		got, err := repo.GetConversation(ctx, e.db, tn.ID, c1.ID)
		require.NoError(t, err)
		assert.EqualValues(t, i, got.MessageCount)
	}

	c2, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v1", domain.SourceMobile)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	c3, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v2", domain.SourceMobile)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c3.ID)
}

func TestLedger_ConcurrentGetOrCreateYieldsOneConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "racer", domain.SourceWebsite)
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	n, err := repo.CountConversations(ctx, e.db, tn.ID, domain.ConversationActive)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLedger_AppendMessageIsTenantScoped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.tenant(t, "a.com", domain.PlanStarter, 10)
	b := e.tenant(t, "b.com", domain.PlanStarter, 10)

	conv, err := e.ledger.GetOrCreateActiveConversation(ctx, a.ID, "v1", domain.SourceWebsite)
	require.NoError(t, err)

	_, err = e.ledger.AppendMessage(ctx, b.ID, conv.ID, domain.MessageUser, "sneaky", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	m, err := e.ledger.AppendMessage(ctx, a.ID, conv.ID, domain.MessageSystem, "  café  ", nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, m.TenantID)
	assert.Equal(t, "café", m.Content)

	_, err = e.ledger.GetConversationWithMessages(ctx, b.ID, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.ledger.SetMessageFlags(ctx, b.ID, m.ID, MessageFlags{IsFlagged: ptr(true)})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.ledger.SetConversationStatus(ctx, b.ID, conv.ID, domain.ConversationResolved)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.ledger.MarkConversationRead(ctx, b.ID, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_AppendMessageValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.tenant(t, "acme.com", domain.PlanStarter, 10)
	conv, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v1", domain.SourceWebsite)
	require.NoError(t, err)

	var ve *ValidationError
	_, err = e.ledger.AppendMessage(ctx, tn.ID, conv.ID, domain.MessageUser, "", nil)
	assert.ErrorAs(t, err, &ve)
	_, err = e.ledger.AppendMessage(ctx, tn.ID, conv.ID, domain.MessageUser, strings.Repeat("é", domain.MaxMessageContentLen+1), nil)
	assert.ErrorAs(t, err, &ve)
	_, err = e.ledger.AppendMessage(ctx, tn.ID, conv.ID, "robot", "hi", nil)
	assert.ErrorAs(t, err, &ve)

	_, err = e.ledger.AppendMessage(ctx, tn.ID, conv.ID, domain.MessageUser, strings.Repeat("é", domain.MaxMessageContentLen), nil)
	assert.NoError(t, err, "the limit counts characters, not bytes")

	_, err = e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "", domain.SourceWebsite)
	assert.ErrorAs(t, err, &ve)
	_, err = e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v2", "carrier-pigeon")
	assert.ErrorAs(t, err, &ve)
}

func TestLedger_ListConversations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.tenant(t, "acme.com", domain.PlanStarter, 10)
	other := e.tenant(t, "other.com", domain.PlanStarter, 10)

	var convs []*domain.Conversation
	for _, v := range []string{"v1", "v2", "v3"} {
		c, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, v, domain.SourceWebsite)
		require.NoError(t, err)
		convs = append(convs, c)
	}
	_, err := e.ledger.GetOrCreateActiveConversation(ctx, other.ID, "v1", domain.SourceWebsite)
	require.NoError(t, err)

	// Activity on v1 moves it to the front.
	_, err = e.ledger.AppendMessage(ctx, tn.ID, convs[0].ID, domain.MessageUser, "ping", nil)
	require.NoError(t, err)
	_, err = e.ledger.SetConversationStatus(ctx, tn.ID, convs[1].ID, domain.ConversationResolved)
	require.NoError(t, err)

	items, total, err := e.ledger.ListConversations(ctx, tn.ID, ConversationFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, convs[0].ID, items[0].ID)
	for _, c := range items {
		assert.Equal(t, tn.ID, c.TenantID)
	}

	items, total, err = e.ledger.ListConversations(ctx, tn.ID, ConversationFilter{Status: domain.ConversationResolved})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, convs[1].ID, items[0].ID)

	items, total, err = e.ledger.ListConversations(ctx, tn.ID, ConversationFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 1)

	_, _, err = e.ledger.ListConversations(ctx, tn.ID, ConversationFilter{Status: "archived"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLedger_ReopenConflictsWithActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.tenant(t, "acme.com", domain.PlanStarter, 10)

	old, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v1", domain.SourceWebsite)
	require.NoError(t, err)
	_, err = e.ledger.SetConversationStatus(ctx, tn.ID, old.ID, domain.ConversationAbandoned)
	require.NoError(t, err)
	fresh, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v1", domain.SourceWebsite)
	require.NoError(t, err)
	require.NotEqual(t, old.ID, fresh.ID)

	_, err = e.ledger.SetConversationStatus(ctx, tn.ID, old.ID, domain.ConversationActive)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = e.ledger.SetConversationStatus(ctx, tn.ID, fresh.ID, domain.ConversationResolved)
	require.NoError(t, err)
	got, err := e.ledger.SetConversationStatus(ctx, tn.ID, old.ID, domain.ConversationActive)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationActive, got.Status)
}

func TestLedger_FlagsAndRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.tenant(t, "acme.com", domain.PlanStarter, 10)
	conv, err := e.ledger.GetOrCreateActiveConversation(ctx, tn.ID, "v1", domain.SourceWebsite)
	require.NoError(t, err)

	m1, err := e.ledger.AppendMessage(ctx, tn.ID, conv.ID, domain.MessageUser, "one", nil)
	require.NoError(t, err)
	_, err = e.ledger.AppendMessage(ctx, tn.ID, conv.ID, domain.MessageUser, "two", nil)
	require.NoError(t, err)

	flagged, err := e.ledger.SetMessageFlags(ctx, tn.ID, m1.ID, MessageFlags{IsFlagged: ptr(true)})
	require.NoError(t, err)
	assert.True(t, flagged.IsFlagged)
	assert.False(t, flagged.IsRead)

	n, err := e.ledger.MarkConversationRead(ctx, tn.ID, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	detail, err := e.ledger.GetConversationWithMessages(ctx, tn.ID, conv.ID)
	require.NoError(t, err)
	for _, m := range detail.Messages {
		assert.True(t, m.IsRead)
	}
	assert.Equal(t, "one", detail.Messages[0].Content)
}
