// Package services – Ledger
//
// Ledger owns conversations and messages. Every method takes the owning
// tenant id and every query it issues is scoped by it; a record that belongs
// to another tenant is reported as ErrNotFound, never as a permission error,
// so its existence does not leak.
//
// Ledger performs no authorization of its own. Authenticated callers reach
// it through Dashboard, which applies the access checks first; the widget
// path reaches it only after origin validation.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConversationFilter narrows ListConversations. A zero Status lists all.
type ConversationFilter struct {
	Status   domain.ConversationStatus
	Page     int
	PageSize int
}

// ConversationDetail is a conversation with its messages in order.
type ConversationDetail struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
}

// MessageFlags carries the mutable message flags. Nil fields are unchanged.
type MessageFlags struct {
	IsRead    *bool
	IsFlagged *bool
}

// Ledger manages tenant-scoped conversations and messages.
type Ledger struct {
	DB *gorm.DB

	// Now is the clock used for message timestamps; nil means time.Now.
	Now func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func ledgerSpan(ctx context.Context, op, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tenant.id", tenantID))
	return otel.Tracer("services/Ledger").Start(ctx, op, trace.WithAttributes(attrs...))
}

// GetOrCreateActiveConversation returns the visitor's active conversation,
// opening one when none exists. Two racing callers both end up with the
// same row: the partial unique index rejects the second insert and the
// winner is re-read.
func (l *Ledger) GetOrCreateActiveConversation(ctx context.Context, tenantID, visitorID string, source domain.Source) (*domain.Conversation, error) {
	ctx, span := ledgerSpan(ctx, "GetOrCreateActiveConversation", tenantID,
		attribute.String("visitor.id", visitorID))
	defer span.End()

	if err := domain.ValidateVisitorID(visitorID); err != nil {
		return nil, err
	}
	if source == "" {
		source = domain.SourceWebsite
	}
	if !source.Valid() {
		return nil, invalid("source", "must be one of website, whatsapp, facebook, instagram, mobile")
	}

	c, err := repo.FindActiveConversation(ctx, l.DB, tenantID, visitorID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	c, err = repo.CreateConversation(ctx, l.DB, tenantID, visitorID, source)
	if errors.Is(err, repo.ErrDuplicate) {
		return repo.FindActiveConversation(ctx, l.DB, tenantID, visitorID)
	}
	return c, err
}

// AppendMessage validates content and appends a message to the tenant's
// conversation, bumping its message count and last activity in the same
// transaction. The message's tenant id is copied from the conversation.
func (l *Ledger) AppendMessage(ctx context.Context, tenantID, conversationID string, role domain.MessageRole, content string, meta *domain.AIMetadata) (*domain.Message, error) {
	ctx, span := ledgerSpan(ctx, "AppendMessage", tenantID,
		attribute.String("conversation.id", conversationID),
		attribute.String("message.role", string(role)))
	defer span.End()

	var out *domain.Message
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := l.appendTx(ctx, tx, tenantID, conversationID, role, content, meta)
		out = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// appendTx is AppendMessage inside a caller's transaction.
func (l *Ledger) appendTx(ctx context.Context, tx *gorm.DB, tenantID, conversationID string, role domain.MessageRole, content string, meta *domain.AIMetadata) (*domain.Message, error) {
	if !role.Valid() {
		return nil, invalid("role", "must be one of user, assistant, system")
	}
	content = domain.NormalizeText(content)
	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}

	conv, err := repo.GetConversation(ctx, tx, tenantID, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	at := l.now()
	m, err := repo.CreateMessage(ctx, tx, conv, role, content, meta, at)
	if err != nil {
		return nil, err
	}
	if err := repo.BumpConversation(ctx, tx, conv.TenantID, conv.ID, at); err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// ListConversations returns a page of the tenant's conversations with the
// most recent activity first, and the total matching the filter.
func (l *Ledger) ListConversations(ctx context.Context, tenantID string, f ConversationFilter) ([]domain.Conversation, int64, error) {
	ctx, span := ledgerSpan(ctx, "ListConversations", tenantID,
		attribute.String("conversation.status", string(f.Status)),
		attribute.Int("page", f.Page),
		attribute.Int("page_size", f.PageSize))
	defer span.End()

	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalid("status", "must be one of active, resolved, abandoned")
	}
	page, size := clampPage(f.Page, f.PageSize)

	total, err := repo.CountConversations(ctx, l.DB, tenantID, f.Status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}
	items, err := repo.ListConversationsPage(ctx, l.DB, tenantID, f.Status, (page-1)*size, size)
	return items, total, err
}

// GetConversationWithMessages returns a tenant's conversation and all its
// messages, or ErrNotFound when it belongs to another tenant.
func (l *Ledger) GetConversationWithMessages(ctx context.Context, tenantID, conversationID string) (*ConversationDetail, error) {
	ctx, span := ledgerSpan(ctx, "GetConversationWithMessages", tenantID,
		attribute.String("conversation.id", conversationID))
	defer span.End()

	conv, err := repo.GetConversation(ctx, l.DB, tenantID, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	msgs, err := repo.ListMessages(ctx, l.DB, tenantID, conv.ID)
	if err != nil {
		return nil, err
	}
	return &ConversationDetail{Conversation: *conv, Messages: msgs}, nil
}

// SetConversationStatus resolves, abandons, or reopens a conversation.
// Reopening fails with ErrConflict when the visitor already has another
// active conversation.
func (l *Ledger) SetConversationStatus(ctx context.Context, tenantID, conversationID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	ctx, span := ledgerSpan(ctx, "SetConversationStatus", tenantID,
		attribute.String("conversation.id", conversationID),
		attribute.String("conversation.status", string(status)))
	defer span.End()

	if !status.Valid() {
		return nil, invalid("status", "must be one of active, resolved, abandoned")
	}
	if err := repo.UpdateConversationStatus(ctx, l.DB, tenantID, conversationID, status); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, wrapConflict("visitor already has an active conversation")
		}
		return nil, notFound(err)
	}
	c, err := repo.GetConversation(ctx, l.DB, tenantID, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// SetMessageFlags updates the read and flagged markers of a message.
func (l *Ledger) SetMessageFlags(ctx context.Context, tenantID, messageID string, f MessageFlags) (*domain.Message, error) {
	ctx, span := ledgerSpan(ctx, "SetMessageFlags", tenantID,
		attribute.String("message.id", messageID))
	defer span.End()

	if err := repo.UpdateMessageFlags(ctx, l.DB, tenantID, messageID, f.IsRead, f.IsFlagged); err != nil {
		return nil, notFound(err)
	}
	m, err := repo.GetMessage(ctx, l.DB, tenantID, messageID)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// MarkConversationRead marks every message of the conversation read and
// returns how many changed.
func (l *Ledger) MarkConversationRead(ctx context.Context, tenantID, conversationID string) (int64, error) {
	ctx, span := ledgerSpan(ctx, "MarkConversationRead", tenantID,
		attribute.String("conversation.id", conversationID))
	defer span.End()

	if _, err := repo.GetConversation(ctx, l.DB, tenantID, conversationID); err != nil {
		return 0, notFound(err)
	}
	return repo.MarkConversationRead(ctx, l.DB, tenantID, conversationID)
}
