package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// Every query in this file is scoped by tenant_id. There is intentionally
// no lookup by conversation id alone.

// FindActiveConversation returns the visitor's most recently active
// conversation with status "active", or ErrNotFound.
func FindActiveConversation(ctx context.Context, db *gorm.DB, tenantID, visitorID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND visitor_id = ? AND status = ?", tenantID, visitorID, domain.ConversationActive).
		Order("last_message_at desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a new active conversation. It returns
// ErrDuplicate when the visitor already has one (partial unique index).
func CreateConversation(ctx context.Context, db *gorm.DB, tenantID, visitorID string, source domain.Source) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		VisitorID:     visitorID,
		Source:        source,
		Status:        domain.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// GetConversation fetches a conversation by id within tenantID. A
// conversation owned by another tenant is reported as ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func conversationScope(db *gorm.DB, tenantID string, status domain.ConversationStatus) *gorm.DB {
	q := db.Model(&domain.Conversation{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// CountConversations returns the tenant's conversation count, optionally
// filtered by status.
func CountConversations(ctx context.Context, db *gorm.DB, tenantID string, status domain.ConversationStatus) (int64, error) {
	var n int64
	err := conversationScope(db.WithContext(ctx), tenantID, status).Count(&n).Error
	return n, err
}

// ListConversationsPage returns the tenant's conversations, most recent
// activity first.
func ListConversationsPage(ctx context.Context, db *gorm.DB, tenantID string, status domain.ConversationStatus, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := conversationScope(db.WithContext(ctx), tenantID, status).
		Order("last_message_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// BumpConversation records one appended message: message_count+1 and
// last_message_at=at. Returns ErrNotFound when no row matched.
func BumpConversation(ctx context.Context, db *gorm.DB, tenantID, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + 1"),
			"last_message_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateConversationStatus changes the status of a tenant's conversation.
// Reopening can collide with another active conversation of the same
// visitor and then returns ErrDuplicate.
func UpdateConversationStatus(ctx context.Context, db *gorm.DB, tenantID, id string, status domain.ConversationStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("status", status)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
