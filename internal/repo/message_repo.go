package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// CreateMessage inserts a message. The caller supplies a tenant id taken
// from the parent conversation row.
func CreateMessage(ctx context.Context, db *gorm.DB, conv *domain.Conversation, role domain.MessageRole, content string, meta *domain.AIMetadata, at time.Time) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		AIMetadata:     meta,
		// Only visitor turns start unread.
		IsRead:    role != domain.MessageUser,
		CreatedAt: at,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns every message of a tenant's conversation in
// chronological order.
func ListMessages(ctx context.Context, db *gorm.DB, tenantID, conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// GetMessage fetches one message within tenantID.
func GetMessage(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessagesByID fetches the listed messages within tenantID, keyed by id.
func GetMessagesByID(ctx context.Context, db *gorm.DB, tenantID string, ids ...string) (map[string]domain.Message, error) {
	var rows []domain.Message
	if err := db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]domain.Message, len(rows))
	for _, m := range rows {
		out[m.ID] = m
	}
	return out, nil
}

// UpdateMessageFlags sets is_read / is_flagged on a tenant's message. Only
// non-nil arguments are written.
func UpdateMessageFlags(ctx context.Context, db *gorm.DB, tenantID, id string, isRead, isFlagged *bool) error {
	fields := map[string]any{}
	if isRead != nil {
		fields["is_read"] = *isRead
	}
	if isFlagged != nil {
		fields["is_flagged"] = *isFlagged
	}
	if len(fields) == 0 {
		_, err := GetMessage(ctx, db, tenantID, id)
		return err
	}
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkConversationRead flags every unread message of the conversation as
// read and returns how many changed.
func MarkConversationRead(ctx context.Context, db *gorm.DB, tenantID, conversationID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("tenant_id = ? AND conversation_id = ? AND is_read = ?", tenantID, conversationID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
