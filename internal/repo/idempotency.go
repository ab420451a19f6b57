// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to make widget message retries safe.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// IdempotencyResult is the outcome stored under a key.
type IdempotencyResult struct {
	ConversationID string
	UserMessageID  string
	ReplyMessageID string
	Status         int
}

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, tenantID, visitorID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(visitorID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND visitor_id = ? AND key = ? AND expires_at > ?", tenantID, visitorID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, tenantID, visitorID, key string, res IdempotencyResult, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		VisitorID:      visitorID,
		Key:            key,
		ConversationID: res.ConversationID,
		UserMessageID:  res.UserMessageID,
		ReplyMessageID: res.ReplyMessageID,
		Status:         res.Status,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes records whose window has elapsed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
