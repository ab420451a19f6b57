// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Tenant
// model, including the atomic usage counter.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound (gorm.ErrRecordNotFound).
//   - Unique violations on domain, owner, or Stripe customer surface as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// CreateTenant inserts t, assigning an ID when empty.
func CreateTenant(ctx context.Context, db *gorm.DB, t *domain.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return translate(db.WithContext(ctx).Create(t).Error)
}

// GetTenant fetches a tenant by ID.
func GetTenant(ctx context.Context, db *gorm.DB, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenantByStripeCustomer fetches the tenant billed under customerID.
func GetTenantByStripeCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTenants returns the number of tenants.
func CountTenants(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Tenant{}).Count(&n).Error
	return n, err
}

// ListTenantsPage returns tenants ordered by creation time descending.
func ListTenantsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Tenant, error) {
	var out []domain.Tenant
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateTenantFields applies a column map to one tenant. It returns
// ErrNotFound when no row matched and ErrDuplicate on unique violations.
func UpdateTenantFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TenantSettingsColumns are the columns a tenant owner may change.
var TenantSettingsColumns = []string{
	"allowed_domains",
	"chatbot_welcome_message",
	"chatbot_tone",
	"chatbot_enabled",
	"chatbot_primary_color",
	"chatbot_position",
}

// UpdateTenantColumns writes the named columns of t, including zero values.
// Struct-based updates are used so serializer columns (allowed_domains) are
// encoded the same way as on insert.
func UpdateTenantColumns(ctx context.Context, db *gorm.DB, t *domain.Tenant, columns ...string) error {
	t.UpdatedAt = time.Now().UTC()
	cols := append(append([]string{}, columns...), "updated_at")
	res := db.WithContext(ctx).
		Model(t).
		Select(cols).
		Updates(t)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementUsage consumes one message from the tenant's quota in a single
// conditional UPDATE. It reports false when the tenant is missing, not
// serviceable, or already at its limit; the caller reloads the row to tell
// those cases apart.
func IncrementUsage(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ? AND is_active = ? AND subscription_status = ?", id, true, domain.SubscriptionActive).
		Where("(plan = ? OR usage_count < message_limit)", domain.PlanPro).
		Updates(map[string]any{
			"usage_count":    gorm.Expr("usage_count + 1"),
			"total_messages": gorm.Expr("total_messages + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecrementUsage returns one message to the current cycle. Lifetime totals
// are left untouched. It never drives usage below zero.
func DecrementUsage(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ? AND usage_count > 0", id).
		Update("usage_count", gorm.Expr("usage_count - 1")).Error
}

// ResetUsage zeroes the cycle counter of one tenant.
func ResetUsage(ctx context.Context, db *gorm.DB, id string) error {
	return UpdateTenantFields(ctx, db, id, map[string]any{"usage_count": 0})
}

// SetSubscriptionByCustomer updates the subscription status of whichever
// tenant is billed under customerID and returns the rows affected.
func SetSubscriptionByCustomer(ctx context.Context, db *gorm.DB, customerID string, status domain.SubscriptionStatus) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("stripe_customer_id = ?", customerID).
		Update("subscription_status", status)
	return res.RowsAffected, res.Error
}

// DeleteTenantCascade hard-deletes a tenant and everything it owns. Child
// rows are removed explicitly so the result does not depend on the
// backend's foreign key enforcement. Run it inside a transaction.
func DeleteTenantCascade(ctx context.Context, tx *gorm.DB, id string) error {
	tx = tx.WithContext(ctx)
	if err := tx.Where("tenant_id = ?", id).Delete(&domain.Idempotency{}).Error; err != nil {
		return err
	}
	if err := tx.Where("tenant_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	if err := tx.Where("tenant_id = ?", id).Delete(&domain.Conversation{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&domain.Tenant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
