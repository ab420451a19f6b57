package domain

import "time"

// Idempotency records the outcome of a widget message that carried an
// Idempotency-Key, keyed by (tenant_id, visitor_id, key). A retry with the
// same key replays the stored pair of messages instead of re-admitting usage
// and writing new rows.
type Idempotency struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	TenantID       string    `gorm:"type:char(36);not null;uniqueIndex:ux_tenant_visitor_key,priority:1"`
	VisitorID      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_tenant_visitor_key,priority:2"`
	Key            string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_tenant_visitor_key,priority:3"`
	ConversationID string    `gorm:"type:char(36);not null"`
	UserMessageID  string    `gorm:"type:char(36);not null"`
	ReplyMessageID string    `gorm:"type:char(36);not null"`
	Status         int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"not null;index"`

	// Tenant owns the record; rows go away with the tenant.
	Tenant Tenant `gorm:"foreignKey:TenantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is past its retention window.
func (i *Idempotency) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }
