// Package domain defines the persistence models for tenants, users,
// conversations, and messages. These types are mapped with GORM and form the
// core data layer of the chatbot widget platform.
package domain

import (
	"time"
)

// ChatbotConfig is the widget configuration a tenant controls from the
// dashboard. It is stored inline on the tenant row with a "chatbot_" prefix.
type ChatbotConfig struct {
	WelcomeMessage string   `json:"welcome_message" gorm:"type:varchar(255);not null"`
	Tone           Tone     `json:"tone"            gorm:"type:varchar(16);not null"`
	Enabled        bool     `json:"enabled"         gorm:"not null"`
	PrimaryColor   string   `json:"primary_color"   gorm:"type:varchar(7);not null"`
	Position       Position `json:"position"        gorm:"type:varchar(16);not null"`
}

// Tenant represents a business customer. It is the aggregate root for all
// tenant-scoped data: conversations and messages are cascade-deleted with it.
//
// Fields:
//   - ID: stable UUID, public (embedded in the widget snippet as data-client-id).
//   - OwnerUserID: the single client user owning the tenant (unique).
//   - Domain: canonical normalized domain, globally unique.
//   - AllowedDomains: normalized domains permitted to embed the widget.
//   - MessageLimit: plan quota; only enforced for non-pro plans.
//   - UsageCount: messages consumed in the current billing cycle.
//   - TotalMessages: lifetime counter, never reset.
//   - IsActive: admin kill switch, independent of SubscriptionStatus.
type Tenant struct {
	ID                 string             `json:"id"                   gorm:"type:char(36);primaryKey"`
	OwnerUserID        *string            `json:"owner_user_id"        gorm:"type:char(36);uniqueIndex:ux_tenant_owner"`
	Name               string             `json:"name"                 gorm:"type:varchar(200);not null"`
	Domain             string             `json:"domain"               gorm:"type:varchar(253);not null;uniqueIndex:ux_tenant_domain"`
	AllowedDomains     []string           `json:"allowed_domains"      gorm:"type:text;not null;serializer:json"`
	ChatbotConfig      ChatbotConfig      `json:"chatbot_config"       gorm:"embedded;embeddedPrefix:chatbot_"`
	Plan               Plan               `json:"plan"                 gorm:"type:varchar(16);not null;index"`
	MessageLimit       int64              `json:"message_limit"        gorm:"not null"`
	UsageCount         int64              `json:"usage_count"          gorm:"not null"`
	TotalMessages      int64              `json:"total_messages"       gorm:"not null"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"  gorm:"type:varchar(16);not null"`
	IsActive           bool               `json:"is_active"            gorm:"not null"`
	StripeCustomerID   *string            `json:"-"                    gorm:"type:varchar(255);uniqueIndex:ux_tenant_stripe_customer"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// TableName returns the database table name for Tenant.
func (Tenant) TableName() string { return "tenants" }

// Unlimited reports whether the tenant's plan bypasses the message quota.
func (t *Tenant) Unlimited() bool { return t.Plan == PlanPro }

// Serviceable reports whether the tenant may currently consume messages.
func (t *Tenant) Serviceable() bool {
	return t.IsActive && t.SubscriptionStatus == SubscriptionActive
}

// AllowsDomain reports whether an already-normalized domain is in the
// tenant's embed whitelist.
func (t *Tenant) AllowsDomain(normalized string) bool {
	if normalized == "" {
		return false
	}
	for _, d := range t.AllowedDomains {
		if d == normalized {
			return true
		}
	}
	return false
}

// User is an account holder. Client users are bound to exactly one tenant;
// admins carry no tenant binding.
type User struct {
	ID           string     `json:"id"            gorm:"type:char(36);primaryKey"`
	Email        string     `json:"email"         gorm:"type:varchar(320);not null;uniqueIndex:ux_user_email"`
	PasswordHash string     `json:"-"             gorm:"type:varchar(100);not null"`
	Role         Role       `json:"role"          gorm:"type:varchar(16);not null;check:role IN ('client','admin')"`
	TenantID     *string    `json:"tenant_id"     gorm:"type:char(36);index"`
	IsActive     bool       `json:"is_active"     gorm:"not null"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation is a visitor thread owned by one tenant.
//
// TenantID is writable only on create; GORM ignores it on updates so a
// conversation can never be moved to another tenant. At most one active
// conversation exists per (tenant, visitor), enforced by a partial unique index.
type Conversation struct {
	ID            string             `json:"id"              gorm:"type:char(36);primaryKey"`
	TenantID      string             `json:"tenant_id"       gorm:"<-:create;type:char(36);not null;index:idx_conv_tenant_activity,priority:1;uniqueIndex:ux_conv_active_visitor,priority:1,where:status = 'active'"`
	VisitorID     string             `json:"visitor_id"      gorm:"type:varchar(64);not null;uniqueIndex:ux_conv_active_visitor,priority:2,where:status = 'active'"`
	Source        Source             `json:"source"          gorm:"type:varchar(16);not null"`
	Status        ConversationStatus `json:"status"          gorm:"type:varchar(16);not null;index"`
	MessageCount  int64              `json:"message_count"   gorm:"not null"`
	LastMessageAt time.Time          `json:"last_message_at" gorm:"index:idx_conv_tenant_activity,priority:2"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`

	// Tenant is the owning tenant. Conversations are cascade-deleted with it.
	Tenant Tenant `json:"-" gorm:"foreignKey:TenantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// AIMetadata describes how an assistant reply was produced.
type AIMetadata struct {
	Model      string  `json:"model"`
	LatencyMS  int64   `json:"latency_ms"`
	Confidence float64 `json:"confidence"`
}

// Message is a single turn within a conversation. TenantID is copied from
// the conversation at creation and never changes; only IsRead and IsFlagged
// are mutable afterwards.
type Message struct {
	ID             string      `json:"id"              gorm:"type:char(36);primaryKey"`
	TenantID       string      `json:"tenant_id"       gorm:"<-:create;type:char(36);not null;index:idx_msg_tenant_created,priority:1"`
	ConversationID string      `json:"conversation_id" gorm:"<-:create;type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           MessageRole `json:"role"            gorm:"<-:create;type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content        string      `json:"content"         gorm:"<-:create;type:text;not null"`
	AIMetadata     *AIMetadata `json:"ai_metadata,omitempty" gorm:"<-:create;type:text;serializer:json"`
	IsRead         bool        `json:"is_read"         gorm:"not null"`
	IsFlagged      bool        `json:"is_flagged"      gorm:"not null"`
	CreatedAt      time.Time   `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2;index:idx_msg_tenant_created,priority:2"`

	// Conversation is the parent thread. Messages are cascade-deleted with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
