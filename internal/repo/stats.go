// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries for dashboards and
// for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// ConversationsStats returns the number of a tenant's conversations and the
// latest updated_at among them. When the tenant has none, count is 0 and
// maxUpdatedAt is nil.
func ConversationsStats(ctx context.Context, db *gorm.DB, tenantID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("tenant_id = ?", tenantID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// TenantStats summarizes one tenant's ledger.
type TenantStats struct {
	Conversations       int64 `json:"conversations"`
	ActiveConversations int64 `json:"active_conversations"`
	Resolved            int64 `json:"resolved_conversations"`
	Abandoned           int64 `json:"abandoned_conversations"`
	Messages            int64 `json:"messages"`
	UnreadMessages      int64 `json:"unread_messages"`
	FlaggedMessages     int64 `json:"flagged_messages"`
}

type statusCount struct {
	Status domain.ConversationStatus
	N      int64
}

// LoadTenantStats aggregates counts for tenantID.
func LoadTenantStats(ctx context.Context, db *gorm.DB, tenantID string) (TenantStats, error) {
	var st TenantStats
	db = db.WithContext(ctx)

	var rows []statusCount
	if err := db.Model(&domain.Conversation{}).
		Select("status, COUNT(*) AS n").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return st, err
	}
	for _, r := range rows {
		st.Conversations += r.N
		switch r.Status {
		case domain.ConversationActive:
			st.ActiveConversations = r.N
		case domain.ConversationResolved:
			st.Resolved = r.N
		case domain.ConversationAbandoned:
			st.Abandoned = r.N
		}
	}

	msgs := db.Model(&domain.Message{}).Where("tenant_id = ?", tenantID)
	if err := msgs.Session(&gorm.Session{}).Count(&st.Messages).Error; err != nil {
		return st, err
	}
	if err := msgs.Session(&gorm.Session{}).Where("is_read = ?", false).Count(&st.UnreadMessages).Error; err != nil {
		return st, err
	}
	if err := msgs.Session(&gorm.Session{}).Where("is_flagged = ?", true).Count(&st.FlaggedMessages).Error; err != nil {
		return st, err
	}
	return st, nil
}

// GlobalStats summarizes the whole platform.
type GlobalStats struct {
	Tenants        int64                 `json:"tenants"`
	ActiveTenants  int64                 `json:"active_tenants"`
	TenantsByPlan  map[domain.Plan]int64 `json:"tenants_by_plan"`
	Users          int64                 `json:"users"`
	Conversations  int64                 `json:"conversations"`
	Messages       int64                 `json:"messages"`
	TotalUsage     int64                 `json:"total_usage"`
	LifetimeVolume int64                 `json:"lifetime_messages"`
}

type planCount struct {
	Plan domain.Plan
	N    int64
}

// LoadGlobalStats aggregates platform-wide counts for admins.
func LoadGlobalStats(ctx context.Context, db *gorm.DB) (GlobalStats, error) {
	st := GlobalStats{TenantsByPlan: map[domain.Plan]int64{}}
	db = db.WithContext(ctx)

	var plans []planCount
	if err := db.Model(&domain.Tenant{}).Select("plan, COUNT(*) AS n").Group("plan").Scan(&plans).Error; err != nil {
		return st, err
	}
	for _, p := range plans {
		st.Tenants += p.N
		st.TenantsByPlan[p.Plan] = p.N
	}
	if err := db.Model(&domain.Tenant{}).
		Where("is_active = ? AND subscription_status = ?", true, domain.SubscriptionActive).
		Count(&st.ActiveTenants).Error; err != nil {
		return st, err
	}

	var sums struct {
		UsageSum    int64
		LifetimeSum int64
	}
	if err := db.Model(&domain.Tenant{}).
		Select("COALESCE(SUM(usage_count), 0) AS usage_sum, COALESCE(SUM(total_messages), 0) AS lifetime_sum").
		Scan(&sums).Error; err != nil {
		return st, err
	}
	st.TotalUsage, st.LifetimeVolume = sums.UsageSum, sums.LifetimeSum

	if err := db.Model(&domain.User{}).Count(&st.Users).Error; err != nil {
		return st, err
	}
	if err := db.Model(&domain.Conversation{}).Count(&st.Conversations).Error; err != nil {
		return st, err
	}
	if err := db.Model(&domain.Message{}).Count(&st.Messages).Error; err != nil {
		return st, err
	}
	return st, nil
}
