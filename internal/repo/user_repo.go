package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// CreateUser inserts u, assigning an ID when empty. Emails are stored
// lowercased so the unique index is case-insensitive.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	return translate(db.WithContext(ctx).Create(u).Error)
}

// GetUser fetches a user by ID.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by (case-insensitive) email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetTenantOwner returns the client user bound to tenantID.
func GetTenantOwner(ctx context.Context, db *gorm.DB, tenantID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND role = ?", tenantID, domain.RoleClient).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsers returns the number of users, optionally filtered by role.
func CountUsers(ctx context.Context, db *gorm.DB, role domain.Role) (int64, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	err := q.Count(&n).Error
	return n, err
}

// ListUsersPage returns users ordered by creation time descending,
// optionally filtered by role.
func ListUsersPage(ctx context.Context, db *gorm.DB, role domain.Role, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	q := db.WithContext(ctx)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// SetUserActive toggles the account. Returns ErrNotFound when id is unknown.
func SetUserActive(ctx context.Context, db *gorm.DB, id string, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DetachTenantUsers unbinds and deactivates every user of tenantID.
func DetachTenantUsers(ctx context.Context, db *gorm.DB, tenantID string) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{"tenant_id": nil, "is_active": false}).Error
}

// TouchLogin records a successful sign-in.
func TouchLogin(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}
