package repo

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustTenant(t *testing.T, db *gorm.DB, dom string, plan domain.Plan, limit int64) *domain.Tenant {
	t.Helper()
	tn := &domain.Tenant{
		Name:               dom,
		Domain:             dom,
		AllowedDomains:     []string{dom},
		ChatbotConfig:      domain.DefaultChatbotConfig(),
		Plan:               plan,
		MessageLimit:       limit,
		SubscriptionStatus: domain.SubscriptionActive,
		IsActive:           true,
	}
	if err := CreateTenant(context.Background(), db, tn); err != nil {
		t.Fatalf("create tenant %s: %v", dom, err)
	}
	return tn
}
