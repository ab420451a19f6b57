package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var admin = auth.Identity{UserID: "admin-1", Role: domain.RoleAdmin, Email: "root@example.com"}

type testEnv struct {
	db        *gorm.DB
	guard     *auth.Guard
	sessions  *auth.Sessions
	cache     *recordingCache
	tenants   *TenantService
	ledger    *Ledger
	usage     *DBUsage
	widget    *WidgetService
	accounts  *AccountService
	dashboard *Dashboard
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Exec("PRAGMA foreign_keys=ON;").Error)
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// tickingClock returns a clock that advances one millisecond per call, so
// message order never depends on timer resolution. It starts ahead of the
// wall clock so appended messages always postdate conversation creation.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Now().UTC().Add(time.Hour)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	sessions, err := auth.NewSessions(testSecret, "test", time.Hour)
	require.NoError(t, err)

	lookup := RepoTenants{DB: db}
	guard := auth.NewGuard(lookup)
	cache := &recordingCache{}
	tenants := &TenantService{DB: db, Guard: guard, Cache: cache, WidgetScriptURL: "https://cdn.example.net/widget.js"}
	ledger := &Ledger{DB: db, Now: tickingClock()}
	usage := &DBUsage{DB: db}

	return &testEnv{
		db:       db,
		guard:    guard,
		sessions: sessions,
		cache:    cache,
		tenants:  tenants,
		ledger:   ledger,
		usage:    usage,
		widget: &WidgetService{
			DB:      db,
			Origins: &OriginValidator{Tenants: lookup},
			Ledger:  ledger,
			Usage:   usage,
			Replies: CannedReplies{},
		},
		accounts:  &AccountService{DB: db, Sessions: sessions, Guard: guard, Tenants: tenants},
		dashboard: &Dashboard{DB: db, Guard: guard, Ledger: ledger},
	}
}

// tenant provisions a tenant the way the admin path does.
func (e *testEnv) tenant(t *testing.T, dom string, plan domain.Plan, limit int64) *domain.Tenant {
	t.Helper()
	tn, err := e.tenants.Create(context.Background(), admin, CreateTenantInput{
		Name:         dom + " Inc",
		Domain:       dom,
		Plan:         plan,
		MessageLimit: &limit,
	})
	require.NoError(t, err)
	return tn
}

func (e *testEnv) reload(t *testing.T, id string) *domain.Tenant {
	t.Helper()
	tn, err := repo.GetTenant(context.Background(), e.db, id)
	require.NoError(t, err)
	return tn
}

func clientOf(tn *domain.Tenant) auth.Identity {
	return auth.Identity{UserID: "owner-" + tn.ID, TenantID: tn.ID, Role: domain.RoleClient}
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *recordingCache) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

func ptr[T any](v T) *T { return &v }
