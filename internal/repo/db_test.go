package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

func openFile(t *testing.T, opts Options) *gorm.DB {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "app.db")
	}
	db, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestOpen_RejectsBadOptions(t *testing.T) {
	cases := map[string]Options{
		"unknown driver":       {Driver: "oracle"},
		"postgres without url": {Driver: "postgres"},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Open(opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "app.db")
	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error, got db=%v err=%v", db, err)
	}
	// Drivers word this differently across platforms.
	msg := strings.ToLower(err.Error())
	if !os.IsNotExist(err) &&
		!strings.Contains(msg, "unable to open database file") &&
		!strings.Contains(msg, "no such file or directory") &&
		!strings.Contains(msg, "out of memory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	db := openFile(t, Options{Driver: "sqlite"})

	var mode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&mode); err != nil || strings.ToLower(mode) != "wal" {
		t.Fatalf("journal_mode=%q err=%v", mode, err)
	}
	for pragma, want := range map[string]int{"synchronous": 1, "foreign_keys": 1, "busy_timeout": 5000} {
		var got int
		if err := db.Raw("PRAGMA " + pragma + ";").Row().Scan(&got); err != nil {
			t.Fatalf("%s: %v", pragma, err)
		}
		if got != want {
			t.Fatalf("%s=%d want %d", pragma, got, want)
		}
	}

	sqlDB, _ := db.DB()
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Fatalf("MaxOpenConnections=%d want 10", n)
	}
}

func TestAutoMigrate_SchemaUsable(t *testing.T) {
	db := openFile(t, Options{Driver: "sqlite", Tracing: true, Silent: true})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, model := range []any{&domain.Tenant{}, &domain.User{}, &domain.Conversation{}, &domain.Message{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
	}

	ctx := context.Background()
	tn := &domain.Tenant{Name: "Acme", Domain: "acme.com", AllowedDomains: []string{"acme.com"},
		ChatbotConfig: domain.DefaultChatbotConfig(), Plan: domain.PlanStarter, MessageLimit: 2,
		SubscriptionStatus: domain.SubscriptionActive, IsActive: true}
	if err := CreateTenant(ctx, db, tn); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	conv, err := CreateConversation(ctx, db, tn.ID, "v1", domain.SourceWebsite)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := CreateMessage(ctx, db, conv, domain.MessageUser, "hi", nil, time.Now().UTC()); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	got, err := GetTenant(ctx, db, tn.ID)
	if err != nil || got.Domain != "acme.com" || len(got.AllowedDomains) != 1 {
		t.Fatalf("GetTenant: err=%v got=%+v", err, got)
	}
}
