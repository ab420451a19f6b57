// Command server runs the chat widget API and its maintenance tasks.
//
// @title                       Chat Widget API
// @version                     1.0
// @description                 Multi-tenant chatbot widget backend.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @securityDefinitions.apikey  SessionCookie
// @in                          header
// @name                        Cookie
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/auth"
	"github.com/tbourn/go-chatwidget-saas/internal/cache"
	"github.com/tbourn/go-chatwidget-saas/internal/config"
	httpapi "github.com/tbourn/go-chatwidget-saas/internal/http"
	"github.com/tbourn/go-chatwidget-saas/internal/observability"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"
	"github.com/tbourn/go-chatwidget-saas/internal/services"
	"github.com/tbourn/go-chatwidget-saas/internal/sysutil"
)

// Build info, set by ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const cliName = "chatwidget"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           cliName,
		Short:         "Multi-tenant chat widget API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serve.Flags().Bool("migrate", sysutil.IsTruthy(sysutil.FirstNonEmpty(os.Getenv("AUTO_MIGRATE"), "true")),
		"apply schema migrations before serving (AUTO_MIGRATE)")
	serve.Flags().Duration("purge-interval", time.Hour, "how often expired idempotency records are deleted")
	serve.Flags().Duration("shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	root.AddCommand(serve)

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE:  runMigrate,
	})

	admin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a platform admin account",
		RunE:  runCreateAdmin,
	}
	admin.Flags().String("email", "", "admin email (required)")
	admin.Flags().String("password", "", "admin password (defaults to ADMIN_PASSWORD)")
	_ = admin.MarkFlagRequired("email")
	root.AddCommand(admin)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", cliName, Version, Commit)
		},
	})
	return root
}

// bootstrap loads configuration, installs the global logger, and opens the
// database.
func bootstrap() (config.Config, zerolog.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), nil, fmt.Errorf("config: %w", err)
	}
	logger := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		URL:     cfg.DB.URL,
		Tracing: cfg.OTEL.Enabled,
		Silent:  cfg.GinMode == gin.ReleaseMode,
	})
	if err != nil {
		return cfg, logger, nil, fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	return cfg, logger, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	_, logger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(db)

	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Msg("migrations_applied")
	return nil
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	password = sysutil.FirstNonEmpty(password, os.Getenv("ADMIN_PASSWORD"))
	if password == "" {
		return errors.New("a password is required: pass --password or set ADMIN_PASSWORD")
	}

	_, logger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(db)

	accounts := &services.AccountService{DB: db}
	u, err := accounts.CreateAdmin(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("admin_created")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	migrate, _ := cmd.Flags().GetBool("migrate")
	purgeEvery, _ := cmd.Flags().GetDuration("purge-interval")
	grace, _ := cmd.Flags().GetDuration("shutdown-timeout")

	cfg, logger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(db)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, observability.Build{Version: Version, Environment: cfg.GinMode})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing_shutdown_failed")
		}
	}()

	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	sessions, err := auth.NewSessions(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TTL)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	deps := httpapi.Deps{DB: db, Sessions: sessions}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("tenant_cache_disabled")
		} else {
			defer func() { _ = rdb.Close() }()
			deps.TenantCache = cache.NewTenantCache(rdb, services.RepoTenants{DB: db}, cfg.Redis.TTL)
			logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("tenant_cache_enabled")
		}
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db, purgeEvery, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("version", Version).
			Str("db_driver", cfg.DB.Driver).
			Bool("swagger", cfg.SwaggerEnabled).
			Msg("http_server_starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Dur("grace", grace).Msg("http_server_stopping")
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("http_server_stopped")
	return nil
}

// purgeIdempotency deletes expired idempotency records every interval until
// ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration, logger zerolog.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				logger.Warn().Err(err).Msg("idempotency_purge_failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("deleted", n).Msg("idempotency_purged")
			}
		}
	}
}
