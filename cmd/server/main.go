package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parabase-io/parabase/internal/api"
	"github.com/parabase-io/parabase/internal/apikey"
	"github.com/parabase-io/parabase/internal/audit"
	"github.com/parabase-io/parabase/internal/auth"
	"github.com/parabase-io/parabase/internal/backup"
	"github.com/parabase-io/parabase/internal/config"
	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/notification"
	"github.com/parabase-io/parabase/internal/objectstore"
	"github.com/parabase-io/parabase/internal/provision"
	"github.com/parabase-io/parabase/internal/query"
	"github.com/parabase-io/parabase/internal/repository"
	"github.com/parabase-io/parabase/internal/scheduler"
	"github.com/parabase-io/parabase/internal/settings"
	"github.com/parabase-io/parabase/internal/sqlexec"
	"github.com/parabase-io/parabase/internal/tenant"

	"github.com/google/uuid"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// sessionLifetime is how long an admin session stays valid.
const sessionLifetime = 24 * time.Hour

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "parabase-server",
		Short: "Parabase server — self-hosted multi-tenant data platform",
		Long: `Parabase server hosts isolated PostgreSQL databases and object storage
namespaces per project, exposes an auto-generated CRUD API keyed by
project API keys, and runs the admin console, backups and cron jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	f := root.PersistentFlags()
	f.StringVar(&cfg.HTTPAddr, "http-addr", envOrDefault("PARABASE_HTTP_ADDR", ":8080"), "HTTP API listen address")
	f.StringVar(&cfg.LogLevel, "log-level", envOrDefault("PARABASE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	f.BoolVar(&cfg.SecureCookies, "secure-cookies", envOrDefault("PARABASE_SECURE_COOKIES", "false") == "true", "Mark admin session cookies Secure (enable behind TLS)")

	f.StringVar(&cfg.Database.Host, "db-host", envOrDefault("PARABASE_DB_HOST", "localhost"), "PostgreSQL server host")
	f.IntVar(&cfg.Database.Port, "db-port", envIntOrDefault("PARABASE_DB_PORT", 5432), "PostgreSQL server port")
	f.StringVar(&cfg.Database.Name, "db-name", envOrDefault("PARABASE_DB_NAME", "parabase"), "Control-plane database name")
	f.StringVar(&cfg.Database.User, "db-user", envOrDefault("PARABASE_DB_USER", "parabase"), "Database superuser (must be able to CREATE DATABASE and CREATE ROLE)")
	f.StringVar(&cfg.Database.Password, "db-password", envOrDefault("PARABASE_DB_PASSWORD", ""), "Database password")
	f.IntVar(&cfg.Database.PoolMax, "db-pool-max", envIntOrDefault("PARABASE_DB_POOL_MAX", 25), "Control-plane connection pool size")
	f.IntVar(&cfg.Database.IdleMs, "db-idle-ms", envIntOrDefault("PARABASE_DB_IDLE_MS", 300000), "Control-plane connection max idle time")
	f.IntVar(&cfg.Database.ConnMs, "db-conn-ms", envIntOrDefault("PARABASE_DB_CONN_MS", 1800000), "Control-plane connection max lifetime")

	f.StringVar(&cfg.ObjectStore.Endpoint, "store-endpoint", envOrDefault("PARABASE_STORE_ENDPOINT", "localhost"), "S3-compatible object store host")
	f.IntVar(&cfg.ObjectStore.Port, "store-port", envIntOrDefault("PARABASE_STORE_PORT", 9000), "Object store port")
	f.BoolVar(&cfg.ObjectStore.UseSSL, "store-ssl", envOrDefault("PARABASE_STORE_SSL", "false") == "true", "Use TLS for the object store")
	f.StringVar(&cfg.ObjectStore.Region, "store-region", envOrDefault("PARABASE_STORE_REGION", "us-east-1"), "Object store region")
	f.StringVar(&cfg.ObjectStore.AccessKey, "store-access-key", envOrDefault("PARABASE_STORE_ACCESS_KEY", ""), "Object store access key")
	f.StringVar(&cfg.ObjectStore.SecretKey, "store-secret-key", envOrDefault("PARABASE_STORE_SECRET_KEY", ""), "Object store secret key")

	f.StringVar(&cfg.PlatformMasterKey, "master-key", envOrDefault("PARABASE_MASTER_KEY", ""), "Master key for encrypting credentials at rest (required)")

	f.IntVar(&cfg.Scheduler.PollIntervalMs, "cron-poll-ms", envIntOrDefault("PARABASE_CRON_POLL_MS", 30000), "Cron definition sync interval")
	f.IntVar(&cfg.Scheduler.DefaultTimeoutMs, "cron-timeout-ms", envIntOrDefault("PARABASE_CRON_TIMEOUT_MS", 30000), "Default cron dispatch timeout")
	f.IntVar(&cfg.Scheduler.MaxConcurrentJobs, "cron-max-concurrent", envIntOrDefault("PARABASE_CRON_MAX_CONCURRENT", 5), "Max concurrently running cron jobs")

	f.IntVar(&cfg.RateLimitMax, "rate-limit-max", envIntOrDefault("PARABASE_RATE_LIMIT_MAX", 300), "Default requests per rate limit window")
	f.IntVar(&cfg.RateLimitWindowMs, "rate-limit-window-ms", envIntOrDefault("PARABASE_RATE_LIMIT_WINDOW_MS", 60000), "Default rate limit window")
	f.IntVar(&cfg.SQLMaxRows, "sql-max-rows", envIntOrDefault("PARABASE_SQL_MAX_ROWS", 1000), "Default admin SQL row cap")
	f.IntVar(&cfg.SQLStatementTimeoutMs, "sql-timeout-ms", envIntOrDefault("PARABASE_SQL_TIMEOUT_MS", 10000), "Default admin SQL statement timeout")
	f.IntVar(&cfg.PresignedURLExpirySeconds, "presign-expiry-s", envIntOrDefault("PARABASE_PRESIGN_EXPIRY_S", 900), "Presigned URL lifetime in seconds")
	f.Int64Var(&cfg.MaxUploadSizeBytes, "max-upload-bytes", int64(envIntOrDefault("PARABASE_MAX_UPLOAD_BYTES", 104857600)), "Upload size cap in bytes")
	f.StringVar(&cfg.PublicStorageURL, "public-storage-url", envOrDefault("PARABASE_PUBLIC_STORAGE_URL", ""), "Public base URL advertised for storage objects")

	f.StringVar(&cfg.NotifyWebhookURL, "notify-webhook-url", envOrDefault("PARABASE_NOTIFY_WEBHOOK_URL", ""), "Webhook URL for scheduler failure notifications")
	f.StringVar(&cfg.NotifyWebhookSecret, "notify-webhook-secret", envOrDefault("PARABASE_NOTIFY_WEBHOOK_SECRET", ""), "HMAC secret for the notification webhook")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parabase-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("starting parabase server",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("db_host", cfg.Database.Host),
		zap.String("store_endpoint", cfg.ObjectStore.Endpoint),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	masterKey, err := crypto.DeriveMasterKey(cfg.PlatformMasterKey)
	if err != nil {
		return err
	}
	cipher, err := crypto.NewCipher(masterKey)
	if err != nil {
		return err
	}
	if err := db.InitEncryption(masterKey); err != nil {
		return err
	}

	gormLevel := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		gormLevel = gormlogger.Info
	}
	database, err := db.New(db.Config{
		DSN:      cfg.PlatformDSN(),
		PoolMax:  cfg.Database.PoolMax,
		IdleMax:  time.Duration(cfg.Database.IdleMs) * time.Millisecond,
		ConnMax:  time.Duration(cfg.Database.ConnMs) * time.Millisecond,
		Logger:   logger,
		LogLevel: gormLevel,
	})
	if err != nil {
		return err
	}

	store := repository.NewStore(database)
	router := tenant.NewRouter(store.Credentials(), cipher, logger)
	defer router.CloseAll()

	settingsSvc, err := settings.NewService(ctx, store.Settings(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load runtime settings: %w", err)
	}

	objects, err := objectstore.New(cfg.ObjectStore, logger)
	if err != nil {
		return err
	}
	broker := objectstore.NewBroker(objects, store,
		time.Duration(cfg.PresignedURLExpirySeconds)*time.Second,
		cfg.MaxUploadSizeBytes, logger)

	backups := backup.NewService(store, router, cipher, objects, backup.NewDumper(), cfg.PlatformDSN(), logger, nil)
	if err := objects.EnsureBucket(ctx, backup.Bucket); err != nil {
		return fmt.Errorf("failed to ensure backup bucket: %w", err)
	}

	ownerDSN := func(ctx context.Context, projectID uuid.UUID) (string, error) {
		cred, err := store.Credentials().Get(ctx, projectID, db.PrincipalOwner)
		if err != nil {
			return "", err
		}
		return cipher.Decrypt(cred.Envelope())
	}

	notifier := notification.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret)
	dispatcher := scheduler.NewJobDispatcher(store, backups, notifier, ownerDSN, logger, nil)
	sched, err := scheduler.New(store, dispatcher, cfg.Scheduler, logger, nil)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop() //nolint:errcheck

	auditor := audit.NewRecorder(store.Audit(), logger)
	keys := apikey.NewService(store, logger, nil)
	sessions := auth.NewService(store, auth.NewJWTManager(masterKey, sessionLifetime), logger, nil)
	prov := provision.NewService(store, cipher, objects, router, cfg.Database, auditor, logger)

	schemas := query.NewSchemaCache(router, nil)
	queries := query.NewService(router, schemas, func() int {
		return settingsSvc.Current().SQLMaxRows
	}, logger)
	executor := sqlexec.NewExecutor(router, func() sqlexec.Limits {
		snap := settingsSvc.Current()
		return sqlexec.Limits{
			MaxRows:            snap.SQLMaxRows,
			StatementTimeoutMs: snap.SQLStatementTimeoutMs,
		}
	}, logger)

	handler := api.NewRouter(api.Deps{
		Store:         store,
		Keys:          keys,
		Sessions:      sessions,
		Queries:       queries,
		Executor:      executor,
		Broker:        broker,
		Backups:       backups,
		Provision:     prov,
		Scheduler:     sched,
		Settings:      settingsSvc,
		Audit:         auditor,
		Schemas:       schemas,
		SecureCookies: cfg.SecureCookies,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down parabase server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown did not complete cleanly", zap.Error(err))
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
