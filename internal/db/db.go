// Package db manages the control-plane database connection, migrations, and
// at-rest encryption for the Parabase server. The control plane is
// PostgreSQL only: provisioning issues CREATE DATABASE / CREATE ROLE against
// the same server that hosts tenant databases. Migrations are embedded in
// the binary and applied automatically on startup via golang-migrate.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds the configuration required to open the platform database.
// IdleMax bounds how long a pooled connection may sit idle; ConnMax bounds
// its total lifetime.
type Config struct {
	DSN      string
	PoolMax  int
	IdleMax  time.Duration
	ConnMax  time.Duration
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel
}

// New opens the platform database, applies pending migrations, and returns
// the ready-to-use *gorm.DB instance.
func New(cfg Config) (*gorm.DB, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("db: logger is required")
	}
	if cfg.PoolMax <= 0 {
		cfg.PoolMax = 25
	}
	if cfg.IdleMax <= 0 {
		cfg.IdleMax = 5 * time.Minute
	}
	if cfg.ConnMax <= 0 {
		cfg.ConnMax = 30 * time.Minute
	}

	database, err := gorm.Open(gormpostgres.Open(cfg.DSN), &gorm.Config{
		Logger:         newZapGORMLogger(cfg.Logger, cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: failed to open postgres: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.PoolMax)
	sqlDB.SetConnMaxIdleTime(cfg.IdleMax)
	sqlDB.SetConnMaxLifetime(cfg.ConnMax)

	if err := runMigrations(sqlDB, cfg.Logger); err != nil {
		return nil, fmt.Errorf("db: migrations failed: %w", err)
	}

	return database, nil
}

// Ping verifies that the database connection is still alive.
func Ping(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// runMigrations applies all pending up-migrations from the embedded SQL files.
// ErrNoChange is treated as success.
func runMigrations(sqlDB *sql.DB, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	drv, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("database migrations applied successfully")
	return nil
}
