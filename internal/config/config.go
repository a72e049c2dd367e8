// Package config holds the startup configuration for the Parabase server.
// Every field is populated from a cobra flag defaulting to a PARABASE_*
// environment variable. Values that operators may change at runtime (rate
// limit, SQL caps, public storage URL) live in the settings table instead
// and are served by internal/settings.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Database configures the platform control-plane connection and the server
// against which tenant databases are provisioned. The configured user must
// be allowed to CREATE DATABASE and CREATE ROLE.
type Database struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	PoolMax  int
	IdleMs   int
	ConnMs   int
}

// ObjectStore configures the S3-compatible endpoint used for per-project
// buckets and backup artifacts.
type ObjectStore struct {
	Endpoint  string
	Port      int
	UseSSL    bool
	Region    string
	AccessKey string
	SecretKey string
}

// Scheduler configures the cron job loop.
type Scheduler struct {
	PollIntervalMs    int
	DefaultTimeoutMs  int
	MaxConcurrentJobs int
}

// Config is the full startup configuration.
type Config struct {
	HTTPAddr string
	LogLevel string

	// SecureCookies marks the admin session cookie Secure. Enable whenever
	// the console is served over TLS.
	SecureCookies bool

	Database    Database
	ObjectStore ObjectStore
	Scheduler   Scheduler

	// PlatformMasterKey is the envelope-encryption root secret. 64 hex chars
	// or at least 32 bytes of raw material; shorter values fail startup.
	PlatformMasterKey string

	// Defaults for runtime-mutable settings; the settings table overrides
	// these once written.
	RateLimitMax              int
	RateLimitWindowMs         int
	SQLMaxRows                int
	SQLStatementTimeoutMs     int
	PresignedURLExpirySeconds int
	MaxUploadSizeBytes        int64
	PublicStorageURL          string

	// NotifyWebhookURL, if set, receives scheduler failure events signed
	// with NotifyWebhookSecret.
	NotifyWebhookURL    string
	NotifyWebhookSecret string
}

// PlatformDSN returns the connection string for the control-plane database.
func (c *Config) PlatformDSN() string {
	return c.Database.DSN(c.Database.Name, c.Database.User, c.Database.Password)
}

// AdminDSN returns a connection string to the maintenance database
// ("postgres"), used for CREATE/DROP DATABASE and ROLE statements that must
// not run against the database being created or dropped.
func (c *Config) AdminDSN() string {
	return c.Database.DSN("postgres", c.Database.User, c.Database.Password)
}

// DSN builds a PostgreSQL URL against the configured server for an
// arbitrary database and principal. Credentials are escaped so generated
// role passwords survive URL parsing.
func (d *Database) DSN(dbName, user, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(user), url.QueryEscape(password), d.Host, d.Port, dbName)
}

// PollInterval returns the scheduler sync interval as a duration.
func (s *Scheduler) PollInterval() time.Duration {
	if s.PollIntervalMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// Validate checks the invariants that must hold before startup proceeds.
func (c *Config) Validate() error {
	if c.PlatformMasterKey == "" {
		return fmt.Errorf("config: platform master key is required")
	}
	if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
		return fmt.Errorf("config: database host, name and user are required")
	}
	if c.ObjectStore.Endpoint == "" {
		return fmt.Errorf("config: object store endpoint is required")
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: scheduler max concurrent jobs must be positive")
	}
	return nil
}
