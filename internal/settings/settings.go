// Package settings serves the runtime-mutable operational settings: rate
// limit caps, SQL row caps and statement timeout, and the public storage
// URL. Readers take a consistent snapshot via an atomic pointer swap;
// writers persist to the settings table and then publish a new snapshot.
package settings

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/config"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// Setting keys persisted in the settings table.
const (
	KeyRateLimitMax          = "ratelimit.max"
	KeyRateLimitWindowMs     = "ratelimit.window_ms"
	KeySQLMaxRows            = "sql.max_rows"
	KeySQLStatementTimeoutMs = "sql.statement_timeout_ms"
	KeyPublicStorageURL      = "storage.public_url"
)

// Snapshot is one immutable view of the runtime settings. Callers read the
// whole struct; partial observation of a concurrent update is impossible.
type Snapshot struct {
	RateLimitMax          int
	RateLimitWindowMs     int
	SQLMaxRows            int
	SQLStatementTimeoutMs int
	PublicStorageURL      string
}

// Service owns the current snapshot and its persistence.
type Service struct {
	repo    repositories.SettingsRepository
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
}

// NewService builds a Service seeded from startup configuration and then
// overlaid with any values persisted in the settings table.
func NewService(ctx context.Context, repo repositories.SettingsRepository, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	s := &Service{repo: repo, logger: logger.Named("settings")}

	snap := &Snapshot{
		RateLimitMax:          cfg.RateLimitMax,
		RateLimitWindowMs:     cfg.RateLimitWindowMs,
		SQLMaxRows:            cfg.SQLMaxRows,
		SQLStatementTimeoutMs: cfg.SQLStatementTimeoutMs,
		PublicStorageURL:      cfg.PublicStorageURL,
	}

	stored, err := repo.All(ctx)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	for _, setting := range stored {
		applyStored(snap, setting)
	}

	s.current.Store(snap)
	return s, nil
}

// Current returns the active snapshot. The returned value must not be
// mutated.
func (s *Service) Current() Snapshot {
	return *s.current.Load()
}

// Update persists the changed fields and publishes a new snapshot. A nil
// field leaves the current value in place.
func (s *Service) Update(ctx context.Context, patch Patch) (Snapshot, error) {
	next := s.Current()

	if patch.RateLimitMax != nil {
		next.RateLimitMax = *patch.RateLimitMax
		if err := s.persistInt(ctx, KeyRateLimitMax, next.RateLimitMax); err != nil {
			return Snapshot{}, err
		}
	}
	if patch.RateLimitWindowMs != nil {
		next.RateLimitWindowMs = *patch.RateLimitWindowMs
		if err := s.persistInt(ctx, KeyRateLimitWindowMs, next.RateLimitWindowMs); err != nil {
			return Snapshot{}, err
		}
	}
	if patch.SQLMaxRows != nil {
		next.SQLMaxRows = *patch.SQLMaxRows
		if err := s.persistInt(ctx, KeySQLMaxRows, next.SQLMaxRows); err != nil {
			return Snapshot{}, err
		}
	}
	if patch.SQLStatementTimeoutMs != nil {
		next.SQLStatementTimeoutMs = *patch.SQLStatementTimeoutMs
		if err := s.persistInt(ctx, KeySQLStatementTimeoutMs, next.SQLStatementTimeoutMs); err != nil {
			return Snapshot{}, err
		}
	}
	if patch.PublicStorageURL != nil {
		next.PublicStorageURL = *patch.PublicStorageURL
		if err := s.repo.Set(ctx, KeyPublicStorageURL, db.EncryptedString(next.PublicStorageURL)); err != nil {
			return Snapshot{}, err
		}
	}

	s.current.Store(&next)
	s.logger.Info("runtime settings updated",
		zap.Int("rate_limit_max", next.RateLimitMax),
		zap.Int("sql_max_rows", next.SQLMaxRows),
		zap.Int("sql_statement_timeout_ms", next.SQLStatementTimeoutMs),
	)
	return next, nil
}

// Patch carries the settable fields of an admin settings update.
type Patch struct {
	RateLimitMax          *int
	RateLimitWindowMs     *int
	SQLMaxRows            *int
	SQLStatementTimeoutMs *int
	PublicStorageURL      *string
}

func (s *Service) persistInt(ctx context.Context, key string, value int) error {
	return s.repo.Set(ctx, key, db.EncryptedString(strconv.Itoa(value)))
}

func applyStored(snap *Snapshot, setting db.Setting) {
	value := string(setting.Value)
	switch setting.Key {
	case KeyRateLimitMax:
		if n, err := strconv.Atoi(value); err == nil {
			snap.RateLimitMax = n
		}
	case KeyRateLimitWindowMs:
		if n, err := strconv.Atoi(value); err == nil {
			snap.RateLimitWindowMs = n
		}
	case KeySQLMaxRows:
		if n, err := strconv.Atoi(value); err == nil {
			snap.SQLMaxRows = n
		}
	case KeySQLStatementTimeoutMs:
		if n, err := strconv.Atoi(value); err == nil {
			snap.SQLStatementTimeoutMs = n
		}
	case KeyPublicStorageURL:
		snap.PublicStorageURL = value
	}
}
