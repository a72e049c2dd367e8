// Package repository contains the GORM-backed implementations of the
// repositories interfaces. Every method wraps failures with a
// "<table>: <operation>:" prefix and maps gorm.ErrRecordNotFound to the
// repositories.ErrNotFound sentinel.
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/repositories"
)

// gormStore binds all repositories to a single *gorm.DB, which is either the
// root connection or a transaction handle.
type gormStore struct {
	db *gorm.DB
}

// NewStore returns a repositories.Store backed by the provided *gorm.DB.
func NewStore(db *gorm.DB) repositories.Store {
	return &gormStore{db: db}
}

func (s *gormStore) Projects() repositories.ProjectRepository     { return &projectRepo{db: s.db} }
func (s *gormStore) Credentials() repositories.CredentialRepository {
	return &credentialRepo{db: s.db}
}
func (s *gormStore) APIKeys() repositories.APIKeyRepository   { return &apiKeyRepo{db: s.db} }
func (s *gormStore) Buckets() repositories.BucketRepository   { return &bucketRepo{db: s.db} }
func (s *gormStore) Audit() repositories.AuditRepository      { return &auditRepo{db: s.db} }
func (s *gormStore) Backups() repositories.BackupRepository   { return &backupRepo{db: s.db} }
func (s *gormStore) CronJobs() repositories.CronJobRepository { return &cronJobRepo{db: s.db} }
func (s *gormStore) Users() repositories.UserRepository       { return &userRepo{db: s.db} }
func (s *gormStore) Invites() repositories.InviteRepository   { return &inviteRepo{db: s.db} }
func (s *gormStore) Sessions() repositories.SessionRepository { return &sessionRepo{db: s.db} }
func (s *gormStore) Settings() repositories.SettingsRepository {
	return &settingsRepo{db: s.db}
}

// Transaction wraps fn in begin/commit/rollback. fn receives a Store bound
// to the transaction connection; any error from fn rolls everything back.
// This is the only path through which multi-row invariants are coordinated.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
