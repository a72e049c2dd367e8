// Package repositories defines the typed accessor interfaces for the
// control-plane database. Implementations live in internal/repository and
// are backed by GORM. Multi-row invariants (project deletion cascades, key
// rotation) are coordinated exclusively through Store.Transaction; DDL
// statements never run through this layer.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store bundles every repository together with the transaction helper.
// Transaction runs fn inside begin/commit/rollback and hands it a Store
// whose repositories are bound to the transaction connection.
type Store interface {
	Projects() ProjectRepository
	Credentials() CredentialRepository
	APIKeys() APIKeyRepository
	Buckets() BucketRepository
	Audit() AuditRepository
	Backups() BackupRepository
	CronJobs() CronJobRepository
	Users() UserRepository
	Invites() InviteRepository
	Sessions() SessionRepository
	Settings() SettingsRepository

	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// -----------------------------------------------------------------------------
// ProjectRepository
// -----------------------------------------------------------------------------

type ProjectRepository interface {
	Create(ctx context.Context, project *db.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Project, error)
	GetBySlug(ctx context.Context, slug string) (*db.Project, error)
	Update(ctx context.Context, project *db.Project) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Project, int64, error)
	Count(ctx context.Context) (int64, error)
}

// -----------------------------------------------------------------------------
// CredentialRepository
// -----------------------------------------------------------------------------

type CredentialRepository interface {
	Create(ctx context.Context, cred *db.ProjectCredential) error
	Get(ctx context.Context, projectID uuid.UUID, principal db.Principal) (*db.ProjectCredential, error)
	DeleteByProject(ctx context.Context, projectID uuid.UUID) error
}

// -----------------------------------------------------------------------------
// APIKeyRepository
// -----------------------------------------------------------------------------

type APIKeyRepository interface {
	Create(ctx context.Context, key *db.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.APIKey, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]db.APIKey, error)

	// ListActive returns every key that is not revoked and not expired as of
	// now. The key service scans this set with constant-time comparison.
	ListActive(ctx context.Context, now time.Time) ([]db.APIKey, error)

	// RevokeActiveByType marks all active keys of one type for a project as
	// revoked. Used inside the rotation transaction.
	RevokeActiveByType(ctx context.Context, projectID uuid.UUID, keyType crypto.KeyType, now time.Time) error

	Revoke(ctx context.Context, id uuid.UUID, now time.Time) error
	DeleteByProject(ctx context.Context, projectID uuid.UUID) error
}

// -----------------------------------------------------------------------------
// BucketRepository — logical buckets and file metadata
// -----------------------------------------------------------------------------

type BucketRepository interface {
	CreateBucket(ctx context.Context, bucket *db.LogicalBucket) error
	GetBucket(ctx context.Context, projectID uuid.UUID, name string) (*db.LogicalBucket, error)
	ListBuckets(ctx context.Context, projectID uuid.UUID) ([]db.LogicalBucket, error)
	DeleteBucketsByProject(ctx context.Context, projectID uuid.UUID) error

	// UpsertFile records file metadata keyed by (project, objectKey),
	// overwriting contentType and size on conflict.
	UpsertFile(ctx context.Context, file *db.FileMetadata) error
	GetFile(ctx context.Context, projectID uuid.UUID, objectKey string) (*db.FileMetadata, error)
	ListFiles(ctx context.Context, projectID uuid.UUID, logicalBucket string, opts ListOptions) ([]db.FileMetadata, int64, error)
	DeleteFile(ctx context.Context, projectID uuid.UUID, objectKey string) error
	DeleteFilesByProject(ctx context.Context, projectID uuid.UUID) error
}

// -----------------------------------------------------------------------------
// AuditRepository
// -----------------------------------------------------------------------------

type AuditRepository interface {
	Create(ctx context.Context, entry *db.AuditEntry) error
	List(ctx context.Context, projectID *uuid.UUID, opts ListOptions) ([]db.AuditEntry, int64, error)
	DeleteByProject(ctx context.Context, projectID uuid.UUID) error
}

// -----------------------------------------------------------------------------
// BackupRepository
// -----------------------------------------------------------------------------

type BackupRepository interface {
	Create(ctx context.Context, backup *db.Backup) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Backup, error)
	Update(ctx context.Context, backup *db.Backup) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, projectID *uuid.UUID, opts ListOptions) ([]db.Backup, int64, error)

	// ListCompletedProjectBackups returns completed project-type backups for
	// one project ordered newest first, as consumed by the retention sweep.
	ListCompletedProjectBackups(ctx context.Context, projectID uuid.UUID) ([]db.Backup, error)

	// ListExpired returns backups whose legacy expires_at lies before now.
	ListExpired(ctx context.Context, now time.Time) ([]db.Backup, error)
}

// -----------------------------------------------------------------------------
// CronJobRepository
// -----------------------------------------------------------------------------

type CronJobRepository interface {
	Create(ctx context.Context, job *db.CronJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.CronJob, error)
	Update(ctx context.Context, job *db.CronJob) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.CronJob, int64, error)
	ListEnabled(ctx context.Context) ([]db.CronJob, error)

	// UpdateRunTimes persists lastRunAt/nextRunAt after a dispatch or after
	// an arm is (re)installed. Either value may be nil to leave it untouched.
	UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt *time.Time) error

	CreateRun(ctx context.Context, run *db.CronJobRun) error
	UpdateRun(ctx context.Context, run *db.CronJobRun) error
	ListRuns(ctx context.Context, jobID uuid.UUID, opts ListOptions) ([]db.CronJobRun, int64, error)
}

// -----------------------------------------------------------------------------
// UserRepository
// -----------------------------------------------------------------------------

type UserRepository interface {
	Create(ctx context.Context, user *db.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	Update(ctx context.Context, user *db.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.User, int64, error)
	Count(ctx context.Context) (int64, error)
}

// -----------------------------------------------------------------------------
// InviteRepository
// -----------------------------------------------------------------------------

type InviteRepository interface {
	Create(ctx context.Context, invite *db.Invite) error
	GetByTokenHash(ctx context.Context, hash string) (*db.Invite, error)
	MarkUsed(ctx context.Context, id uuid.UUID, usedBy uuid.UUID, now time.Time) error
	List(ctx context.Context, opts ListOptions) ([]db.Invite, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// -----------------------------------------------------------------------------
// SessionRepository
// -----------------------------------------------------------------------------

type SessionRepository interface {
	Create(ctx context.Context, session *db.Session) error
	GetByTokenHash(ctx context.Context, hash string) (*db.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) error
}

// -----------------------------------------------------------------------------
// SettingsRepository
// -----------------------------------------------------------------------------

type SettingsRepository interface {
	Get(ctx context.Context, key string) (*db.Setting, error)
	Set(ctx context.Context, key string, value db.EncryptedString) error
	All(ctx context.Context) ([]db.Setting, error)
}
