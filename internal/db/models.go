package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/crypto"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// Projects
// -----------------------------------------------------------------------------

// Project is the tenant unit. Each project owns an isolated database, two
// database roles, a physical object-store bucket, API keys, and metadata.
// Projects are created only by provisioning and destroyed only by explicit
// delete; there is no soft deletion.
type Project struct {
	base
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text;default:''" json:"description"`
}

// Principal names one of the two database roles provisioned per project.
type Principal string

const (
	// PrincipalOwner has DDL and DML on the tenant database. Reserved for
	// provisioning, admin SQL, schema introspection, and backups.
	PrincipalOwner Principal = "owner"

	// PrincipalApp has row-level DML only. All public CRUD traffic runs as app.
	PrincipalApp Principal = "app"
)

// Valid reports whether p names a known principal.
func (p Principal) Valid() bool { return p == PrincipalOwner || p == PrincipalApp }

// ProjectCredential stores one encrypted tenant connection string.
// Exactly two rows exist per project, one per principal. The plaintext is a
// PostgreSQL connection descriptor and is only ever decrypted inside the
// tenant router and the backup engine.
type ProjectCredential struct {
	base
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index:idx_project_principal,unique" json:"projectId"`
	Principal  Principal `gorm:"not null;index:idx_project_principal,unique" json:"principal"`
	Ciphertext string    `gorm:"type:text;not null" json:"-"`
	IV         string    `gorm:"not null" json:"-"`
	AuthTag    string    `gorm:"not null" json:"-"`
}

// Envelope repackages the stored columns for decryption.
func (c *ProjectCredential) Envelope() crypto.Envelope {
	return crypto.Envelope{Ciphertext: c.Ciphertext, IV: c.IV, AuthTag: c.AuthTag}
}

// -----------------------------------------------------------------------------
// API keys
// -----------------------------------------------------------------------------

// APIKey stores the SHA-256 hash of an issued key. The plaintext is returned
// exactly once at creation; Prefix keeps the first 8 characters for display.
type APIKey struct {
	base
	ProjectID uuid.UUID      `gorm:"type:uuid;not null;index" json:"projectId"`
	Type      crypto.KeyType `gorm:"not null" json:"type"`
	Hash      string         `gorm:"uniqueIndex;not null" json:"-"`
	Prefix    string         `gorm:"not null" json:"prefix"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	RevokedAt *time.Time     `json:"revokedAt,omitempty"`
}

// Active reports whether the key is currently usable: not revoked and not
// past its expiry.
func (k *APIKey) Active(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}

// -----------------------------------------------------------------------------
// Storage metadata
// -----------------------------------------------------------------------------

// LogicalBucket is a named prefix inside a project's single physical bucket.
// It exists purely as a namespace marker; the object store has one physical
// bucket per project.
type LogicalBucket struct {
	base
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_bucket_project_name,unique" json:"projectId"`
	Name      string    `gorm:"not null;index:idx_bucket_project_name,unique" json:"name"`
}

// FileMetadata records an object known to the platform. It is written
// best-effort when a presigned upload is issued — the object store remains
// the ground truth for what actually exists.
type FileMetadata struct {
	base
	ProjectID     uuid.UUID `gorm:"type:uuid;not null;index:idx_file_project_key,unique" json:"projectId"`
	LogicalBucket string    `gorm:"not null" json:"bucket"`
	ObjectKey     string    `gorm:"not null;index:idx_file_project_key,unique" json:"objectKey"`
	ContentType   string    `gorm:"default:''" json:"contentType"`
	Size          int64     `gorm:"default:0" json:"size"`
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

// AuditEntry is an append-only record of an administrative or provisioning
// action. Audit writes never fail the calling operation.
type AuditEntry struct {
	base
	ProjectID *uuid.UUID `gorm:"type:uuid;index" json:"projectId,omitempty"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"userId,omitempty"`
	Action    string     `gorm:"not null;index" json:"action"`
	Details   string     `gorm:"type:text;default:'{}'" json:"details"` // JSON
}

// -----------------------------------------------------------------------------
// Backups
// -----------------------------------------------------------------------------

// BackupType identifies what a backup covers.
type BackupType string

const (
	BackupTypePlatform BackupType = "platform"
	BackupTypeProject  BackupType = "project"
	BackupTypeTable    BackupType = "table"
)

// BackupStatus is the backup state machine:
// pending -> running -> (completed | failed).
type BackupStatus string

const (
	BackupStatusPending   BackupStatus = "pending"
	BackupStatusRunning   BackupStatus = "running"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// BackupFormat is the serialization of the backup payload.
type BackupFormat string

const (
	BackupFormatSQL  BackupFormat = "sql"
	BackupFormatCSV  BackupFormat = "csv"
	BackupFormatJSON BackupFormat = "json"
)

// Backup tracks one dump artifact in the backup bucket. SizeBytes and
// CompletedAt are set only on the transition to completed.
type Backup struct {
	base
	ProjectID     *uuid.UUID   `gorm:"type:uuid;index" json:"projectId,omitempty"`
	Type          BackupType   `gorm:"not null;index" json:"type"`
	TableName     string       `gorm:"default:''" json:"tableName,omitempty"`
	ObjectKey     string       `gorm:"not null" json:"objectKey"`
	SizeBytes     int64        `gorm:"default:0" json:"sizeBytes"`
	Format        BackupFormat `gorm:"not null;default:'sql'" json:"format"`
	Status        BackupStatus `gorm:"not null;default:'pending';index" json:"status"`
	ErrorMessage  string       `gorm:"type:text;default:''" json:"errorMessage,omitempty"`
	RetentionDays *int         `json:"retentionDays,omitempty"`
	ExpiresAt     *time.Time   `gorm:"index" json:"expiresAt,omitempty"`
	CreatedBy     *uuid.UUID   `gorm:"type:uuid" json:"createdBy,omitempty"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}

// -----------------------------------------------------------------------------
// Cron jobs
// -----------------------------------------------------------------------------

// CronJobType distinguishes outbound HTTP jobs from built-in platform actions.
type CronJobType string

const (
	CronJobTypeHTTP     CronJobType = "http"
	CronJobTypePlatform CronJobType = "platform"
)

// CronJob is a scheduled job definition. For HTTP jobs the headers and body
// are encrypted at rest and decrypted only for the duration of a dispatch.
type CronJob struct {
	base
	ProjectID *uuid.UUID  `gorm:"type:uuid;index" json:"projectId,omitempty"`
	Name      string      `gorm:"not null" json:"name"`
	JobType   CronJobType `gorm:"not null" json:"jobType"`
	CronExpr  string      `gorm:"not null" json:"cronExpr"`
	Timezone  string      `gorm:"not null;default:'UTC'" json:"timezone"`

	// HTTP jobs.
	URL              string          `gorm:"default:''" json:"url,omitempty"`
	Method           string          `gorm:"default:'POST'" json:"method,omitempty"`
	EncryptedHeaders EncryptedString `gorm:"type:text" json:"-"`
	EncryptedBody    EncryptedString `gorm:"type:text" json:"-"`

	// Platform jobs.
	Action string `gorm:"default:''" json:"action,omitempty"`
	Config string `gorm:"type:text;default:'{}'" json:"config,omitempty"` // JSON

	Enabled        bool       `gorm:"not null;default:true" json:"enabled"`
	TimeoutMs      int        `gorm:"not null;default:30000" json:"timeoutMs"`
	Retries        int        `gorm:"not null;default:0" json:"retries"`
	RetryBackoffMs int        `gorm:"not null;default:1000" json:"retryBackoffMs"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
}

// CronRunStatus is the outcome of a single dispatch attempt.
type CronRunStatus string

const (
	CronRunRunning CronRunStatus = "running"
	CronRunSuccess CronRunStatus = "success"
	CronRunFail    CronRunStatus = "fail"
	CronRunTimeout CronRunStatus = "timeout"
)

// CronJobRun records one attempt of a dispatch. AttemptNumber starts at 1
// and is contiguous within a dispatch.
type CronJobRun struct {
	base
	JobID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"jobId"`
	AttemptNumber int           `gorm:"not null" json:"attemptNumber"`
	StartedAt     time.Time     `gorm:"not null;index" json:"startedAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
	DurationMs    *int64        `json:"durationMs,omitempty"`
	Status        CronRunStatus `gorm:"not null;default:'running'" json:"status"`
	HTTPStatus    *int          `json:"httpStatus,omitempty"`
	ErrorText     string        `gorm:"type:text;default:''" json:"errorText,omitempty"`
	LogPreview    string        `gorm:"type:text;default:''" json:"logPreview,omitempty"`
}

// -----------------------------------------------------------------------------
// Users & sessions (admin console accounts)
// -----------------------------------------------------------------------------

// User is a platform administrator or operator account. Passwords are
// argon2id hashes; external identity providers are out-of-process
// collaborators and not modeled here.
type User struct {
	base
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"` // saltHex:hashHex (argon2id)
	DisplayName  string     `gorm:"not null" json:"displayName"`
	Role         string     `gorm:"not null;default:'admin'" json:"role"`
	IsActive     bool       `gorm:"not null;default:true" json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Invite is a single-use registration key minted by an administrator.
// Only the SHA-256 hash of the "inv_..." token is stored.
type Invite struct {
	base
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	Role      string     `gorm:"not null;default:'admin'" json:"role"`
	CreatedBy *uuid.UUID `gorm:"type:uuid" json:"createdBy,omitempty"`
	ExpiresAt time.Time  `gorm:"not null" json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	UsedBy    *uuid.UUID `gorm:"type:uuid" json:"usedBy,omitempty"`
}

// Session is the server-side arm of an admin session cookie. The cookie
// carries a signed token whose ID is hashed here, so sessions can be revoked
// without a token denylist.
type Session struct {
	base
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	UserAgent string     `gorm:"default:''" json:"userAgent,omitempty"`
	IPAddress string     `gorm:"default:''" json:"ipAddress,omitempty"`
}

// -----------------------------------------------------------------------------
// Settings
// -----------------------------------------------------------------------------

// Setting is a key-value runtime configuration entry. Keys are namespaced by
// convention ("ratelimit.max", "sql.max_rows", "storage.public_url").
// Sensitive values are encrypted at the application layer via EncryptedString.
type Setting struct {
	Key       string          `gorm:"primaryKey" json:"key"`
	Value     EncryptedString `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}
