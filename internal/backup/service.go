package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/metrics"
	"github.com/parabase-io/parabase/internal/objectstore"
	"github.com/parabase-io/parabase/internal/repositories"
	"github.com/parabase-io/parabase/internal/tenant"
)

// Bucket is the dedicated backup bucket, separate from project namespaces.
const Bucket = "parabase-backups"

// CreateInput describes one requested backup.
type CreateInput struct {
	Type          db.BackupType
	ProjectID     *uuid.UUID
	TableName     string
	Format        db.BackupFormat
	RetentionDays *int
}

// Service owns backup creation, asynchronous execution, restore and the
// retention sweeps.
type Service struct {
	store       repositories.Store
	router      *tenant.Router
	cipher      *crypto.Cipher
	objects     *objectstore.Client
	dumper      Dumper
	platformDSN string
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a Service. now is injectable for tests; pass nil for
// time.Now.
func NewService(store repositories.Store, router *tenant.Router, cipher *crypto.Cipher, objects *objectstore.Client, dumper Dumper, platformDSN string, logger *zap.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:       store,
		router:      router,
		cipher:      cipher,
		objects:     objects,
		dumper:      dumper,
		platformDSN: platformDSN,
		logger:      logger.Named("backup"),
		now:         now,
	}
}

// Create validates the input, inserts a pending row, kicks off asynchronous
// execution and returns immediately. The caller polls the row for status.
func (s *Service) Create(ctx context.Context, input CreateInput, userID *uuid.UUID) (*db.Backup, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	now := s.now()
	backup := &db.Backup{
		ProjectID:     input.ProjectID,
		Type:          input.Type,
		TableName:     input.TableName,
		ObjectKey:     s.objectKey(input, now),
		Format:        s.format(input),
		Status:        db.BackupStatusPending,
		RetentionDays: input.RetentionDays,
		CreatedBy:     userID,
	}
	if input.RetentionDays != nil {
		expires := now.Add(time.Duration(*input.RetentionDays) * 24 * time.Hour)
		backup.ExpiresAt = &expires
	}

	if err := s.store.Backups().Create(ctx, backup); err != nil {
		return nil, apperr.Internal(err)
	}

	// The task outlives the request; it is not cancelled when the HTTP
	// response is written, and not guaranteed to finish on shutdown.
	go s.run(context.WithoutCancel(ctx), backup)

	return backup, nil
}

// Get returns one backup row.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*db.Backup, error) {
	backup, err := s.store.Backups().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("backup not found")
		}
		return nil, apperr.Internal(err)
	}
	return backup, nil
}

// List returns backups, optionally filtered to one project.
func (s *Service) List(ctx context.Context, projectID *uuid.UUID, opts repositories.ListOptions) ([]db.Backup, int64, error) {
	backups, total, err := s.store.Backups().List(ctx, projectID, opts)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return backups, total, nil
}

// Delete removes the stored artifact and then the row. Row deletion wins: a
// failed artifact removal is logged and the row is deleted anyway, so the
// retention sweeps still purge aged backups when the object store is flaky.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	backup, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if backup.Status == db.BackupStatusCompleted {
		if err := s.objects.Remove(ctx, Bucket, backup.ObjectKey); err != nil {
			s.logger.Warn("backup artifact removal failed",
				zap.String("backup_id", id.String()),
				zap.String("object_key", backup.ObjectKey),
				zap.Error(err),
			)
		}
	}
	if err := s.store.Backups().Delete(ctx, id); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Restore downloads a completed project sql backup and replays it into the
// tenant database. Returns pg_restore warnings, if any.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) ([]string, error) {
	backup, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if backup.Status != db.BackupStatusCompleted {
		return nil, apperr.BadRequest("backup is not completed")
	}
	if backup.Type != db.BackupTypeProject || backup.Format != db.BackupFormatSQL {
		return nil, apperr.BadRequest("only project sql backups can be restored")
	}

	archive, err := s.objects.Get(ctx, Bucket, backup.ObjectKey)
	if err != nil {
		return nil, err
	}

	dsn, err := s.ownerDSN(ctx, *backup.ProjectID)
	if err != nil {
		return nil, err
	}

	warnings, err := s.dumper.Restore(ctx, dsn, archive)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "restore failed", err)
	}

	s.logger.Info("backup restored",
		zap.String("backup_id", id.String()),
		zap.Int("warnings", len(warnings)),
	)
	return warnings, nil
}

// ApplyRetention classifies a project's completed backups and deletes the
// ones that have aged out. Returns how many were removed.
func (s *Service) ApplyRetention(ctx context.Context, projectID uuid.UUID) (int, error) {
	backups, err := s.store.Backups().ListCompletedProjectBackups(ctx, projectID)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	_, remove := Classify(backups, s.now())
	removed := 0
	for _, b := range remove {
		if err := s.Delete(ctx, b.ID); err != nil {
			s.logger.Warn("retention delete failed",
				zap.String("backup_id", b.ID.String()),
				zap.Error(err),
			)
			continue
		}
		removed++
	}
	return removed, nil
}

// SweepExpired deletes backups whose explicit expires_at has passed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.Backups().ListExpired(ctx, s.now())
	if err != nil {
		return 0, apperr.Internal(err)
	}

	removed := 0
	for _, b := range expired {
		if err := s.Delete(ctx, b.ID); err != nil {
			s.logger.Warn("expiry delete failed",
				zap.String("backup_id", b.ID.String()),
				zap.Error(err),
			)
			continue
		}
		removed++
	}
	return removed, nil
}

// run executes one backup task: running -> produce bytes -> upload ->
// completed, or failed with the error message recorded.
func (s *Service) run(ctx context.Context, backup *db.Backup) {
	backup.Status = db.BackupStatusRunning
	if err := s.store.Backups().Update(ctx, backup); err != nil {
		s.logger.Error("backup status update failed",
			zap.String("backup_id", backup.ID.String()),
			zap.Error(err),
		)
		return
	}

	data, err := s.produce(ctx, backup)
	if err == nil {
		err = s.objects.Put(ctx, Bucket, backup.ObjectKey, contentType(backup.Format), data)
	}

	if err != nil {
		backup.Status = db.BackupStatusFailed
		backup.ErrorMessage = err.Error()
		s.logger.Error("backup failed",
			zap.String("backup_id", backup.ID.String()),
			zap.Error(err),
		)
	} else {
		completedAt := s.now()
		backup.Status = db.BackupStatusCompleted
		backup.SizeBytes = int64(len(data))
		backup.CompletedAt = &completedAt
		s.logger.Info("backup completed",
			zap.String("backup_id", backup.ID.String()),
			zap.String("object_key", backup.ObjectKey),
			zap.Int64("size_bytes", backup.SizeBytes),
		)
	}

	if err := s.store.Backups().Update(ctx, backup); err != nil {
		s.logger.Error("backup status update failed",
			zap.String("backup_id", backup.ID.String()),
			zap.Error(err),
		)
	}
	metrics.BackupsTotal.WithLabelValues(string(backup.Type), string(backup.Status)).Inc()
}

// produce yields the backup payload bytes for each backup type.
func (s *Service) produce(ctx context.Context, backup *db.Backup) ([]byte, error) {
	switch backup.Type {
	case db.BackupTypePlatform:
		return s.dumper.Dump(ctx, s.platformDSN)

	case db.BackupTypeProject:
		dsn, err := s.ownerDSN(ctx, *backup.ProjectID)
		if err != nil {
			return nil, err
		}
		return s.dumper.Dump(ctx, dsn)

	case db.BackupTypeTable:
		pool, err := s.router.Get(ctx, *backup.ProjectID, db.PrincipalOwner)
		if err != nil {
			return nil, err
		}
		return exportTable(ctx, pool, backup.TableName, backup.Format)

	default:
		return nil, fmt.Errorf("backup: unknown type %q", backup.Type)
	}
}

// ownerDSN decrypts the owner-tier connection string of a project.
func (s *Service) ownerDSN(ctx context.Context, projectID uuid.UUID) (string, error) {
	cred, err := s.store.Credentials().Get(ctx, projectID, db.PrincipalOwner)
	if err != nil {
		return "", apperr.Internal(err)
	}
	dsn, err := s.cipher.Decrypt(cred.Envelope())
	if err != nil {
		return "", apperr.AsError(err)
	}
	return dsn, nil
}

func (s *Service) validate(input CreateInput) error {
	switch input.Type {
	case db.BackupTypePlatform:
		return nil
	case db.BackupTypeProject:
		if input.ProjectID == nil {
			return apperr.BadRequest("project backup requires a project id")
		}
		return nil
	case db.BackupTypeTable:
		if input.ProjectID == nil || input.TableName == "" {
			return apperr.BadRequest("table backup requires a project id and table name")
		}
		if f := s.format(input); f != db.BackupFormatCSV && f != db.BackupFormatJSON {
			return apperr.BadRequestf("table backup format must be csv or json, got %q", f)
		}
		return nil
	default:
		return apperr.BadRequestf("unknown backup type %q", input.Type)
	}
}

// format defaults table backups to csv and everything else to sql.
func (s *Service) format(input CreateInput) db.BackupFormat {
	if input.Format != "" {
		return input.Format
	}
	if input.Type == db.BackupTypeTable {
		return db.BackupFormatCSV
	}
	return db.BackupFormatSQL
}

// objectKey derives the typed storage key for a backup.
func (s *Service) objectKey(input CreateInput, now time.Time) string {
	ts := now.UTC().Format("20060102T150405Z")
	switch input.Type {
	case db.BackupTypePlatform:
		return fmt.Sprintf("platform/platform_%s.sql", ts)
	case db.BackupTypeTable:
		ext := string(s.format(input))
		return fmt.Sprintf("projects/%s/tables/%s_%s.%s", input.ProjectID, input.TableName, ts, ext)
	default:
		return fmt.Sprintf("projects/%s/full_%s.sql", input.ProjectID, ts)
	}
}

func contentType(format db.BackupFormat) string {
	switch format {
	case db.BackupFormatCSV:
		return "text/csv"
	case db.BackupFormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
