package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// backupRepo is the GORM implementation of BackupRepository.
type backupRepo struct {
	db *gorm.DB
}

func (r *backupRepo) Create(ctx context.Context, backup *db.Backup) error {
	if err := r.db.WithContext(ctx).Create(backup).Error; err != nil {
		return fmt.Errorf("backups: create: %w", err)
	}
	return nil
}

func (r *backupRepo) GetByID(ctx context.Context, id uuid.UUID) (*db.Backup, error) {
	var backup db.Backup
	err := r.db.WithContext(ctx).First(&backup, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("backups: get by id: %w", err)
	}
	return &backup, nil
}

func (r *backupRepo) Update(ctx context.Context, backup *db.Backup) error {
	result := r.db.WithContext(ctx).Save(backup)
	if result.Error != nil {
		return fmt.Errorf("backups: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *backupRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Backup{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("backups: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *backupRepo) List(ctx context.Context, projectID *uuid.UUID, opts repositories.ListOptions) ([]db.Backup, int64, error) {
	var backups []db.Backup
	var total int64

	query := r.db.WithContext(ctx).Model(&db.Backup{})
	if projectID != nil {
		query = query.Where("project_id = ?", *projectID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("backups: list count: %w", err)
	}

	if err := query.
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&backups).Error; err != nil {
		return nil, 0, fmt.Errorf("backups: list: %w", err)
	}

	return backups, total, nil
}

// ListCompletedProjectBackups returns completed project-type backups for one
// project, newest first, as the retention classifier expects.
func (r *backupRepo) ListCompletedProjectBackups(ctx context.Context, projectID uuid.UUID) ([]db.Backup, error) {
	var backups []db.Backup
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND type = ? AND status = ?",
			projectID, db.BackupTypeProject, db.BackupStatusCompleted).
		Order("created_at DESC").
		Find(&backups).Error
	if err != nil {
		return nil, fmt.Errorf("backups: list completed project backups: %w", err)
	}
	return backups, nil
}

func (r *backupRepo) ListExpired(ctx context.Context, now time.Time) ([]db.Backup, error) {
	var backups []db.Backup
	err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Find(&backups).Error
	if err != nil {
		return nil, fmt.Errorf("backups: list expired: %w", err)
	}
	return backups, nil
}
