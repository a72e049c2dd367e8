package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// auditRepo is the GORM implementation of AuditRepository. The table is
// append-only; there is no update path.
type auditRepo struct {
	db *gorm.DB
}

func (r *auditRepo) Create(ctx context.Context, entry *db.AuditEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("audit_entries: create: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, projectID *uuid.UUID, opts repositories.ListOptions) ([]db.AuditEntry, int64, error) {
	var entries []db.AuditEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&db.AuditEntry{})
	if projectID != nil {
		query = query.Where("project_id = ?", *projectID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit_entries: list count: %w", err)
	}

	if err := query.
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("audit_entries: list: %w", err)
	}

	return entries, total, nil
}

func (r *auditRepo) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&db.AuditEntry{}).Error
	if err != nil {
		return fmt.Errorf("audit_entries: delete by project: %w", err)
	}
	return nil
}
