package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// bucketRepo is the GORM implementation of BucketRepository, covering both
// logical buckets and file metadata.
type bucketRepo struct {
	db *gorm.DB
}

func (r *bucketRepo) CreateBucket(ctx context.Context, bucket *db.LogicalBucket) error {
	if err := r.db.WithContext(ctx).Create(bucket).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrConflict
		}
		return fmt.Errorf("logical_buckets: create: %w", err)
	}
	return nil
}

func (r *bucketRepo) GetBucket(ctx context.Context, projectID uuid.UUID, name string) (*db.LogicalBucket, error) {
	var bucket db.LogicalBucket
	err := r.db.WithContext(ctx).
		First(&bucket, "project_id = ? AND name = ?", projectID, name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("logical_buckets: get: %w", err)
	}
	return &bucket, nil
}

func (r *bucketRepo) ListBuckets(ctx context.Context, projectID uuid.UUID) ([]db.LogicalBucket, error) {
	var buckets []db.LogicalBucket
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("logical_buckets: list: %w", err)
	}
	return buckets, nil
}

func (r *bucketRepo) DeleteBucketsByProject(ctx context.Context, projectID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&db.LogicalBucket{}).Error
	if err != nil {
		return fmt.Errorf("logical_buckets: delete by project: %w", err)
	}
	return nil
}

// UpsertFile inserts or refreshes metadata keyed by (project_id, object_key).
// Re-issuing a presigned upload for the same key overwrites content type and
// size rather than failing.
func (r *bucketRepo) UpsertFile(ctx context.Context, file *db.FileMetadata) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "object_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"logical_bucket", "content_type", "size", "updated_at",
			}),
		}).
		Create(file).Error
	if err != nil {
		return fmt.Errorf("file_metadata: upsert: %w", err)
	}
	return nil
}

func (r *bucketRepo) GetFile(ctx context.Context, projectID uuid.UUID, objectKey string) (*db.FileMetadata, error) {
	var file db.FileMetadata
	err := r.db.WithContext(ctx).
		First(&file, "project_id = ? AND object_key = ?", projectID, objectKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("file_metadata: get: %w", err)
	}
	return &file, nil
}

func (r *bucketRepo) ListFiles(ctx context.Context, projectID uuid.UUID, logicalBucket string, opts repositories.ListOptions) ([]db.FileMetadata, int64, error) {
	var files []db.FileMetadata
	var total int64

	query := r.db.WithContext(ctx).Model(&db.FileMetadata{}).
		Where("project_id = ? AND logical_bucket = ?", projectID, logicalBucket)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("file_metadata: list count: %w", err)
	}

	if err := query.
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("object_key ASC").
		Find(&files).Error; err != nil {
		return nil, 0, fmt.Errorf("file_metadata: list: %w", err)
	}

	return files, total, nil
}

func (r *bucketRepo) DeleteFile(ctx context.Context, projectID uuid.UUID, objectKey string) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND object_key = ?", projectID, objectKey).
		Delete(&db.FileMetadata{}).Error
	if err != nil {
		return fmt.Errorf("file_metadata: delete: %w", err)
	}
	return nil
}

func (r *bucketRepo) DeleteFilesByProject(ctx context.Context, projectID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&db.FileMetadata{}).Error
	if err != nil {
		return fmt.Errorf("file_metadata: delete by project: %w", err)
	}
	return nil
}
