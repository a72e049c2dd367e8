package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// apiKeyRepo is the GORM implementation of APIKeyRepository.
type apiKeyRepo struct {
	db *gorm.DB
}

func (r *apiKeyRepo) Create(ctx context.Context, key *db.APIKey) error {
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("api_keys: create: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*db.APIKey, error) {
	var key db.APIKey
	err := r.db.WithContext(ctx).First(&key, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("api_keys: get by id: %w", err)
	}
	return &key, nil
}

func (r *apiKeyRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]db.APIKey, error) {
	var keys []db.APIKey
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("api_keys: list by project: %w", err)
	}
	return keys, nil
}

// ListActive returns all keys that are not revoked and not expired. The key
// service scans the full set with constant-time hash comparison, so no hash
// filter is applied here.
func (r *apiKeyRepo) ListActive(ctx context.Context, now time.Time) ([]db.APIKey, error) {
	var keys []db.APIKey
	err := r.db.WithContext(ctx).
		Where("revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", now).
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("api_keys: list active: %w", err)
	}
	return keys, nil
}

func (r *apiKeyRepo) RevokeActiveByType(ctx context.Context, projectID uuid.UUID, keyType crypto.KeyType, now time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&db.APIKey{}).
		Where("project_id = ? AND type = ? AND revoked_at IS NULL", projectID, keyType).
		Update("revoked_at", now).Error
	if err != nil {
		return fmt.Errorf("api_keys: revoke active by type: %w", err)
	}
	return nil
}

// Revoke sets revoked_at iff the key is currently active; revoking an
// already-revoked or expired key reports ErrNotFound.
func (r *apiKeyRepo) Revoke(ctx context.Context, id uuid.UUID, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.APIKey{}).
		Where("id = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", id, now).
		Update("revoked_at", now)
	if result.Error != nil {
		return fmt.Errorf("api_keys: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *apiKeyRepo) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&db.APIKey{}).Error
	if err != nil {
		return fmt.Errorf("api_keys: delete by project: %w", err)
	}
	return nil
}
