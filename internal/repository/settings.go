package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// settingsRepo is the GORM implementation of SettingsRepository.
type settingsRepo struct {
	db *gorm.DB
}

func (r *settingsRepo) Get(ctx context.Context, key string) (*db.Setting, error) {
	var s db.Setting
	err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("settings: get: %w", err)
	}
	return &s, nil
}

// Set upserts a setting. On conflict the value and updated_at are
// overwritten, avoiding a read-before-write on every save.
func (r *settingsRepo) Set(ctx context.Context, key string, value db.EncryptedString) error {
	s := db.Setting{Key: key, Value: value}
	if err := r.db.WithContext(ctx).Save(&s).Error; err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}

func (r *settingsRepo) All(ctx context.Context) ([]db.Setting, error) {
	var settings []db.Setting
	if err := r.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("settings: all: %w", err)
	}
	return settings, nil
}
