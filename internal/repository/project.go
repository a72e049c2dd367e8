package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// projectRepo is the GORM implementation of ProjectRepository.
type projectRepo struct {
	db *gorm.DB
}

func (r *projectRepo) Create(ctx context.Context, project *db.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrConflict
		}
		return fmt.Errorf("projects: create: %w", err)
	}
	return nil
}

func (r *projectRepo) GetByID(ctx context.Context, id uuid.UUID) (*db.Project, error) {
	var project db.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("projects: get by id: %w", err)
	}
	return &project, nil
}

func (r *projectRepo) GetBySlug(ctx context.Context, slug string) (*db.Project, error) {
	var project db.Project
	err := r.db.WithContext(ctx).First(&project, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("projects: get by slug: %w", err)
	}
	return &project, nil
}

func (r *projectRepo) Update(ctx context.Context, project *db.Project) error {
	result := r.db.WithContext(ctx).Save(project)
	if result.Error != nil {
		return fmt.Errorf("projects: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *projectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Project{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("projects: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *projectRepo) List(ctx context.Context, opts repositories.ListOptions) ([]db.Project, int64, error) {
	var projects []db.Project
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Project{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("projects: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("projects: list: %w", err)
	}

	return projects, total, nil
}

func (r *projectRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&db.Project{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("projects: count: %w", err)
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// credentialRepo
// -----------------------------------------------------------------------------

// credentialRepo is the GORM implementation of CredentialRepository.
type credentialRepo struct {
	db *gorm.DB
}

func (r *credentialRepo) Create(ctx context.Context, cred *db.ProjectCredential) error {
	if err := r.db.WithContext(ctx).Create(cred).Error; err != nil {
		return fmt.Errorf("project_credentials: create: %w", err)
	}
	return nil
}

func (r *credentialRepo) Get(ctx context.Context, projectID uuid.UUID, principal db.Principal) (*db.ProjectCredential, error) {
	var cred db.ProjectCredential
	err := r.db.WithContext(ctx).
		First(&cred, "project_id = ? AND principal = ?", projectID, principal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("project_credentials: get: %w", err)
	}
	return &cred, nil
}

func (r *credentialRepo) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&db.ProjectCredential{}).Error
	if err != nil {
		return fmt.Errorf("project_credentials: delete by project: %w", err)
	}
	return nil
}
