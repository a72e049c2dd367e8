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

// cronJobRepo is the GORM implementation of CronJobRepository.
type cronJobRepo struct {
	db *gorm.DB
}

func (r *cronJobRepo) Create(ctx context.Context, job *db.CronJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("cron_jobs: create: %w", err)
	}
	return nil
}

func (r *cronJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*db.CronJob, error) {
	var job db.CronJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("cron_jobs: get by id: %w", err)
	}
	return &job, nil
}

func (r *cronJobRepo) Update(ctx context.Context, job *db.CronJob) error {
	result := r.db.WithContext(ctx).Save(job)
	if result.Error != nil {
		return fmt.Errorf("cron_jobs: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *cronJobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.CronJob{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("cron_jobs: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *cronJobRepo) List(ctx context.Context, opts repositories.ListOptions) ([]db.CronJob, int64, error) {
	var jobs []db.CronJob
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.CronJob{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("cron_jobs: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("cron_jobs: list: %w", err)
	}

	return jobs, total, nil
}

func (r *cronJobRepo) ListEnabled(ctx context.Context) ([]db.CronJob, error) {
	var jobs []db.CronJob
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("cron_jobs: list enabled: %w", err)
	}
	return jobs, nil
}

// UpdateRunTimes persists schedule timestamps. A nil value leaves the
// corresponding column untouched so arm installation can set next_run_at
// without clobbering last_run_at.
func (r *cronJobRepo) UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt *time.Time) error {
	updates := map[string]any{}
	if lastRunAt != nil {
		updates["last_run_at"] = *lastRunAt
	}
	if nextRunAt != nil {
		updates["next_run_at"] = *nextRunAt
	}
	if len(updates) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Model(&db.CronJob{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("cron_jobs: update run times: %w", err)
	}
	return nil
}

func (r *cronJobRepo) CreateRun(ctx context.Context, run *db.CronJobRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("cron_job_runs: create: %w", err)
	}
	return nil
}

func (r *cronJobRepo) UpdateRun(ctx context.Context, run *db.CronJobRun) error {
	result := r.db.WithContext(ctx).Save(run)
	if result.Error != nil {
		return fmt.Errorf("cron_job_runs: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *cronJobRepo) ListRuns(ctx context.Context, jobID uuid.UUID, opts repositories.ListOptions) ([]db.CronJobRun, int64, error) {
	var runs []db.CronJobRun
	var total int64

	query := r.db.WithContext(ctx).Model(&db.CronJobRun{}).Where("job_id = ?", jobID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("cron_job_runs: list count: %w", err)
	}

	if err := query.
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("started_at DESC").
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("cron_job_runs: list: %w", err)
	}

	return runs, total, nil
}
