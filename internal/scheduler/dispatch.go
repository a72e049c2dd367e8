package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/backup"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/notification"
	"github.com/parabase-io/parabase/internal/repositories"
)

// responsePreviewBytes caps how much of an HTTP job's response body is kept
// on the run row.
const responsePreviewBytes = 500

// Platform action names accepted in cron job definitions.
const (
	ActionBackupProject     = "backup_project"
	ActionBackupAllProjects = "backup_all_projects"
	ActionCleanupRetention  = "cleanup_backups_with_retention"
	ActionCleanupExpired    = "cleanup_expired_backups"
	ActionVacuumDatabase    = "vacuum_database"
	ActionNotifyStatus      = "notify_status"
)

// JobDispatcher executes dispatches: HTTP jobs as outbound requests,
// platform jobs as named built-in actions. One dispatch covers all retry
// attempts of a single firing.
type JobDispatcher struct {
	store    repositories.Store
	backups  *backup.Service
	notifier notification.Sender
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time

	// ownerDSN resolves a project's owner-tier connection string; injected
	// so vacuum can open throwaway single connections without the router.
	ownerDSN func(ctx context.Context, projectID uuid.UUID) (string, error)
}

// NewJobDispatcher creates a JobDispatcher.
func NewJobDispatcher(store repositories.Store, backups *backup.Service, notifier notification.Sender, ownerDSN func(ctx context.Context, projectID uuid.UUID) (string, error), logger *zap.Logger, now func() time.Time) *JobDispatcher {
	if now == nil {
		now = time.Now
	}
	return &JobDispatcher{
		store:    store,
		backups:  backups,
		notifier: notifier,
		client:   &http.Client{},
		logger:   logger.Named("dispatch"),
		now:      now,
		ownerDSN: ownerDSN,
	}
}

// Dispatch runs attempts 1..retries+1, recording a CronJobRun per attempt.
// Returns true iff any attempt succeeded. On total failure a structured
// event is emitted to the notification sink.
func (d *JobDispatcher) Dispatch(ctx context.Context, job *db.CronJob) bool {
	attempts := job.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		startedAt := d.now()
		run := &db.CronJobRun{
			JobID:         job.ID,
			AttemptNumber: attempt,
			StartedAt:     startedAt,
			Status:        db.CronRunRunning,
		}
		if err := d.store.CronJobs().CreateRun(ctx, run); err != nil {
			d.logger.Error("failed to create run row",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			return false
		}

		res := d.execute(ctx, job)

		finishedAt := d.now()
		durationMs := finishedAt.Sub(startedAt).Milliseconds()
		run.FinishedAt = &finishedAt
		run.DurationMs = &durationMs
		run.Status = res.status
		run.HTTPStatus = res.httpStatus
		run.LogPreview = res.preview
		run.ErrorText = res.errMessage
		if err := d.store.CronJobs().UpdateRun(ctx, run); err != nil {
			d.logger.Error("failed to update run row",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}

		if res.status == db.CronRunSuccess {
			return true
		}
		lastErr = res.err
		if attempt < attempts {
			backoff := time.Duration(job.RetryBackoffMs) * time.Millisecond
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}
	}

	d.logger.Error("job dispatch failed after all attempts",
		zap.String("job_id", job.ID.String()),
		zap.String("job_name", job.Name),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	d.notifyFailure(ctx, job, attempts, lastErr)
	return false
}

// outcome is the result of one attempt.
type outcome struct {
	status     db.CronRunStatus
	httpStatus *int
	preview    string
	errMessage string
	err        error
}

func failedOutcome(err error) outcome {
	return outcome{status: db.CronRunFail, errMessage: err.Error(), err: err}
}

func (d *JobDispatcher) execute(ctx context.Context, job *db.CronJob) outcome {
	switch job.JobType {
	case db.CronJobTypeHTTP:
		return d.executeHTTP(ctx, job)
	case db.CronJobTypePlatform:
		return d.executePlatform(ctx, job)
	default:
		return failedOutcome(fmt.Errorf("unknown job type %q", job.JobType))
	}
}

// executeHTTP issues the configured request with the per-job timeout and
// captures the status plus a bounded body preview. Headers and body are
// decrypted transparently on row load and exist only for this dispatch.
func (d *JobDispatcher) executeHTTP(ctx context.Context, job *db.CronJob) outcome {
	timeout := time.Duration(job.TimeoutMs) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := job.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if job.EncryptedBody != "" {
		body = strings.NewReader(string(job.EncryptedBody))
	}

	req, err := http.NewRequestWithContext(reqCtx, method, job.URL, body)
	if err != nil {
		return failedOutcome(fmt.Errorf("building request: %w", err))
	}

	if job.EncryptedHeaders != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(job.EncryptedHeaders), &headers); err != nil {
			return failedOutcome(fmt.Errorf("parsing headers: %w", err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return outcome{
				status:     db.CronRunTimeout,
				errMessage: fmt.Sprintf("request exceeded %dms timeout", job.TimeoutMs),
				err:        err,
			}
		}
		return failedOutcome(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, responsePreviewBytes))
	status := resp.StatusCode

	if status < 200 || status >= 300 {
		return outcome{
			status:     db.CronRunFail,
			httpStatus: &status,
			preview:    string(preview),
			errMessage: fmt.Sprintf("endpoint returned status %d", status),
			err:        fmt.Errorf("endpoint returned status %d", status),
		}
	}
	return outcome{status: db.CronRunSuccess, httpStatus: &status, preview: string(preview)}
}

// executePlatform runs the named built-in action.
func (d *JobDispatcher) executePlatform(ctx context.Context, job *db.CronJob) outcome {
	switch job.Action {
	case ActionBackupProject:
		projectID, err := configProjectID(job)
		if err != nil {
			return failedOutcome(err)
		}
		_, err = d.backups.Create(ctx, backup.CreateInput{
			Type:      db.BackupTypeProject,
			ProjectID: &projectID,
		}, nil)
		if err != nil {
			return failedOutcome(err)
		}
		return outcome{status: db.CronRunSuccess}

	case ActionBackupAllProjects:
		return d.backupAllProjects(ctx)

	case ActionCleanupRetention:
		return d.cleanupRetention(ctx, job)

	case ActionCleanupExpired:
		removed, err := d.backups.SweepExpired(ctx)
		if err != nil {
			return failedOutcome(err)
		}
		return outcome{status: db.CronRunSuccess, preview: fmt.Sprintf("removed %d expired backups", removed)}

	case ActionVacuumDatabase:
		return d.vacuumAll(ctx)

	case ActionNotifyStatus:
		return d.notifyStatus(ctx)

	default:
		return failedOutcome(fmt.Errorf("unknown platform action %q", job.Action))
	}
}

func (d *JobDispatcher) backupAllProjects(ctx context.Context) outcome {
	projects, err := d.listAllProjects(ctx)
	if err != nil {
		return failedOutcome(err)
	}
	started := 0
	for i := range projects {
		id := projects[i].ID
		if _, err := d.backups.Create(ctx, backup.CreateInput{
			Type:      db.BackupTypeProject,
			ProjectID: &id,
		}, nil); err != nil {
			d.logger.Warn("backup start failed",
				zap.String("project_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		started++
	}
	return outcome{status: db.CronRunSuccess, preview: fmt.Sprintf("started %d project backups", started)}
}

func (d *JobDispatcher) cleanupRetention(ctx context.Context, job *db.CronJob) outcome {
	if projectID, err := configProjectID(job); err == nil {
		removed, err := d.backups.ApplyRetention(ctx, projectID)
		if err != nil {
			return failedOutcome(err)
		}
		return outcome{status: db.CronRunSuccess, preview: fmt.Sprintf("removed %d backups", removed)}
	}

	// No project configured: sweep every project.
	projects, err := d.listAllProjects(ctx)
	if err != nil {
		return failedOutcome(err)
	}
	total := 0
	for i := range projects {
		removed, err := d.backups.ApplyRetention(ctx, projects[i].ID)
		if err != nil {
			d.logger.Warn("retention sweep failed",
				zap.String("project_id", projects[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		total += removed
	}
	return outcome{status: db.CronRunSuccess, preview: fmt.Sprintf("removed %d backups", total)}
}

// vacuumAll opens a throwaway single connection per project and runs
// VACUUM ANALYZE, closing it before moving on.
func (d *JobDispatcher) vacuumAll(ctx context.Context) outcome {
	projects, err := d.listAllProjects(ctx)
	if err != nil {
		return failedOutcome(err)
	}

	vacuumed := 0
	for i := range projects {
		id := projects[i].ID
		dsn, err := d.ownerDSN(ctx, id)
		if err != nil {
			d.logger.Warn("vacuum: credential lookup failed",
				zap.String("project_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			d.logger.Warn("vacuum: connect failed",
				zap.String("project_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		_, execErr := conn.Exec(ctx, "VACUUM ANALYZE")
		conn.Close(ctx)
		if execErr != nil {
			d.logger.Warn("vacuum failed",
				zap.String("project_id", id.String()),
				zap.Error(execErr),
			)
			continue
		}
		vacuumed++
	}
	return outcome{status: db.CronRunSuccess, preview: fmt.Sprintf("vacuumed %d project databases", vacuumed)}
}

func (d *JobDispatcher) notifyStatus(ctx context.Context) outcome {
	projectCount, err := d.store.Projects().Count(ctx)
	if err != nil {
		return failedOutcome(err)
	}
	err = d.notifier.Send(ctx, "platform.status", "Parabase status",
		fmt.Sprintf("%d projects provisioned", projectCount),
		map[string]any{"projects": projectCount})
	if err != nil {
		return failedOutcome(err)
	}
	return outcome{status: db.CronRunSuccess}
}

func (d *JobDispatcher) notifyFailure(ctx context.Context, job *db.CronJob, attempts int, lastErr error) {
	msg := "unknown error"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	err := d.notifier.Send(ctx, "cron.failed", "Cron job failed",
		fmt.Sprintf("job %q failed after %d attempts: %s", job.Name, attempts, msg),
		map[string]any{
			"jobId":    job.ID.String(),
			"jobName":  job.Name,
			"attempts": attempts,
			"error":    msg,
		})
	if err != nil {
		d.logger.Warn("failure notification not delivered", zap.Error(err))
	}
}

func (d *JobDispatcher) listAllProjects(ctx context.Context) ([]db.Project, error) {
	projects, _, err := d.store.Projects().List(ctx, repositories.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// configProjectID extracts the projectId field from a platform job's config
// JSON.
func configProjectID(job *db.CronJob) (uuid.UUID, error) {
	var cfg struct {
		ProjectID string `json:"projectId"`
	}
	if err := json.Unmarshal([]byte(job.Config), &cfg); err != nil {
		return uuid.UUID{}, fmt.Errorf("parsing job config: %w", err)
	}
	if cfg.ProjectID == "" {
		return uuid.UUID{}, fmt.Errorf("job config is missing projectId")
	}
	id, err := uuid.Parse(cfg.ProjectID)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parsing projectId: %w", err)
	}
	return id, nil
}
