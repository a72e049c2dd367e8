package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
	"github.com/parabase-io/parabase/internal/scheduler"
)

// CronJobHandler serves the admin cron job endpoints. Mutations are pushed
// to the scheduler immediately so changes take effect without waiting for
// the periodic sync.
type CronJobHandler struct {
	store     repositories.Store
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewCronJobHandler creates a CronJobHandler.
func NewCronJobHandler(store repositories.Store, sched *scheduler.Scheduler, logger *zap.Logger) *CronJobHandler {
	return &CronJobHandler{store: store, scheduler: sched, logger: logger.Named("cronjob_handler")}
}

// List handles GET /admin/cronjobs.
func (h *CronJobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, total, err := h.store.CronJobs().List(r.Context(), listOptions(r))
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"jobs": jobs, "total": total})
}

// Get handles GET /admin/cronjobs/{id}.
func (h *CronJobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	job, err := h.store.CronJobs().GetByID(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, apperr.NotFound("cron job not found"))
		return
	}
	Ok(w, map[string]any{"job": job})
}

type cronJobRequest struct {
	Name      string         `json:"name"`
	JobType   db.CronJobType `json:"jobType"`
	CronExpr  string         `json:"cronExpr"`
	Timezone  string         `json:"timezone"`
	ProjectID *uuid.UUID     `json:"projectId"`

	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`

	Action string          `json:"action"`
	Config json.RawMessage `json:"config"`

	Enabled        *bool `json:"enabled"`
	TimeoutMs      int   `json:"timeoutMs"`
	Retries        int   `json:"retries"`
	RetryBackoffMs int   `json:"retryBackoffMs"`
}

func (req *cronJobRequest) apply(job *db.CronJob) error {
	if req.Name == "" {
		return apperr.BadRequest("name is required")
	}
	if req.JobType != db.CronJobTypeHTTP && req.JobType != db.CronJobTypePlatform {
		return apperr.BadRequestf("unknown job type %q", req.JobType)
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if err := scheduler.ValidateExpr(req.CronExpr, timezone); err != nil {
		return err
	}
	if req.JobType == db.CronJobTypeHTTP && req.URL == "" {
		return apperr.BadRequest("url is required for http jobs")
	}
	if req.JobType == db.CronJobTypePlatform && req.Action == "" {
		return apperr.BadRequest("action is required for platform jobs")
	}

	job.Name = req.Name
	job.JobType = req.JobType
	job.CronExpr = req.CronExpr
	job.Timezone = timezone
	job.ProjectID = req.ProjectID
	job.URL = req.URL
	job.Method = req.Method
	job.Action = req.Action

	job.EncryptedBody = db.EncryptedString(req.Body)
	if len(req.Headers) > 0 {
		raw, err := json.Marshal(req.Headers)
		if err != nil {
			return apperr.BadRequest("invalid headers")
		}
		job.EncryptedHeaders = db.EncryptedString(raw)
	} else {
		job.EncryptedHeaders = ""
	}

	if len(req.Config) > 0 {
		job.Config = string(req.Config)
	} else {
		job.Config = "{}"
	}

	job.Enabled = req.Enabled == nil || *req.Enabled
	if req.TimeoutMs > 0 {
		job.TimeoutMs = req.TimeoutMs
	} else if job.TimeoutMs == 0 {
		job.TimeoutMs = 30000
	}
	job.Retries = req.Retries
	if req.RetryBackoffMs > 0 {
		job.RetryBackoffMs = req.RetryBackoffMs
	} else if job.RetryBackoffMs == 0 {
		job.RetryBackoffMs = 1000
	}
	return nil
}

// Create handles POST /admin/cronjobs.
func (h *CronJobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req cronJobRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	job := &db.CronJob{}
	if err := req.apply(job); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := h.store.CronJobs().Create(r.Context(), job); err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	if err := h.scheduler.Sync(r.Context()); err != nil {
		h.logger.Warn("scheduler sync after create failed", zap.Error(err))
	}
	Created(w, map[string]any{"job": job})
}

// Update handles PUT /admin/cronjobs/{id}.
func (h *CronJobHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	job, err := h.store.CronJobs().GetByID(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, apperr.NotFound("cron job not found"))
		return
	}

	var req cronJobRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := req.apply(job); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := h.store.CronJobs().Update(r.Context(), job); err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	if err := h.scheduler.Sync(r.Context()); err != nil {
		h.logger.Warn("scheduler sync after update failed", zap.Error(err))
	}
	Ok(w, map[string]any{"job": job})
}

// Delete handles DELETE /admin/cronjobs/{id}.
func (h *CronJobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := h.store.CronJobs().Delete(r.Context(), id); err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	h.scheduler.RemoveJob(id)
	NoContent(w)
}

// Runs handles GET /admin/cronjobs/{id}/runs.
func (h *CronJobHandler) Runs(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	runs, total, err := h.store.CronJobs().ListRuns(r.Context(), id, listOptions(r))
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"runs": runs, "total": total})
}

// Trigger handles POST /admin/cronjobs/{id}/trigger, dispatching the job
// immediately regardless of its schedule.
func (h *CronJobHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := h.scheduler.TriggerNow(r.Context(), id); err != nil {
		Fail(w, h.logger, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}
