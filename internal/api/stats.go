package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/repositories"
	"github.com/parabase-io/parabase/internal/scheduler"
)

// StatsHandler serves the admin dashboard overview and the audit log.
type StatsHandler struct {
	store     repositories.Store
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(store repositories.Store, sched *scheduler.Scheduler, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{store: store, scheduler: sched, logger: logger.Named("stats_handler")}
}

// Overview handles GET /admin/stats.
func (h *StatsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.Projects().Count(r.Context())
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	users, err := h.store.Users().Count(r.Context())
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	_, backups, err := h.store.Backups().List(r.Context(), nil, repositories.ListOptions{Limit: 1})
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	_, cronJobs, err := h.store.CronJobs().List(r.Context(), repositories.ListOptions{Limit: 1})
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}

	Ok(w, map[string]any{
		"projects":    projects,
		"users":       users,
		"backups":     backups,
		"cronJobs":    cronJobs,
		"runningJobs": h.scheduler.Running(),
	})
}

// Audit handles GET /admin/audit, optionally filtered by projectId.
func (h *StatsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	var projectID *uuid.UUID
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			Fail(w, h.logger, apperr.BadRequest("invalid projectId"))
			return
		}
		projectID = &id
	}

	entries, total, err := h.store.Audit().List(r.Context(), projectID, listOptions(r))
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"entries": entries, "total": total})
}
