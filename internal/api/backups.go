package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/audit"
	"github.com/parabase-io/parabase/internal/backup"
	"github.com/parabase-io/parabase/internal/db"
)

// BackupHandler serves the admin backup endpoints.
type BackupHandler struct {
	backups *backup.Service
	audit   *audit.Recorder
	logger  *zap.Logger
}

// NewBackupHandler creates a BackupHandler.
func NewBackupHandler(backups *backup.Service, auditor *audit.Recorder, logger *zap.Logger) *BackupHandler {
	return &BackupHandler{backups: backups, audit: auditor, logger: logger.Named("backup_handler")}
}

func (h *BackupHandler) actor(r *http.Request) *uuid.UUID {
	if user := userFromCtx(r.Context()); user != nil {
		return &user.ID
	}
	return nil
}

// List handles GET /admin/backups, optionally filtered by projectId.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	var projectID *uuid.UUID
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			Fail(w, h.logger, apperr.BadRequest("invalid projectId"))
			return
		}
		projectID = &id
	}

	backups, total, err := h.backups.List(r.Context(), projectID, listOptions(r))
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"backups": backups, "total": total})
}

// Get handles GET /admin/backups/{id}. Clients poll this while a backup is
// pending or running.
func (h *BackupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	b, err := h.backups.Get(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"backup": b})
}

type createBackupRequest struct {
	Type          db.BackupType   `json:"type"`
	ProjectID     *uuid.UUID      `json:"projectId"`
	TableName     string          `json:"tableName"`
	Format        db.BackupFormat `json:"format"`
	RetentionDays *int            `json:"retentionDays"`
}

// Create handles POST /admin/backups. Returns 202; the dump runs in the
// background and the row transitions to completed or failed.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	userID := h.actor(r)
	b, err := h.backups.Create(r.Context(), backup.CreateInput{
		Type:          req.Type,
		ProjectID:     req.ProjectID,
		TableName:     req.TableName,
		Format:        req.Format,
		RetentionDays: req.RetentionDays,
	}, userID)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	h.audit.Record(r.Context(), req.ProjectID, userID, "backup.created", map[string]any{
		"backup_id": b.ID.String(),
		"type":      string(b.Type),
	})
	JSON(w, http.StatusAccepted, map[string]any{"backup": b})
}

// Delete handles DELETE /admin/backups/{id}.
func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := h.backups.Delete(r.Context(), id); err != nil {
		Fail(w, h.logger, err)
		return
	}
	h.audit.Record(r.Context(), nil, h.actor(r), "backup.deleted", map[string]any{
		"backup_id": id.String(),
	})
	NoContent(w)
}

// Restore handles POST /admin/backups/{id}/restore. Only completed project
// dumps in SQL format can be restored.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	warnings, err := h.backups.Restore(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	h.audit.Record(r.Context(), nil, h.actor(r), "backup.restored", map[string]any{
		"backup_id": id.String(),
		"warnings":  len(warnings),
	})
	Ok(w, map[string]any{"restored": true, "warnings": warnings})
}

// ApplyRetention handles POST /admin/projects/{id}/backups/retention,
// running the age-banded sweep for one project on demand.
func (h *BackupHandler) ApplyRetention(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	removed, err := h.backups.ApplyRetention(r.Context(), projectID)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"removed": removed})
}
