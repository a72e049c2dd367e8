package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/audit"
	"github.com/parabase-io/parabase/internal/settings"
)

// SettingsHandler serves the admin runtime settings endpoints.
type SettingsHandler struct {
	settings *settings.Service
	audit    *audit.Recorder
	logger   *zap.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(svc *settings.Service, auditor *audit.Recorder, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: svc, audit: auditor, logger: logger.Named("settings_handler")}
}

type settingsPayload struct {
	RateLimitMax          int    `json:"rateLimitMax"`
	RateLimitWindowMs     int    `json:"rateLimitWindowMs"`
	SQLMaxRows            int    `json:"sqlMaxRows"`
	SQLStatementTimeoutMs int    `json:"sqlStatementTimeoutMs"`
	PublicStorageURL      string `json:"publicStorageUrl"`
}

func toPayload(snap settings.Snapshot) settingsPayload {
	return settingsPayload{
		RateLimitMax:          snap.RateLimitMax,
		RateLimitWindowMs:     snap.RateLimitWindowMs,
		SQLMaxRows:            snap.SQLMaxRows,
		SQLStatementTimeoutMs: snap.SQLStatementTimeoutMs,
		PublicStorageURL:      snap.PublicStorageURL,
	}
}

// Get handles GET /admin/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	Ok(w, toPayload(h.settings.Current()))
}

type settingsPatchRequest struct {
	RateLimitMax          *int    `json:"rateLimitMax"`
	RateLimitWindowMs     *int    `json:"rateLimitWindowMs"`
	SQLMaxRows            *int    `json:"sqlMaxRows"`
	SQLStatementTimeoutMs *int    `json:"sqlStatementTimeoutMs"`
	PublicStorageURL      *string `json:"publicStorageUrl"`
}

// Update handles PATCH /admin/settings. Absent fields keep their current
// value; changes take effect on the next request.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req settingsPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	for _, v := range []*int{req.RateLimitMax, req.RateLimitWindowMs, req.SQLMaxRows, req.SQLStatementTimeoutMs} {
		if v != nil && *v <= 0 {
			Fail(w, h.logger, apperr.New(apperr.KindValidation, "numeric settings must be positive"))
			return
		}
	}

	snap, err := h.settings.Update(r.Context(), settings.Patch{
		RateLimitMax:          req.RateLimitMax,
		RateLimitWindowMs:     req.RateLimitWindowMs,
		SQLMaxRows:            req.SQLMaxRows,
		SQLStatementTimeoutMs: req.SQLStatementTimeoutMs,
		PublicStorageURL:      req.PublicStorageURL,
	})
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}

	var userID *uuid.UUID
	if user := userFromCtx(r.Context()); user != nil {
		userID = &user.ID
	}
	h.audit.Record(r.Context(), nil, userID, "settings.updated", nil)

	Ok(w, toPayload(snap))
}
