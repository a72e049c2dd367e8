package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/audit"
	"github.com/parabase-io/parabase/internal/sqlexec"
)

// SQLHandler serves the admin SQL console endpoint.
type SQLHandler struct {
	executor *sqlexec.Executor
	audit    *audit.Recorder
	logger   *zap.Logger
}

// NewSQLHandler creates a SQLHandler.
func NewSQLHandler(executor *sqlexec.Executor, auditor *audit.Recorder, logger *zap.Logger) *SQLHandler {
	return &SQLHandler{executor: executor, audit: auditor, logger: logger.Named("sql_handler")}
}

type executeSQLRequest struct {
	SQL string `json:"sql"`
}

// Execute handles POST /admin/projects/{id}/sql. The statement runs as the
// project's owner role.
func (h *SQLHandler) Execute(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	var req executeSQLRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if req.SQL == "" {
		Fail(w, h.logger, apperr.BadRequest("sql is required"))
		return
	}

	result, err := h.executor.Execute(r.Context(), projectID, req.SQL)

	var userID *uuid.UUID
	if user := userFromCtx(r.Context()); user != nil {
		userID = &user.ID
	}
	h.audit.Record(r.Context(), &projectID, userID, "sql.execute", map[string]any{
		"succeeded": err == nil,
	})

	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, result)
}
