package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/query"
)

// DataHandler serves the public CRUD API under /v1/db.
type DataHandler struct {
	queries *query.Service
	logger  *zap.Logger
}

// NewDataHandler creates a DataHandler.
func NewDataHandler(queries *query.Service, logger *zap.Logger) *DataHandler {
	return &DataHandler{queries: queries, logger: logger.Named("data_handler")}
}

// Tables lists the tables visible to the key's project.
func (h *DataHandler) Tables(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())

	tables, err := h.queries.Tables(r.Context(), pc.ProjectID)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"tables": tables})
}

// Select handles GET /v1/db/{table}.
func (h *DataHandler) Select(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())
	table := chi.URLParam(r, "table")

	rows, err := h.queries.Select(r.Context(), pc.ProjectID, table, r.URL.Query())
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"rows": rows, "rowCount": len(rows)})
}

type insertRequest struct {
	Rows      []map[string]any `json:"rows"`
	Returning bool             `json:"returning"`
}

// Insert handles POST /v1/db/{table}.
func (h *DataHandler) Insert(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())
	table := chi.URLParam(r, "table")

	var req insertRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	result, err := h.queries.Insert(r.Context(), pc.ProjectID, table, req.Rows)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	payload := map[string]any{
		"insertedCount": len(result.Inserted),
		"failedCount":   result.Failed,
	}
	if len(result.Errors) > 0 {
		payload["errors"] = result.Errors
	}
	if req.Returning {
		payload["rows"] = result.Inserted
	}
	Created(w, payload)
}

type updateRequest struct {
	Values    map[string]any `json:"values"`
	Returning bool           `json:"returning"`
}

// Update handles PATCH /v1/db/{table}.
func (h *DataHandler) Update(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())
	table := chi.URLParam(r, "table")

	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if len(req.Values) == 0 {
		Fail(w, h.logger, apperr.BadRequest("values is required"))
		return
	}

	rows, err := h.queries.Update(r.Context(), pc.ProjectID, table, r.URL.Query(), req.Values)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	payload := map[string]any{"updatedCount": len(rows)}
	if req.Returning {
		payload["rows"] = rows
	}
	Ok(w, payload)
}

// Delete handles DELETE /v1/db/{table}.
func (h *DataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())
	table := chi.URLParam(r, "table")

	rows, err := h.queries.Delete(r.Context(), pc.ProjectID, table, r.URL.Query())
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"deletedCount": len(rows)})
}
