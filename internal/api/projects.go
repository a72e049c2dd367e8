package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apikey"
	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/audit"
	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/provision"
	"github.com/parabase-io/parabase/internal/query"
	"github.com/parabase-io/parabase/internal/repositories"
)

// ProjectHandler serves the admin project lifecycle and key management
// endpoints.
type ProjectHandler struct {
	store     repositories.Store
	provision *provision.Service
	keys      *apikey.Service
	schemas   *query.SchemaCache
	audit     *audit.Recorder
	logger    *zap.Logger
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(store repositories.Store, prov *provision.Service, keys *apikey.Service, schemas *query.SchemaCache, auditor *audit.Recorder, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		store:     store,
		provision: prov,
		keys:      keys,
		schemas:   schemas,
		audit:     auditor,
		logger:    logger.Named("project_handler"),
	}
}

// List handles GET /admin/projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, total, err := h.store.Projects().List(r.Context(), listOptions(r))
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"projects": projects, "total": total})
}

// Get handles GET /admin/projects/{id}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	project, err := h.store.Projects().GetByID(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, apperr.NotFound("project not found"))
		return
	}
	Ok(w, map[string]any{"project": project})
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Create handles POST /admin/projects. The plaintext API keys appear in this
// response and nowhere else.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	user := userFromCtx(r.Context())
	var userID *uuid.UUID
	if user != nil {
		userID = &user.ID
	}

	result, err := h.provision.Create(r.Context(), req.Name, req.Slug, req.Description, userID)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Created(w, map[string]any{
		"project":        result.Project,
		"publishableKey": result.PublishableKey,
		"secretKey":      result.SecretKey,
	})
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Update handles PATCH /admin/projects/{id}. The slug is immutable; it names
// server-side objects.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	project, err := h.store.Projects().GetByID(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, apperr.NotFound("project not found"))
		return
	}
	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if err := h.store.Projects().Update(r.Context(), project); err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"project": project})
}

// Tables handles GET /admin/projects/{id}/tables, the console's schema view.
func (h *ProjectHandler) Tables(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	tables, err := h.schemas.Tables(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"tables": tables})
}

// Delete handles DELETE /admin/projects/{id}. Tears down the tenant
// database, roles, object namespace and all metadata.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	user := userFromCtx(r.Context())
	var userID *uuid.UUID
	if user != nil {
		userID = &user.ID
	}

	if err := h.provision.Delete(r.Context(), id, userID); err != nil {
		Fail(w, h.logger, err)
		return
	}
	h.schemas.Invalidate(id)
	NoContent(w)
}

// Keys handles GET /admin/projects/{id}/keys.
func (h *ProjectHandler) Keys(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	keys, err := h.store.APIKeys().ListByProject(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"keys": keys})
}

type rotateKeyRequest struct {
	Type crypto.KeyType `json:"type"`
}

// RotateKey handles POST /admin/projects/{id}/keys/rotate. Old keys of the
// rotated type stop validating the moment the rotation commits.
func (h *ProjectHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	var req rotateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	key, plaintext, err := h.keys.Rotate(r.Context(), id, req.Type)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	var userID *uuid.UUID
	if user := userFromCtx(r.Context()); user != nil {
		userID = &user.ID
	}
	h.audit.Record(r.Context(), &id, userID, "apikey.rotated", map[string]any{
		"type":   string(req.Type),
		"prefix": key.Prefix,
	})

	Ok(w, map[string]any{"key": key, "plaintext": plaintext})
}

// RevokeKey handles DELETE /admin/projects/{id}/keys/{keyID}.
func (h *ProjectHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := pathUUID(r, "keyID")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := h.keys.Revoke(r.Context(), keyID); err != nil {
		Fail(w, h.logger, err)
		return
	}

	var userID *uuid.UUID
	if user := userFromCtx(r.Context()); user != nil {
		userID = &user.ID
	}
	h.audit.Record(r.Context(), nil, userID, "apikey.revoked", map[string]any{
		"key_id": keyID.String(),
	})
	NoContent(w)
}
