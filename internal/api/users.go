package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/repositories"
)

// UserHandler serves the admin user management endpoints.
type UserHandler struct {
	store  repositories.Store
	logger *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(store repositories.Store, logger *zap.Logger) *UserHandler {
	return &UserHandler{store: store, logger: logger.Named("user_handler")}
}

// List handles GET /admin/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, total, err := h.store.Users().List(r.Context(), listOptions(r))
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"users": users, "total": total})
}

type updateUserRequest struct {
	DisplayName *string `json:"displayName"`
	Role        *string `json:"role"`
	IsActive    *bool   `json:"isActive"`
}

// Update handles PATCH /admin/users/{id}. Deactivating a user also revokes
// every live session they hold.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}

	user, err := h.store.Users().GetByID(r.Context(), id)
	if err != nil {
		Fail(w, h.logger, apperr.NotFound("user not found"))
		return
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	deactivated := false
	if req.IsActive != nil {
		deactivated = user.IsActive && !*req.IsActive
		user.IsActive = *req.IsActive
	}

	if err := h.store.Users().Update(r.Context(), user); err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	if deactivated {
		if err := h.store.Sessions().RevokeAllForUser(r.Context(), user.ID); err != nil {
			h.logger.Warn("failed to revoke sessions for deactivated user",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
		}
	}
	Ok(w, map[string]any{"user": user})
}

// ListInvites handles GET /admin/invites.
func (h *UserHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, total, err := h.store.Invites().List(r.Context(), listOptions(r))
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"invites": invites, "total": total})
}

// DeleteInvite handles DELETE /admin/invites/{id}.
func (h *UserHandler) DeleteInvite(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	if err := h.store.Invites().Delete(r.Context(), id); err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	NoContent(w)
}
