// Package api implements the HTTP surface: the public CRUD and storage APIs
// keyed by x-api-key, and the session-authenticated admin API. Chi is the
// router; every failure is classified via internal/apperr before it is
// rendered, so the error envelope and status codes stay uniform.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/repositories"
)

// errorEnvelope is the uniform error body:
//
//	{"error": "<stable-code>", "message": "...", "statusCode": 400, "details": {...}}
type errorEnvelope struct {
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details,omitempty"`
}

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ok writes a 200 OK response.
func Ok(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, payload)
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusCreated, payload)
}

// NoContent writes a 204 No Content response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Fail classifies err and writes the error envelope. Internal errors are
// logged with their cause and the client sees only the generic message;
// upstream database and object-store failures carry the backend's own
// message through, since a constraint violation or a missing object is
// actionable for the caller.
func Fail(w http.ResponseWriter, logger *zap.Logger, err error) {
	e := apperr.AsError(err)
	status := e.Kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}

	message := e.Message
	switch e.Kind {
	case apperr.KindUpstreamDatabase, apperr.KindUpstreamObjectStore:
		if cause := e.Unwrap(); cause != nil {
			message = e.Message + ": " + sanitizeUpstream(cause.Error())
		}
	}

	JSON(w, status, errorEnvelope{
		Error:      e.Kind.Code(),
		Message:    message,
		StatusCode: status,
		Details:    e.Details,
	})
}

// sanitizeUpstream flattens a backend error message to a single line.
func sanitizeUpstream(msg string) string {
	return strings.Join(strings.Fields(msg), " ")
}

// decodeJSON parses a request body into dst, rejecting unknown garbage with
// a 400-class error.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	return nil
}

// listOptions reads limit/offset pagination parameters, clamped to sane
// bounds.
func listOptions(r *http.Request) repositories.ListOptions {
	opts := repositories.ListOptions{Limit: 50}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			opts.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	return opts
}

// pathUUID parses the named chi URL parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.BadRequestf("invalid %s", name)
	}
	return id, nil
}
