package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/objectstore"
	"github.com/parabase-io/parabase/internal/repositories"
)

// StorageHandler serves the public storage API under /v1/storage and the
// admin storage dashboard.
type StorageHandler struct {
	broker *objectstore.Broker
	store  repositories.Store
	logger *zap.Logger
}

// NewStorageHandler creates a StorageHandler.
func NewStorageHandler(broker *objectstore.Broker, store repositories.Store, logger *zap.Logger) *StorageHandler {
	return &StorageHandler{broker: broker, store: store, logger: logger.Named("storage_handler")}
}

type signedUploadRequest struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	MaxSize     int64  `json:"maxSize"`
}

// SignedUpload handles POST /v1/storage/signed-upload.
func (h *StorageHandler) SignedUpload(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())

	var req signedUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if req.Bucket == "" || req.Path == "" {
		Fail(w, h.logger, apperr.BadRequest("bucket and path are required"))
		return
	}

	upload, err := h.broker.PresignUpload(r.Context(), pc.ProjectID, req.Bucket, req.Path, req.ContentType, req.MaxSize)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{
		"objectKey": upload.ObjectKey,
		"uploadUrl": upload.URL,
		"expiresIn": upload.ExpiresIn,
	})
}

// SignedDownload handles GET /v1/storage/signed-download.
func (h *StorageHandler) SignedDownload(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())

	bucket := r.URL.Query().Get("bucket")
	objectKey := r.URL.Query().Get("objectKey")
	if bucket == "" || objectKey == "" {
		Fail(w, h.logger, apperr.BadRequest("bucket and objectKey are required"))
		return
	}

	url, err := h.broker.PresignDownload(r.Context(), pc.ProjectID, bucket, objectKey)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{
		"downloadUrl": url,
		"expiresIn":   h.broker.PresignExpirySeconds(),
	})
}

// List handles GET /v1/storage/list. Reachable only behind RequireSecretKey.
func (h *StorageHandler) List(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())

	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		Fail(w, h.logger, apperr.BadRequest("bucket is required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Fail(w, h.logger, apperr.BadRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	objects, err := h.broker.List(r.Context(), pc.ProjectID, bucket, r.URL.Query().Get("prefix"), limit)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"objects": objects, "count": len(objects)})
}

// Buckets handles GET /admin/projects/{id}/buckets.
func (h *StorageHandler) Buckets(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	buckets, err := h.broker.Buckets(r.Context(), projectID)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"buckets": buckets})
}

type createBucketRequest struct {
	Name string `json:"name"`
}

// CreateBucket handles POST /admin/projects/{id}/buckets.
func (h *StorageHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	var req createBucketRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	bucket, err := h.broker.CreateBucket(r.Context(), projectID, req.Name)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Created(w, map[string]any{"bucket": bucket})
}

// Files handles GET /admin/projects/{id}/files, the console's file listing.
func (h *StorageHandler) Files(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	files, total, err := h.store.Buckets().ListFiles(r.Context(), projectID, r.URL.Query().Get("bucket"), listOptions(r))
	if err != nil {
		Fail(w, h.logger, apperr.Internal(err))
		return
	}
	Ok(w, map[string]any{"files": files, "total": total})
}

// DeleteObject handles DELETE /v1/storage/object.
func (h *StorageHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	pc := projectFromCtx(r.Context())

	bucket := r.URL.Query().Get("bucket")
	objectKey := r.URL.Query().Get("objectKey")
	if bucket == "" || objectKey == "" {
		Fail(w, h.logger, apperr.BadRequest("bucket and objectKey are required"))
		return
	}

	if err := h.broker.Delete(r.Context(), pc.ProjectID, bucket, objectKey); err != nil {
		Fail(w, h.logger, err)
		return
	}
	NoContent(w)
}
