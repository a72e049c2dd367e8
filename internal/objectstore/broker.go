package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// listLimitCap bounds a single list call regardless of the requested limit.
const listLimitCap = 1000

// Broker validates storage requests against the metadata store before
// touching the object store, and keeps the file_metadata table in step with
// presigned uploads and deletes.
type Broker struct {
	client *Client
	store  repositories.Store
	logger *zap.Logger

	presignExpiry time.Duration
	maxUploadSize int64
}

// NewBroker creates a Broker.
func NewBroker(client *Client, store repositories.Store, presignExpiry time.Duration, maxUploadSize int64, logger *zap.Logger) *Broker {
	return &Broker{
		client:        client,
		store:         store,
		presignExpiry: presignExpiry,
		maxUploadSize: maxUploadSize,
		logger:        logger.Named("storage"),
	}
}

// PresignedUpload is the response to an upload presign request.
type PresignedUpload struct {
	ObjectKey string `json:"objectKey"`
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expiresIn"`
}

// PresignUpload validates the logical bucket and size cap, upserts the file
// metadata row and returns a time-limited PUT URL.
func (b *Broker) PresignUpload(ctx context.Context, projectID uuid.UUID, logical, path, contentType string, maxSize int64) (*PresignedUpload, error) {
	if err := b.requireBucket(ctx, projectID, logical); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperr.BadRequest("object path is required")
	}
	if maxSize > b.maxUploadSize {
		return nil, apperr.BadRequestf("maxSize exceeds the %d byte upload cap", b.maxUploadSize)
	}

	objectKey := ObjectKey(logical, path)
	if err := b.store.Buckets().UpsertFile(ctx, &db.FileMetadata{
		ProjectID:     projectID,
		LogicalBucket: logical,
		ObjectKey:     objectKey,
		ContentType:   contentType,
		Size:          maxSize,
	}); err != nil {
		return nil, apperr.Internal(err)
	}

	url, err := b.client.PresignUpload(ctx, projectID, objectKey, b.presignExpiry)
	if err != nil {
		return nil, err
	}
	return &PresignedUpload{
		ObjectKey: objectKey,
		URL:       url,
		ExpiresIn: int64(b.presignExpiry.Seconds()),
	}, nil
}

// PresignExpirySeconds reports how long presigned URLs stay valid.
func (b *Broker) PresignExpirySeconds() int64 {
	return int64(b.presignExpiry.Seconds())
}

// PresignDownload returns a time-limited GET URL for an existing object key.
func (b *Broker) PresignDownload(ctx context.Context, projectID uuid.UUID, logical, objectKey string) (string, error) {
	if err := b.requireBucket(ctx, projectID, logical); err != nil {
		return "", err
	}
	return b.client.PresignDownload(ctx, projectID, objectKey, b.presignExpiry)
}

// List returns objects under the logical bucket, optionally narrowed by a
// path prefix. Only secret-tier callers reach this.
func (b *Broker) List(ctx context.Context, projectID uuid.UUID, logical, prefix string, limit int) ([]ObjectInfo, error) {
	if err := b.requireBucket(ctx, projectID, logical); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > listLimitCap {
		limit = listLimitCap
	}

	fullPrefix := logical + "/"
	if prefix != "" {
		fullPrefix += SanitizePath(prefix)
	}
	return b.client.List(ctx, projectID, fullPrefix, limit)
}

// Delete removes the object and its metadata row.
func (b *Broker) Delete(ctx context.Context, projectID uuid.UUID, logical, objectKey string) error {
	if err := b.requireBucket(ctx, projectID, logical); err != nil {
		return err
	}
	if err := b.client.Delete(ctx, projectID, objectKey); err != nil {
		return err
	}
	if err := b.store.Buckets().DeleteFile(ctx, projectID, objectKey); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		// Object is gone; a stale metadata row is tolerable and logged.
		b.logger.Warn("file metadata delete failed",
			zap.String("project_id", projectID.String()),
			zap.String("object_key", objectKey),
			zap.Error(err),
		)
	}
	return nil
}

// Buckets lists the project's logical buckets.
func (b *Broker) Buckets(ctx context.Context, projectID uuid.UUID) ([]db.LogicalBucket, error) {
	buckets, err := b.store.Buckets().ListBuckets(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return buckets, nil
}

// CreateBucket registers a new logical bucket.
func (b *Broker) CreateBucket(ctx context.Context, projectID uuid.UUID, name string) (*db.LogicalBucket, error) {
	if name == "" {
		return nil, apperr.BadRequest("bucket name is required")
	}
	bucket := &db.LogicalBucket{ProjectID: projectID, Name: SanitizePath(name)}
	if err := b.store.Buckets().CreateBucket(ctx, bucket); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, apperr.Conflict("bucket already exists")
		}
		return nil, apperr.Internal(err)
	}
	return bucket, nil
}

// requireBucket rejects operations against unregistered logical buckets.
func (b *Broker) requireBucket(ctx context.Context, projectID uuid.UUID, logical string) error {
	_, err := b.store.Buckets().GetBucket(ctx, projectID, logical)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("logical bucket does not exist")
		}
		return apperr.Internal(err)
	}
	return nil
}
