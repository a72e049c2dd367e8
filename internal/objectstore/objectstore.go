// Package objectstore brokers access to the S3-compatible store. Each
// project owns one physical bucket named proj-<id>; logical buckets are key
// prefixes inside it, so an object addressed as (bucket, path) lives at key
// "bucket/path". Clients never talk to the store directly: uploads and
// downloads happen through short-lived presigned URLs.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/config"
)

// keyCharRe is the character class object paths are reduced to. Anything
// outside it is replaced with an underscore rather than rejected, so client
// file names with spaces or unicode still yield stable keys.
var keyCharRe = regexp.MustCompile(`[^a-zA-Z0-9._/-]`)

// Client wraps the minio SDK for the Parabase bucket layout.
type Client struct {
	mc     *minio.Client
	region string
	logger *zap.Logger
}

// New connects to the configured endpoint. The connection is lazy; the
// first bucket operation surfaces reachability problems.
func New(cfg config.ObjectStore, logger *zap.Logger) (*Client, error) {
	endpoint := cfg.Endpoint
	if cfg.Port != 0 {
		endpoint = fmt.Sprintf("%s:%d", cfg.Endpoint, cfg.Port)
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: connecting to %s: %w", endpoint, err)
	}
	return &Client{mc: mc, region: cfg.Region, logger: logger.Named("objectstore")}, nil
}

// BucketName returns the physical bucket of a project.
func BucketName(projectID uuid.UUID) string {
	return "proj-" + projectID.String()
}

// ObjectKey joins a logical bucket and sanitized path into a physical key.
func ObjectKey(logical, path string) string {
	return logical + "/" + SanitizePath(path)
}

// SanitizePath normalizes a client-supplied object path: restricted
// character class, no leading slash, no empty or dot-dot segments.
func SanitizePath(path string) string {
	cleaned := keyCharRe.ReplaceAllString(path, "_")

	segments := strings.Split(cleaned, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}

// CreateProjectNamespace makes the project's physical bucket. Creating an
// already-existing bucket is treated as success so provisioning retries are
// idempotent.
func (c *Client) CreateProjectNamespace(ctx context.Context, projectID uuid.UUID) error {
	bucket := BucketName(projectID)
	err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region})
	if err != nil {
		exists, existsErr := c.mc.BucketExists(ctx, bucket)
		if existsErr == nil && exists {
			return nil
		}
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "creating bucket "+bucket, err)
	}
	c.logger.Info("project bucket created", zap.String("bucket", bucket))
	return nil
}

// DestroyProjectNamespace drains every object from the project's bucket and
// then removes the bucket. Listing is streamed, so arbitrarily large
// namespaces drain without loading all keys at once.
func (c *Client) DestroyProjectNamespace(ctx context.Context, projectID uuid.UUID) error {
	bucket := BucketName(projectID)

	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "checking bucket "+bucket, err)
	}
	if !exists {
		return nil
	}

	objects := c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true})
	for removeErr := range c.mc.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if removeErr.Err != nil {
			return apperr.Wrap(apperr.KindUpstreamObjectStore, "draining bucket "+bucket, removeErr.Err)
		}
	}

	if err := c.mc.RemoveBucket(ctx, bucket); err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "removing bucket "+bucket, err)
	}
	c.logger.Info("project bucket destroyed", zap.String("bucket", bucket))
	return nil
}

// PresignUpload returns a PUT URL for the given key.
func (c *Client) PresignUpload(ctx context.Context, projectID uuid.UUID, objectKey string, expiry time.Duration) (string, error) {
	u, err := c.mc.PresignedPutObject(ctx, BucketName(projectID), objectKey, expiry)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamObjectStore, "presigning upload", err)
	}
	return u.String(), nil
}

// PresignDownload returns a GET URL for the given key.
func (c *Client) PresignDownload(ctx context.Context, projectID uuid.UUID, objectKey string, expiry time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, BucketName(projectID), objectKey, expiry, url.Values{})
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamObjectStore, "presigning download", err)
	}
	return u.String(), nil
}

// ObjectInfo is one listed object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// List returns up to limit objects under prefix within the project bucket.
func (c *Client) List(ctx context.Context, projectID uuid.UUID, prefix string, limit int) ([]ObjectInfo, error) {
	objects := c.mc.ListObjects(ctx, BucketName(projectID), minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	out := make([]ObjectInfo, 0)
	for obj := range objects {
		if obj.Err != nil {
			return nil, apperr.Wrap(apperr.KindUpstreamObjectStore, "listing objects", obj.Err)
		}
		out = append(out, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Delete removes one object.
func (c *Client) Delete(ctx context.Context, projectID uuid.UUID, objectKey string) error {
	err := c.mc.RemoveObject(ctx, BucketName(projectID), objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "deleting object", err)
	}
	return nil
}

// Put uploads bytes directly. Used by the backup engine; client uploads go
// through presigned URLs instead.
func (c *Client) Put(ctx context.Context, bucket, objectKey, contentType string, data []byte) error {
	if err := c.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	_, err := c.mc.PutObject(ctx, bucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "uploading "+objectKey, err)
	}
	return nil
}

// Get downloads an object fully into memory.
func (c *Client) Get(ctx context.Context, bucket, objectKey string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamObjectStore, "fetching "+objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamObjectStore, "reading "+objectKey, err)
	}
	return data, nil
}

// Remove deletes an object from an arbitrary bucket. Used by backup
// retention.
func (c *Client) Remove(ctx context.Context, bucket, objectKey string) error {
	err := c.mc.RemoveObject(ctx, bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "deleting "+objectKey, err)
	}
	return nil
}

// EnsureBucket creates a bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "checking bucket "+bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return apperr.Wrap(apperr.KindUpstreamObjectStore, "creating bucket "+bucket, err)
	}
	return nil
}
