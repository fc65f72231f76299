// Package publish copies finished set archives to S3-compatible object
// storage so downstream consumers can fetch them without access to the
// build host.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JonMunkholm/importset/internal/config"
	"github.com/JonMunkholm/importset/internal/core"
)

// ContentType is set on every uploaded archive.
const ContentType = "application/zip"

var _ core.Publisher = (*Client)(nil)

// objectStore is the subset of *minio.Client used for publishing.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Client uploads archives into one bucket under a fixed key prefix.
type Client struct {
	store  objectStore
	bucket string
	prefix string
	region string
}

// New creates a Client from cfg. No request is made until Publish.
func New(cfg config.PublishConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("publish endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("publish credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("publish bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	return newClient(mc, cfg), nil
}

func newClient(store objectStore, cfg config.PublishConfig) *Client {
	return &Client{
		store:  store,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		region: cfg.Region,
	}
}

// ObjectKey returns the key an archive is stored under: the prefix, then the
// archive file name. Empty and slash-only prefixes are ignored.
func ObjectKey(prefix, archivePath string) string {
	name := filepath.Base(archivePath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Publish uploads the archive at archivePath, creating the bucket on first
// use, and returns the object location as s3://bucket/key. An existing object
// with the same key is replaced.
func (c *Client) Publish(ctx context.Context, archivePath string) (string, error) {
	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := ObjectKey(c.prefix, archivePath)
	if _, err := c.store.FPutObject(ctx, c.bucket, key, archivePath, minio.PutObjectOptions{
		ContentType: ContentType,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return "s3://" + c.bucket + "/" + key, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.store.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.store.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}
