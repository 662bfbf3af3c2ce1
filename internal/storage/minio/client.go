// Package minio stores avatar images in an S3 compatible bucket.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dtroode/identity-server/internal/model"
)

const codeNoSuchKey = "NoSuchKey"

// objectAPI is the subset of *minio.Client used here, narrowed for tests.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// sdkClient adapts *minio.Client, whose GetObject returns a concrete type.
type sdkClient struct{ *minio.Client }

func (c sdkClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucketName, objectName, opts)
}

var _ model.Storage = (*Client)(nil)

// Config holds connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client implements model.Storage on top of MinIO.
type Client struct {
	api    objectAPI
	bucket string
}

// NewClient connects to MinIO and makes sure the bucket exists.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return newClient(ctx, sdkClient{Client: mc}, cfg.Bucket)
}

func newClient(ctx context.Context, api objectAPI, bucket string) (*Client, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	c := &Client{api: api, bucket: bucket}
	if err := c.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
	}

	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// Upload stores size bytes from reader under key, replacing any previous object.
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := c.api.PutObject(ctx, c.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Download opens the object. A missing object yields model.ErrNotFound.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy and would only fail on the first read.
	if _, err := c.api.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return obj, nil
}

// Delete removes the object. Removing a missing object is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.api.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	return err != nil && minio.ToErrorResponse(err).Code == codeNoSuchKey
}
