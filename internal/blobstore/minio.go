package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds connection settings for an S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	Bucket          string
}

// objectAPI is the subset of the MinIO client this package uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}

// MinIOStore keeps blobs in a single bucket.
type MinIOStore struct {
	api      objectAPI
	bucket   string
	endpoint string
	secure   bool
}

// NewMinIOStore connects and creates the bucket if it does not exist.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig, log *slog.Logger) (*MinIOStore, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "documents"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinIOStore{api: minioClient{client}, bucket: cfg.Bucket, endpoint: cfg.Endpoint, secure: cfg.UseSSL}
	created, err := s.ensureBucket(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	if created && log != nil {
		log.Info("created bucket", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint)
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context, region string) (bool, error) {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return false, fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return false, nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return false, fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return true, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Locator, error) {
	if !validKey(key) {
		return Locator{}, fmt.Errorf("invalid blob key %q", key)
	}
	if size <= 0 {
		size = -1
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.api.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return Locator{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return Locator{Key: key, URL: s.objectURL(key)}, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.api.GetObject(ctx, s.bucket, key)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return rc, nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, key); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStore) objectURL(key string) string {
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: s.endpoint, Path: "/" + s.bucket + "/" + key}
	return u.String()
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// minioClient adapts *minio.Client to objectAPI.
type minioClient struct {
	c *minio.Client
}

func (m minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.c.BucketExists(ctx, bucket)
}

func (m minioClient) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.c.MakeBucket(ctx, bucket, opts)
}

func (m minioClient) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.c.PutObject(ctx, bucket, key, r, size, opts)
}

// GetObject stats the object first so a missing key fails here rather than
// on the first Read.
func (m minioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if _, err := m.c.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, err
	}
	return m.c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

func (m minioClient) RemoveObject(ctx context.Context, bucket, key string) error {
	return m.c.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}
