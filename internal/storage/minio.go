package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string `envconfig:"ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	Bucket    string `envconfig:"BUCKET" default:"clouddrive"`
	Region    string `envconfig:"REGION"`
	UseSSL    bool   `envconfig:"USE_SSL" default:"false"`
}

// MinioStorage is the production object store
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage connects to MinIO and creates the bucket if it is missing.
func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		err = cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStorage{client: cli, bucket: cfg.Bucket}, nil
}

func (m *MinioStorage) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", name, err)
	}
	return name, nil
}

func (m *MinioStorage) PutWithProgress(ctx context.Context, name string, r io.Reader, size int64, contentType string, onProgress ProgressFunc) (string, error) {
	return m.Put(ctx, name, NewProgressReader(r, size, onProgress), size, contentType)
}

func (m *MinioStorage) Get(ctx context.Context, objectID string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectID, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectID, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before streaming starts
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isMinioNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", objectID, err)
	}
	return obj, nil
}

func (m *MinioStorage) Delete(ctx context.Context, objectID string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectID, err)
	}
	return nil
}

func (m *MinioStorage) PresignedURL(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectID, presignTTL(ttl), url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectID, err)
	}
	return u.String(), nil
}

func isMinioNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
	}
	resp = minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}
