package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultPresignTTL is the lifetime of a presigned download URL when the
// caller does not ask for one.
const DefaultPresignTTL = 7 * 24 * time.Hour

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPresignUnsupported = errors.New("presigned urls not supported by backend")
	ErrInvalidObjectName  = errors.New("invalid object name")
)

// ProgressFunc receives the share of the stream consumed so far, 0 to 100.
type ProgressFunc func(percent float64)

// Backend is the object store the upload pipeline writes to. Object ids are
// opaque strings; every implementation returns the name it was given.
type Backend interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	PutWithProgress(ctx context.Context, name string, r io.Reader, size int64, contentType string, onProgress ProgressFunc) (string, error)
	Get(ctx context.Context, objectID string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectID string) error
	PresignedURL(ctx context.Context, objectID string, ttl time.Duration) (string, error)
}

func presignTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultPresignTTL
	}
	return ttl
}
