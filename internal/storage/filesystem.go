package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilesystemStorage stores objects on local disk
type FilesystemStorage struct {
	basePath string // e.g., "./data/files"
}

func NewFilesystemStorage(basePath string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FilesystemStorage{basePath: basePath}, nil
}

func (fs *FilesystemStorage) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	path, err := fs.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	// Written beside the target and renamed in, so readers never see a
	// partial object
	f, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	tmp := f.Name()

	_, copyErr := io.Copy(f, contextReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		// A failed put leaves nothing behind
		os.Remove(tmp)
		if copyErr != nil {
			return "", fmt.Errorf("write object: %w", copyErr)
		}
		return "", fmt.Errorf("close object: %w", closeErr)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("commit object: %w", err)
	}
	return name, nil
}

func (fs *FilesystemStorage) PutWithProgress(ctx context.Context, name string, r io.Reader, size int64, contentType string, onProgress ProgressFunc) (string, error) {
	return fs.Put(ctx, name, NewProgressReader(r, size, onProgress), size, contentType)
}

func (fs *FilesystemStorage) Get(ctx context.Context, objectID string) (io.ReadCloser, error) {
	path, err := fs.resolve(objectID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

func (fs *FilesystemStorage) Delete(ctx context.Context, objectID string) error {
	path, err := fs.resolve(objectID)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrObjectNotFound
	}
	return err
}

func (fs *FilesystemStorage) PresignedURL(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// resolve maps an object id to a path that cannot escape basePath
func (fs *FilesystemStorage) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectName, name)
	}
	return filepath.Join(fs.basePath, clean), nil
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
