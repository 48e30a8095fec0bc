package storage

import (
	"context"
	"fmt"
)

const (
	DriverMinio      = "minio"
	DriverS3         = "s3"
	DriverFilesystem = "filesystem"
)

type Config struct {
	Driver string      `envconfig:"DRIVER" default:"minio" validate:"oneof=minio s3 filesystem"`
	Path   string      `envconfig:"FS_ROOT" default:"./data/files"`
	Minio  MinioConfig `envconfig:"MINIO"`
	S3     S3Config    `envconfig:"S3"`
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverMinio, "":
		return NewMinioStorage(ctx, cfg.Minio)
	case DriverS3:
		return NewS3Storage(ctx, cfg.S3)
	case DriverFilesystem:
		return NewFilesystemStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
