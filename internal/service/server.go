package service

import (
	"context"
	"io"
	"time"

	pbv1 "github.com/PaulBabatuyi/CloudDrive-gRPC/gen/fileservice/v1"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/progress"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/upload"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	downloadChunkSize = 64 * 1024
	defaultPageSize   = 20
)

// FileManager is the file pipeline the transport drives.
type FileManager interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
	Progress(ctx context.Context, taskID string) (*progress.Task, error)
	Download(ctx context.Context, fileID, ownerID string) (*database.FileRecord, io.ReadCloser, error)
	Preview(ctx context.Context, fileID, ownerID, size string) (*database.FileRecord, io.ReadCloser, error)
	Previews(rec *database.FileRecord) []string
	PresignedURL(ctx context.Context, fileID, ownerID string, ttl time.Duration) (string, error)
	Rename(ctx context.Context, fileID, ownerID, name string) (*database.FileRecord, error)
	Delete(ctx context.Context, fileID, ownerID string) error
	CreateFolder(ctx context.Context, ownerID, parentID, name string) (*database.FileRecord, error)
	List(ctx context.Context, ownerID, parentID string, limit, offset int) ([]*database.FileRecord, error)
}

type Config struct {
	MaxUploadSize        int64
	MaxConcurrentUploads int64
	SpoolDir             string
	PresignTTL           time.Duration
}

type fileServer struct {
	pbv1.UnimplementedFileServiceServer

	files     FileManager
	logger    *zap.Logger
	validate  *validator.Validate
	uploadSem *semaphore.Weighted
	cfg       Config
	now       func() time.Time
}

var _ pbv1.FileServiceServer = (*fileServer)(nil)
