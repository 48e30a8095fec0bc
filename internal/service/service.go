package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	pbv1 "github.com/PaulBabatuyi/CloudDrive-gRPC/gen/fileservice/v1"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/upload"
	"github.com/code19m/errx"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/status"
)

func NewFileServer(files FileManager, logger *zap.Logger, cfg Config) *fileServer {
	if cfg.MaxConcurrentUploads <= 0 {
		cfg.MaxConcurrentUploads = 8
	}
	return &fileServer{
		files:     files,
		logger:    logger.Named("service"),
		validate:  validator.New(),
		uploadSem: semaphore.NewWeighted(cfg.MaxConcurrentUploads),
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *fileServer) UploadFile(stream pbv1.FileService_UploadFileServer) error {
	ctx := stream.Context()
	owner, err := middleware.OwnerFromContext(ctx)
	if err != nil {
		return err
	}

	// Receive first message
	firstMsg, err := stream.Recv()
	if err != nil {
		return invalidArgument("no metadata received", errx.D{})
	}
	metadata := firstMsg.GetMetadata()
	if metadata == nil {
		return invalidArgument("first message must be metadata", errx.D{})
	}
	if err := s.validateMessage(metadata); err != nil {
		return err
	}
	if s.cfg.MaxUploadSize > 0 && metadata.Size > s.cfg.MaxUploadSize {
		return invalidArgument("file too large", errx.D{"size": metadata.Size, "max": s.cfg.MaxUploadSize})
	}

	if err := s.uploadSem.Acquire(ctx, 1); err != nil {
		return status.FromContextError(err).Err()
	}
	defer s.uploadSem.Release(1)

	spool, err := s.receive(stream, firstMsg.GetChunk())
	if err != nil {
		return err
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	if err := ValidateContentType(spool, metadata.ContentType); err != nil {
		return invalidArgument(err.Error(), errx.D{"content_type": metadata.ContentType})
	}

	res, err := s.files.Upload(ctx, upload.Request{
		Content:      spool,
		Size:         metadata.Size,
		ContentType:  metadata.ContentType,
		OriginalName: metadata.Filename,
		OwnerID:      owner,
		ParentID:     metadata.ParentID,
		TaskID:       metadata.TaskID,
	})
	if err != nil {
		return err
	}

	return stream.SendAndClose(&pbv1.UploadFileResponse{
		FileID:      res.Record.ID,
		Filename:    res.Record.Name,
		Path:        res.Path,
		ContentType: res.Record.ContentType,
		Size:        res.Record.Size,
		Instant:     res.Instant,
	})
}

// receive buffers the chunk stream in a temp file, enforcing the upload
// size limit, and returns it rewound.
func (s *fileServer) receive(stream pbv1.FileService_UploadFileServer, first []byte) (*os.File, error) {
	f, err := os.CreateTemp(s.cfg.SpoolDir, "clouddrive-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create upload buffer: %w", err)
	}
	fail := func(err error) (*os.File, error) {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	var src io.Reader = &chunkReader{stream: stream, buf: first}
	if s.cfg.MaxUploadSize > 0 {
		src = io.LimitReader(src, s.cfg.MaxUploadSize+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		if ctxErr := stream.Context().Err(); ctxErr != nil {
			return fail(status.FromContextError(ctxErr).Err())
		}
		return fail(fmt.Errorf("receive chunks: %w", err))
	}
	if s.cfg.MaxUploadSize > 0 && n > s.cfg.MaxUploadSize {
		return fail(invalidArgument("file too large", errx.D{"max": s.cfg.MaxUploadSize}))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("rewind upload buffer: %w", err))
	}
	return f, nil
}

// chunkReader reads the bytes of an UploadFile stream after its metadata.
type chunkReader struct {
	stream pbv1.FileService_UploadFileServer
	buf    []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		msg, err := r.stream.Recv()
		if err != nil {
			return 0, err
		}
		r.buf = msg.GetChunk()
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (s *fileServer) GetUploadProgress(ctx context.Context, req *pbv1.GetUploadProgressRequest) (*pbv1.UploadProgress, error) {
	if err := s.validateMessage(req); err != nil {
		return nil, err
	}
	task, err := s.files.Progress(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	return &pbv1.UploadProgress{
		TaskID:           task.ID,
		Filename:         task.Filename,
		Percentage:       task.Progress,
		BytesTransferred: task.BytesTransferred,
		TotalBytes:       task.TotalSize,
		Completed:        task.Completed,
		Success:          task.Success,
		Message:          task.Message,
		StartedAt:        time.UnixMilli(task.CreatedAt).UTC(),
	}, nil
}

func (s *fileServer) DownloadFile(req *pbv1.DownloadFileRequest, stream pbv1.FileService_DownloadFileServer) error {
	ctx := stream.Context()
	owner, err := middleware.OwnerFromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.validateMessage(req); err != nil {
		return err
	}

	var (
		file   *database.FileRecord
		reader io.ReadCloser
	)
	if req.Preview != "" {
		file, reader, err = s.files.Preview(ctx, req.FileID, owner, req.Preview)
	} else {
		file, reader, err = s.files.Download(ctx, req.FileID, owner)
	}
	if err != nil {
		return err
	}
	defer reader.Close()

	// Send file info first
	info := s.toFileInfo(file)
	if req.Preview != "" {
		info.Previews = nil
	}
	if err := stream.Send(&pbv1.DownloadFileResponse{Info: info}); err != nil {
		return err
	}

	buffer := make([]byte, downloadChunkSize)
	for {
		n, err := reader.Read(buffer)
		if n > 0 {
			if sendErr := stream.Send(&pbv1.DownloadFileResponse{Chunk: buffer[:n]}); sendErr != nil {
				return sendErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			s.logger.Error("download interrupted", zap.String("file_id", file.ID), zap.Error(err))
			return fmt.Errorf("read object: %w", err)
		}
	}
}

func (s *fileServer) GetDownloadURL(ctx context.Context, req *pbv1.GetDownloadURLRequest) (*pbv1.GetDownloadURLResponse, error) {
	owner, err := middleware.OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateMessage(req); err != nil {
		return nil, err
	}

	ttl := s.cfg.PresignTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	url, err := s.files.PresignedURL(ctx, req.FileID, owner, ttl)
	if err != nil {
		return nil, err
	}
	return &pbv1.GetDownloadURLResponse{URL: url, ExpiresAt: s.now().Add(ttl).UTC()}, nil
}

func (s *fileServer) ListFiles(ctx context.Context, req *pbv1.ListFilesRequest) (*pbv1.ListFilesResponse, error) {
	owner, err := middleware.OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateMessage(req); err != nil {
		return nil, err
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := 0
	if req.PageToken != "" {
		// Simple integer offset encoded as string
		offset, err = strconv.Atoi(req.PageToken)
		if err != nil || offset < 0 {
			return nil, invalidArgument("malformed page token", errx.D{"page_token": req.PageToken})
		}
	}

	// Fetch one extra to see if there's more
	records, err := s.files.List(ctx, owner, req.ParentID, limit+1, offset)
	if err != nil {
		return nil, err
	}

	nextToken := ""
	if len(records) > limit {
		records = records[:limit]
		nextToken = strconv.Itoa(offset + limit)
	}
	return &pbv1.ListFilesResponse{
		Files:         lo.Map(records, func(r *database.FileRecord, _ int) *pbv1.FileInfo { return s.toFileInfo(r) }),
		NextPageToken: nextToken,
	}, nil
}

func (s *fileServer) RenameFile(ctx context.Context, req *pbv1.RenameFileRequest) (*pbv1.RenameFileResponse, error) {
	owner, err := middleware.OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateMessage(req); err != nil {
		return nil, err
	}
	rec, err := s.files.Rename(ctx, req.FileID, owner, req.Name)
	if err != nil {
		return nil, err
	}
	return &pbv1.RenameFileResponse{File: s.toFileInfo(rec)}, nil
}

func (s *fileServer) CreateFolder(ctx context.Context, req *pbv1.CreateFolderRequest) (*pbv1.CreateFolderResponse, error) {
	owner, err := middleware.OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateMessage(req); err != nil {
		return nil, err
	}
	rec, err := s.files.CreateFolder(ctx, owner, req.ParentID, req.Name)
	if err != nil {
		return nil, err
	}
	return &pbv1.CreateFolderResponse{Folder: s.toFileInfo(rec)}, nil
}

func (s *fileServer) DeleteFile(ctx context.Context, req *pbv1.DeleteFileRequest) (*pbv1.DeleteFileResponse, error) {
	owner, err := middleware.OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateMessage(req); err != nil {
		return nil, err
	}

	// Soft delete only; other records may share the stored object
	if err := s.files.Delete(ctx, req.FileID, owner); err != nil {
		return nil, err
	}
	return &pbv1.DeleteFileResponse{Success: true, Message: "file deleted"}, nil
}

func (s *fileServer) toFileInfo(rec *database.FileRecord) *pbv1.FileInfo {
	return &pbv1.FileInfo{
		FileID:       rec.ID,
		Filename:     rec.Name,
		OriginalName: rec.OriginalName,
		ContentType:  rec.ContentType,
		Size:         rec.Size,
		ParentID:     rec.ParentID,
		IsFolder:     rec.IsFolder,
		Previews:     s.files.Previews(rec),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}
