package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/progress"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/storage"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Download checks ownership and opens the record's stored object. The
// caller closes the returned reader.
func (o *Orchestrator) Download(ctx context.Context, fileID, ownerID string) (*database.FileRecord, io.ReadCloser, error) {
	ctx, span := o.tracer.Start(ctx, "upload.Download", trace.WithAttributes(attribute.String("file_id", fileID)))
	defer span.End()

	rec, err := o.ownedFile(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := o.backend.Get(ctx, rec.StoragePath)
	if err != nil {
		return nil, nil, storageReadFailed(err, rec.StoragePath)
	}
	return rec, rc, nil
}

// Previews lists the preview sizes a record can be downloaded in. Only
// images get previews, and only when a post-processor renders them.
func (o *Orchestrator) Previews(rec *database.FileRecord) []string {
	if o.post == nil || rec.IsFolder || database.DeriveFileType(rec.ContentType) != database.FileTypeImage {
		return nil
	}
	return worker.PreviewSizes()
}

// Preview opens one rendered preview of an image file. Previews are
// rendered in the background, so a fresh upload may not have them yet.
// The returned record describes the preview, not the original.
func (o *Orchestrator) Preview(ctx context.Context, fileID, ownerID, size string) (*database.FileRecord, io.ReadCloser, error) {
	ctx, span := o.tracer.Start(ctx, "upload.Preview", trace.WithAttributes(
		attribute.String("file_id", fileID),
		attribute.String("size", size),
	))
	defer span.End()

	rec, err := o.ownedFile(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	sizes := o.Previews(rec)
	if len(sizes) == 0 {
		return nil, nil, invalidState("file has no previews")
	}
	if !slices.Contains(sizes, size) {
		return nil, nil, invalidArgument("unknown preview size " + size)
	}

	objectID := worker.ThumbnailName(rec.StoragePath, size)
	rc, err := o.backend.Get(ctx, objectID)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, notFound("preview not rendered yet")
	}
	if err != nil {
		return nil, nil, storageReadFailed(err, objectID)
	}
	defer rc.Close()

	// previews are a few KiB, reading them whole gives an exact size
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, storageReadFailed(err, objectID)
	}

	preview := *rec
	preview.Name = strings.TrimSuffix(rec.Name, path.Ext(rec.Name)) + "-" + size + ".jpg"
	preview.StoragePath = objectID
	preview.ContentType = worker.ThumbnailContentType
	preview.Size = int64(len(data))
	return &preview, io.NopCloser(bytes.NewReader(data)), nil
}

// PresignedURL returns a time-limited direct download link. ttl <= 0 uses
// the configured default.
func (o *Orchestrator) PresignedURL(ctx context.Context, fileID, ownerID string, ttl time.Duration) (string, error) {
	rec, err := o.ownedFile(ctx, fileID, ownerID)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = o.presignTTL
	}

	u, err := o.backend.PresignedURL(ctx, rec.StoragePath, ttl)
	if errors.Is(err, storage.ErrPresignUnsupported) {
		return "", invalidState("storage backend cannot presign urls")
	}
	if err != nil {
		return "", storageReadFailed(err, rec.StoragePath)
	}
	return u, nil
}

// Rename changes the display name of a file or folder.
func (o *Orchestrator) Rename(ctx context.Context, fileID, ownerID, name string) (*database.FileRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidArgument("name is required")
	}

	rec, err := o.ownedRecord(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	rec.Name = name
	rec.UpdatedAt = o.now()

	if err := o.index.Update(ctx, rec); err != nil {
		return nil, persistenceFailed(fmt.Errorf("rename: %w", err))
	}
	return rec, nil
}

// Delete soft-deletes a record. The stored object stays because other
// records may share it.
func (o *Orchestrator) Delete(ctx context.Context, fileID, ownerID string) error {
	rec, err := o.ownedRecord(ctx, fileID, ownerID)
	if err != nil {
		return err
	}
	rec.IsDeleted = true
	rec.UpdatedAt = o.now()

	if err := o.index.Update(ctx, rec); err != nil {
		return persistenceFailed(fmt.Errorf("delete: %w", err))
	}
	return nil
}

// CreateFolder adds a folder under parentID, or at the owner's root.
func (o *Orchestrator) CreateFolder(ctx context.Context, ownerID, parentID, name string) (*database.FileRecord, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, invalidArgument("name is required")
	case strings.TrimSpace(ownerID) == "":
		return nil, invalidArgument("owner id is required")
	}

	prefix, err := o.destinationPrefix(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	id := o.newID()
	rec := &database.FileRecord{
		ID:           id,
		Name:         name,
		OriginalName: name,
		StoragePath:  prefix + "/" + id,
		OwnerID:      ownerID,
		ParentID:     parentID,
		IsFolder:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.index.Insert(ctx, rec); err != nil {
		return nil, persistenceFailed(fmt.Errorf("create folder: %w", err))
	}
	return rec, nil
}

// List returns one page of the live entries in a folder.
func (o *Orchestrator) List(ctx context.Context, ownerID, parentID string, limit, offset int) ([]*database.FileRecord, error) {
	if limit < 0 || offset < 0 {
		return nil, invalidArgument("page bounds must not be negative")
	}
	if parentID != "" {
		if _, err := o.destinationPrefix(ctx, ownerID, parentID); err != nil {
			return nil, err
		}
	}

	recs, err := o.index.ListFiles(ctx, database.ListFilter{
		OwnerID:  ownerID,
		ParentID: parentID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, persistenceFailed(fmt.Errorf("list files: %w", err))
	}
	return recs, nil
}

// Progress returns the latest snapshot of an upload task.
func (o *Orchestrator) Progress(ctx context.Context, taskID string) (*progress.Task, error) {
	task, err := o.progress.Get(ctx, taskID)
	if errors.Is(err, progress.ErrTaskNotFound) {
		return nil, notFound("upload task not found or expired")
	}
	if err != nil {
		return nil, persistenceFailed(fmt.Errorf("load task: %w", err))
	}
	return task, nil
}

// ownedRecord loads a live record that belongs to ownerID.
func (o *Orchestrator) ownedRecord(ctx context.Context, fileID, ownerID string) (*database.FileRecord, error) {
	rec, err := o.index.GetFile(ctx, fileID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, notFound("file not found")
	}
	if err != nil {
		return nil, persistenceFailed(fmt.Errorf("load file: %w", err))
	}
	if rec.OwnerID != ownerID {
		return nil, noPermission("file belongs to another user")
	}
	if rec.IsDeleted {
		return nil, notFound("file not found")
	}
	return rec, nil
}

// ownedFile is ownedRecord restricted to non-folders.
func (o *Orchestrator) ownedFile(ctx context.Context, fileID, ownerID string) (*database.FileRecord, error) {
	rec, err := o.ownedRecord(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if rec.IsFolder {
		return nil, invalidState("cannot download a folder")
	}
	return rec, nil
}
