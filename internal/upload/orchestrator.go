package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/fingerprint"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/observability"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/progress"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	messageInstant  = "instant upload"
	messageComplete = "upload complete"
	genericType     = "application/octet-stream"
)

// Index is the metadata store the pipeline reads and writes file records
// through.
type Index interface {
	FindByFingerprintAndOwner(ctx context.Context, fingerprint, ownerID string) ([]*database.FileRecord, error)
	Insert(ctx context.Context, rec *database.FileRecord) error
	Update(ctx context.Context, rec *database.FileRecord) error
	GetFile(ctx context.Context, fileID string) (*database.FileRecord, error)
	FindParentPath(ctx context.Context, parentID string) (*database.FileRecord, error)
	ListFiles(ctx context.Context, f database.ListFilter) ([]*database.FileRecord, error)
}

// PostProcessor receives freshly stored objects for background work.
type PostProcessor interface {
	Enqueue(objectID, contentType string)
}

// Request describes one upload. Size may be <= 0 when unknown; the real
// length is measured from the stream.
type Request struct {
	Content      io.Reader
	Size         int64
	ContentType  string
	OriginalName string
	OwnerID      string
	ParentID     string
	TaskID       string // optional progress task id
}

type Result struct {
	Record  *database.FileRecord
	Path    string
	Instant bool
}

// Orchestrator fingerprints uploads, reuses stored objects the owner
// already has, and otherwise drives the object store write while keeping
// the progress task current.
type Orchestrator struct {
	backend  storage.Backend
	progress *progress.Store
	index    Index
	logger   *zap.Logger

	metrics    *observability.UploadMetrics
	tracer     trace.Tracer
	post       PostProcessor
	locks      *keyedMutex
	spoolDir   string
	presignTTL time.Duration
	newID      func() string
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithMetrics(m *observability.UploadMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithPostProcessor(p PostProcessor) Option {
	return func(o *Orchestrator) { o.post = p }
}

// WithDedupLock serialises lookup and insert per (owner, fingerprint) so
// concurrent identical uploads store the bytes once.
func WithDedupLock() Option {
	return func(o *Orchestrator) { o.locks = newKeyedMutex() }
}

// WithSpoolDir sets where non-seekable streams are buffered for hashing.
func WithSpoolDir(dir string) Option {
	return func(o *Orchestrator) { o.spoolDir = dir }
}

func WithPresignTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.presignTTL = ttl }
}

func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(backend storage.Backend, store *progress.Store, index Index, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:    backend,
		progress:   store,
		index:      index,
		logger:     logger.Named("upload"),
		tracer:     otel.Tracer("github.com/PaulBabatuyi/CloudDrive-gRPC/internal/upload"),
		presignTTL: storage.DefaultPresignTTL,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Upload stores req.Content for req.OwnerID and returns the stored object
// path. Content the owner already has is not written again.
func (o *Orchestrator) Upload(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "upload.Upload", trace.WithAttributes(
		attribute.String("owner_id", req.OwnerID),
		attribute.String("task_id", req.TaskID),
	))
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	start := o.now()
	log := o.logger.With(zap.String("owner_id", req.OwnerID), zap.String("task_id", req.TaskID))

	if req.TaskID != "" {
		o.warn(log, "create task", o.progress.Create(ctx, req.TaskID, req.OriginalName, req.Size))
	}

	defer func() {
		if err == nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		o.metrics.ObserveFailed()
		o.finishFailed(ctx, log, req.TaskID, err)
	}()

	prefix, err := o.destinationPrefix(ctx, req.OwnerID, req.ParentID)
	if err != nil {
		return nil, err
	}

	content, cleanup, err := o.replayable(ctx, req.Content)
	if err != nil {
		return nil, hashingFailed(err)
	}
	defer cleanup()

	size, err := o.measure(ctx, log, req, content)
	if err != nil {
		return nil, hashingFailed(err)
	}

	var digest string
	if spooled, ok := content.(*fingerprint.Spooled); ok {
		digest = spooled.Digest
	} else {
		_, fpSpan := o.tracer.Start(ctx, "upload.fingerprint")
		digest, err = fingerprint.Sum(content)
		fpSpan.End()
		if err != nil {
			return nil, hashingFailed(err)
		}
	}
	span.SetAttributes(attribute.String("fingerprint", digest), attribute.Int64("size", size))

	if digest != "" {
		if o.locks != nil {
			unlock := o.locks.Lock(req.OwnerID + ":" + digest)
			defer unlock()
		}

		matches, err := o.index.FindByFingerprintAndOwner(ctx, digest, req.OwnerID)
		if err != nil {
			return nil, persistenceFailed(fmt.Errorf("dedup lookup: %w", err))
		}
		if len(matches) > 0 {
			res, err := o.instantUpload(ctx, req, matches[0], size)
			if err != nil {
				return nil, err
			}
			o.metrics.ObserveInstant(size, o.now().Sub(start))
			log.Info("instant upload", zap.String("file_id", res.Record.ID), zap.String("object_id", res.Path))
			return res, nil
		}
	}

	contentType, err := detectContentType(req.ContentType, content)
	if err != nil {
		return nil, hashingFailed(err)
	}

	res, err = o.fullUpload(ctx, log, req, prefix, content, size, contentType, digest)
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveFull(size, o.now().Sub(start))
	log.Info("upload stored", zap.String("file_id", res.Record.ID), zap.String("object_id", res.Path), zap.Int64("size", size))
	return res, nil
}

func (o *Orchestrator) instantUpload(ctx context.Context, req Request, match *database.FileRecord, size int64) (*Result, error) {
	now := o.now()
	rec := &database.FileRecord{
		ID:           o.newID(),
		Name:         req.OriginalName,
		OriginalName: req.OriginalName,
		StoragePath:  match.StoragePath,
		Size:         size,
		ContentType:  match.ContentType,
		Fingerprint:  match.Fingerprint,
		OwnerID:      req.OwnerID,
		ParentID:     req.ParentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.index.Insert(ctx, rec); err != nil {
		return nil, persistenceFailed(fmt.Errorf("insert record: %w", err))
	}

	if req.TaskID != "" {
		log := o.logger.With(zap.String("task_id", req.TaskID))
		o.warn(log, "record progress", o.progress.Update(ctx, req.TaskID, 100, size, size))
		o.warn(log, "complete task", o.progress.Complete(ctx, req.TaskID, true, messageInstant))
	}
	return &Result{Record: rec, Path: rec.StoragePath, Instant: true}, nil
}

func (o *Orchestrator) fullUpload(ctx context.Context, log *zap.Logger, req Request, prefix string, content io.Reader, size int64, contentType, digest string) (*Result, error) {
	objectName := prefix + "/" + strings.ReplaceAll(uuid.NewString(), "-", "")

	ctx, span := o.tracer.Start(ctx, "upload.store", trace.WithAttributes(attribute.String("object_id", objectName)))
	var (
		objectID string
		err      error
	)
	if req.TaskID != "" {
		onProgress := func(percent float64) {
			transferred := int64(math.Round(float64(size) * percent / 100))
			o.warn(log, "record progress", o.progress.Update(ctx, req.TaskID, percent, transferred, size))
		}
		objectID, err = o.backend.PutWithProgress(ctx, objectName, content, size, contentType, onProgress)
	} else {
		objectID, err = o.backend.Put(ctx, objectName, content, size, contentType)
	}
	span.End()
	if err != nil {
		return nil, storageWriteFailed(err, objectName)
	}

	now := o.now()
	rec := &database.FileRecord{
		ID:           o.newID(),
		Name:         req.OriginalName,
		OriginalName: req.OriginalName,
		StoragePath:  objectID,
		Size:         size,
		ContentType:  contentType,
		Fingerprint:  digest,
		OwnerID:      req.OwnerID,
		ParentID:     req.ParentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.index.Insert(ctx, rec); err != nil {
		o.removeOrphan(ctx, log, objectID, size)
		return nil, persistenceFailed(fmt.Errorf("insert record: %w", err))
	}

	if req.TaskID != "" {
		o.warn(log, "complete task", o.progress.Complete(ctx, req.TaskID, true, messageComplete))
	}
	if o.post != nil && database.DeriveFileType(contentType) == database.FileTypeImage {
		o.post.Enqueue(objectID, contentType)
	}
	return &Result{Record: rec, Path: objectID}, nil
}

// removeOrphan deletes an object whose record could not be inserted. No
// other record can reference it yet. When the delete fails too the object
// leaks, and that is logged and counted.
func (o *Orchestrator) removeOrphan(ctx context.Context, log *zap.Logger, objectID string, size int64) {
	err := o.backend.Delete(context.WithoutCancel(ctx), objectID)
	if err == nil {
		log.Warn("removed object after failed insert", zap.String("object_id", objectID))
		return
	}
	err = storageDeleteFailed(err, objectID)
	log.Error("stored object orphaned",
		zap.String("object_id", objectID),
		zap.Int64("size", size),
		zap.String("code", Code(err)),
		zap.Error(err),
	)
	o.metrics.ObserveOrphaned()
}

// finishFailed closes out the task of a failed upload. A cancelled caller
// is gone, so its task is dropped instead of left for polling.
func (o *Orchestrator) finishFailed(ctx context.Context, log *zap.Logger, taskID string, cause error) {
	if taskID == "" {
		return
	}
	bg := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		o.warn(log, "delete cancelled task", o.progress.Delete(bg, taskID))
		return
	}
	o.warn(log, "fail task", o.progress.Complete(bg, taskID, false, cause.Error()))
}

// destinationPrefix returns the storage path new objects nest under.
func (o *Orchestrator) destinationPrefix(ctx context.Context, ownerID, parentID string) (string, error) {
	if parentID == "" {
		return "user_" + ownerID, nil
	}
	parent, err := o.index.FindParentPath(ctx, parentID)
	if errors.Is(err, database.ErrNotFound) {
		return "", notFound("parent folder not found")
	}
	if err != nil {
		return "", persistenceFailed(fmt.Errorf("resolve parent: %w", err))
	}
	if parent.OwnerID != ownerID {
		return "", noPermission("parent folder belongs to another user")
	}
	if parent.StoragePath == "" {
		return "user_" + ownerID, nil
	}
	return parent.StoragePath, nil
}

// replayable returns a seekable view of r, spooling it to disk when r
// cannot rewind.
func (o *Orchestrator) replayable(ctx context.Context, r io.Reader) (io.ReadSeeker, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, func() {}, nil
	}
	_, span := o.tracer.Start(ctx, "upload.spool")
	defer span.End()

	spool, err := fingerprint.Spool(r, o.spoolDir)
	if err != nil {
		return nil, nil, err
	}
	return spool, func() { spool.Close() }, nil
}

// measure returns the real remaining length of content and corrects the
// task total when the declared size was missing or wrong.
func (o *Orchestrator) measure(ctx context.Context, log *zap.Logger, req Request, content io.Seeker) (int64, error) {
	cur, err := content.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := content.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := content.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}

	size := end - cur
	if size != req.Size {
		log.Debug("declared size corrected", zap.Int64("declared", req.Size), zap.Int64("actual", size))
		if req.TaskID != "" {
			o.warn(log, "correct task size", o.progress.Update(ctx, req.TaskID, 0, 0, size))
		}
	}
	return size, nil
}

func (o *Orchestrator) warn(log *zap.Logger, op string, err error) {
	if err != nil {
		log.Warn("progress store write failed", zap.String("op", op), zap.Error(err))
	}
}

func validateRequest(req Request) error {
	switch {
	case req.Content == nil:
		return invalidArgument("content is required")
	case strings.TrimSpace(req.OwnerID) == "":
		return invalidArgument("owner id is required")
	case strings.TrimSpace(req.OriginalName) == "":
		return invalidArgument("file name is required")
	}
	return nil
}

// detectContentType keeps a declared type and sniffs generic or missing
// ones from the first bytes.
func detectContentType(declared string, content io.ReadSeeker) (string, error) {
	if declared != "" && declared != genericType {
		return declared, nil
	}
	start, err := content.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	mt, err := mimetype.DetectReader(content)
	if err != nil {
		return "", err
	}
	if _, err := content.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	return mt.String(), nil
}
