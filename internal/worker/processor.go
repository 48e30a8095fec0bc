package worker

import (
	"context"
	"sync"
	"time"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/storage"
	"go.uber.org/zap"
)

type WorkerConfig struct {
	Backend     storage.Backend
	Logger      *zap.Logger
	Workers     int
	QueueSize   int
	ProcessTime time.Duration // per-job deadline
}

type job struct {
	objectID    string
	contentType string
}

// ProcessingWorker renders previews for freshly stored images on a fixed
// pool of goroutines. Jobs are best effort: a full queue or a failed
// render is logged and dropped.
type ProcessingWorker struct {
	config *WorkerConfig
	images *ImageProcessor
	logger *zap.Logger

	jobs     chan job
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewProcessingWorker(config *WorkerConfig) *ProcessingWorker {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.ProcessTime == 0 {
		config.ProcessTime = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &ProcessingWorker{
		config: config,
		images: NewImageProcessor(config.Backend),
		logger: config.Logger.Named("worker"),
		jobs:   make(chan job, config.QueueSize),
		done:   make(chan struct{}),
	}
}

func (pw *ProcessingWorker) Start(ctx context.Context) {
	for i := 0; i < pw.config.Workers; i++ {
		pw.wg.Add(1)
		go pw.run(ctx)
	}
	pw.logger.Info("processing worker started", zap.Int("workers", pw.config.Workers))
}

// Stop signals the pool and waits for in-flight jobs. Queued jobs are
// dropped.
func (pw *ProcessingWorker) Stop() {
	pw.stopOnce.Do(func() { close(pw.done) })
	pw.wg.Wait()
	pw.logger.Info("processing worker stopped")
}

// Enqueue never blocks the upload path.
func (pw *ProcessingWorker) Enqueue(objectID, contentType string) {
	select {
	case <-pw.done:
		return
	default:
	}

	select {
	case pw.jobs <- job{objectID: objectID, contentType: contentType}:
	default:
		pw.logger.Warn("processing queue full, dropping job", zap.String("object_id", objectID))
	}
}

func (pw *ProcessingWorker) run(ctx context.Context) {
	defer pw.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pw.done:
			return
		case j := <-pw.jobs:
			pw.process(ctx, j)
		}
	}
}

func (pw *ProcessingWorker) process(ctx context.Context, j job) {
	if database.DeriveFileType(j.contentType) != database.FileTypeImage {
		pw.logger.Debug("skipping non-image", zap.String("object_id", j.objectID), zap.String("content_type", j.contentType))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, pw.config.ProcessTime)
	defer cancel()

	start := time.Now()
	thumbs, err := pw.images.ProcessImage(ctx, j.objectID)
	if err != nil {
		pw.logger.Error("image processing failed", zap.String("object_id", j.objectID), zap.Error(err))
		return
	}

	pw.logger.Info("generated thumbnails",
		zap.String("object_id", j.objectID),
		zap.Int("width", thumbs.Width),
		zap.Int("height", thumbs.Height),
		zap.Duration("duration", time.Since(start)),
	)
}
