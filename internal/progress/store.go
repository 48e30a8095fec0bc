package progress

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultActiveTTL    = time.Hour
	DefaultCompletedTTL = time.Minute
)

type Config struct {
	Driver       string        `envconfig:"DRIVER" default:"redis" validate:"oneof=redis badger"`
	BadgerPath   string        `envconfig:"BADGER_PATH"`
	ActiveTTL    time.Duration `envconfig:"ACTIVE_TTL" default:"1h" validate:"gt=0"`
	CompletedTTL time.Duration `envconfig:"COMPLETED_TTL" default:"1m" validate:"gt=0"`
	Redis        RedisConfig   `envconfig:"REDIS"`
}

// Store is the upload task state machine:
//
//	absent -> created -> updating* -> completed -> (expiry) -> absent
//
// Writes to a missing or completed task are silent no-ops, so a late
// progress callback can never resurrect or corrupt a finished task.
type Store struct {
	repo         Repository
	activeTTL    time.Duration
	completedTTL time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Store)

func WithTTLs(active, completed time.Duration) Option {
	return func(s *Store) {
		if active > 0 {
			s.activeTTL = active
		}
		if completed > 0 {
			s.completedTTL = completed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo Repository, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		repo:         repo,
		activeTTL:    DefaultActiveTTL,
		completedTTL: DefaultCompletedTTL,
		now:          time.Now,
		logger:       logger.Named("progress"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a task at 0%. An existing task with the same id is replaced.
func (s *Store) Create(ctx context.Context, id, filename string, totalSize int64) error {
	return s.repo.Save(ctx, &Task{
		ID:        id,
		Filename:  filename,
		TotalSize: totalSize,
		CreatedAt: s.now().UnixMilli(),
	}, s.activeTTL)
}

// Update overwrites the byte counters and raises the percentage. The
// stored percentage never goes down.
func (s *Store) Update(ctx context.Context, id string, progress float64, bytesTransferred, totalSize int64) error {
	return s.mutate(ctx, id, func(t *Task) (time.Duration, bool) {
		if t.Completed {
			return 0, false
		}
		t.BytesTransferred = bytesTransferred
		t.TotalSize = totalSize
		t.Progress = max(t.Progress, clamp(progress))
		return s.activeTTL, true
	})
}

// Accumulate adds to the transferred bytes and recomputes the percentage
// from the task's total.
func (s *Store) Accumulate(ctx context.Context, id string, additionalBytes int64) error {
	return s.mutate(ctx, id, func(t *Task) (time.Duration, bool) {
		if t.Completed {
			return 0, false
		}
		t.BytesTransferred += additionalBytes
		if t.TotalSize > 0 {
			t.Progress = max(t.Progress, percentOf(t.BytesTransferred, t.TotalSize))
		}
		return s.activeTTL, true
	})
}

// Complete marks the task finished at 100% and shortens its ttl so
// pollers get a brief window to read the outcome.
func (s *Store) Complete(ctx context.Context, id string, success bool, message string) error {
	return s.mutate(ctx, id, func(t *Task) (time.Duration, bool) {
		if t.Completed {
			return 0, false
		}
		t.Completed = true
		t.Success = success
		t.Message = message
		t.Progress = 100
		return s.completedTTL, true
	})
}

// Get returns the latest snapshot, or ErrTaskNotFound once it expired.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	return s.repo.Load(ctx, id)
}

// Delete drops a task before its ttl runs out.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.repo.Remove(ctx, id)
}

func (s *Store) mutate(ctx context.Context, id string, fn MutateFunc) error {
	err := s.repo.Mutate(ctx, id, fn)
	if errors.Is(err, ErrTaskNotFound) {
		s.logger.Debug("progress write for absent task ignored", zap.String("task_id", id))
		return nil
	}
	return err
}
