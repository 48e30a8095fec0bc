package progress

import (
	"context"
	"errors"
	"time"
)

const keyPrefix = "upload_progress:"

var (
	ErrTaskNotFound = errors.New("upload task not found")
	// ErrContention is returned when an atomic modify kept losing to
	// concurrent writers.
	ErrContention = errors.New("upload task modified concurrently")
)

// MutateFunc edits a loaded task in place. It returns the ttl to save the
// task with, or save=false to leave the stored value untouched.
type MutateFunc func(t *Task) (ttl time.Duration, save bool)

// Repository is the TTL-bounded key/value store behind Store.
type Repository interface {
	Save(ctx context.Context, task *Task, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Task, error)
	// Mutate applies fn atomically to the stored task. It returns
	// ErrTaskNotFound if the task is absent or expired.
	Mutate(ctx context.Context, id string, fn MutateFunc) error
	Remove(ctx context.Context, id string) error
}

const maxMutateAttempts = 32
