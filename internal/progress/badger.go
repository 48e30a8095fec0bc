package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// OpenBadger opens an embedded store at path, or an in-memory one when
// path is empty.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	return badger.Open(opts)
}

// BadgerRepository keeps tasks in an embedded badger database, for single
// node deployments without Redis. Expiry uses badger's per-entry TTL.
type BadgerRepository struct {
	db *badger.DB
}

func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{db: db}
}

func (b *BadgerRepository) Save(ctx context.Context, task *Task, ttl time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(keyPrefix+task.ID), data).WithTTL(ttl))
	})
}

func (b *BadgerRepository) Load(ctx context.Context, id string) (*Task, error) {
	var task *Task
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		task, err = getTask(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (b *BadgerRepository) Mutate(ctx context.Context, id string, fn MutateFunc) error {
	for range maxMutateAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(func(txn *badger.Txn) error {
			task, err := getTask(txn, id)
			if err != nil {
				return err
			}
			ttl, save := fn(task)
			if !save {
				return nil
			}
			out, err := json.Marshal(task)
			if err != nil {
				return fmt.Errorf("encode task: %w", err)
			}
			return txn.SetEntry(badger.NewEntry([]byte(keyPrefix+id), out).WithTTL(ttl))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return ErrContention
}

func (b *BadgerRepository) Remove(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
}

func getTask(txn *badger.Txn, id string) (*Task, error) {
	item, err := txn.Get([]byte(keyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}

	var task *Task
	err = item.Value(func(v []byte) error {
		var err error
		task, err = decodeTask(v)
		return err
	})
	return task, err
}
