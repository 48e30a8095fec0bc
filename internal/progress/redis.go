package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addrs         string `envconfig:"ADDRS" default:"localhost:6379"`
	Password      string `envconfig:"PASSWORD"`
	IsClusterMode bool   `envconfig:"CLUSTER" default:"false"`
}

// NewRedisClient builds a single-node or cluster client from a comma
// separated address list.
func NewRedisClient(cfg RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:         strings.Split(cfg.Addrs, ","),
		Password:      cfg.Password,
		IsClusterMode: cfg.IsClusterMode,
	})
}

// RedisRepository keeps each task as one JSON value under
// upload_progress:<id>.
type RedisRepository struct {
	client redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Save(ctx context.Context, task *Task, ttl time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return r.client.Set(ctx, keyPrefix+task.ID, data, ttl).Err()
}

func (r *RedisRepository) Load(ctx context.Context, id string) (*Task, error) {
	data, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return decodeTask(data)
}

// Mutate runs fn under WATCH so a concurrent writer forces a retry instead
// of a lost update.
func (r *RedisRepository) Mutate(ctx context.Context, id string, fn MutateFunc) error {
	key := keyPrefix + id

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		task, err := decodeTask(data)
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

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, ttl)
			return nil
		})
		return err
	}

	for range maxMutateAttempts {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (r *RedisRepository) Remove(ctx context.Context, id string) error {
	return r.client.Del(ctx, keyPrefix+id).Err()
}

func decodeTask(data []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}
