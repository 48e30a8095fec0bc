package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/progress"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisStore(t *testing.T) (*progress.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return progress.NewStore(progress.NewRedisRepository(client), zap.NewNop()), mr
}

func setupBadgerStore(t *testing.T) *progress.Store {
	t.Helper()
	db, err := progress.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return progress.NewStore(progress.NewBadgerRepository(db), zap.NewNop())
}

func TestCreateInitialState(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "t1", "hello.txt", 10))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, "hello.txt", task.Filename)
	assert.Equal(t, int64(10), task.TotalSize)
	assert.Zero(t, task.Progress)
	assert.False(t, task.Completed)
	assert.NotZero(t, task.CreatedAt)

	assert.Equal(t, time.Hour, mr.TTL("upload_progress:t1"))
}

func TestAccumulateSequence(t *testing.T) {
	ctx := context.Background()
	stores := map[string]*progress.Store{"badger": setupBadgerStore(t)}
	stores["redis"], _ = setupRedisStore(t)

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Create(ctx, "task-c", "big.bin", 1000))

			var observed []float64
			for _, n := range []int64{250, 250, 500} {
				require.NoError(t, store.Accumulate(ctx, "task-c", n))
				task, err := store.Get(ctx, "task-c")
				require.NoError(t, err)
				assert.False(t, task.Completed)
				observed = append(observed, task.Progress)
			}
			assert.Equal(t, []float64{25, 50, 100}, observed)
		})
	}
}

func TestUpdateIsMonotonicAndClamped(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "t1", "f", 100))

	require.NoError(t, store.Update(ctx, "t1", 40, 40, 100))
	require.NoError(t, store.Update(ctx, "t1", 30, 30, 100))
	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, task.Progress)
	assert.Equal(t, int64(30), task.BytesTransferred)

	require.NoError(t, store.Update(ctx, "t1", 250, 100, 100))
	task, err = store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, task.Progress)

	require.NoError(t, store.Update(ctx, "t2", -5, 0, 100))
	_, err = store.Get(ctx, "t2")
	assert.ErrorIs(t, err, progress.ErrTaskNotFound, "update must not create tasks")
}

func TestUpdateRefreshesTTL(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "t1", "f", 100))

	mr.FastForward(50 * time.Minute)
	require.NoError(t, store.Update(ctx, "t1", 10, 10, 100))
	mr.FastForward(50 * time.Minute)

	_, err := store.Get(ctx, "t1")
	require.NoError(t, err)
}

func TestCompletedTaskIgnoresLateWrites(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "t1", "f", 100))
	require.NoError(t, store.Update(ctx, "t1", 20, 20, 100))
	require.NoError(t, store.Complete(ctx, "t1", false, "object store unavailable"))

	require.NoError(t, store.Update(ctx, "t1", 90, 90, 100))
	require.NoError(t, store.Accumulate(ctx, "t1", 50))
	require.NoError(t, store.Complete(ctx, "t1", true, "late success"))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.False(t, task.Success)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, "object store unavailable", task.Message)
	assert.Equal(t, int64(20), task.BytesTransferred)
}

func TestFailedTaskVisibleUntilShortTTL(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "t1", "f", 100))
	require.NoError(t, store.Complete(ctx, "t1", false, "write failed"))

	assert.Equal(t, time.Minute, mr.TTL("upload_progress:t1"))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.False(t, task.Success)
	assert.Equal(t, "write failed", task.Message)

	mr.FastForward(61 * time.Second)
	_, err = store.Get(ctx, "t1")
	assert.ErrorIs(t, err, progress.ErrTaskNotFound)
}

func TestAbandonedTaskExpires(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "t1", "f", 100))

	mr.FastForward(time.Hour + time.Second)
	_, err := store.Get(ctx, "t1")
	assert.ErrorIs(t, err, progress.ErrTaskNotFound)

	// writes to an expired task are dropped
	require.NoError(t, store.Complete(ctx, "t1", true, "done"))
	_, err = store.Get(ctx, "t1")
	assert.ErrorIs(t, err, progress.ErrTaskNotFound)
}

func TestDelete(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "t1", "f", 100))
	require.NoError(t, store.Delete(ctx, "t1"))

	_, err := store.Get(ctx, "t1")
	assert.ErrorIs(t, err, progress.ErrTaskNotFound)
}

func TestConcurrentAccumulateLosesNothing(t *testing.T) {
	ctx := context.Background()
	stores := map[string]*progress.Store{"badger": setupBadgerStore(t)}
	stores["redis"], _ = setupRedisStore(t)

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Create(ctx, "shared", "f", 400))

			var wg sync.WaitGroup
			for range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 25 {
						assert.NoError(t, store.Accumulate(ctx, "shared", 4))
					}
				}()
			}
			wg.Wait()

			task, err := store.Get(ctx, "shared")
			require.NoError(t, err)
			assert.Equal(t, int64(400), task.BytesTransferred)
			assert.Equal(t, 100.0, task.Progress)
		})
	}
}

func TestCustomTTLs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := progress.NewStore(progress.NewRedisRepository(client), zap.NewNop(),
		progress.WithTTLs(10*time.Minute, 5*time.Second))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "t1", "f", 1))
	assert.Equal(t, 10*time.Minute, mr.TTL("upload_progress:t1"))
	require.NoError(t, store.Complete(ctx, "t1", true, "ok"))
	assert.Equal(t, 5*time.Second, mr.TTL("upload_progress:t1"))
}
