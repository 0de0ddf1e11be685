package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recreator/internal/domain"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (*BatchRepositoryRedis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBatchRepositoryRedis(rdb, ttl), mr
}

func TestBatchRepositoryRedisCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisRepo(t, time.Hour)

	batch := &domain.Batch{ID: "b1", Requests: []domain.GenerationRequest{{SegmentIndex: 1, Prompt: "a", Selected: true}}}
	require.NoError(t, store.Create(ctx, batch))
	assert.Equal(t, domain.BatchStatusQueued, batch.Status)

	err := store.Create(ctx, &domain.Batch{ID: "b1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	got, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got.Requests, 1, "the original record is untouched")
}

func TestBatchRepositoryRedisUpdatesKeepTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisRepo(t, time.Hour)
	require.NoError(t, store.Create(ctx, &domain.Batch{ID: "b1"}))

	mr.FastForward(10 * time.Minute)
	require.NoError(t, store.UpdateStatus(ctx, "b1", domain.BatchStatusFailed, "boom"))
	require.NoError(t, store.SaveResult(ctx, "b1", domain.BatchResult{Status: domain.StatusError}))

	assert.Equal(t, 50*time.Minute, mr.TTL(batchKey("b1")))

	got, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	require.NotNil(t, got.Result)

	mr.FastForward(time.Hour)
	_, err = store.Get(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBatchRepositoryRedisConcurrentWritersDoNotClobber(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisRepo(t, 0)
	require.NoError(t, store.Create(ctx, &domain.Batch{ID: "b1"}))

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	wg.Add(3)
	go func() {
		defer wg.Done()
		errs <- store.SaveResult(ctx, "b1", domain.BatchResult{Status: domain.StatusSuccess, Requested: 2, SucceededCount: 2})
	}()
	go func() {
		defer wg.Done()
		errs <- store.SaveMerge(ctx, "b1", domain.MergeOutput{Status: domain.StatusSuccess, Segments: 2})
	}()
	go func() {
		defer wg.Done()
		errs <- store.UpdateStatus(ctx, "b1", domain.BatchStatusCompleted, "")
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 2, got.Result.SucceededCount)
	require.NotNil(t, got.Merge)
	assert.Equal(t, 2, got.Merge.Segments)
}

func TestBatchRepositoryRedisClaim(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisRepo(t, time.Hour)
	require.NoError(t, store.Create(ctx, &domain.Batch{ID: "b1"}))

	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := store.Claim(ctx, "b1")
			results <- err
		}()
	}
	var claimed, rejected int
	for i := 0; i < 5; i++ {
		err := <-results
		switch {
		case err == nil:
			claimed++
		case errors.Is(err, domain.ErrBatchNotQueued):
			rejected++
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 4, rejected)

	got, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusRunning, got.Status)

	_, err = store.Claim(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBatchRepositoryRedisRejectsCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisRepo(t, 0)
	require.NoError(t, mr.Set(batchKey("bad"), "{"))

	_, err := store.Get(ctx, "bad")
	assert.ErrorContains(t, err, "decode batch")
	assert.ErrorContains(t, store.UpdateStatus(ctx, "bad", domain.BatchStatusFailed, ""), "decode batch")
}
