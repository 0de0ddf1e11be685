package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"recreator/internal/domain"
)

const (
	batchKeyPrefix   = "batch:"
	maxUpdateRetries = 10
)

// BatchRepositoryRedis stores each batch as one JSON document with a TTL.
type BatchRepositoryRedis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBatchRepositoryRedis creates a Redis-backed store. A zero ttl keeps
// records until deleted.
func NewBatchRepositoryRedis(rdb *redis.Client, ttl time.Duration) *BatchRepositoryRedis {
	return &BatchRepositoryRedis{rdb: rdb, ttl: ttl}
}

func (r *BatchRepositoryRedis) Create(ctx context.Context, batch *domain.Batch) error {
	if batch == nil {
		return fmt.Errorf("repo: batch is nil")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.UpdatedAt = batch.CreatedAt
	if batch.Status == "" {
		batch.Status = domain.BatchStatusQueued
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("repo: encode batch: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, batchKey(batch.ID), payload, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("repo: batch %s already exists", batch.ID)
	}
	return nil
}

func (r *BatchRepositoryRedis) Get(ctx context.Context, batchID string) (*domain.Batch, error) {
	data, err := r.rdb.Get(ctx, batchKey(batchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var batch domain.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("repo: decode batch: %w", err)
	}
	return &batch, nil
}

func (r *BatchRepositoryRedis) SelectedRequests(ctx context.Context, batchID string) ([]domain.GenerationRequest, error) {
	batch, err := r.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return domain.SelectedRequests(batch.Requests), nil
}

// Claim flips a queued batch to running inside the same WATCH transaction
// that read it.
func (r *BatchRepositoryRedis) Claim(ctx context.Context, batchID string) (*domain.Batch, error) {
	return r.updatePartial(ctx, batchID, func(b *domain.Batch) error {
		if b.Status != domain.BatchStatusQueued {
			return &domain.BatchStateError{BatchID: batchID, Status: b.Status}
		}
		b.Status = domain.BatchStatusRunning
		b.Error = ""
		return nil
	})
}

func (r *BatchRepositoryRedis) UpdateStatus(ctx context.Context, batchID string, status domain.BatchStatus, errMsg string) error {
	_, err := r.updatePartial(ctx, batchID, func(b *domain.Batch) error {
		b.Status = status
		b.Error = errMsg
		return nil
	})
	return err
}

func (r *BatchRepositoryRedis) SaveResult(ctx context.Context, batchID string, result domain.BatchResult) error {
	_, err := r.updatePartial(ctx, batchID, func(b *domain.Batch) error {
		b.Result = &result
		return nil
	})
	return err
}

func (r *BatchRepositoryRedis) SaveMerge(ctx context.Context, batchID string, output domain.MergeOutput) error {
	_, err := r.updatePartial(ctx, batchID, func(b *domain.Batch) error {
		b.Merge = &output
		return nil
	})
	return err
}

// updatePartial applies mutate under WATCH so concurrent writers retry
// instead of clobbering each other. An error from mutate aborts the write.
func (r *BatchRepositoryRedis) updatePartial(ctx context.Context, batchID string, mutate func(*domain.Batch) error) (*domain.Batch, error) {
	key := batchKey(batchID)
	var updated domain.Batch
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrNotFound
			}
			return err
		}
		var batch domain.Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("repo: decode batch: %w", err)
		}
		if err := mutate(&batch); err != nil {
			return err
		}
		batch.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&batch)
		if err != nil {
			return fmt.Errorf("repo: encode batch: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = batch
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("repo: update batch %s: too much contention", batchID)
}

func batchKey(id string) string {
	return batchKeyPrefix + id
}

var _ domain.BatchStore = (*BatchRepositoryRedis)(nil)
