package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"recreator/internal/domain"
)

// MemoryBatchRepository keeps batches in process memory. It backs tests and
// single-shot CLI runs.
type MemoryBatchRepository struct {
	mu      sync.RWMutex
	batches map[string]*domain.Batch
}

// NewMemoryBatchRepository creates an empty in-memory store.
func NewMemoryBatchRepository() *MemoryBatchRepository {
	return &MemoryBatchRepository{batches: make(map[string]*domain.Batch)}
}

func (r *MemoryBatchRepository) Create(_ context.Context, batch *domain.Batch) error {
	if batch == nil {
		return fmt.Errorf("repo: batch is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.batches[batch.ID]; exists {
		return fmt.Errorf("repo: batch %s already exists", batch.ID)
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.UpdatedAt = batch.CreatedAt
	if batch.Status == "" {
		batch.Status = domain.BatchStatusQueued
	}
	stored, err := cloneBatch(batch)
	if err != nil {
		return err
	}
	r.batches[batch.ID] = stored
	return nil
}

func (r *MemoryBatchRepository) Get(_ context.Context, batchID string) (*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBatch(batch)
}

func (r *MemoryBatchRepository) Claim(_ context.Context, batchID string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if batch.Status != domain.BatchStatusQueued {
		return nil, &domain.BatchStateError{BatchID: batchID, Status: batch.Status}
	}
	batch.Status = domain.BatchStatusRunning
	batch.Error = ""
	batch.UpdatedAt = time.Now().UTC()
	return cloneBatch(batch)
}

func (r *MemoryBatchRepository) SelectedRequests(ctx context.Context, batchID string) ([]domain.GenerationRequest, error) {
	batch, err := r.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return domain.SelectedRequests(batch.Requests), nil
}

func (r *MemoryBatchRepository) UpdateStatus(_ context.Context, batchID string, status domain.BatchStatus, errMsg string) error {
	return r.mutate(batchID, func(b *domain.Batch) {
		b.Status = status
		b.Error = errMsg
	})
}

func (r *MemoryBatchRepository) SaveResult(_ context.Context, batchID string, result domain.BatchResult) error {
	return r.mutate(batchID, func(b *domain.Batch) {
		b.Result = &result
	})
}

func (r *MemoryBatchRepository) SaveMerge(_ context.Context, batchID string, output domain.MergeOutput) error {
	return r.mutate(batchID, func(b *domain.Batch) {
		b.Merge = &output
	})
}

func (r *MemoryBatchRepository) mutate(batchID string, fn func(*domain.Batch)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(batch)
	batch.UpdatedAt = time.Now().UTC()
	return nil
}

// cloneBatch deep-copies through JSON so callers never alias stored state.
func cloneBatch(batch *domain.Batch) (*domain.Batch, error) {
	raw, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("repo: encode batch: %w", err)
	}
	var out domain.Batch
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("repo: decode batch: %w", err)
	}
	return &out, nil
}

var _ domain.BatchStore = (*MemoryBatchRepository)(nil)
