package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"recreator/internal/domain"
	"recreator/internal/infra"
	"recreator/internal/sqlinline"
)

// BatchRepositoryPG implements domain.BatchStore on PostgreSQL.
type BatchRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewBatchRepository creates a new batch repository backed by PostgreSQL.
func NewBatchRepository(sql infra.SQLExecutor) *BatchRepositoryPG {
	return &BatchRepositoryPG{sql: sql}
}

// EnsureSchema creates the tables used by the repository when missing.
func (r *BatchRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QCreateSchema); err != nil {
		return fmt.Errorf("repo: ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new batch record.
func (r *BatchRepositoryPG) Create(ctx context.Context, batch *domain.Batch) error {
	if batch == nil {
		return fmt.Errorf("repo: batch is nil")
	}
	requests, err := json.Marshal(nonNilRequests(batch.Requests))
	if err != nil {
		return fmt.Errorf("repo: encode requests: %w", err)
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.UpdatedAt = batch.CreatedAt
	if batch.Status == "" {
		batch.Status = domain.BatchStatusQueued
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertBatch,
		batch.ID,
		string(batch.Status),
		batch.Locale,
		requests,
		batch.EstimatedCost,
		batch.CreatedAt,
	)
	return err
}

// Get fetches a batch by its identifier.
func (r *BatchRepositoryPG) Get(ctx context.Context, batchID string) (*domain.Batch, error) {
	return scanBatch(r.sql.QueryRow(ctx, sqlinline.QSelectBatch, batchID))
}

// Claim moves a queued batch to running with a conditional update. When no
// row matches, the batch is reloaded to tell a missing batch from one that
// another run already claimed.
func (r *BatchRepositoryPG) Claim(ctx context.Context, batchID string) (*domain.Batch, error) {
	batch, err := scanBatch(r.sql.QueryRow(ctx, sqlinline.QClaimBatch, batchID))
	if err == nil {
		return batch, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	current, err := r.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return nil, &domain.BatchStateError{BatchID: batchID, Status: current.Status}
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var (
		batch      domain.Batch
		status     string
		requests   []byte
		resultJSON []byte
		mergeJSON  []byte
	)
	if err := row.Scan(
		&batch.ID,
		&status,
		&batch.Locale,
		&requests,
		&batch.EstimatedCost,
		&resultJSON,
		&mergeJSON,
		&batch.Error,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	batch.Status = domain.BatchStatus(status)
	if err := json.Unmarshal(requests, &batch.Requests); err != nil {
		return nil, fmt.Errorf("repo: decode requests: %w", err)
	}
	if len(resultJSON) > 0 {
		batch.Result = &domain.BatchResult{}
		if err := json.Unmarshal(resultJSON, batch.Result); err != nil {
			return nil, fmt.Errorf("repo: decode result: %w", err)
		}
	}
	if len(mergeJSON) > 0 {
		batch.Merge = &domain.MergeOutput{}
		if err := json.Unmarshal(mergeJSON, batch.Merge); err != nil {
			return nil, fmt.Errorf("repo: decode merge output: %w", err)
		}
	}
	return &batch, nil
}

// SelectedRequests returns the requests flagged for generation.
func (r *BatchRepositoryPG) SelectedRequests(ctx context.Context, batchID string) ([]domain.GenerationRequest, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectBatchRequests, batchID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var requests []domain.GenerationRequest
	if err := json.Unmarshal(raw, &requests); err != nil {
		return nil, fmt.Errorf("repo: decode requests: %w", err)
	}
	return domain.SelectedRequests(requests), nil
}

// UpdateStatus records a lifecycle transition and optional error message.
func (r *BatchRepositoryPG) UpdateStatus(ctx context.Context, batchID string, status domain.BatchStatus, errMsg string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateBatchStatus, batchID, string(status), errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveResult stores the aggregated batch result.
func (r *BatchRepositoryPG) SaveResult(ctx context.Context, batchID string, result domain.BatchResult) error {
	return r.updateJSON(ctx, sqlinline.QUpdateBatchResult, batchID, result)
}

// SaveMerge stores the merge stage output.
func (r *BatchRepositoryPG) SaveMerge(ctx context.Context, batchID string, output domain.MergeOutput) error {
	return r.updateJSON(ctx, sqlinline.QUpdateBatchMerge, batchID, output)
}

func (r *BatchRepositoryPG) updateJSON(ctx context.Context, query, batchID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("repo: encode payload: %w", err)
	}
	tag, err := r.sql.Exec(ctx, query, batchID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nonNilRequests(reqs []domain.GenerationRequest) []domain.GenerationRequest {
	if reqs == nil {
		return []domain.GenerationRequest{}
	}
	return reqs
}

var _ domain.BatchStore = (*BatchRepositoryPG)(nil)
