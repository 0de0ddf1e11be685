package domain

import "context"

// BatchStore is the shared state store a pipeline reads its selected
// requests from and writes its stage outputs to. Each stage is the sole
// writer of its own key while it runs.
type BatchStore interface {
	Create(ctx context.Context, batch *Batch) error
	Get(ctx context.Context, batchID string) (*Batch, error)
	// Claim moves a queued batch to running and returns it. A batch in any
	// other state yields a *BatchStateError, so only one run ever owns it.
	Claim(ctx context.Context, batchID string) (*Batch, error)
	SelectedRequests(ctx context.Context, batchID string) ([]GenerationRequest, error)
	UpdateStatus(ctx context.Context, batchID string, status BatchStatus, errMsg string) error
	SaveResult(ctx context.Context, batchID string, result BatchResult) error
	SaveMerge(ctx context.Context, batchID string, output MergeOutput) error
}
