// Package queue hands stored batches to the pipeline, either through an
// asynq task queue backed by Redis or inline on a goroutine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"recreator/internal/batch"
)

const (
	// TaskTypeBatchRun runs one stored batch end to end.
	TaskTypeBatchRun = "batch:run"

	queueName = "batches"
)

// Runner executes a stored batch. *batch.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, batchID string) (*batch.Report, error)
}

// Dispatcher schedules a stored batch for execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, batchID string) error
}

// TaskPayload is the body of a batch:run task.
type TaskPayload struct {
	BatchID string `json:"batch_id"`
}

// NewBatchRunTask builds the task that runs batchID.
func NewBatchRunTask(batchID string) (*asynq.Task, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, errors.New("queue: batch id is required")
	}
	body, err := json.Marshal(TaskPayload{BatchID: batchID})
	if err != nil {
		return nil, fmt.Errorf("queue: encode payload: %w", err)
	}
	// Re-running a batch would resubmit paid remote jobs, so tasks never retry.
	return asynq.NewTask(TaskTypeBatchRun, body, asynq.Queue(queueName), asynq.MaxRetry(0)), nil
}

func parsePayload(task *asynq.Task) (TaskPayload, error) {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("queue: decode payload: %w", err)
	}
	if strings.TrimSpace(payload.BatchID) == "" {
		return payload, errors.New("queue: missing batch_id in payload")
	}
	return payload, nil
}
