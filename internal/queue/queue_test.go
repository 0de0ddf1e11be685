package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recreator/internal/batch"
	"recreator/internal/domain"
)

type fakeRunner struct {
	mu     sync.Mutex
	ids    []string
	errs   map[string]error
	panics map[string]bool
}

func (r *fakeRunner) Run(_ context.Context, batchID string) (*batch.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, batchID)
	if r.panics[batchID] {
		panic("runner blew up")
	}
	report := &batch.Report{BatchID: batchID, Result: domain.BatchResult{Status: domain.StatusSuccess}}
	return report, r.errs[batchID]
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestNewBatchRunTask(t *testing.T) {
	task, err := NewBatchRunTask(" b1 ")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeBatchRun, task.Type())

	var payload TaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "b1", payload.BatchID)

	_, err = NewBatchRunTask("  ")
	assert.Error(t, err)
}

func TestHandlerProcessTask(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"missing": fmt.Errorf("batch: load missing: %w", domain.ErrNotFound),
		"nokey":   &domain.ConfigurationError{Reason: "VIDEO_API_KEY is not set"},
		"store":   errors.New("batch: save result: connection reset"),
		"claimed": fmt.Errorf("batch: claim claimed: %w", &domain.BatchStateError{BatchID: "claimed", Status: domain.BatchStatusRunning}),
		"panic":   fmt.Errorf("batch: %w: boom", domain.ErrStagePanic),
	}}
	h := NewHandler(runner, nil)

	task, err := NewBatchRunTask("ok")
	require.NoError(t, err)
	assert.NoError(t, h.ProcessTask(context.Background(), task))

	for _, id := range []string{"missing", "nokey", "claimed", "panic"} {
		task, err := NewBatchRunTask(id)
		require.NoError(t, err)
		err = h.ProcessTask(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry, id)
	}

	task, err = NewBatchRunTask("store")
	require.NoError(t, err)
	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	assert.Equal(t, []string{"ok", "missing", "nokey", "claimed", "panic", "store"}, runner.ran())
}

func TestHandlerRejectsBadPayload(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandler(runner, nil)

	for _, body := range []string{`{`, `{"batch_id":""}`} {
		err := h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeBatchRun, []byte(body)))
		assert.ErrorIs(t, err, asynq.SkipRetry, body)
	}
	assert.Empty(t, runner.ran())
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("http://localhost:6379", 0)
	assert.Error(t, err)

	_, err = NewWorker(WorkerOptions{RedisURL: "redis://localhost:6379"}, nil)
	assert.Error(t, err)
}

func TestInlineDispatcherRunsUnderOwnContext(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{"b2": errors.New("boom")}}
	d := NewInlineDispatcher(context.Background(), runner, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Dispatch(reqCtx, "b1"))
	require.NoError(t, d.Dispatch(reqCtx, "b2"))
	cancel()
	d.Wait()

	assert.ElementsMatch(t, []string{"b1", "b2"}, runner.ran())
}

func TestInlineDispatcherSurvivesPanics(t *testing.T) {
	runner := &fakeRunner{panics: map[string]bool{"bad": true}}
	d := NewInlineDispatcher(context.Background(), runner, nil)

	require.NoError(t, d.Dispatch(context.Background(), "bad"))
	d.Wait()
	require.NoError(t, d.Dispatch(context.Background(), "good"))
	d.Wait()

	assert.Equal(t, []string{"bad", "good"}, runner.ran())
}
