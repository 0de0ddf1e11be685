package queue

import (
	"context"
	"sync"

	"recreator/internal/infra"
)

// InlineDispatcher runs batches on goroutines inside the current process.
// It is used when no queue is configured.
type InlineDispatcher struct {
	ctx    context.Context
	runner Runner
	logger *infra.Logger
	wg     sync.WaitGroup
}

// NewInlineDispatcher runs every dispatched batch under ctx, not under the
// caller's request context, so a finished HTTP request does not cancel it.
func NewInlineDispatcher(ctx context.Context, runner Runner, logger *infra.Logger) *InlineDispatcher {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &InlineDispatcher{ctx: ctx, runner: runner, logger: logger}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, batchID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error().Interface("panic", rec).Str("batch_id", batchID).Msg("queue: inline run panicked")
			}
		}()
		report, err := d.runner.Run(d.ctx, batchID)
		if err != nil {
			d.logger.Error().Err(err).Str("batch_id", batchID).Msg("queue: inline run failed")
			return
		}
		d.logger.Info().
			Str("batch_id", batchID).
			Str("status", string(report.Result.Status)).
			Msg("queue: inline run finished")
	}()
	return nil
}

// Wait blocks until every dispatched batch has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
