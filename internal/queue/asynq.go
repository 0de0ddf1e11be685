package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"recreator/internal/domain"
	"recreator/internal/infra"
)

// Client enqueues batch:run tasks on Redis.
type Client struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewClient connects to the queue at redisURL. timeout bounds one task run
// on the worker; zero leaves asynq's default in place.
func NewClient(redisURL string, timeout time.Duration) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	return &Client{client: asynq.NewClient(opt), timeout: timeout}, nil
}

// Dispatch enqueues batchID.
func (c *Client) Dispatch(ctx context.Context, batchID string) error {
	task, err := NewBatchRunTask(batchID)
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", batchID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler runs batch:run tasks through a Runner.
type Handler struct {
	runner Runner
	logger *infra.Logger
}

func NewHandler(runner Runner, logger *infra.Logger) *Handler {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Handler{runner: runner, logger: logger}
}

// ProcessTask implements asynq.Handler. Faults that a retry cannot fix are
// wrapped with asynq.SkipRetry.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := parsePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	report, err := h.runner.Run(ctx, payload.BatchID)
	if err != nil {
		h.logger.Error().Err(err).Str("batch_id", payload.BatchID).Msg("queue: batch run failed")
		if skipRetry(err) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	h.logger.Info().
		Str("batch_id", payload.BatchID).
		Str("status", string(report.Result.Status)).
		Msg("queue: batch run finished")
	return nil
}

// skipRetry reports faults a redelivery cannot fix. A batch that is no longer
// queued was already claimed by an earlier delivery of the same task.
func skipRetry(err error) bool {
	for _, target := range []error{
		domain.ErrConfiguration,
		domain.ErrNotFound,
		domain.ErrBatchNotQueued,
		domain.ErrStagePanic,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// WorkerOptions configures the asynq server.
type WorkerOptions struct {
	RedisURL    string
	Concurrency int
	Logger      *infra.Logger
}

// Worker consumes batch:run tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(opts WorkerOptions, runner Runner) (*Worker, error) {
	if runner == nil {
		return nil, errors.New("queue: runner is required")
	}
	redisOpt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task_type", task.Type()).Msg("queue: task failed")
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeBatchRun, NewHandler(runner, logger))
	return &Worker{server: server, mux: mux}, nil
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return fmt.Errorf("queue: start worker: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight tasks and stops the server.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger *infra.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
