package batch

import (
	"context"
	"sync"
	"time"

	"recreator/internal/domain"
	"recreator/internal/infra"
	"recreator/internal/providers/video"
)

const (
	defaultPollInterval  = 10 * time.Second
	defaultPollMaxWait   = 600 * time.Second
	defaultStatusTimeout = 10 * time.Second
)

// PollerOptions tunes the polling stage.
type PollerOptions struct {
	Interval      time.Duration
	MaxWait       time.Duration
	StatusTimeout time.Duration
	Logger        *infra.Logger
}

// Poller drives every submitted job to a terminal state.
type Poller struct {
	service       video.Service
	interval      time.Duration
	maxWait       time.Duration
	statusTimeout time.Duration
	logger        *infra.Logger
	now           func() time.Time
}

// NewPoller wires a poller, applying defaults for zero options.
func NewPoller(service video.Service, opts PollerOptions) *Poller {
	p := &Poller{
		service:       service,
		interval:      opts.Interval,
		maxWait:       opts.MaxWait,
		statusTimeout: opts.StatusTimeout,
		logger:        opts.Logger,
		now:           time.Now,
	}
	if p.interval <= 0 {
		p.interval = defaultPollInterval
	}
	if p.maxWait <= 0 {
		p.maxWait = defaultPollMaxWait
	}
	if p.statusTimeout <= 0 {
		p.statusTimeout = defaultStatusTimeout
	}
	if p.logger == nil {
		p.logger = infra.NopLogger()
	}
	return p
}

// Poll waits for all handles concurrently and returns their results in handle
// order.
func (p *Poller) Poll(ctx context.Context, handles []domain.JobHandle) []domain.JobResult {
	results := make([]domain.JobResult, len(handles))
	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.await(ctx, h)
		}()
	}
	wg.Wait()
	return results
}

// await polls one job until it reaches a terminal state or its deadline.
func (p *Poller) await(ctx context.Context, h domain.JobHandle) domain.JobResult {
	deadline := p.now().Add(p.maxWait)
	jobCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log := p.logger.With().Str("task_id", h.ID).Int("segment", h.Request.SegmentIndex).Logger()
	for {
		status, err := p.query(jobCtx, h.ID)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("batch: status query failed")
		case !p.now().Before(deadline):
			// Anything observed past the deadline counts as a timeout.
			return p.timedOut(h)
		case status.State == video.StateSucceeded:
			log.Info().Str("url", status.ArtifactURL).Msg("batch: generation succeeded")
			return domain.JobResult{Handle: h, Outcome: domain.OutcomeSucceeded, ArtifactURL: status.ArtifactURL}
		case status.State == video.StateFailed:
			remote := &domain.RemoteFailedError{TaskID: h.ID, Message: status.Error}
			log.Warn().Str("reason", status.Error).Msg("batch: generation failed")
			return domain.JobResult{Handle: h, Outcome: domain.OutcomeFailed, Message: remote.Error()}
		}

		select {
		case <-jobCtx.Done():
			if err := ctx.Err(); err != nil {
				return domain.JobResult{Handle: h, Outcome: domain.OutcomeFailed, Message: "polling cancelled: " + err.Error()}
			}
			return p.timedOut(h)
		case <-ticker.C:
		}
	}
}

func (p *Poller) query(ctx context.Context, taskID string) (video.TaskStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.statusTimeout)
	defer cancel()
	return p.service.Status(ctx, taskID)
}

func (p *Poller) timedOut(h domain.JobHandle) domain.JobResult {
	timeout := &domain.PollTimeoutError{TaskID: h.ID, MaxWait: p.maxWait}
	p.logger.Warn().Str("task_id", h.ID).Int("segment", h.Request.SegmentIndex).Msg("batch: generation timed out")
	return domain.JobResult{Handle: h, Outcome: domain.OutcomeTimedOut, Message: timeout.Error()}
}
