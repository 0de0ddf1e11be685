package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"recreator/internal/domain"
	"recreator/internal/infra"
	"recreator/internal/providers/video"
	"recreator/internal/storage"
)

// Options gathers the knobs of every stage.
type Options struct {
	SubmitConcurrency int
	SubmitTimeout     time.Duration
	PollInterval      time.Duration
	PollMaxWait       time.Duration
	StatusTimeout     time.Duration
	DownloadTimeout   time.Duration
	WorkDir           string
	FFmpegPath        string
}

// OptionsFromConfig maps service configuration onto pipeline options.
func OptionsFromConfig(cfg *infra.Config) Options {
	return Options{
		SubmitConcurrency: cfg.SubmitConcurrency,
		SubmitTimeout:     cfg.SubmitTimeout,
		PollInterval:      cfg.PollInterval,
		PollMaxWait:       cfg.PollMaxWait,
		StatusTimeout:     cfg.StatusTimeout,
		DownloadTimeout:   cfg.DownloadTimeout,
		WorkDir:           cfg.WorkDir,
		FFmpegPath:        cfg.FFmpegPath,
	}
}

// Deps are the collaborators a pipeline needs. Concatenator defaults to
// ffmpeg.
type Deps struct {
	Store        domain.BatchStore
	Service      video.Service
	Uploader     storage.Uploader
	Publisher    storage.Publisher
	Concatenator Concatenator
	Logger       *infra.Logger
}

// Report is what one Run produced. It is returned even when Run fails.
type Report struct {
	BatchID string              `json:"batch_id"`
	Result  domain.BatchResult  `json:"result"`
	Merge   *domain.MergeOutput `json:"merge,omitempty"`
	Summary string              `json:"summary"`
}

// Pipeline runs submit, poll, aggregate, fetch and merge for one batch at a
// time. Stages run strictly in sequence.
type Pipeline struct {
	store     domain.BatchStore
	submitter *Submitter
	poller    *Poller
	fetcher   *Fetcher
	engine    *MergeEngine
	publisher storage.Publisher
	workDir   string
	logger    *infra.Logger
}

// NewPipeline wires every stage from deps and opts.
func NewPipeline(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("batch: store is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("batch: publisher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	concat := deps.Concatenator
	if concat == nil {
		concat = FFmpegConcatenator{Path: opts.FFmpegPath}
	}
	return &Pipeline{
		store: deps.Store,
		submitter: NewSubmitter(deps.Service, deps.Uploader, SubmitterOptions{
			Concurrency: opts.SubmitConcurrency,
			Timeout:     opts.SubmitTimeout,
			Logger:      logger,
		}),
		poller: NewPoller(deps.Service, PollerOptions{
			Interval:      opts.PollInterval,
			MaxWait:       opts.PollMaxWait,
			StatusTimeout: opts.StatusTimeout,
			Logger:        logger,
		}),
		fetcher:   NewFetcher(FetcherOptions{Timeout: opts.DownloadTimeout, Logger: logger}),
		engine:    NewMergeEngine(concat, logger),
		publisher: deps.Publisher,
		workDir:   opts.WorkDir,
		logger:    logger,
	}, nil
}

// Run claims the queued batch stored under batchID, executes it and records
// each stage's outcome in the store. Configuration faults, store faults, a
// batch that is no longer queued and a panicking stage are returned as
// errors; per-segment failures live in the report.
func (p *Pipeline) Run(ctx context.Context, batchID string) (report *Report, err error) {
	report = &Report{BatchID: batchID}
	log := p.logger.With().Str("batch_id", batchID).Logger()
	// Bookkeeping writes must land even when ctx is cancelled mid-run.
	storeCtx := context.WithoutCancel(ctx)

	batch, err := p.store.Claim(ctx, batchID)
	if err != nil {
		return report, fmt.Errorf("batch: claim %s: %w", batchID, err)
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("batch: stage panicked")
			err = p.fail(storeCtx, batchID, fmt.Errorf("batch: %w: %v", domain.ErrStagePanic, rec))
			report.Summary = err.Error()
		}
	}()
	sum := NewSummarizer(batch.Locale)

	requests, err := p.store.SelectedRequests(ctx, batchID)
	if err != nil {
		return report, p.fail(storeCtx, batchID, fmt.Errorf("batch: load requests: %w", err))
	}
	log.Info().Int("selected", len(requests)).Msg("batch: run started")

	submission, err := p.submitter.Submit(ctx, requests)
	if err != nil {
		report.Result = domain.BatchResult{
			Status:    domain.StatusError,
			Requested: len(requests),
			Succeeded: []domain.SegmentArtifact{},
			Message:   err.Error(),
		}
		report.Summary = err.Error()
		log.Error().Err(err).Msg("batch: submission aborted")
		return report, p.fail(storeCtx, batchID, err)
	}

	results := p.poller.Poll(ctx, submission.Handles)
	report.Result = Aggregate(requests, submission, results, sum)
	if err := p.store.SaveResult(storeCtx, batchID, report.Result); err != nil {
		return report, p.fail(storeCtx, batchID, fmt.Errorf("batch: save result: %w", err))
	}
	log.Info().
		Str("status", string(report.Result.Status)).
		Int("succeeded", report.Result.SucceededCount).
		Int("failed", report.Result.FailedCount).
		Msg("batch: generation finished")

	merge := p.mergeStage(ctx, batchID, report.Result.Succeeded)
	merge.Message = sum.Merge(merge)
	report.Merge = &merge
	if err := p.store.SaveMerge(storeCtx, batchID, merge); err != nil {
		return report, p.fail(storeCtx, batchID, fmt.Errorf("batch: save merge: %w", err))
	}

	report.Summary = report.Result.Message + "; " + merge.Message
	if err := p.store.UpdateStatus(storeCtx, batchID, domain.BatchStatusCompleted, ""); err != nil {
		return report, fmt.Errorf("batch: mark completed: %w", err)
	}
	log.Info().Str("merge_status", string(merge.Status)).Str("url", merge.ArtifactURL).Msg("batch: run completed")
	return report, nil
}

// MergeArtifacts runs only the fetch and merge stages over artifacts. It does
// not touch the store.
func (p *Pipeline) MergeArtifacts(ctx context.Context, batchID, locale string, artifacts []domain.SegmentArtifact) domain.MergeOutput {
	out := p.mergeStage(ctx, batchID, artifacts)
	out.Message = NewSummarizer(locale).Merge(out)
	return out
}

func (p *Pipeline) mergeStage(ctx context.Context, batchID string, artifacts []domain.SegmentArtifact) domain.MergeOutput {
	if len(artifacts) < 2 {
		input := domain.MergeInput{Segments: []domain.LocalSegment{}}
		for _, a := range artifacts {
			input.Segments = append(input.Segments, domain.LocalSegment{SegmentArtifact: a})
		}
		out, _ := p.engine.Merge(ctx, nil, input)
		return out
	}

	var out domain.MergeOutput
	err := p.withWorkspace(batchID, func(ws *Workspace) error {
		out = p.fetchAndMerge(ctx, ws, batchID, artifacts)
		return nil
	})
	if err != nil {
		out = domain.MergeOutput{
			Status:    domain.StatusError,
			Segments:  len(artifacts),
			ErrorKind: domain.FailureDownload,
			Error:     err.Error(),
		}
	}
	return out
}

func (p *Pipeline) fetchAndMerge(ctx context.Context, ws *Workspace, batchID string, artifacts []domain.SegmentArtifact) domain.MergeOutput {
	input, fetchFailures := p.fetcher.Fetch(ctx, ws, artifacts)
	if len(input.Segments) == 0 {
		return domain.MergeOutput{
			Status:        domain.StatusError,
			FetchFailures: fetchFailures,
			ErrorKind:     domain.FailureDownload,
		}
	}

	out, err := p.engine.Merge(ctx, ws, input)
	out.FetchFailures = fetchFailures
	if err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("batch: merge failed")
		return out
	}

	if out.LocalPath != "" {
		location, err := p.publisher.Publish(ctx, out.LocalPath, batchID+"/"+mergedName)
		if err != nil {
			p.logger.Error().Err(err).Str("batch_id", batchID).Msg("batch: publish merged video failed")
			return domain.MergeOutput{
				Status:        domain.StatusError,
				Segments:      out.Segments,
				FetchFailures: fetchFailures,
				ErrorKind:     domain.FailurePublish,
				Error:         err.Error(),
			}
		}
		out.ArtifactURL = location
		// The workspace copy is about to be released.
		out.LocalPath = ""
	}

	if len(fetchFailures) > 0 {
		out.Status = domain.StatusPartial
	}
	return out
}

// withWorkspace owns the workspace for the duration of fn and releases it on
// every exit path, panics included.
func (p *Pipeline) withWorkspace(batchID string, fn func(ws *Workspace) error) error {
	ws, err := NewWorkspace(p.workDir, batchID)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			p.logger.Warn().Err(err).Str("batch_id", batchID).Msg("batch: workspace cleanup failed")
		}
	}()
	return fn(ws)
}

func (p *Pipeline) fail(ctx context.Context, batchID string, cause error) error {
	if err := p.store.UpdateStatus(ctx, batchID, domain.BatchStatusFailed, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("batch: mark failed")
	}
	return cause
}
