package batch

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"recreator/internal/domain"
	"recreator/internal/domain/jsoncfg"
	"recreator/internal/infra"
	"recreator/internal/providers/video"
	"recreator/internal/storage"
)

// LegalDurations are the only clip lengths the generation service accepts.
var LegalDurations = []int{5, 10}

const defaultSubmitConcurrency = 3

// SnapDuration maps d to the nearest legal duration. Ties go to the shorter
// value.
func SnapDuration(d float64) int {
	best := LegalDurations[0]
	bestDist := math.Abs(d - float64(best))
	for _, legal := range LegalDurations[1:] {
		if dist := math.Abs(d - float64(legal)); dist < bestDist {
			best, bestDist = legal, dist
		}
	}
	return best
}

// Submission is the output of the submit stage.
type Submission struct {
	Handles  []domain.JobHandle
	Failures []domain.SegmentFailure
}

// SubmitterOptions tunes the submit stage.
type SubmitterOptions struct {
	Concurrency int
	Timeout     time.Duration
	Logger      *infra.Logger
}

// Submitter sends generation requests with bounded concurrency.
type Submitter struct {
	service     video.Service
	uploader    storage.Uploader
	concurrency int
	timeout     time.Duration
	logger      *infra.Logger
	now         func() time.Time
}

// NewSubmitter wires a submitter. uploader may be nil when no request carries
// inline media.
func NewSubmitter(service video.Service, uploader storage.Uploader, opts SubmitterOptions) *Submitter {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = defaultSubmitConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Submitter{
		service:     service,
		uploader:    uploader,
		concurrency: concurrency,
		timeout:     opts.Timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit submits every request and returns one handle per accepted request
// and one failure per rejected request, both ordered by segment index. A
// misconfigured service aborts before anything is sent. An empty request list
// returns immediately.
func (s *Submitter) Submit(ctx context.Context, requests []domain.GenerationRequest) (Submission, error) {
	if len(requests) == 0 {
		return Submission{}, nil
	}
	if s.service == nil {
		return Submission{}, &domain.ConfigurationError{Reason: "no generation service configured"}
	}
	if err := s.service.Validate(); err != nil {
		return Submission{}, &domain.ConfigurationError{Reason: err.Error()}
	}

	handles := make([]*domain.JobHandle, len(requests))
	failures := make([]*domain.SegmentFailure, len(requests))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, req := range requests {
		g.Go(func() error {
			id, err := s.submitOne(ctx, req)
			if err != nil {
				subErr := &domain.SubmissionError{SegmentIndex: req.SegmentIndex, Err: err}
				s.logger.Warn().Err(err).Int("segment", req.SegmentIndex).Msg("batch: submit failed")
				failures[i] = &domain.SegmentFailure{
					SegmentIndex: req.SegmentIndex,
					SegmentName:  req.Name(),
					Kind:         domain.FailureSubmission,
					Message:      subErr.Error(),
				}
				return nil
			}
			handles[i] = &domain.JobHandle{ID: id, Request: req, SubmittedAt: s.now()}
			s.logger.Info().Str("task_id", id).Int("segment", req.SegmentIndex).Msg("batch: submitted")
			return nil
		})
	}
	_ = g.Wait()

	var out Submission
	for i := range requests {
		if handles[i] != nil {
			out.Handles = append(out.Handles, *handles[i])
		}
		if failures[i] != nil {
			out.Failures = append(out.Failures, *failures[i])
		}
	}
	sort.SliceStable(out.Handles, func(a, b int) bool {
		return out.Handles[a].Request.SegmentIndex < out.Handles[b].Request.SegmentIndex
	})
	sort.SliceStable(out.Failures, func(a, b int) bool {
		return out.Failures[a].SegmentIndex < out.Failures[b].SegmentIndex
	})
	return out, nil
}

func (s *Submitter) submitOne(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sub := video.SubmitRequest{
		Prompt:        req.Prompt,
		Duration:      SnapDuration(req.Duration),
		Ratio:         strings.TrimSpace(req.AspectRatio),
		GenerateAudio: req.GenerateAudio,
	}
	if sub.Ratio == "" {
		sub.Ratio = jsoncfg.DefaultAspectRatio
	}
	sub.FirstFrame = s.promote(ctx, req, "first_frame", req.FirstFrame)
	sub.LastFrame = s.promote(ctx, req, "last_frame", req.LastFrame)
	for _, ref := range req.ReferenceImages {
		if url := s.promote(ctx, req, "reference_image", ref); url != "" {
			sub.ReferenceImages = append(sub.ReferenceImages, url)
		}
	}
	if req.Duration > 0 && float64(sub.Duration) != req.Duration {
		s.logger.Debug().Int("segment", req.SegmentIndex).Float64("requested", req.Duration).Int("snapped", sub.Duration).Msg("batch: duration snapped")
	}
	return s.service.Submit(ctx, sub)
}

// promote returns "" when the reference has to be skipped.
func (s *Submitter) promote(ctx context.Context, req domain.GenerationRequest, field, ref string) string {
	url, err := promoteMedia(ctx, s.uploader, ref)
	if err != nil {
		s.logger.Warn().Err(err).Int("segment", req.SegmentIndex).Str("field", field).Msg("batch: skipping inline media")
		return ""
	}
	return url
}
