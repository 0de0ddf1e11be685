package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"recreator/internal/domain"
	"recreator/internal/infra"
)

const defaultDownloadTimeout = 120 * time.Second

// FetcherOptions tunes the download stage.
type FetcherOptions struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Fetcher downloads succeeded segments into a workspace.
type Fetcher struct {
	client  *resty.Client
	timeout time.Duration
	logger  *infra.Logger
}

// NewFetcher wires a fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Fetcher{
		client:  resty.NewWithClient(httpClient),
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch downloads every artifact concurrently. The returned MergeInput only
// holds segments that landed on disk and is sorted by segment index.
func (f *Fetcher) Fetch(ctx context.Context, ws *Workspace, artifacts []domain.SegmentArtifact) (domain.MergeInput, []domain.SegmentFailure) {
	local := make([]*domain.LocalSegment, len(artifacts))
	failures := make([]*domain.SegmentFailure, len(artifacts))

	var g errgroup.Group
	for i, artifact := range artifacts {
		g.Go(func() error {
			// Named by position so no two downloads share a file.
			path := ws.Path(fmt.Sprintf("%02d_segment_%d.mp4", i+1, artifact.SegmentIndex))
			if err := f.download(ctx, artifact.ArtifactURL, path); err != nil {
				dlErr := &domain.DownloadError{SegmentIndex: artifact.SegmentIndex, URL: artifact.ArtifactURL, Err: err}
				f.logger.Warn().Err(err).Int("segment", artifact.SegmentIndex).Msg("batch: segment download failed")
				failures[i] = &domain.SegmentFailure{
					SegmentIndex: artifact.SegmentIndex,
					SegmentName:  artifact.SegmentName,
					Kind:         domain.FailureDownload,
					Message:      dlErr.Error(),
				}
				return nil
			}
			local[i] = &domain.LocalSegment{SegmentArtifact: artifact, Path: path}
			return nil
		})
	}
	_ = g.Wait()

	input := domain.MergeInput{Segments: []domain.LocalSegment{}}
	var failed []domain.SegmentFailure
	for i := range artifacts {
		if local[i] != nil {
			input.Segments = append(input.Segments, *local[i])
		}
		if failures[i] != nil {
			failed = append(failed, *failures[i])
		}
	}
	sort.SliceStable(input.Segments, func(a, b int) bool {
		return input.Segments[a].SegmentIndex < input.Segments[b].SegmentIndex
	})
	sort.SliceStable(failed, func(a, b int) bool {
		return failed[a].SegmentIndex < failed[b].SegmentIndex
	})
	return input, failed
}

func (f *Fetcher) download(ctx context.Context, url, path string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	res, err := f.client.R().
		SetContext(ctx).
		SetOutput(path).
		Get(url)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("unexpected status %d", res.StatusCode())
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("empty download")
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("inspect download: %w", err)
	}
	if rejectedPayload(detected.String()) {
		return fmt.Errorf("unexpected payload type %s", detected.String())
	}
	return nil
}

// rejectedPayload catches error pages served with a 200.
func rejectedPayload(mime string) bool {
	return strings.HasPrefix(mime, "text/") || strings.HasPrefix(mime, "application/json")
}
