package batch

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recreator/internal/domain"
	"recreator/internal/providers/video"
)

func TestSnapDuration(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{-3, 5},
		{0, 5},
		{4, 5},
		{5, 5},
		{7, 5},
		{7.5, 5},
		{8, 10},
		{10, 10},
		{30, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SnapDuration(tc.in), "SnapDuration(%v)", tc.in)
	}
}

func TestSubmitterBoundsConcurrency(t *testing.T) {
	svc := &fakeService{submitDelay: 20 * time.Millisecond}
	sub := NewSubmitter(svc, nil, SubmitterOptions{Concurrency: 3})

	out, err := sub.Submit(context.Background(), requestsFor(5, 5, 5, 5, 5, 5, 5, 5, 5))
	require.NoError(t, err)
	assert.Len(t, out.Handles, 9)
	assert.Empty(t, out.Failures)
	assert.LessOrEqual(t, svc.maxInFlight, 3)
	assert.Greater(t, svc.maxInFlight, 1, "submissions should overlap")

	for i, h := range out.Handles {
		assert.Equal(t, i+1, h.Request.SegmentIndex, "handles must be ordered by segment index")
		assert.False(t, h.SubmittedAt.IsZero())
	}
}

func TestSubmitterConfigurationErrorSubmitsNothing(t *testing.T) {
	svc := &fakeService{validateErr: errors.New("api key missing")}
	sub := NewSubmitter(svc, nil, SubmitterOptions{})

	_, err := sub.Submit(context.Background(), requestsFor(5, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "api key missing")
	assert.Empty(t, svc.submittedRequests())
}

func TestSubmitterEmptyListSkipsValidation(t *testing.T) {
	svc := &fakeService{validateErr: errors.New("api key missing")}
	out, err := NewSubmitter(svc, nil, SubmitterOptions{}).Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Handles)
	assert.Zero(t, svc.totalCalls())
}

func TestSubmitterFailureDoesNotBlockSiblings(t *testing.T) {
	svc := &fakeService{submitFn: func(req video.SubmitRequest) (string, error) {
		if req.Prompt == "seg-2" {
			return "", errors.New("bad request")
		}
		return "task-" + req.Prompt, nil
	}}
	out, err := NewSubmitter(svc, nil, SubmitterOptions{}).Submit(context.Background(), requestsFor(5, 5, 5))
	require.NoError(t, err)

	require.Len(t, out.Handles, 2)
	assert.Equal(t, 1, out.Handles[0].Request.SegmentIndex)
	assert.Equal(t, 3, out.Handles[1].Request.SegmentIndex)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, domain.FailureSubmission, out.Failures[0].Kind)
	assert.Equal(t, "segment_2", out.Failures[0].SegmentName)
	assert.Contains(t, out.Failures[0].Message, "bad request")
}

func TestSubmitterSnapsDurationsAndDefaultsRatio(t *testing.T) {
	svc := &fakeService{}
	_, err := NewSubmitter(svc, nil, SubmitterOptions{Concurrency: 1}).Submit(context.Background(), requestsFor(5, 10, 7))
	require.NoError(t, err)

	got := map[string]int{}
	for _, req := range svc.submittedRequests() {
		got[req.Prompt] = req.Duration
		assert.Equal(t, "9:16", req.Ratio)
	}
	assert.Equal(t, map[string]int{"seg-1": 5, "seg-2": 10, "seg-3": 5}, got)
}

func TestSubmitterPromotesInlineMedia(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	inlinePNG := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	inlineText := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("just some text"))

	svc := &fakeService{}
	uploader := &fakeUploader{}
	req := domain.GenerationRequest{
		SegmentIndex:    1,
		Prompt:          "seg-1",
		FirstFrame:      inlinePNG,
		LastFrame:       "https://img.test/last.png",
		ReferenceImages: []string{inlineText, "https://img.test/ref.png", "data:image/png;base64,!!!"},
		Duration:        5,
		Selected:        true,
	}
	out, err := NewSubmitter(svc, uploader, SubmitterOptions{}).Submit(context.Background(), []domain.GenerationRequest{req})
	require.NoError(t, err)
	require.Len(t, out.Handles, 1)

	sent := svc.submittedRequests()
	require.Len(t, sent, 1)
	assert.Equal(t, "https://uploads.test/1", sent[0].FirstFrame)
	assert.Equal(t, "https://img.test/last.png", sent[0].LastFrame)
	assert.Equal(t, []string{"https://img.test/ref.png"}, sent[0].ReferenceImages, "invalid inline payloads are skipped in order")
	assert.Equal(t, []string{"image/png"}, uploader.mimes)
}

func TestSubmitterSkipsMediaWhenUploadFails(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	svc := &fakeService{}
	uploader := &fakeUploader{err: errors.New("bucket unavailable")}
	req := domain.GenerationRequest{
		SegmentIndex: 1,
		Prompt:       "seg-1",
		FirstFrame:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Duration:     5,
		Selected:     true,
	}
	out, err := NewSubmitter(svc, uploader, SubmitterOptions{}).Submit(context.Background(), []domain.GenerationRequest{req})
	require.NoError(t, err)
	require.Len(t, out.Handles, 1, "a failed promotion drops the reference, not the request")
	assert.Empty(t, svc.submittedRequests()[0].FirstFrame)
}
