package batch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recreator/internal/domain"
)

func artifact(t *testing.T, index int, url string) domain.SegmentArtifact {
	t.Helper()
	a, err := domain.NewSegmentArtifact(index, "", url)
	require.NoError(t, err)
	return a
}

func TestFetcherOrdersByIndexRegardlessOfCompletion(t *testing.T) {
	srv := segmentServer(t, nil, map[string]time.Duration{
		"/seg/1.mp4": 60 * time.Millisecond,
		"/seg/2.mp4": 30 * time.Millisecond,
	})
	ws, err := NewWorkspace(t.TempDir(), "b1")
	require.NoError(t, err)
	defer ws.Release()

	input, failures := NewFetcher(FetcherOptions{}).Fetch(context.Background(), ws, []domain.SegmentArtifact{
		artifact(t, 3, srv.URL+"/seg/3.mp4"),
		artifact(t, 1, srv.URL+"/seg/1.mp4"),
		artifact(t, 2, srv.URL+"/seg/2.mp4"),
	})
	assert.Empty(t, failures)
	require.Len(t, input.Segments, 3)
	for i, seg := range input.Segments {
		assert.Equal(t, i+1, seg.SegmentIndex)
		data, err := os.ReadFile(seg.Path)
		require.NoError(t, err)
		assert.Equal(t, mp4Bytes, data)
	}
}

func TestFetcherRecordsFailures(t *testing.T) {
	srv := segmentServer(t, map[string]bool{"/seg/2.mp4": true}, nil)
	ws, err := NewWorkspace(t.TempDir(), "b1")
	require.NoError(t, err)
	defer ws.Release()

	input, failures := NewFetcher(FetcherOptions{}).Fetch(context.Background(), ws, []domain.SegmentArtifact{
		artifact(t, 1, srv.URL+"/seg/1.mp4"),
		artifact(t, 2, srv.URL+"/seg/2.mp4"),
		artifact(t, 3, srv.URL+"/html/3.mp4"),
	})
	require.Len(t, input.Segments, 1)
	assert.Equal(t, 1, input.Segments[0].SegmentIndex)

	require.Len(t, failures, 2)
	assert.Equal(t, 2, failures[0].SegmentIndex)
	assert.Equal(t, domain.FailureDownload, failures[0].Kind)
	assert.Contains(t, failures[0].Message, "404")
	assert.Equal(t, 3, failures[1].SegmentIndex)
	assert.Contains(t, failures[1].Message, "text/html")

	assert.ElementsMatch(t, []string{"01_segment_1.mp4"}, dirEntries(t, ws.Dir()), "failed downloads leave no partial files")
}

func TestFetcherKeepsSameIndexDownloadsApart(t *testing.T) {
	srv := segmentServer(t, nil, nil)
	ws, err := NewWorkspace(t.TempDir(), "b1")
	require.NoError(t, err)
	defer ws.Release()

	input, failures := NewFetcher(FetcherOptions{}).Fetch(context.Background(), ws, []domain.SegmentArtifact{
		artifact(t, 1, srv.URL+"/seg/1.mp4"),
		artifact(t, 1, srv.URL+"/seg/2.mp4"),
	})
	assert.Empty(t, failures)
	require.Len(t, input.Segments, 2)
	assert.NotEqual(t, input.Segments[0].Path, input.Segments[1].Path)
	assert.Len(t, dirEntries(t, ws.Dir()), 2)
}

func TestFetcherTimeout(t *testing.T) {
	srv := segmentServer(t, nil, map[string]time.Duration{"/seg/1.mp4": 300 * time.Millisecond})
	ws, err := NewWorkspace(t.TempDir(), "b1")
	require.NoError(t, err)
	defer ws.Release()

	input, failures := NewFetcher(FetcherOptions{Timeout: 30 * time.Millisecond}).Fetch(context.Background(), ws, []domain.SegmentArtifact{
		artifact(t, 1, srv.URL+"/seg/1.mp4"),
	})
	assert.Empty(t, input.Segments)
	require.Len(t, failures, 1)
	assert.Equal(t, domain.FailureDownload, failures[0].Kind)
}
