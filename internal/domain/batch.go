package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BatchStatus enumerates the lifecycle of a stored batch record.
type BatchStatus string

const (
	BatchStatusQueued    BatchStatus = "queued"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// OverallStatus summarizes the outcome of a pipeline stage.
type OverallStatus string

const (
	StatusSuccess OverallStatus = "success"
	StatusPartial OverallStatus = "partial"
	StatusError   OverallStatus = "error"
)

// Outcome is the terminal state of a single remote job.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// FailureKind tags an itemized failure with the stage that produced it.
type FailureKind string

const (
	FailureSubmission    FailureKind = "submission"
	FailureRemote        FailureKind = "remote_failed"
	FailurePollTimeout   FailureKind = "poll_timeout"
	FailureMalformed     FailureKind = "malformed"
	FailureDownload      FailureKind = "download"
	FailureConcatenation FailureKind = "concatenation"
	FailurePublish       FailureKind = "publish"
)

// GenerationRequest describes one segment to be generated remotely.
// FirstFrame, LastFrame and ReferenceImages accept http(s) URLs or inline
// data:image/...;base64 payloads.
type GenerationRequest struct {
	SegmentIndex    int      `json:"segment_index"`
	SegmentName     string   `json:"segment_name,omitempty"`
	Prompt          string   `json:"positive_prompt"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	FirstFrame      string   `json:"first_frame,omitempty"`
	LastFrame       string   `json:"last_frame,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	Duration        float64  `json:"duration"`
	AspectRatio     string   `json:"ratio,omitempty"`
	GenerateAudio   bool     `json:"generate_audio,omitempty"`
	Selected        bool     `json:"selected"`
}

// Name returns the segment name, defaulting to segment_<index>.
func (r GenerationRequest) Name() string {
	if name := strings.TrimSpace(r.SegmentName); name != "" {
		return name
	}
	return fmt.Sprintf("segment_%d", r.SegmentIndex)
}

// SelectedRequests returns the requests flagged for generation, preserving order.
func SelectedRequests(requests []GenerationRequest) []GenerationRequest {
	selected := make([]GenerationRequest, 0, len(requests))
	for _, req := range requests {
		if req.Selected {
			selected = append(selected, req)
		}
	}
	return selected
}

// JobHandle ties an opaque remote task identifier to its originating request.
type JobHandle struct {
	ID          string            `json:"id"`
	Request     GenerationRequest `json:"request"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// JobResult is the terminal state of one JobHandle.
type JobResult struct {
	Handle      JobHandle `json:"handle"`
	Outcome     Outcome   `json:"outcome"`
	ArtifactURL string    `json:"artifact_url,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// SegmentArtifact is one well-formed success entry.
type SegmentArtifact struct {
	SegmentIndex int    `json:"segment_index"`
	SegmentName  string `json:"segment_name"`
	ArtifactURL  string `json:"artifact_url"`
}

// NewSegmentArtifact is the canonical constructor for success entries. It
// rejects entries without a segment reference or with a non-http(s) URL.
func NewSegmentArtifact(index int, name, artifactURL string) (SegmentArtifact, error) {
	name = strings.TrimSpace(name)
	if index <= 0 && name == "" {
		return SegmentArtifact{}, fmt.Errorf("%w: missing segment reference", ErrMalformedArtifact)
	}
	artifactURL = strings.TrimSpace(artifactURL)
	if artifactURL == "" {
		return SegmentArtifact{}, fmt.Errorf("%w: missing artifact url", ErrMalformedArtifact)
	}
	parsed, err := url.Parse(artifactURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return SegmentArtifact{}, fmt.Errorf("%w: invalid artifact url %q", ErrMalformedArtifact, artifactURL)
	}
	if name == "" {
		name = fmt.Sprintf("segment_%d", index)
	}
	return SegmentArtifact{SegmentIndex: index, SegmentName: name, ArtifactURL: artifactURL}, nil
}

// SegmentFailure is one itemized per-segment failure.
type SegmentFailure struct {
	SegmentIndex int         `json:"segment_index"`
	SegmentName  string      `json:"segment_name"`
	Kind         FailureKind `json:"kind"`
	Message      string      `json:"message"`
}

// BatchResult is the consolidated outcome of submission and polling.
type BatchResult struct {
	Status         OverallStatus     `json:"status"`
	Succeeded      []SegmentArtifact `json:"success_list"`
	Failed         []SegmentFailure  `json:"error_list"`
	Requested      int               `json:"total_requested"`
	SucceededCount int               `json:"total_succeeded"`
	FailedCount    int               `json:"total_failed"`
	Malformed      int               `json:"total_malformed"`
	Message        string            `json:"message"`
}

// LocalSegment is a succeeded artifact that was downloaded to the workspace.
type LocalSegment struct {
	SegmentArtifact
	Path string `json:"path"`
}

// MergeInput lists local segments ordered by segment index.
type MergeInput struct {
	Segments []LocalSegment `json:"segments"`
}

// MergeOutput is the outcome of the merge stage. NoMergeNeeded with an empty
// ArtifactURL marks a batch that had nothing to merge.
type MergeOutput struct {
	Status        OverallStatus    `json:"status"`
	NoMergeNeeded bool             `json:"no_merge_needed"`
	ArtifactURL   string           `json:"merged_video_url,omitempty"`
	LocalPath     string           `json:"merged_video_path,omitempty"`
	Segments      int              `json:"total_segments"`
	FetchFailures []SegmentFailure `json:"fetch_failures,omitempty"`
	ErrorKind     FailureKind      `json:"error_kind,omitempty"`
	Error         string           `json:"error,omitempty"`
	Message       string           `json:"message"`
}

// Batch is the state store record for one batch invocation.
type Batch struct {
	ID            string              `json:"id"`
	Status        BatchStatus         `json:"status"`
	Locale        string              `json:"locale,omitempty"`
	Requests      []GenerationRequest `json:"requests"`
	EstimatedCost float64             `json:"estimated_cost"`
	Result        *BatchResult        `json:"result,omitempty"`
	Merge         *MergeOutput        `json:"merge,omitempty"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
