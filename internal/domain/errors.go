package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConfiguration     = errors.New("configuration error")
	ErrSubmission        = errors.New("submission error")
	ErrPollTimeout       = errors.New("poll timeout")
	ErrRemoteFailed      = errors.New("remote generation failed")
	ErrDownload          = errors.New("download error")
	ErrConcatenation     = errors.New("concatenation error")
	ErrMalformedArtifact = errors.New("malformed artifact")
	ErrUnsupportedShape  = errors.New("unsupported artifact shape")
	ErrDuplicateSegment  = errors.New("duplicate segment index")
	ErrBatchNotQueued    = errors.New("batch is not queued")
	ErrStagePanic        = errors.New("pipeline stage panicked")
)

// ConfigurationError aborts a whole batch before any submission.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// SubmissionError records a per-request submit failure.
type SubmissionError struct {
	SegmentIndex int
	Err          error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit segment %d: %v", e.SegmentIndex, e.Err)
}

func (e *SubmissionError) Unwrap() []error { return []error{ErrSubmission, e.Err} }

// PollTimeoutError is raised when a job exceeds its maximum wait.
type PollTimeoutError struct {
	TaskID  string
	MaxWait time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("generation task %s timed out after %s", e.TaskID, e.MaxWait)
}

func (e *PollTimeoutError) Unwrap() error { return ErrPollTimeout }

// RemoteFailedError carries the failure reported by the remote service.
type RemoteFailedError struct {
	TaskID  string
	Message string
}

func (e *RemoteFailedError) Error() string {
	return fmt.Sprintf("generation task %s failed: %s", e.TaskID, e.Message)
}

func (e *RemoteFailedError) Unwrap() error { return ErrRemoteFailed }

// DownloadError records a per-segment fetch failure.
type DownloadError struct {
	SegmentIndex int
	URL          string
	Err          error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download segment %d from %s: %v", e.SegmentIndex, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() []error { return []error{ErrDownload, e.Err} }

// ConcatenationError is fatal to the merge stage only.
type ConcatenationError struct {
	Output string
	Detail string
	Err    error
}

func (e *ConcatenationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("concatenate %s: %v: %s", e.Output, e.Err, e.Detail)
	}
	return fmt.Sprintf("concatenate %s: %v", e.Output, e.Err)
}

func (e *ConcatenationError) Unwrap() []error { return []error{ErrConcatenation, e.Err} }

// DuplicateSegmentError is returned when two artifacts claim one segment.
type DuplicateSegmentError struct {
	SegmentIndex int
}

func (e *DuplicateSegmentError) Error() string {
	return fmt.Sprintf("segment %d appears more than once", e.SegmentIndex)
}

func (e *DuplicateSegmentError) Unwrap() error { return ErrDuplicateSegment }

// BatchStateError is returned when a batch cannot be claimed for a run
// because another run already took it.
type BatchStateError struct {
	BatchID string
	Status  BatchStatus
}

func (e *BatchStateError) Error() string {
	return fmt.Sprintf("batch %s is %s, not queued", e.BatchID, e.Status)
}

func (e *BatchStateError) Unwrap() error { return ErrBatchNotQueued }
