package video

import (
	"context"
	"strings"
)

// State is the normalized lifecycle of a remote generation task.
type State string

const (
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// SubmitRequest carries one segment to a generation backend. Image fields
// must already be publicly fetchable URLs.
type SubmitRequest struct {
	Prompt          string
	FirstFrame      string
	LastFrame       string
	ReferenceImages []string
	Duration        int
	Ratio           string
	GenerateAudio   bool
}

// HasImages reports whether any image reference is attached.
func (r SubmitRequest) HasImages() bool {
	if strings.TrimSpace(r.FirstFrame) != "" || strings.TrimSpace(r.LastFrame) != "" {
		return true
	}
	for _, ref := range r.ReferenceImages {
		if strings.TrimSpace(ref) != "" {
			return true
		}
	}
	return false
}

// TaskStatus is the normalized answer to a status query. ArtifactURL is only
// set for StateSucceeded and Error only for StateFailed.
type TaskStatus struct {
	State       State
	ArtifactURL string
	Error       string
}

// Service is the contract the batch pipeline needs from a generation backend.
type Service interface {
	// Validate reports whether the backend is configured well enough to
	// accept work.
	Validate() error
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, taskID string) (TaskStatus, error)
}
