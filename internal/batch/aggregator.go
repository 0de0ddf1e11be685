package batch

import (
	"sort"

	"recreator/internal/domain"
)

// Aggregate folds submission failures and poll results into one BatchResult.
// Malformed success entries are dropped from the success list and itemized as
// failures, so SucceededCount+FailedCount always equals len(requests). The
// summary message is rendered by sum in the batch's locale.
func Aggregate(requests []domain.GenerationRequest, sub Submission, results []domain.JobResult, sum Summarizer) domain.BatchResult {
	out := domain.BatchResult{
		Requested: len(requests),
		Succeeded: []domain.SegmentArtifact{},
		Failed:    append([]domain.SegmentFailure{}, sub.Failures...),
	}

	for _, res := range results {
		req := res.Handle.Request
		switch res.Outcome {
		case domain.OutcomeSucceeded:
			artifact, err := domain.NewSegmentArtifact(req.SegmentIndex, req.SegmentName, res.ArtifactURL)
			if err != nil {
				out.Malformed++
				out.Failed = append(out.Failed, domain.SegmentFailure{
					SegmentIndex: req.SegmentIndex,
					SegmentName:  req.Name(),
					Kind:         domain.FailureMalformed,
					Message:      err.Error(),
				})
				continue
			}
			out.Succeeded = append(out.Succeeded, artifact)
		case domain.OutcomeTimedOut:
			out.Failed = append(out.Failed, domain.SegmentFailure{
				SegmentIndex: req.SegmentIndex,
				SegmentName:  req.Name(),
				Kind:         domain.FailurePollTimeout,
				Message:      res.Message,
			})
		default:
			out.Failed = append(out.Failed, domain.SegmentFailure{
				SegmentIndex: req.SegmentIndex,
				SegmentName:  req.Name(),
				Kind:         domain.FailureRemote,
				Message:      res.Message,
			})
		}
	}

	sort.SliceStable(out.Succeeded, func(i, j int) bool {
		return out.Succeeded[i].SegmentIndex < out.Succeeded[j].SegmentIndex
	})
	sort.SliceStable(out.Failed, func(i, j int) bool {
		return out.Failed[i].SegmentIndex < out.Failed[j].SegmentIndex
	})

	out.SucceededCount = len(out.Succeeded)
	out.FailedCount = len(out.Failed)
	out.Status = overallStatus(out.Requested, out.SucceededCount)
	out.Message = sum.Generation(out)
	return out
}

func overallStatus(requested, succeeded int) domain.OverallStatus {
	switch {
	case requested == 0 || succeeded == requested:
		return domain.StatusSuccess
	case succeeded == 0:
		return domain.StatusError
	default:
		return domain.StatusPartial
	}
}
