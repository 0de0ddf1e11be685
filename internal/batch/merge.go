package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"recreator/internal/domain"
	"recreator/internal/infra"
)

const (
	manifestName = "concat_list.txt"
	mergedName   = "merged.mp4"
)

// Concatenator joins the files listed in a concat manifest into output.
type Concatenator interface {
	Concat(ctx context.Context, manifestPath, outputPath string) error
}

// FFmpegConcatenator shells out to ffmpeg's concat demuxer with stream copy.
type FFmpegConcatenator struct {
	Path string
}

// Concat implements Concatenator.
func (c FFmpegConcatenator) Concat(ctx context.Context, manifestPath, outputPath string) error {
	bin := c.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-y", outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &domain.ConcatenationError{Output: outputPath, Detail: tail(stderr.String(), 1000), Err: err}
	}
	return nil
}

// MergeEngine concatenates local segments in index order.
type MergeEngine struct {
	concat Concatenator
	logger *infra.Logger
}

// NewMergeEngine wires an engine around concat.
func NewMergeEngine(concat Concatenator, logger *infra.Logger) *MergeEngine {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &MergeEngine{concat: concat, logger: logger}
}

// Merge produces the final artifact for input. Zero segments need no merge;
// one segment is returned as its remote URL without touching the
// concatenator. ws may be nil for those two cases.
func (e *MergeEngine) Merge(ctx context.Context, ws *Workspace, input domain.MergeInput) (domain.MergeOutput, error) {
	switch len(input.Segments) {
	case 0:
		return domain.MergeOutput{Status: domain.StatusSuccess, NoMergeNeeded: true}, nil
	case 1:
		seg := input.Segments[0]
		return domain.MergeOutput{
			Status:        domain.StatusSuccess,
			NoMergeNeeded: true,
			ArtifactURL:   seg.ArtifactURL,
			Segments:      1,
		}, nil
	}

	if ws == nil {
		return domain.MergeOutput{}, errors.New("batch: merge needs a workspace")
	}
	manifest := ws.Path(manifestName)
	output := ws.Path(mergedName)
	if err := writeManifest(manifest, input.Segments); err != nil {
		return mergeFailure(len(input.Segments), err), err
	}

	e.logger.Info().Int("segments", len(input.Segments)).Str("output", output).Msg("batch: concatenating segments")
	if err := e.concat.Concat(ctx, manifest, output); err != nil {
		var concatErr *domain.ConcatenationError
		if !errors.As(err, &concatErr) {
			err = &domain.ConcatenationError{Output: output, Err: err}
		}
		return mergeFailure(len(input.Segments), err), err
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		err := &domain.ConcatenationError{Output: output, Err: errors.New("no output produced")}
		return mergeFailure(len(input.Segments), err), err
	}
	_ = os.Remove(manifest)

	return domain.MergeOutput{
		Status:    domain.StatusSuccess,
		LocalPath: output,
		Segments:  len(input.Segments),
	}, nil
}

func mergeFailure(segments int, err error) domain.MergeOutput {
	return domain.MergeOutput{
		Status:    domain.StatusError,
		Segments:  segments,
		ErrorKind: domain.FailureConcatenation,
		Error:     err.Error(),
	}
}

// writeManifest writes one `file '<path>'` line per segment.
func writeManifest(path string, segments []domain.LocalSegment) error {
	var b strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg.Path)
		if err != nil {
			return fmt.Errorf("batch: resolve segment path: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeManifestPath(abs))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("batch: write concat manifest: %w", err)
	}
	return nil
}

// escapeManifestPath closes the quote, emits an escaped quote and reopens.
func escapeManifestPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
