package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Workspace is a per-batch scratch directory. Release removes it and is safe
// to call more than once.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a fresh directory under root for batchID.
func NewWorkspace(root, batchID string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("batch: ensure work root: %w", err)
	}
	prefix := unsafeDirChars.ReplaceAllString(batchID, "_")
	if prefix == "" {
		prefix = "batch"
	}
	dir, err := os.MkdirTemp(root, "video-merge-"+prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("batch: create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Release deletes the workspace and everything in it.
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.err = fmt.Errorf("batch: release workspace: %w", err)
		}
	})
	return w.err
}
