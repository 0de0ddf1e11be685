package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"recreator/internal/domain"
	"recreator/internal/providers/video"
)

// mp4Bytes starts with an ftyp box so content sniffing sees a video.
var mp4Bytes = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom\x00\x00\x00\x08free")

type fakeService struct {
	mu          sync.Mutex
	validateErr error
	submitDelay time.Duration
	submitFn    func(req video.SubmitRequest) (string, error)
	statusFn    func(id string, call int) (video.TaskStatus, error)

	submitted   []video.SubmitRequest
	statusCalls map[string]int
	inFlight    int
	maxInFlight int
}

func (f *fakeService) Validate() error { return f.validateErr }

func (f *fakeService) Submit(ctx context.Context, req video.SubmitRequest) (string, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.submitDelay > 0 {
		select {
		case <-time.After(f.submitDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.submitFn != nil {
		return f.submitFn(req)
	}
	return "task-" + req.Prompt, nil
}

func (f *fakeService) Status(_ context.Context, id string) (video.TaskStatus, error) {
	f.mu.Lock()
	if f.statusCalls == nil {
		f.statusCalls = map[string]int{}
	}
	f.statusCalls[id]++
	call := f.statusCalls[id]
	f.mu.Unlock()
	if f.statusFn != nil {
		return f.statusFn(id, call)
	}
	return video.TaskStatus{State: video.StatePolling}, nil
}

func (f *fakeService) submittedRequests() []video.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]video.SubmitRequest(nil), f.submitted...)
}

func (f *fakeService) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := len(f.submitted)
	for _, n := range f.statusCalls {
		total += n
	}
	return total
}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	mimes []string
}

func (u *fakeUploader) Upload(_ context.Context, data []byte, mime string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mimes = append(u.mimes, mime)
	return fmt.Sprintf("https://uploads.test/%d", len(u.mimes)), nil
}

type fakeConcat struct {
	mu        sync.Mutex
	calls     int
	manifests []string
	err       error
	panicMsg  string
}

func (c *fakeConcat) Concat(_ context.Context, manifestPath, outputPath string) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.manifests = append(c.manifests, string(raw))
	c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(outputPath, mp4Bytes, 0o644)
}

func (c *fakeConcat) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// segmentServer serves /seg/<n>.mp4 as video. Paths listed in failing answer
// 404; delays hold a response back.
func segmentServer(t *testing.T, failing map[string]bool, delays map[string]time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := delays[r.URL.Path]; d > 0 {
			time.Sleep(d)
		}
		switch {
		case failing[r.URL.Path]:
			http.NotFound(w, r)
		case strings.HasPrefix(r.URL.Path, "/html/"):
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>expired link</body></html>"))
		default:
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write(mp4Bytes)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func succeededWith(url string) video.TaskStatus {
	return video.TaskStatus{State: video.StateSucceeded, ArtifactURL: url}
}

var errTransient = errors.New("connection reset")

func requestsFor(durations ...float64) []domain.GenerationRequest {
	reqs := make([]domain.GenerationRequest, len(durations))
	for i, d := range durations {
		reqs[i] = domain.GenerationRequest{
			SegmentIndex: i + 1,
			Prompt:       fmt.Sprintf("seg-%d", i+1),
			Duration:     d,
			Selected:     true,
		}
	}
	return reqs
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
