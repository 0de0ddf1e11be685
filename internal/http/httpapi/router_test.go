package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"recreator/internal/adapter/repo"
	"recreator/internal/domain"
	"recreator/internal/http/handlers"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, batchID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, batchID)
	return nil
}

type fixture struct {
	store      *repo.MemoryBatchRepository
	dispatcher *recordingDispatcher
	app        *handlers.App
	handler    http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{store: repo.NewMemoryBatchRepository(), dispatcher: &recordingDispatcher{}}
	f.app = handlers.NewApp(f.store, f.dispatcher, 2, nil)
	opts.Logger = zerolog.Nop()
	if opts.Locales == nil {
		opts.Locales = []language.Tag{language.English, language.SimplifiedChinese}
	}
	f.handler = NewRouter(f.app, opts)
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "198.51.100.10:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

const twoSegments = `{"prompts":[
	{"segment_index":2,"positive_prompt":"city at night","duration":10,"selected":true},
	{"segment_index":1,"positive_prompt":"sunrise","duration":5,"selected":true},
	{"segment_index":3,"positive_prompt":"unused","duration":5,"selected":false}
]}`

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f.app.Ready = func(context.Context) error { return errors.New("db down") }
	rec = f.do(http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateBatchQueuesAndDispatches(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(http.MethodPost, "/v1/batches", twoSegments, map[string]string{"Accept-Language": "zh-CN"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[struct {
		BatchID  string              `json:"batch_id"`
		Status   string              `json:"status"`
		Locale   string              `json:"locale"`
		Estimate domain.CostEstimate `json:"estimate"`
	}](t, rec)
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "zh-Hans", resp.Locale)
	assert.Equal(t, domain.CostEstimate{TotalSelected: 2, TotalDuration: 15, TotalCost: 30}, resp.Estimate)
	assert.Equal(t, "/v1/batches/"+resp.BatchID, rec.Header().Get("Location"))
	assert.Equal(t, []string{resp.BatchID}, f.dispatcher.ids)

	stored, err := f.store.Get(context.Background(), resp.BatchID)
	require.NoError(t, err)
	require.Len(t, stored.Requests, 3)
	assert.Equal(t, 1, stored.Requests[0].SegmentIndex, "requests are stored in segment order")
	assert.Equal(t, 30.0, stored.EstimatedCost)
}

func TestCreateBatchRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t, Options{})
	cases := map[string]string{
		"not json":       `{"prompts":`,
		"empty body":     ``,
		"missing prompt": `[{"segment_index":1,"selected":true}]`,
		"bad ratio":      `[{"segment_index":1,"positive_prompt":"x","ratio":"2:1","selected":true}]`,
		"duplicate":      `[{"segment_index":1,"positive_prompt":"x"},{"segment_index":1,"positive_prompt":"y"}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/batches", body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			env := decode[errorEnvelope](t, rec)
			assert.Equal(t, "bad_request", env.Error.Code)
		})
	}
	assert.Empty(t, f.dispatcher.ids)
}

func TestCreateBatchDispatchFailureMarksBatchFailed(t *testing.T) {
	f := newFixture(t, Options{})
	f.dispatcher.err = errors.New("redis: connection refused")

	rec := f.do(http.MethodPost, "/v1/batches", twoSegments, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decode[errorEnvelope](t, rec)
	assert.Equal(t, "queue_unavailable", env.Error.Code)
	assert.NotContains(t, rec.Body.String(), "redis", "internal faults are not leaked")
}

func TestGetBatch(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.store.Create(context.Background(), &domain.Batch{ID: "b1", Locale: "en"}))
	require.NoError(t, f.store.SaveResult(context.Background(), "b1", domain.BatchResult{Status: domain.StatusPartial, Requested: 2}))

	rec := f.do(http.MethodGet, "/v1/batches/b1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.Batch](t, rec)
	assert.Equal(t, "b1", got.ID)
	require.NotNil(t, got.Result)
	assert.Equal(t, domain.StatusPartial, got.Result.Status)

	rec = f.do(http.MethodGet, "/v1/batches/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorEnvelope](t, rec).Error.Code)
}

func TestEstimateBatch(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(http.MethodPost, "/v1/batches/estimate", twoSegments, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CostEstimate{TotalSelected: 2, TotalDuration: 15, TotalCost: 30}, decode[domain.CostEstimate](t, rec))
	assert.Empty(t, f.dispatcher.ids, "estimates never schedule work")
}

func TestBatchRoutesRequireToken(t *testing.T) {
	f := newFixture(t, Options{APITokens: []string{"s3cret"}})

	rec := f.do(http.MethodPost, "/v1/batches/estimate", twoSegments, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/v1/batches/estimate", twoSegments, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestCreateBatchRateLimited(t *testing.T) {
	f := newFixture(t, Options{RateLimitPerMin: 1})
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/batches", twoSegments, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/v1/batches", twoSegments, nil).Code)
	assert.Len(t, f.dispatcher.ids, 1)
}

func TestOpenAPIAndStatic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b1", "merged.mp4"), []byte("video"), 0o644))
	f := newFixture(t, Options{StaticDir: dir})

	rec := f.do(http.MethodGet, "/v1/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Contains(t, spec["paths"], "/v1/batches")

	rec = f.do(http.MethodGet, "/static/b1/merged.mp4", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video", rec.Body.String())
}
