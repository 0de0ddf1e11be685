package seedance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"recreator/internal/providers/video"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rec.Body); err != nil {
				t.Errorf("request body is not json: %v", err)
			}
		}
		seen = append(seen, rec)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestSubmitTextOnlyUsesTextModel(t *testing.T) {
	srv, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"task-1"}`))
	})
	client, err := NewClient(Options{APIKey: "secret", BaseURL: srv.URL + "/api/v3/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	id, err := client.Submit(context.Background(), video.SubmitRequest{
		Prompt:        "a cat on a skateboard",
		Duration:      5,
		Ratio:         "9:16",
		GenerateAudio: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "task-1" {
		t.Fatalf("id = %q, want task-1", id)
	}
	if len(*seen) != 1 {
		t.Fatalf("expected one request, got %d", len(*seen))
	}
	req := (*seen)[0]
	if req.Method != http.MethodPost || req.Path != "/api/v3/contents/generations/tasks" {
		t.Fatalf("unexpected call %s %s", req.Method, req.Path)
	}
	if req.Auth != "Bearer secret" {
		t.Fatalf("auth header = %q", req.Auth)
	}
	if req.Body["model"] != DefaultTextModel {
		t.Fatalf("model = %v, want %s", req.Body["model"], DefaultTextModel)
	}
	if req.Body["watermark"] != false {
		t.Fatalf("watermark = %v, want false", req.Body["watermark"])
	}
	if req.Body["duration"] != float64(5) || req.Body["ratio"] != "9:16" {
		t.Fatalf("duration/ratio = %v/%v", req.Body["duration"], req.Body["ratio"])
	}
	if _, ok := req.Body["generate_audio"]; ok {
		t.Fatalf("text model must not request audio")
	}
	content := req.Body["content"].([]any)
	if len(content) != 1 || content[0].(map[string]any)["text"] != "a cat on a skateboard" {
		t.Fatalf("unexpected content %v", content)
	}
}

func TestSubmitImageRolesAndAudio(t *testing.T) {
	srv, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"task-2"}`))
	})
	client, err := NewClient(Options{APIKey: "secret", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Submit(context.Background(), video.SubmitRequest{
		Prompt:          "sunrise",
		FirstFrame:      "https://img/first.png",
		LastFrame:       "https://img/last.png",
		ReferenceImages: []string{"https://img/ref.png", " "},
		Duration:        10,
		Ratio:           "16:9",
		GenerateAudio:   true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	body := (*seen)[0].Body
	if body["model"] != DefaultImageModel {
		t.Fatalf("model = %v, want %s", body["model"], DefaultImageModel)
	}
	if body["generate_audio"] != true {
		t.Fatalf("expected audio for %s", DefaultImageModel)
	}
	content := body["content"].([]any)
	if len(content) != 4 {
		t.Fatalf("content items = %d, want 4", len(content))
	}
	wantRoles := []string{"", "first_frame", "last_frame", "reference_image"}
	for i, item := range content {
		got, _ := item.(map[string]any)["role"].(string)
		if got != wantRoles[i] {
			t.Fatalf("content[%d].role = %q, want %q", i, got, wantRoles[i])
		}
	}
}

func TestSubmitSingleFirstFrameOmitsRole(t *testing.T) {
	srv, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"task-3"}`))
	})
	client, _ := NewClient(Options{APIKey: "secret", BaseURL: srv.URL, Model: "custom-model"})

	if _, err := client.Submit(context.Background(), video.SubmitRequest{Prompt: "p", FirstFrame: "https://img/a.png", Duration: 5, GenerateAudio: true}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	body := (*seen)[0].Body
	if body["model"] != "custom-model" {
		t.Fatalf("configured model should win, got %v", body["model"])
	}
	if _, ok := body["generate_audio"]; ok {
		t.Fatalf("custom model must not request audio")
	}
	image := body["content"].([]any)[1].(map[string]any)
	if _, ok := image["role"]; ok {
		t.Fatalf("single first frame must not carry a role: %v", image)
	}
}

func TestSubmitSurfacesAPIError(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"InvalidParameter","message":"image not reachable"}}`))
	})
	client, _ := NewClient(Options{APIKey: "secret", BaseURL: srv.URL})

	_, err := client.Submit(context.Background(), video.SubmitRequest{Prompt: "p", Duration: 5})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "image not reachable (InvalidParameter)") {
		t.Fatalf("error = %v", err)
	}
}

func TestStatusNormalization(t *testing.T) {
	responses := map[string]string{
		"/contents/generations/tasks/run":  `{"id":"run","status":"running"}`,
		"/contents/generations/tasks/ok":   `{"id":"ok","status":"succeeded","content":{"video_url":"https://cdn/v.mp4"}}`,
		"/contents/generations/tasks/bad":  `{"id":"bad","status":"failed","error":{"code":"OutputVideoSensitive","message":"blocked"}}`,
		"/contents/generations/tasks/bad2": `{"id":"bad2","status":"failed","error":"quota exceeded"}`,
		"/contents/generations/tasks/gone": `{"id":"gone","status":"cancelled"}`,
	}
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"not found"}}`))
			return
		}
		_, _ = w.Write([]byte(body))
	})
	client, _ := NewClient(Options{APIKey: "secret", BaseURL: srv.URL})

	cases := []struct {
		id    string
		state video.State
		url   string
		err   string
	}{
		{"run", video.StatePolling, "", ""},
		{"ok", video.StateSucceeded, "https://cdn/v.mp4", ""},
		{"bad", video.StateFailed, "", "blocked (OutputVideoSensitive)"},
		{"bad2", video.StateFailed, "", "quota exceeded"},
		{"gone", video.StateFailed, "", "task cancelled"},
	}
	for _, tc := range cases {
		got, err := client.Status(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("Status(%s): %v", tc.id, err)
		}
		if got.State != tc.state || got.ArtifactURL != tc.url || got.Error != tc.err {
			t.Fatalf("Status(%s) = %+v, want state=%s url=%q err=%q", tc.id, got, tc.state, tc.url, tc.err)
		}
	}

	if _, err := client.Status(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown task")
	}
}

func TestValidate(t *testing.T) {
	client, _ := NewClient(Options{})
	if err := client.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Validate() = %v, want ErrMissingAPIKey", err)
	}
	if _, err := client.Submit(context.Background(), video.SubmitRequest{Prompt: "p"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Submit without key = %v", err)
	}

	client, _ = NewClient(Options{APIKey: "k", BaseURL: "ftp://nowhere"})
	if err := client.Validate(); err == nil {
		t.Fatalf("expected invalid base url error")
	}

	client, _ = NewClient(Options{APIKey: "k"})
	if err := client.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}
