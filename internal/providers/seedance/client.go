package seedance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"recreator/internal/infra"
	"recreator/internal/providers/video"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("seedance: api key is required")

const (
	// DefaultBaseURL is the Ark v3 endpoint.
	DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	// DefaultImageModel serves requests carrying at least one image.
	DefaultImageModel = "doubao-seedance-1-5-pro-251215"
	// DefaultTextModel serves text-only requests.
	DefaultTextModel = "doubao-seedance-1-0-pro-250528"

	tasksPath = "/contents/generations/tasks"
)

// Options configures the Seedance client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	ImageModel     string
	TextModel      string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the Seedance content generation task API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	textModel  string
	rest       *resty.Client
	logger     *infra.Logger
}

type contentItem struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	Role     string    `json:"role,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type createTaskRequest struct {
	Model         string        `json:"model"`
	Content       []contentItem `json:"content"`
	Ratio         string        `json:"ratio"`
	Duration      int           `json:"duration"`
	Watermark     bool          `json:"watermark"`
	GenerateAudio bool          `json:"generate_audio,omitempty"`
}

type createTaskResponse struct {
	ID string `json:"id"`
}

type taskResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error json.RawMessage `json:"error"`
}

type errorEnvelope struct {
	Error   *apiError `json:"error"`
	Message string    `json:"message"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = DefaultTextModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	apiKey := strings.TrimSpace(opts.APIKey)

	rest := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		rest.SetAuthToken(apiKey)
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      strings.TrimSpace(opts.Model),
		imageModel: imageModel,
		textModel:  textModel,
		rest:       rest,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Validate checks that the client has an API key and a usable base URL.
func (c *Client) Validate() error {
	if !c.HasCredentials() {
		return ErrMissingAPIKey
	}
	parsed, err := url.Parse(c.baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("seedance: invalid base url %q", c.baseURL)
	}
	return nil
}

// ModelFor returns the model that will serve req.
func (c *Client) ModelFor(req video.SubmitRequest) string {
	if c.model != "" {
		return c.model
	}
	if req.HasImages() {
		return c.imageModel
	}
	return c.textModel
}

// Submit creates a generation task and returns its identifier.
func (c *Client) Submit(ctx context.Context, req video.SubmitRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("seedance: prompt is required")
	}

	model := c.ModelFor(req)
	payload := createTaskRequest{
		Model:     model,
		Content:   buildContent(prompt, req),
		Ratio:     req.Ratio,
		Duration:  req.Duration,
		Watermark: false,
	}
	if req.GenerateAudio && SupportsAudio(model) {
		payload.GenerateAudio = true
	}

	var created createTaskResponse
	res, err := c.rest.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&created).
		Post(tasksPath)
	if err != nil {
		return "", fmt.Errorf("seedance: create task: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("seedance: create task: %s", describeError(res))
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", errors.New("seedance: create task: empty task id")
	}

	c.logger.Debug().
		Str("task_id", created.ID).
		Str("model", model).
		Int("duration", req.Duration).
		Str("ratio", req.Ratio).
		Bool("audio", payload.GenerateAudio).
		Msg("seedance: task submitted")
	return created.ID, nil
}

// Status queries a task once and normalizes the answer.
func (c *Client) Status(ctx context.Context, taskID string) (video.TaskStatus, error) {
	if !c.HasCredentials() {
		return video.TaskStatus{}, ErrMissingAPIKey
	}
	var task taskResponse
	res, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", taskID).
		SetResult(&task).
		Get(tasksPath + "/{id}")
	if err != nil {
		return video.TaskStatus{}, fmt.Errorf("seedance: query task %s: %w", taskID, err)
	}
	if res.IsError() {
		return video.TaskStatus{}, fmt.Errorf("seedance: query task %s: %s", taskID, describeError(res))
	}

	switch strings.ToLower(task.Status) {
	case "succeeded":
		return video.TaskStatus{State: video.StateSucceeded, ArtifactURL: strings.TrimSpace(task.Content.VideoURL)}, nil
	case "failed", "cancelled", "expired":
		msg := taskErrorMessage(task.Error)
		if msg == "" {
			msg = "task " + strings.ToLower(task.Status)
		}
		return video.TaskStatus{State: video.StateFailed, Error: msg}, nil
	default:
		return video.TaskStatus{State: video.StatePolling}, nil
	}
}

// SupportsAudio reports whether model can generate a soundtrack.
func SupportsAudio(model string) bool {
	return strings.Contains(model, "1-5-pro")
}

func buildContent(prompt string, req video.SubmitRequest) []contentItem {
	content := []contentItem{{Type: "text", Text: prompt}}
	first := strings.TrimSpace(req.FirstFrame)
	last := strings.TrimSpace(req.LastFrame)
	if first != "" {
		item := contentItem{Type: "image_url", ImageURL: &imageURL{URL: first}}
		// A bare role field is rejected in single-image mode.
		if last != "" {
			item.Role = "first_frame"
		}
		content = append(content, item)
	}
	if last != "" {
		content = append(content, contentItem{Type: "image_url", ImageURL: &imageURL{URL: last}, Role: "last_frame"})
	}
	for _, ref := range req.ReferenceImages {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		content = append(content, contentItem{Type: "image_url", ImageURL: &imageURL{URL: ref}, Role: "reference_image"})
	}
	return content
}

func describeError(res *resty.Response) string {
	var env errorEnvelope
	if err := json.Unmarshal(res.Body(), &env); err == nil {
		if env.Error != nil && env.Error.Message != "" {
			if env.Error.Code != "" {
				return fmt.Sprintf("%s (%s)", env.Error.Message, env.Error.Code)
			}
			return env.Error.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	body := strings.TrimSpace(res.String())
	if len(body) > 500 {
		body = body[:500]
	}
	if body == "" {
		return fmt.Sprintf("status %d", res.StatusCode())
	}
	return fmt.Sprintf("status %d: %s", res.StatusCode(), body)
}

// taskErrorMessage accepts either {"code","message"} or a bare string.
func taskErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var detail apiError
	if err := json.Unmarshal(raw, &detail); err == nil {
		switch {
		case detail.Message != "" && detail.Code != "":
			return fmt.Sprintf("%s (%s)", detail.Message, detail.Code)
		case detail.Message != "":
			return detail.Message
		case detail.Code != "":
			return detail.Code
		}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

var _ video.Service = (*Client)(nil)
