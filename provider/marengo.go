package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doujins-org/mediakit/internal/normalize"
)

const (
	// DefaultMarengoModel is the retrieval model used for video, image and
	// text embeddings so all vectors share one space.
	DefaultMarengoModel = "Marengo-retrieval-2.7"
	// DefaultMarengoDimensions is the vector size DefaultMarengoModel emits.
	DefaultMarengoDimensions = 1024
)

type MarengoConfig struct {
	BaseURL    string
	APIKey     string
	Model      string        // default DefaultMarengoModel
	Dimensions int           // default DefaultMarengoDimensions
	Timeout    time.Duration // per-request; polling deadlines belong to the caller
	HTTPClient *http.Client  // optional; Timeout is ignored when set
}

// Marengo talks to a Marengo-style embedding task API: asynchronous tasks
// for video, single-call embedding for text and images.
type Marengo struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

var _ Provider = (*Marengo)(nil)

func NewMarengo(cfg MarengoConfig) (*Marengo, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = DefaultMarengoModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultMarengoDimensions
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Marengo{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: dims,
	}, nil
}

func (m *Marengo) Model() string   { return m.model }
func (m *Marengo) Dimensions() int { return m.dimensions }

type wireSegment struct {
	EmbeddingsFloat []float32 `json:"embeddings_float"`
	StartOffsetSec  float64   `json:"start_offset_sec"`
	EndOffsetSec    float64   `json:"end_offset_sec"`
	EmbeddingScope  string    `json:"embedding_scope"`
}

type taskEnvelope struct {
	ID             string `json:"_id"`
	Status         string `json:"status"`
	VideoEmbedding struct {
		Segments []wireSegment `json:"segments"`
	} `json:"video_embedding"`
}

type embedEnvelope struct {
	TextEmbedding struct {
		Segments []wireSegment `json:"segments"`
	} `json:"text_embedding"`
	ImageEmbedding struct {
		Segments []wireSegment `json:"segments"`
	} `json:"image_embedding"`
}

// CreateTask starts an asynchronous embedding task for video content.
func (m *Marengo) CreateTask(ctx context.Context, src TaskSource) (string, error) {
	if (src.FilePath == "") == (src.URL == "") {
		return "", fmt.Errorf("task source needs exactly one of file path or url")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model_name", m.model); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if src.URL != "" {
		if err := w.WriteField("video_url", src.URL); err != nil {
			return "", fmt.Errorf("create task: %w", err)
		}
	} else {
		f, err := os.Open(src.FilePath)
		if err != nil {
			return "", fmt.Errorf("create task: open %s: %w", src.FilePath, err)
		}
		part, err := w.CreateFormFile("video_file", filepath.Base(src.FilePath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return "", fmt.Errorf("create task: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	var env taskEnvelope
	if err := m.do(ctx, http.MethodPost, "/embed/tasks", w.FormDataContentType(), &body, &env); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if env.ID == "" {
		return "", fmt.Errorf("create task: provider returned no task id")
	}
	return env.ID, nil
}

// TaskStatus fetches the current status of a task.
func (m *Marengo) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	var env taskEnvelope
	if err := m.do(ctx, http.MethodGet, "/embed/tasks/"+taskID+"/status", "", nil, &env); err != nil {
		return "", fmt.Errorf("task %s status: %w", taskID, err)
	}
	return TaskStatus(env.Status), nil
}

// TaskResult fetches the full segment list of a completed task.
func (m *Marengo) TaskResult(ctx context.Context, taskID string) ([]Segment, error) {
	var env taskEnvelope
	if err := m.do(ctx, http.MethodGet, "/embed/tasks/"+taskID, "", nil, &env); err != nil {
		return nil, fmt.Errorf("task %s result: %w", taskID, err)
	}
	return toSegments(env.VideoEmbedding.Segments), nil
}

// EmbedText embeds a text query in a single call.
func (m *Marengo) EmbedText(ctx context.Context, text string) ([]Segment, error) {
	payload, err := json.Marshal(map[string]string{
		"model_name": m.model,
		"text":       text,
	})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	var env embedEnvelope
	if err := m.do(ctx, http.MethodPost, "/embed", "application/json", bytes.NewReader(payload), &env); err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return toSegments(env.TextEmbedding.Segments), nil
}

// EmbedImage embeds a query image in a single call.
func (m *Marengo) EmbedImage(ctx context.Context, img Image) ([]Segment, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model_name", m.model); err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	part, err := w.CreateFormFile("image_file", "image")
	if err == nil {
		_, err = part.Write(img.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	var env embedEnvelope
	if err := m.do(ctx, http.MethodPost, "/embed", w.FormDataContentType(), &body, &env); err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	return toSegments(env.ImageEmbedding.Segments), nil
}

func (m *Marengo) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if m.apiKey != "" {
		req.Header.Set("x-api-key", m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Message == "" {
			e.Message = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toSegments(wire []wireSegment) []Segment {
	out := make([]Segment, 0, len(wire))
	for _, s := range wire {
		scope := Scope(s.EmbeddingScope)
		if scope == "" {
			scope = ScopeClip
		}
		vec := make([]float32, len(s.EmbeddingsFloat))
		copy(vec, s.EmbeddingsFloat)
		normalize.L2NormalizeInPlace(vec)
		out = append(out, Segment{
			Vector:         vec,
			StartOffsetSec: s.StartOffsetSec,
			EndOffsetSec:   s.EndOffsetSec,
			Scope:          scope,
		})
	}
	return out
}
