package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/doujins-org/mediakit/internal/normalize"
)

type OpenAICompatibleConfig struct {
	BaseURL    string
	APIKey     string
	Model      string // canonical model name used by the host app
	Dimensions int    // optional; 0 means provider default
	Timeout    time.Duration
	Provider   string // advisory (deepinfra|dashscope|modelscope|...)
}

// OpenAICompatible is a text-only Provider for deployments that index text
// content through an OpenAI-compatible embeddings endpoint. Video and image
// submissions are rejected with ErrUnsupported.
type OpenAICompatible struct {
	client     *openai.Client
	model      string
	dimensions int
	provider   string
}

var _ Provider = (*OpenAICompatible)(nil)

func NewOpenAICompatible(cfg OpenAICompatibleConfig) (*OpenAICompatible, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	openaiCfg.BaseURL = cfg.BaseURL
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	openaiCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAICompatible{
		client:     openai.NewClientWithConfig(openaiCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		provider:   cfg.Provider,
	}, nil
}

func (e *OpenAICompatible) Model() string   { return e.model }
func (e *OpenAICompatible) Dimensions() int { return e.dimensions }

// mapCanonicalModel maps a canonical model name to a provider-specific model id.
func (e *OpenAICompatible) mapCanonicalModel(canonical string) string {
	hint := strings.ToLower(strings.TrimSpace(e.provider))
	name := strings.ToLower(strings.TrimSpace(canonical))
	switch name {
	case "qwen-3-embedding-4b":
		if hint == "deepinfra" {
			return "Qwen/Qwen3-Embedding-4B"
		}
		if hint == "dashscope" {
			return "text-embedding-v4"
		}
		return canonical
	default:
		return canonical
	}
}

// CreateTask is unsupported: this provider has no asynchronous task API.
func (e *OpenAICompatible) CreateTask(ctx context.Context, src TaskSource) (string, error) {
	return "", fmt.Errorf("video embedding: %w", ErrUnsupported)
}

func (e *OpenAICompatible) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	return "", fmt.Errorf("task %s: %w", taskID, ErrUnsupported)
}

func (e *OpenAICompatible) TaskResult(ctx context.Context, taskID string) ([]Segment, error) {
	return nil, fmt.Errorf("task %s: %w", taskID, ErrUnsupported)
}

func (e *OpenAICompatible) EmbedText(ctx context.Context, text string) ([]Segment, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.mapCanonicalModel(e.model)),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(resp.Data))
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	copy(vec, resp.Data[0].Embedding)
	normalize.L2NormalizeInPlace(vec)
	return []Segment{{Vector: vec, Scope: ScopeWhole}}, nil
}

func (e *OpenAICompatible) EmbedImage(ctx context.Context, img Image) ([]Segment, error) {
	return nil, fmt.Errorf("image embedding: %w", ErrUnsupported)
}
