package provider

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *Marengo) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /embed/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "api key required"})
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("model_name") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "model_name required"})
			return
		}
		_, _, fileErr := r.FormFile("video_file")
		if fileErr != nil && r.FormValue("video_url") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "no video supplied"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"_id": "task-1"})
	})

	mux.HandleFunc("GET /embed/tasks/task-1/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"_id": "task-1", "status": "ready"})
	})

	mux.HandleFunc("GET /embed/tasks/task-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"_id":    "task-1",
			"status": "ready",
			"video_embedding": map[string]any{
				"segments": []map[string]any{
					{"embeddings_float": []float32{3, 4}, "start_offset_sec": 0, "end_offset_sec": 5, "embedding_scope": "clip"},
					{"embeddings_float": []float32{0, 2}, "start_offset_sec": 5, "end_offset_sec": 12},
				},
			},
		})
	})

	mux.HandleFunc("POST /embed", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "application/json" {
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["text"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "text required"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"text_embedding": map[string]any{
					"segments": []map[string]any{{"embeddings_float": []float32{1, 0}}},
				},
			})
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"image_embedding": map[string]any{
				"segments": []map[string]any{{"embeddings_float": []float32{0, 1}}},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	m, err := NewMarengo(MarengoConfig{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new marengo: %v", err)
	}
	return srv, m
}

func TestMarengo_CreateTaskFromFile(t *testing.T) {
	_, m := newTestServer(t)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake video"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	id, err := m.CreateTask(context.Background(), TaskSource{FilePath: path})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if id != "task-1" {
		t.Fatalf("expected task-1, got %q", id)
	}
}

func TestMarengo_CreateTaskFromURL(t *testing.T) {
	_, m := newTestServer(t)

	id, err := m.CreateTask(context.Background(), TaskSource{URL: "https://cdn.example.com/clip.mp4"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if id != "task-1" {
		t.Fatalf("expected task-1, got %q", id)
	}
}

func TestMarengo_CreateTaskSourceValidation(t *testing.T) {
	_, m := newTestServer(t)

	if _, err := m.CreateTask(context.Background(), TaskSource{}); err == nil {
		t.Fatal("expected error for empty source")
	}
	if _, err := m.CreateTask(context.Background(), TaskSource{FilePath: "a", URL: "b"}); err == nil {
		t.Fatal("expected error for ambiguous source")
	}
}

func TestMarengo_TaskStatusAndResult(t *testing.T) {
	_, m := newTestServer(t)

	status, err := m.TaskStatus(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != StatusReady {
		t.Fatalf("expected ready, got %q", status)
	}

	segs, err := m.TaskResult(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].StartOffsetSec != 0 || segs[0].EndOffsetSec != 5 {
		t.Fatalf("unexpected first segment offsets: %+v", segs[0])
	}
	if segs[1].Scope != ScopeClip {
		t.Fatalf("missing scope must default to clip, got %q", segs[1].Scope)
	}
	// Vectors come back L2-normalized.
	var sum float64
	for _, v := range segs[0].Vector {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Fatalf("expected unit vector, squared norm %f", sum)
	}
}

func TestMarengo_EmbedTextAndImage(t *testing.T) {
	_, m := newTestServer(t)

	segs, err := m.EmbedText(context.Background(), "a red car")
	if err != nil {
		t.Fatalf("embed text: %v", err)
	}
	if len(segs) != 1 || len(segs[0].Vector) != 2 {
		t.Fatalf("unexpected text segments: %+v", segs)
	}

	segs, err = m.EmbedImage(context.Background(), Image{ContentType: "image/png", Bytes: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("embed image: %v", err)
	}
	if len(segs) != 1 || segs[0].Vector[1] != 1 {
		t.Fatalf("unexpected image segments: %+v", segs)
	}
}

func TestMarengo_APIErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	m, err := NewMarengo(MarengoConfig{BaseURL: srv.URL, APIKey: "wrong"})
	if err != nil {
		t.Fatalf("new marengo: %v", err)
	}
	_, err = m.CreateTask(context.Background(), TaskSource{URL: "https://cdn.example.com/clip.mp4"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "api key required" {
		t.Fatalf("expected provider message, got %q", apiErr.Message)
	}
	if IsRetryable(err) {
		t.Fatal("auth failures are not retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&APIError{StatusCode: 429}) {
		t.Fatal("429 must be retryable")
	}
	if !IsRetryable(&APIError{StatusCode: 503}) {
		t.Fatal("503 must be retryable")
	}
	if IsRetryable(&APIError{StatusCode: 400}) {
		t.Fatal("400 must not be retryable")
	}
}

func TestNewMarengo_Defaults(t *testing.T) {
	if _, err := NewMarengo(MarengoConfig{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	m, err := NewMarengo(MarengoConfig{BaseURL: "https://api.example.com"})
	if err != nil {
		t.Fatalf("new marengo: %v", err)
	}
	if m.Model() != DefaultMarengoModel {
		t.Fatalf("expected default model, got %q", m.Model())
	}
	if m.Dimensions() != DefaultMarengoDimensions {
		t.Fatalf("expected default dims, got %d", m.Dimensions())
	}
}
