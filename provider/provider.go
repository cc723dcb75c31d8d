package provider

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when a provider cannot embed the requested
// content kind (e.g. a text-only provider asked to embed video).
var ErrUnsupported = errors.New("content kind not supported by provider")

// TaskStatus is the provider-reported state of an asynchronous embedding task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusReady      TaskStatus = "ready"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the task will make no further progress.
func (s TaskStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Scope marks whether a segment covers one temporal slice or the whole item.
type Scope string

const (
	ScopeClip  Scope = "clip"
	ScopeWhole Scope = "whole"
)

// Segment is one embedding produced by the provider, in provider order.
type Segment struct {
	Vector         []float32
	StartOffsetSec float64
	EndOffsetSec   float64
	Scope          Scope
}

// TaskSource names the content an asynchronous task embeds: either a local
// file uploaded with the request, or a URL the provider fetches itself.
// Exactly one field is set.
type TaskSource struct {
	FilePath string
	URL      string
}

// Image is a query image to embed synchronously.
type Image struct {
	ContentType string
	Bytes       []byte
}

// Provider generates embeddings for media and queries.
//
// Video content is embedded asynchronously: CreateTask returns a handle
// immediately and the caller polls TaskStatus until a terminal state, then
// fetches segments once with TaskResult. Text and images embed in a single
// call. All returned vectors are L2-normalized.
type Provider interface {
	Model() string
	Dimensions() int

	CreateTask(ctx context.Context, src TaskSource) (taskID string, err error)
	TaskStatus(ctx context.Context, taskID string) (TaskStatus, error)
	TaskResult(ctx context.Context, taskID string) ([]Segment, error)

	EmbedText(ctx context.Context, text string) ([]Segment, error)
	EmbedImage(ctx context.Context, img Image) ([]Segment, error)
}
