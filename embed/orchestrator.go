// Package embed drives the asynchronous embedding-task lifecycle: submit,
// poll to a terminal state under a caller deadline, extract segments.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doujins-org/mediakit/internal/normalize"
	"github.com/doujins-org/mediakit/provider"
)

var (
	// ErrProviderUnavailable marks transport or auth failures talking to
	// the embedding provider.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrTaskFailed marks a task that reached a non-ready terminal status.
	ErrTaskFailed = errors.New("embedding task failed")
	// ErrPollTimeout marks a poll that exceeded the caller's deadline
	// before the task reached a terminal state.
	ErrPollTimeout = errors.New("embedding task poll timed out")
	// ErrEmptyEmbedding marks a ready task that produced no segments,
	// which violates the provider contract.
	ErrEmptyEmbedding = errors.New("embedding result has no segments")
)

// DefaultPollInterval matches the provider's recommended status cadence.
const DefaultPollInterval = 3 * time.Second

// Orchestrator runs embedding tasks against a Provider. It holds no state
// between calls; a task handle is all that identifies in-flight work.
type Orchestrator struct {
	provider     provider.Provider
	pollInterval time.Duration
}

type Options struct {
	Provider     provider.Provider
	PollInterval time.Duration // default DefaultPollInterval
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Orchestrator{provider: opts.Provider, pollInterval: interval}, nil
}

// Provider returns the provider this orchestrator drives.
func (o *Orchestrator) Provider() provider.Provider { return o.provider }

// Submit starts an asynchronous embedding task and returns its handle.
func (o *Orchestrator) Submit(ctx context.Context, src provider.TaskSource) (string, error) {
	id, err := o.provider.CreateTask(ctx, src)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupported) {
			return "", err
		}
		return "", fmt.Errorf("submit embedding task: %w: %w", ErrProviderUnavailable, err)
	}
	return id, nil
}

// AwaitCompletion polls the task at a bounded interval until it reaches a
// terminal status or the timeout elapses. A non-positive timeout leaves the
// wait bounded only by ctx, which must then carry the caller's deadline.
// The wait is cancellable through ctx; cancellation does not leak a poll
// loop.
func (o *Orchestrator) AwaitCompletion(ctx context.Context, taskID string, timeout time.Duration) ([]provider.Segment, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		status, err := o.provider.TaskStatus(ctx, taskID)
		if err != nil {
			// Classify by the poll deadline itself, not by the error's
			// flavor: HTTP client timeouts also wrap DeadlineExceeded,
			// and those are provider failures, not an expired poll.
			switch ctx.Err() {
			case context.DeadlineExceeded:
				return nil, fmt.Errorf("task %s: %w", taskID, ErrPollTimeout)
			case context.Canceled:
				return nil, fmt.Errorf("task %s: %w", taskID, ctx.Err())
			}
			return nil, fmt.Errorf("task %s: poll status: %w: %w", taskID, ErrProviderUnavailable, err)
		}
		if status == provider.StatusReady {
			break
		}
		if status.Terminal() {
			return nil, fmt.Errorf("task %s: terminal status %q: %w", taskID, status, ErrTaskFailed)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("task %s: %w", taskID, ErrPollTimeout)
			}
			return nil, fmt.Errorf("task %s: %w", taskID, ctx.Err())
		case <-time.After(o.pollInterval):
		}
	}

	segs, err := o.provider.TaskResult(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: fetch result: %w: %w", taskID, ErrProviderUnavailable, err)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrEmptyEmbedding)
	}
	return segs, nil
}

// Run submits a task and waits for its segments.
func (o *Orchestrator) Run(ctx context.Context, src provider.TaskSource, timeout time.Duration) ([]provider.Segment, error) {
	id, err := o.Submit(ctx, src)
	if err != nil {
		return nil, err
	}
	return o.AwaitCompletion(ctx, id, timeout)
}

// EmbedQueryText embeds a text query into exactly one vector. Providers that
// split the query into several segments get their vectors fused.
func (o *Orchestrator) EmbedQueryText(ctx context.Context, text string) ([]float32, error) {
	segs, err := o.provider.EmbedText(ctx, text)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("embed text query: %w: %w", ErrProviderUnavailable, err)
	}
	return queryVector(segs)
}

// EmbedQueryImage embeds a query image into exactly one vector.
func (o *Orchestrator) EmbedQueryImage(ctx context.Context, img provider.Image) ([]float32, error) {
	segs, err := o.provider.EmbedImage(ctx, img)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("embed image query: %w: %w", ErrProviderUnavailable, err)
	}
	return queryVector(segs)
}

func queryVector(segs []provider.Segment) ([]float32, error) {
	switch len(segs) {
	case 0:
		return nil, ErrEmptyEmbedding
	case 1:
		return segs[0].Vector, nil
	}
	vectors := make([][]float32, len(segs))
	for i, s := range segs {
		vectors[i] = s.Vector
	}
	fused := normalize.AverageL2(vectors)
	if fused == nil {
		return nil, ErrEmptyEmbedding
	}
	return fused, nil
}
