// Package reindex re-embeds already-indexed content against the current
// provider, e.g. after a model upgrade. Items whose bytes can no longer be
// resolved are skipped, not failed.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/doujins-org/mediakit/content"
	"github.com/doujins-org/mediakit/embed"
	"github.com/doujins-org/mediakit/index"
	"github.com/doujins-org/mediakit/pipeline"
	"github.com/doujins-org/mediakit/provider"
	"github.com/doujins-org/mediakit/storage"
)

type Options struct {
	Index        index.Index
	Orchestrator *embed.Orchestrator

	Concurrency int           // concurrent items in flight; default 4
	MaxAttempts int           // per-item embedding attempts; default 3
	BackoffBase time.Duration // default 2s
	BackoffMax  time.Duration // default 1m
	TaskTimeout time.Duration // per-attempt embedding wait; default 10m

	Quiet bool // suppress progress logging
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Concurrency <= 0 {
		out.Concurrency = 4
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = 2 * time.Second
	}
	if out.BackoffMax <= 0 {
		out.BackoffMax = time.Minute
	}
	if out.TaskTimeout <= 0 {
		out.TaskTimeout = 10 * time.Minute
	}
	return out
}

// Report accounts for every content id seen during a run.
type Report struct {
	Total     int
	Reindexed int
	Skipped   int
	Failed    map[string]error
}

// Run re-embeds every indexed content item with a bounded concurrency gate.
// A cancelled ctx stops scheduling new items; in-flight items finish.
func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Index == nil {
		return Report{}, fmt.Errorf("index is required")
	}
	if opts.Orchestrator == nil {
		return Report{}, fmt.Errorf("orchestrator is required")
	}
	opts = opts.withDefaults()

	ids, err := opts.Index.ListContentIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("reindex: %w", err)
	}

	report := Report{Total: len(ids), Failed: map[string]error{}}
	var mu sync.Mutex
	var wg sync.WaitGroup
	gate := make(chan struct{}, opts.Concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		gate <- struct{}{}
		wg.Add(1)
		go func(contentID string) {
			defer wg.Done()
			defer func() { <-gate }()

			skipped, err := reindexOne(ctx, opts, contentID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed[contentID] = err
				if !opts.Quiet {
					log.Printf("reindex: content %s failed: %v", contentID, err)
				}
			case skipped:
				report.Skipped++
			default:
				report.Reindexed++
			}
		}(id)
	}
	wg.Wait()

	if !opts.Quiet {
		log.Printf("reindex: %d total, %d reindexed, %d skipped, %d failed",
			report.Total, report.Reindexed, report.Skipped, len(report.Failed))
	}
	return report, ctx.Err()
}

func reindexOne(ctx context.Context, opts Options, contentID string) (skipped bool, err error) {
	points, err := opts.Index.FindByContentID(ctx, contentID)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			// Deleted since listing; nothing to do.
			return true, nil
		}
		return false, err
	}
	payload := points[0].Payload

	src, ok := taskSource(payload.Location)
	if !ok {
		return true, nil
	}

	item := content.Item{
		ID:           contentID,
		Kind:         content.KindVideo,
		Source:       sourceKind(payload.Location),
		OriginalName: payload.OriginalName,
	}

	var segs []provider.Segment
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(backoff(opts, attempt)):
			}
		}
		segs, err = opts.Orchestrator.Run(ctx, src, opts.TaskTimeout)
		if err == nil {
			break
		}
		if !provider.IsRetryable(err) {
			return false, err
		}
	}
	if err != nil {
		return false, err
	}

	// Remove the old points first so a shrunken segment list leaves no
	// stale vectors behind.
	if err := opts.Index.DeleteByContentID(ctx, contentID); err != nil {
		return false, err
	}
	return false, opts.Index.Upsert(ctx, pipeline.BuildPoints(item, payload.Location, segs))
}

// taskSource resolves a stored location back to something the provider can
// embed. Local files that no longer exist are unrecoverable and skipped.
func taskSource(loc storage.Location) (provider.TaskSource, bool) {
	switch loc.Kind {
	case storage.LocationLocal:
		if _, err := os.Stat(loc.Path); err != nil {
			return provider.TaskSource{}, false
		}
		return provider.TaskSource{FilePath: loc.Path}, true
	case storage.LocationRemoteURL:
		return provider.TaskSource{URL: loc.URL}, true
	case storage.LocationObjectStore:
		if loc.PublicURL == "" {
			return provider.TaskSource{}, false
		}
		return provider.TaskSource{URL: loc.PublicURL}, true
	default:
		return provider.TaskSource{}, false
	}
}

func sourceKind(loc storage.Location) content.SourceKind {
	if loc.Kind == storage.LocationRemoteURL {
		return content.SourceRemoteURL
	}
	return content.SourceUpload
}

func backoff(opts Options, attempt int) time.Duration {
	d := opts.BackoffBase << (attempt - 1)
	if d > opts.BackoffMax {
		d = opts.BackoffMax
	}
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}
