// Package pipeline wires the embedding orchestrator, vector index and
// storage resolver into the ingestion and retrieval flows. It is the piece
// a host application embeds behind its HTTP handlers.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/doujins-org/mediakit/content"
	"github.com/doujins-org/mediakit/embed"
	"github.com/doujins-org/mediakit/index"
	"github.com/doujins-org/mediakit/provider"
	"github.com/doujins-org/mediakit/results"
	"github.com/doujins-org/mediakit/storage"
)

// DefaultTaskTimeout bounds how long one ingestion waits for the provider's
// asynchronous task.
const DefaultTaskTimeout = 10 * time.Minute

type Pipeline struct {
	orchestrator *embed.Orchestrator
	index        index.Index
	resolver     *storage.Resolver
	searchLimit  int
	taskTimeout  time.Duration
}

type Options struct {
	Orchestrator *embed.Orchestrator
	Index        index.Index
	Resolver     *storage.Resolver

	// SearchLimit is the top-k for interactive queries. Default
	// index.DefaultSearchLimit.
	SearchLimit int
	// TaskTimeout bounds each ingestion's embedding wait. Default
	// DefaultTaskTimeout.
	TaskTimeout time.Duration
}

func New(opts Options) (*Pipeline, error) {
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if opts.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	limit := opts.SearchLimit
	if limit <= 0 {
		limit = index.DefaultSearchLimit
	}
	timeout := opts.TaskTimeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Pipeline{
		orchestrator: opts.Orchestrator,
		index:        opts.Index,
		resolver:     opts.Resolver,
		searchLimit:  limit,
		taskTimeout:  timeout,
	}, nil
}

// EnsureReady provisions the collection for the orchestrator's provider.
// Call once at process start; it is idempotent and safe under concurrent
// startups.
func (p *Pipeline) EnsureReady(ctx context.Context) error {
	dims := p.orchestrator.Provider().Dimensions()
	return p.index.EnsureCollection(ctx, dims, index.MetricCosine)
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	Item     content.Item
	Location storage.Location
	Segments int
}

// IngestUpload runs the full ingestion flow for an uploaded video file:
// validate, stage a request-scoped copy, persist the durable location,
// embed, index. Partial side effects are rolled back on failure, and the
// staging copy is removed on success and failure alike.
func (p *Pipeline) IngestUpload(ctx context.Context, originalName string, size int64, src io.Reader) (IngestResult, error) {
	item, err := content.NewUpload(content.KindVideo, originalName, size)
	if err != nil {
		return IngestResult{}, err
	}

	staged, cleanup, err := p.resolver.Stage(item, src)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest %s: %w", item.ID, err)
	}
	defer cleanup()

	loc, err := p.resolver.PersistFile(ctx, item, staged)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest %s: %w", item.ID, err)
	}

	segs, err := p.orchestrator.Run(ctx, provider.TaskSource{FilePath: staged}, p.taskTimeout)
	if err != nil {
		_ = p.resolver.Discard(ctx, loc)
		return IngestResult{}, fmt.Errorf("ingest %s: %w", item.ID, err)
	}

	points := BuildPoints(item, loc, segs)
	if err := p.index.Upsert(ctx, points); err != nil {
		_ = p.resolver.Discard(ctx, loc)
		return IngestResult{}, fmt.Errorf("ingest %s: %w", item.ID, err)
	}

	return IngestResult{Item: item, Location: loc, Segments: len(points)}, nil
}

// IngestURL ingests a remote video by URL. No bytes are copied; the
// provider fetches the URL itself and playback uses it verbatim.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string) (IngestResult, error) {
	item, err := content.NewRemote(content.KindVideo, rawURL)
	if err != nil {
		return IngestResult{}, err
	}

	loc := p.resolver.PersistRemote(rawURL)

	segs, err := p.orchestrator.Run(ctx, provider.TaskSource{URL: rawURL}, p.taskTimeout)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest %s: %w", item.ID, err)
	}

	points := BuildPoints(item, loc, segs)
	if err := p.index.Upsert(ctx, points); err != nil {
		return IngestResult{}, fmt.Errorf("ingest %s: %w", item.ID, err)
	}

	return IngestResult{Item: item, Location: loc, Segments: len(points)}, nil
}

// SearchText answers a text query with ranked, playable results.
func (p *Pipeline) SearchText(ctx context.Context, query string) ([]results.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", content.ErrInvalidContent)
	}
	vec, err := p.orchestrator.EmbedQueryText(ctx, query)
	if err != nil {
		return nil, err
	}
	return p.search(ctx, vec)
}

// SearchImage answers an image query with ranked, playable results. The
// same confidence policy as text queries applies.
func (p *Pipeline) SearchImage(ctx context.Context, originalName string, img provider.Image) ([]results.Result, error) {
	if err := content.ValidateUpload(content.KindImage, originalName, int64(len(img.Bytes))); err != nil {
		return nil, err
	}
	vec, err := p.orchestrator.EmbedQueryImage(ctx, img)
	if err != nil {
		return nil, err
	}
	return p.search(ctx, vec)
}

func (p *Pipeline) search(ctx context.Context, vec []float32) ([]results.Result, error) {
	hits, err := p.index.Search(ctx, vec, p.searchLimit)
	if err != nil {
		return nil, err
	}
	return results.Format(hits)
}

// Playback resolves a content id to its playable reference. The stored
// location is recovered from the index payload; callers never compute it.
func (p *Pipeline) Playback(ctx context.Context, contentID string) (storage.PlaybackRef, error) {
	points, err := p.index.FindByContentID(ctx, contentID)
	if err != nil {
		return storage.PlaybackRef{}, err
	}
	return storage.ResolvePlayback(points[0].Payload.Location, contentID)
}

// BuildPoints turns provider segments into index points. Identity is
// derived from the content id and the provider-order segment index.
func BuildPoints(item content.Item, loc storage.Location, segs []provider.Segment) []index.Point {
	points := make([]index.Point, 0, len(segs))
	for i, s := range segs {
		points = append(points, index.Point{
			ID:     index.PointID(item.ID, i),
			Vector: s.Vector,
			Payload: index.Payload{
				ContentID:      item.ID,
				OriginalName:   item.OriginalName,
				Location:       loc,
				StartOffsetSec: s.StartOffsetSec,
				EndOffsetSec:   s.EndOffsetSec,
				Scope:          string(s.Scope),
			},
		})
	}
	return points
}
