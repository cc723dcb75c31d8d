// Package index manages the vector collection: provisioning, point
// identity, upserts and nearest-neighbor queries.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/doujins-org/mediakit/storage"
)

// ErrNotFound is returned when no point references the requested content id.
var ErrNotFound = errors.New("content not found in index")

// Metric is the collection's similarity metric.
type Metric string

const MetricCosine Metric = "cosine"

// DefaultSearchLimit is the interactive top-k. Callers needing more page by
// raising k.
const DefaultSearchLimit = 6

// Payload is the metadata stored alongside each vector.
type Payload struct {
	ContentID      string           `json:"content_id"`
	OriginalName   string           `json:"original_name"`
	Location       storage.Location `json:"location"`
	StartOffsetSec float64          `json:"start_offset_sec"`
	EndOffsetSec   float64          `json:"end_offset_sec"`
	Scope          string           `json:"embedding_scope"`
	ConfidenceHint string           `json:"confidence,omitempty"`
}

// Point is the unit persisted in the collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one search result: a stored point plus its similarity to the query.
type Hit struct {
	Point
	Score float32
}

// PointID derives the collection-unique identity for one segment of one
// content item. Identity is namespaced by content id so concurrent
// ingestions can never collide, and re-ingesting the same content overwrites
// its own points instead of someone else's. A per-request counter must never
// be used here. The segment index is zero-padded so the lexicographic order
// of one item's ids is its segment order.
func PointID(contentID string, segmentIndex int) string {
	return fmt.Sprintf("%s#%05d", contentID, segmentIndex)
}

// Index is the vector-store contract. Wire-level details are opaque to
// callers; only these operations matter.
type Index interface {
	// EnsureCollection provisions the collection if absent. It is
	// idempotent and must never recreate an existing collection: that
	// would discard all prior vectors. Safe to call on every process
	// start, including concurrent starts.
	EnsureCollection(ctx context.Context, dims int, metric Metric) error

	// Upsert writes a batch of points. Point ids are collection-unique;
	// writing an existing id replaces that point.
	Upsert(ctx context.Context, points []Point) error

	// Search returns the top-k hits by descending similarity. Ties break
	// on point id so results are deterministic for a given index state.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// FindByContentID returns every point of one content item in segment
	// order, or ErrNotFound.
	FindByContentID(ctx context.Context, contentID string) ([]Point, error)

	// DeleteByContentID removes every point of one content item. Deleting
	// absent content is not an error.
	DeleteByContentID(ctx context.Context, contentID string) error

	// ListContentIDs enumerates the distinct content ids in the collection.
	ListContentIDs(ctx context.Context) ([]string, error)
}
