// Package results shapes raw index hits into ranked, confidence-annotated,
// playable answers.
package results

import (
	"fmt"

	"github.com/doujins-org/mediakit/index"
	"github.com/doujins-org/mediakit/storage"
)

// ConfidenceThreshold is the fixed similarity cutoff between high and
// medium confidence. It is applied uniformly to text and image queries and
// is deliberately not configurable.
const ConfidenceThreshold = 0.7

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Classify maps a similarity score to its confidence label. The boundary is
// strict: 0.70 is medium, anything above is high.
func Classify(score float32) Confidence {
	if score > ConfidenceThreshold {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

// Result is one user-facing search answer.
type Result struct {
	Score          float32    `json:"score"`
	ContentID      string     `json:"content_id"`
	OriginalName   string     `json:"filename"`
	StartOffsetSec float64    `json:"start_time"`
	EndOffsetSec   float64    `json:"end_time"`
	Confidence     Confidence `json:"confidence"`
	PlaybackRef    string     `json:"playback_url"`
}

// Format converts index hits into results. The output order is the index's
// order; hits are never re-sorted here.
func Format(hits []index.Hit) ([]Result, error) {
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		ref, err := storage.ResolvePlayback(h.Payload.Location, h.Payload.ContentID)
		if err != nil {
			return nil, fmt.Errorf("format hit %s: %w", h.ID, err)
		}
		out = append(out, Result{
			Score:          h.Score,
			ContentID:      h.Payload.ContentID,
			OriginalName:   h.Payload.OriginalName,
			StartOffsetSec: h.Payload.StartOffsetSec,
			EndOffsetSec:   h.Payload.EndOffsetSec,
			Confidence:     Classify(h.Score),
			PlaybackRef:    ref.URL,
		})
	}
	return out, nil
}
