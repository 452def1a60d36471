// Package chunker folds an ordered caption sequence into coarse context chunks.
package chunker

import (
	"strings"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// DefaultWindowMs is the accumulated caption duration that closes a chunk.
const DefaultWindowMs = 300000.0

// Segment folds captions into chunks indexed 0..N-1.
//
// Captions are accumulated in order. The caption whose duration brings the
// running total to thresholdMs or more is the last caption of that chunk; the
// next caption opens a new one. A trailing chunk below the threshold is still
// emitted. A non-positive threshold uses DefaultWindowMs.
//
// captions must already be sorted by StartMs.
func Segment(transcriptID string, captions []domain.CaptionRecord, thresholdMs float64) []domain.ContextChunk {
	if thresholdMs <= 0 {
		thresholdMs = DefaultWindowMs
	}
	if len(captions) == 0 {
		return nil
	}

	var (
		chunks   []domain.ContextChunk
		texts    []string
		startMs  float64
		duration float64
		open     bool
	)

	flush := func() {
		chunks = append(chunks, domain.ContextChunk{
			TranscriptID: transcriptID,
			ChunkIndex:   len(chunks),
			Text:         strings.Join(texts, " "),
			StartMs:      startMs,
			DurationMs:   duration,
		})
		texts = texts[:0]
		open = false
	}

	for _, c := range captions {
		if !open {
			startMs = c.StartMs
			duration = 0
			open = true
		}

		texts = append(texts, c.Text)
		duration += c.DurationMs

		if duration >= thresholdMs {
			flush()
		}
	}

	if open {
		flush()
	}

	return chunks
}
