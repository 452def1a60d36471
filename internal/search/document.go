// Package search provides the fine-grained caption index using Bleve.
// Every caption is one document carrying its transcript id and timestamp,
// supporting relevance search and timestamp range scans per transcript.
package search

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// captionDocID returns the document id of the seq-th caption of a transcript.
// Ids are positional, so a transcript's previous generation can be deleted
// from its manifest alone.
func captionDocID(transcriptID string, seq int) string {
	return fmt.Sprintf("%s#%06d", transcriptID, seq)
}

// manifestKey is the internal key holding a transcript's manifest.
func manifestKey(transcriptID string) []byte {
	return []byte("manifest:" + transcriptID)
}

// manifest records what is currently indexed for a transcript.
// Its presence is what makes a transcript "indexed".
type manifest struct {
	CaptionCount int       `json:"caption_count"`
	IndexedAt    time.Time `json:"indexed_at"`
}

func (m manifest) encode() ([]byte, error) {
	return json.Marshal(m)
}

func decodeManifest(data []byte) (*manifest, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// captionDocument converts a caption record to the map form Bleve indexes.
// Field names match the index mapping.
func captionDocument(transcriptID string, c domain.CaptionRecord) map[string]any {
	return map[string]any{
		fieldText:         c.Text,
		fieldTranscriptID: transcriptID,
		fieldTimestampMs:  c.StartMs,
		fieldDurationMs:   c.DurationMs,
	}
}

// captionFromFields rebuilds an indexed caption from a hit's stored fields.
func captionFromFields(fields map[string]any) domain.IndexedCaption {
	var c domain.IndexedCaption
	if t, ok := fields[fieldText].(string); ok {
		c.Text = t
	}
	if id, ok := fields[fieldTranscriptID].(string); ok {
		c.Metadata.TranscriptID = id
	}
	if ts, ok := fields[fieldTimestampMs].(float64); ok {
		c.Metadata.TimestampMs = ts
	}
	if d, ok := fields[fieldDurationMs].(float64); ok {
		c.Metadata.DurationMs = d
	}
	return c
}
