// Package domain contains the core entities for transcript indexing and retrieval.
package domain

// RawCaption is a caption as delivered by an acquisition source.
// Start and Duration are in seconds.
type RawCaption struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// CaptionRecord is a validated caption in canonical form.
// Records for one transcript are ordered ascending by StartMs.
type CaptionRecord struct {
	Text       string  `json:"text"`
	StartMs    float64 `json:"start_ms"`
	DurationMs float64 `json:"duration_ms"`
}

// EndMs returns the caption's end offset.
func (c CaptionRecord) EndMs() float64 {
	return c.StartMs + c.DurationMs
}

// CaptionMetadata is the timestamp metadata attached to an indexed caption.
type CaptionMetadata struct {
	TranscriptID string  `json:"transcript_id"`
	TimestampMs  float64 `json:"timestamp_ms"`
	DurationMs   float64 `json:"duration_ms"`
}

// IndexedCaption is one caption as stored in the fine-grained index.
type IndexedCaption struct {
	Text     string          `json:"text"`
	Metadata CaptionMetadata `json:"metadata"`
}

// NewIndexedCaption attaches transcript metadata to a caption record.
func NewIndexedCaption(transcriptID string, c CaptionRecord) IndexedCaption {
	return IndexedCaption{
		Text: c.Text,
		Metadata: CaptionMetadata{
			TranscriptID: transcriptID,
			TimestampMs:  c.StartMs,
			DurationMs:   c.DurationMs,
		},
	}
}

// TimestampS returns the caption's start in seconds.
func (c IndexedCaption) TimestampS() float64 {
	return MillisToSeconds(c.Metadata.TimestampMs)
}
