package domain

// ContextChunk is a coarse, multi-caption segment of a transcript.
//
// DurationMs is the sum of the contained captions' durations, not the
// wall-clock span between the first and last caption. Captions with gaps
// between them make the two differ.
type ContextChunk struct {
	TranscriptID string  `json:"transcript_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	StartMs      float64 `json:"start_ms"`
	DurationMs   float64 `json:"duration_ms"`
}

// EndMs returns the chunk's nominal end offset.
func (c ContextChunk) EndMs() float64 {
	return c.StartMs + c.DurationMs
}

// Contains reports whether ms falls inside the chunk's interval.
// An open-ended chunk has no upper bound.
func (c ContextChunk) Contains(ms float64, openEnded bool) bool {
	if ms < c.StartMs {
		return false
	}
	return openEnded || ms <= c.EndMs()
}

// ChunkWindow is a containing chunk and its neighbours, read together.
type ChunkWindow struct {
	Prev  *ContextChunk
	Chunk ContextChunk
	Next  *ContextChunk
}

// Texts returns the window's chunk texts in chronological order,
// omitting absent neighbours.
func (w ChunkWindow) Texts() []string {
	texts := make([]string, 0, 3)
	if w.Prev != nil {
		texts = append(texts, w.Prev.Text)
	}
	texts = append(texts, w.Chunk.Text)
	if w.Next != nil {
		texts = append(texts, w.Next.Text)
	}
	return texts
}
