package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// evenCaptions returns n back-to-back captions of durMs each.
func evenCaptions(n int, durMs float64) []domain.CaptionRecord {
	out := make([]domain.CaptionRecord, n)
	for i := range out {
		out[i] = domain.CaptionRecord{
			Text:       "caption " + string(rune('a'+i%26)),
			StartMs:    float64(i) * durMs,
			DurationMs: durMs,
		}
	}
	return out
}

func TestSegment_Empty(t *testing.T) {
	assert.Empty(t, Segment("vid", nil, DefaultWindowMs))
}

func TestSegment_BelowThresholdIsOneChunk(t *testing.T) {
	captions := evenCaptions(10, 1000) // 10s total

	chunks := Segment("vid", captions, DefaultWindowMs)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "vid", chunks[0].TranscriptID)
	assert.Equal(t, 0.0, chunks[0].StartMs)
	assert.Equal(t, 10000.0, chunks[0].DurationMs)
}

func TestSegment_FourHundredSecondsIsTwoChunks(t *testing.T) {
	captions := evenCaptions(80, 5000) // 0 - 400000 ms

	chunks := Segment("vid", captions, 300000)

	require.Len(t, chunks, 2)
	assert.GreaterOrEqual(t, chunks[0].EndMs(), 300000.0)
	assert.Equal(t, 300000.0, chunks[0].DurationMs)
	assert.Equal(t, 300000.0, chunks[1].StartMs)
	assert.Equal(t, 100000.0, chunks[1].DurationMs)
	assert.Equal(t, 400000.0, chunks[1].EndMs())
}

func TestSegment_TriggeringCaptionClosesItsChunk(t *testing.T) {
	captions := []domain.CaptionRecord{
		{Text: "a", StartMs: 0, DurationMs: 200},
		{Text: "b", StartMs: 200, DurationMs: 200}, // total 400 >= 300
		{Text: "c", StartMs: 400, DurationMs: 50},
	}

	chunks := Segment("vid", captions, 300)

	require.Len(t, chunks, 2)
	assert.Equal(t, "a b", chunks[0].Text)
	assert.Equal(t, 400.0, chunks[0].DurationMs)
	assert.Equal(t, "c", chunks[1].Text)
	assert.Equal(t, 400.0, chunks[1].StartMs)
}

func TestSegment_OversizedCaptionIsNotSplit(t *testing.T) {
	captions := []domain.CaptionRecord{
		{Text: "a very long monologue", StartMs: 0, DurationMs: 900000},
		{Text: "after", StartMs: 900000, DurationMs: 1000},
	}

	chunks := Segment("vid", captions, DefaultWindowMs)

	require.Len(t, chunks, 2)
	assert.Equal(t, "a very long monologue", chunks[0].Text)
	assert.Equal(t, 900000.0, chunks[0].DurationMs)
	assert.Equal(t, "after", chunks[1].Text)
}

func TestSegment_NonPositiveThresholdUsesDefault(t *testing.T) {
	captions := evenCaptions(80, 5000)

	assert.Equal(t, Segment("vid", captions, DefaultWindowMs), Segment("vid", captions, 0))
	assert.Equal(t, Segment("vid", captions, DefaultWindowMs), Segment("vid", captions, -5))
}

func TestSegment_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.IntN(200)
		threshold := float64(1000 + rng.IntN(60000))

		captions := make([]domain.CaptionRecord, n)
		at := 0.0
		for i := range captions {
			gap := float64(rng.IntN(2000))
			dur := float64(rng.IntN(8000))
			at += gap
			captions[i] = domain.CaptionRecord{
				Text:       "w" + string(rune('a'+rng.IntN(26))),
				StartMs:    at,
				DurationMs: dur,
			}
			at += dur
		}

		chunks := Segment("vid", captions, threshold)
		require.NotEmpty(t, chunks)

		// Concatenated chunk text equals concatenated caption text.
		var want []string
		for _, c := range captions {
			want = append(want, c.Text)
		}
		var got []string
		for _, c := range chunks {
			got = append(got, c.Text)
		}
		assert.Equal(t, strings.Join(want, " "), strings.Join(got, " "))

		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			if i < len(chunks)-1 {
				// Non-terminal chunks reached the threshold.
				assert.GreaterOrEqual(t, c.DurationMs, threshold)
				// Ordered and non-overlapping in start time.
				assert.Less(t, c.StartMs, chunks[i+1].StartMs+1e-9)
			}
		}
		assert.Equal(t, captions[0].StartMs, chunks[0].StartMs)

		// Deterministic.
		assert.Equal(t, chunks, Segment("vid", captions, threshold))
	}
}
