// Package storetest holds behaviour tests shared by every ChunkStore backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/store"
)

// Factory opens an empty store that lives for the duration of t.
type Factory func(t *testing.T) store.ChunkStore

// Chunks builds n consecutive five-minute chunks for transcriptID,
// each starting where the previous one ends.
func Chunks(transcriptID string, n int) []domain.ContextChunk {
	chunks := make([]domain.ContextChunk, n)
	for i := range chunks {
		chunks[i] = domain.ContextChunk{
			TranscriptID: transcriptID,
			ChunkIndex:   i,
			Text:         fmt.Sprintf("%s chunk %d", transcriptID, i),
			StartMs:      float64(i) * 300000,
			DurationMs:   300000,
		}
	}
	return chunks
}

// Run exercises the ChunkStore contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("ReplaceAndList", func(t *testing.T) { testReplaceAndList(t, open(t)) })
	t.Run("ReplaceDiscardsPrevious", func(t *testing.T) { testReplaceDiscardsPrevious(t, open(t)) })
	t.Run("FindContaining", func(t *testing.T) { testFindContaining(t, open(t)) })
	t.Run("LastChunkOpenEnded", func(t *testing.T) { testLastChunkOpenEnded(t, open(t)) })
	t.Run("GapIsAbsent", func(t *testing.T) { testGapIsAbsent(t, open(t)) })
	t.Run("Neighbors", func(t *testing.T) { testNeighbors(t, open(t)) })
	t.Run("Window", func(t *testing.T) { testWindow(t, open(t)) })
	t.Run("UnknownTranscript", func(t *testing.T) { testUnknownTranscript(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("IsolatedTranscripts", func(t *testing.T) { testIsolatedTranscripts(t, open(t)) })
	t.Run("CancelledReplaceKeepsPrevious", func(t *testing.T) { testCancelledReplace(t, open(t)) })
	t.Run("ConcurrentReadsSeeOneGeneration", func(t *testing.T) { testConcurrentReads(t, open(t)) })
	t.Run("ConcurrentReplacesOfDistinctIDs", func(t *testing.T) { testConcurrentDistinctIDs(t, open(t)) })
	t.Run("RejectsInvalidID", func(t *testing.T) { testRejectsInvalidID(t, open(t)) })
}

func testReplaceAndList(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	want := Chunks("vid-1", 3)
	require.NoError(t, s.Replace(ctx, "vid-1", want))

	got, err := s.List(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func testReplaceDiscardsPrevious(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 4)))

	replacement := []domain.ContextChunk{
		{TranscriptID: "vid-1", ChunkIndex: 0, Text: "fresh", StartMs: 0, DurationMs: 1000},
	}
	require.NoError(t, s.Replace(ctx, "vid-1", replacement))

	got, err := s.List(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)

	_, next, err := s.Neighbors(ctx, "vid-1", 0)
	require.NoError(t, err)
	assert.Nil(t, next, "chunk from the previous generation must not survive")
}

func testFindContaining(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 3)))

	tests := []struct {
		name       string
		timestampS float64
		wantIndex  int
	}{
		{"start of transcript", 0, 0},
		{"inside first chunk", 120, 0},
		{"inside second chunk", 450, 1},
		{"inside last chunk", 700, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, ok, err := s.FindContaining(ctx, "vid-1", tt.timestampS)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantIndex, chunk.ChunkIndex)
		})
	}

	// Boundaries belong to the chunk that starts there.
	chunk, ok, err := s.FindContaining(ctx, "vid-1", 300)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, chunk.ChunkIndex)

	_, ok, err = s.FindContaining(ctx, "vid-1", -1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testLastChunkOpenEnded(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 2)))

	chunk, ok, err := s.FindContaining(ctx, "vid-1", 10_000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, chunk.ChunkIndex)
}

func testGapIsAbsent(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	chunks := []domain.ContextChunk{
		{ChunkIndex: 0, Text: "a", StartMs: 0, DurationMs: 300000},
		{ChunkIndex: 1, Text: "b", StartMs: 400000, DurationMs: 300000},
	}
	require.NoError(t, s.Replace(ctx, "vid-1", chunks))

	_, ok, err := s.FindContaining(ctx, "vid-1", 350)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testNeighbors(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 3)))

	prev, next, err := s.Neighbors(ctx, "vid-1", 1)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, 0, prev.ChunkIndex)
	assert.Equal(t, 2, next.ChunkIndex)

	prev, next, err = s.Neighbors(ctx, "vid-1", 0)
	require.NoError(t, err)
	assert.Nil(t, prev)
	require.NotNil(t, next)

	prev, next, err = s.Neighbors(ctx, "vid-1", 2)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Nil(t, next)

	prev, next, err = s.Neighbors(ctx, "vid-1", 99)
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Nil(t, next)
}

func testWindow(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 3)))

	w, ok, err := s.Window(ctx, "vid-1", 450)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"vid-1 chunk 0", "vid-1 chunk 1", "vid-1 chunk 2"}, w.Texts())

	w, ok, err = s.Window(ctx, "vid-1", 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, w.Prev)
	assert.Equal(t, []string{"vid-1 chunk 0", "vid-1 chunk 1"}, w.Texts())
}

func testUnknownTranscript(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()

	chunk, ok, err := s.FindContaining(ctx, "missing", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, chunk)

	prev, next, err := s.Neighbors(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Nil(t, next)

	_, ok, err = s.Window(ctx, "missing", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	chunks, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func testDelete(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 2)))
	require.NoError(t, s.Delete(ctx, "vid-1"))

	chunks, err := s.List(ctx, "vid-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, ok, err := s.FindContaining(ctx, "vid-1", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "vid-1"))
}

func testIsolatedTranscripts(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 2)))
	require.NoError(t, s.Replace(ctx, "vid-10", Chunks("vid-10", 3)))
	require.NoError(t, s.Delete(ctx, "vid-1"))

	chunks, err := s.List(ctx, "vid-10")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func testCancelledReplace(t *testing.T, s store.ChunkStore) {
	want := Chunks("vid-1", 2)
	require.NoError(t, s.Replace(context.Background(), "vid-1", want))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Replace(ctx, "vid-1", Chunks("vid-1", 5))
	require.ErrorIs(t, err, context.Canceled)

	got, err := s.List(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// testConcurrentReads replaces a transcript repeatedly with generations of
// distinct sizes while readers check every List sees exactly one of them.
func testConcurrentReads(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 2)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 4)

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				chunks, err := s.List(ctx, "vid-1")
				if err != nil {
					errs <- err
					return
				}
				if n := len(chunks); n != 2 && n != 3 {
					errs <- fmt.Errorf("observed mixed generation with %d chunks", n)
					return
				}
				for i, c := range chunks {
					if c.ChunkIndex != i {
						errs <- fmt.Errorf("chunk %d has index %d", i, c.ChunkIndex)
						return
					}
				}
			}
		}()
	}

	for i := range 20 {
		require.NoError(t, s.Replace(ctx, "vid-1", Chunks("vid-1", 2+i%2)))
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func testRejectsInvalidID(t *testing.T, s store.ChunkStore) {
	err := s.Replace(context.Background(), "a:b", Chunks("a:b", 1))
	assert.Error(t, err)

	err = s.Replace(context.Background(), "", Chunks("", 1))
	assert.Error(t, err)
}

func testConcurrentDistinctIDs(t *testing.T, s store.ChunkStore) {
	const (
		writers = 8
		rounds  = 25
		readers = 4
	)
	ctx := context.Background()

	var readWG, writeWG sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, writers+readers)

	for r := range readers {
		readWG.Go(func() {
			id := fmt.Sprintf("absent-%d", r)
			for {
				select {
				case <-stop:
					return
				default:
				}
				chunks, err := s.List(ctx, id)
				if err != nil {
					errs <- err
					return
				}
				if len(chunks) != 0 {
					errs <- fmt.Errorf("%s was never written but lists %d chunks", id, len(chunks))
					return
				}
			}
		})
	}

	for w := range writers {
		writeWG.Go(func() {
			id := fmt.Sprintf("vid-%d", w)
			for i := range rounds {
				if err := s.Replace(ctx, id, Chunks(id, 1+i%3)); err != nil {
					errs <- fmt.Errorf("replace %s: %w", id, err)
					return
				}
			}
		})
	}

	writeWG.Wait()
	close(stop)
	readWG.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	want := 1 + (rounds-1)%3
	for w := range writers {
		id := fmt.Sprintf("vid-%d", w)
		chunks, err := s.List(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, Chunks(id, want), chunks, id)
	}
	for r := range readers {
		chunks, err := s.List(ctx, fmt.Sprintf("absent-%d", r))
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}
