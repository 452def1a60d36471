package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/id"
	"github.com/listenupapp/transcript-server/internal/search"
	"github.com/listenupapp/transcript-server/internal/store"
)

// rawCaptions returns n ten-second captions, in seconds as acquisition supplies them.
func rawCaptions(n int) []domain.RawCaption {
	raw := make([]domain.RawCaption, n)
	for i := range raw {
		raw[i] = domain.RawCaption{
			Text:     fmt.Sprintf("caption number %d", i),
			Start:    float64(i) * 10,
			Duration: 10,
		}
	}
	return raw
}

type stores struct {
	captions *search.CaptionIndex
	chunks   *store.Store
}

func setupStores(t *testing.T) stores {
	t.Helper()
	dir := t.TempDir()

	captions, err := search.NewCaptionIndex(search.Options{DataPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = captions.Close() })

	chunks, err := store.New(filepath.Join(dir, "chunks"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = chunks.Close() })

	return stores{captions: captions, chunks: chunks}
}

// recordingChunks wraps a ChunkWriter, failing Replace on demand.
type recordingChunks struct {
	ChunkWriter
	replaceErr error
	deletes    atomic.Int32
}

func (r *recordingChunks) Replace(ctx context.Context, transcriptID string, chunks []domain.ContextChunk) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	return r.ChunkWriter.Replace(ctx, transcriptID, chunks)
}

func (r *recordingChunks) Delete(ctx context.Context, transcriptID string) error {
	r.deletes.Add(1)
	return r.ChunkWriter.Delete(ctx, transcriptID)
}

// failingCaptions fails every Index call.
type failingCaptions struct {
	CaptionIndexer
	deletes atomic.Int32
}

func (f *failingCaptions) Index(context.Context, string, []domain.CaptionRecord) error {
	return fmt.Errorf("index unavailable")
}

func (f *failingCaptions) Delete(ctx context.Context, transcriptID string) error {
	f.deletes.Add(1)
	return f.CaptionIndexer.Delete(ctx, transcriptID)
}

func TestBuild(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{})
	ctx := context.Background()

	report, err := b.Build(ctx, "vid-1", rawCaptions(45))
	require.NoError(t, err)

	assert.True(t, id.HasPrefix(report.BuildID, id.BuildPrefix))
	assert.Equal(t, "vid-1", report.TranscriptID)
	assert.Equal(t, 45, report.Captions)
	// 30 ten-second captions reach 300s and close chunk 0; 15 remain.
	assert.Equal(t, 2, report.Chunks)

	chunks, err := s.chunks.List(ctx, "vid-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0.0, chunks[0].StartMs)
	assert.Equal(t, 300000.0, chunks[0].DurationMs)
	assert.Equal(t, 300000.0, chunks[1].StartMs)

	count, err := s.captions.CaptionCount(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, 45, count)
}

func TestBuild_ConvertsSecondsToMillis(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{})
	ctx := context.Background()

	_, err := b.Build(ctx, "vid-1", []domain.RawCaption{
		{Text: "the rocket launches at dawn", Start: 120, Duration: 2.5},
	})
	require.NoError(t, err)

	matches, err := s.captions.Search(ctx, "vid-1", "rocket", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 120000.0, matches[0].Caption.Metadata.TimestampMs)
	assert.Equal(t, 2500.0, matches[0].Caption.Metadata.DurationMs)
}

func TestBuild_Idempotent(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{})
	ctx := context.Background()

	_, err := b.Build(ctx, "vid-1", rawCaptions(40))
	require.NoError(t, err)
	chunks1, err := s.chunks.List(ctx, "vid-1")
	require.NoError(t, err)
	captions1, err := s.captions.RangeQuery(ctx, "vid-1", 0, 1e12)
	require.NoError(t, err)

	_, err = b.Build(ctx, "vid-1", rawCaptions(40))
	require.NoError(t, err)
	chunks2, err := s.chunks.List(ctx, "vid-1")
	require.NoError(t, err)
	captions2, err := s.captions.RangeQuery(ctx, "vid-1", 0, 1e12)
	require.NoError(t, err)

	assert.Equal(t, chunks1, chunks2)
	assert.Equal(t, captions1, captions2)
}

func TestBuild_ChunkWindowOption(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{ChunkWindow: time.Minute})

	report, err := b.Build(context.Background(), "vid-1", rawCaptions(30))
	require.NoError(t, err)
	assert.Equal(t, 5, report.Chunks)
}

func TestBuild_EmptyTranscript(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{})
	ctx := context.Background()

	_, err := b.Build(ctx, "vid-1", nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyTranscript))

	has, err := s.captions.Has(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBuild_InvalidTranscriptID(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{})

	_, err := b.Build(context.Background(), "", rawCaptions(1))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestBuild_ChunkFailureInvalidatesBoth(t *testing.T) {
	s := setupStores(t)
	ctx := context.Background()

	_, err := NewBuilder(s.captions, s.chunks, Options{}).Build(ctx, "vid-1", rawCaptions(10))
	require.NoError(t, err)

	chunks := &recordingChunks{ChunkWriter: s.chunks, replaceErr: fmt.Errorf("disk full")}
	b := NewBuilder(s.captions, chunks, Options{})

	_, err = b.Build(ctx, "vid-1", rawCaptions(20))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIndexBuild))
	assert.True(t, errors.CodeOf(err).Retryable())

	assert.Equal(t, int32(1), chunks.deletes.Load())
	has, err := s.captions.Has(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, has, "caption index must not keep the previous generation")
}

func TestBuild_IndexFailureInvalidatesBoth(t *testing.T) {
	s := setupStores(t)
	ctx := context.Background()

	captions := &failingCaptions{CaptionIndexer: s.captions}
	b := NewBuilder(captions, s.chunks, Options{})

	_, err := b.Build(ctx, "vid-1", rawCaptions(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIndexBuild))
	assert.Equal(t, int32(1), captions.deletes.Load())

	chunks, err := s.chunks.List(ctx, "vid-1")
	require.NoError(t, err)
	assert.Empty(t, chunks, "chunks written before the failure must be removed")
}

func TestBuild_CancelledLeavesNotIndexed(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{})

	_, err := b.Build(context.Background(), "vid-1", rawCaptions(10))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, "vid-1", rawCaptions(20))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// Either the lock wait or a store step observed the cancellation;
	// in neither case may a mixed state remain.
	chunks, err := s.chunks.List(context.Background(), "vid-1")
	require.NoError(t, err)
	count, countErr := s.captions.CaptionCount(context.Background(), "vid-1")
	if countErr == nil {
		assert.Len(t, chunks, 1)
		assert.Equal(t, 10, count)
	} else {
		assert.True(t, errors.Is(countErr, errors.ErrIndexNotFound))
		assert.Empty(t, chunks)
	}
}

func TestInvalidate(t *testing.T) {
	s := setupStores(t)
	b := NewBuilder(s.captions, s.chunks, Options{})
	ctx := context.Background()

	_, err := b.Build(ctx, "vid-1", rawCaptions(5))
	require.NoError(t, err)
	require.NoError(t, b.Invalidate(ctx, "vid-1"))

	has, err := s.captions.Has(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, has)

	chunks, err := s.chunks.List(ctx, "vid-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// slowChunks records the peak number of concurrent Replace calls per id.
type slowChunks struct {
	ChunkWriter
	mu     sync.Mutex
	active map[string]int
	peak   map[string]int
}

func (s *slowChunks) Replace(ctx context.Context, transcriptID string, chunks []domain.ContextChunk) error {
	s.mu.Lock()
	s.active[transcriptID]++
	s.peak[transcriptID] = max(s.peak[transcriptID], s.active[transcriptID])
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.active[transcriptID]--
	s.mu.Unlock()
	return s.ChunkWriter.Replace(ctx, transcriptID, chunks)
}

func TestBuild_SerialisesSameTranscript(t *testing.T) {
	s := setupStores(t)
	chunks := &slowChunks{ChunkWriter: s.chunks, active: map[string]int{}, peak: map[string]int{}}
	b := NewBuilder(s.captions, chunks, Options{})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transcriptID := fmt.Sprintf("vid-%d", i%2)
			_, err := b.Build(context.Background(), transcriptID, rawCaptions(5))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, chunks.peak["vid-0"])
	assert.Equal(t, 1, chunks.peak["vid-1"])
	assert.Equal(t, 0, b.locks.Len())
}
