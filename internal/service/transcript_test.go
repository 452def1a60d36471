package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/captions"
	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/indexer"
	"github.com/listenupapp/transcript-server/internal/ratelimit"
	"github.com/listenupapp/transcript-server/internal/retrieval"
	"github.com/listenupapp/transcript-server/internal/search"
	"github.com/listenupapp/transcript-server/internal/sse"
	"github.com/listenupapp/transcript-server/internal/store"
)

// slowSource blocks until its context ends.
type slowSource struct{}

func (slowSource) Fetch(ctx context.Context, _ string) ([]domain.RawCaption, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// recordingGenerator remembers the last prompt it was given.
type recordingGenerator struct {
	calls  int
	prompt Prompt
	err    error
}

func (g *recordingGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	g.calls++
	g.prompt = p
	if g.err != nil {
		return "", g.err
	}
	return "summary", nil
}

// rawCaptions returns one caption every 30 seconds for 10 minutes with the
// rocket caption at 120s.
func rawCaptions() []domain.RawCaption {
	var out []domain.RawCaption
	for i := range 20 {
		text := fmt.Sprintf("filler line %d", i)
		if i == 4 {
			text = "the rocket launches at dawn"
		}
		out = append(out, domain.RawCaption{Text: text, Start: float64(i) * 30, Duration: 30})
	}
	return out
}

type serviceFixture struct {
	svc *TranscriptService
	gen *recordingGenerator
	dir string
}

func setupService(t *testing.T, deps Deps) serviceFixture {
	t.Helper()
	dir := t.TempDir()

	index, err := search.NewCaptionIndex(search.Options{DataPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	chunks, err := store.New(filepath.Join(dir, "chunks"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = chunks.Close() })

	gen := &recordingGenerator{}
	deps.Builder = indexer.NewBuilder(index, chunks, indexer.Options{})
	deps.Retriever = retrieval.New(index, chunks, retrieval.Options{})
	deps.Captions = index
	deps.Chunks = chunks
	if deps.Generator == nil {
		deps.Generator = gen
	}

	return serviceFixture{
		svc: NewTranscriptService(deps, time.Second, nil),
		gen: gen,
		dir: dir,
	}
}

func TestBuildAndQuery(t *testing.T) {
	f := setupService(t, Deps{})
	ctx := context.Background()

	report, err := f.svc.Build(ctx, "vid-1", rawCaptions())
	require.NoError(t, err)
	assert.Equal(t, 20, report.Captions)
	assert.Equal(t, 2, report.Chunks)

	result, err := f.svc.Query(ctx, "vid-1", "rocket launch")
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, 120.0, *result.MatchedTimestampS)
	assert.Contains(t, result.Context, "the rocket launches at dawn")
}

func TestAnswer(t *testing.T) {
	f := setupService(t, Deps{})
	ctx := context.Background()

	_, err := f.svc.Build(ctx, "vid-1", rawCaptions())
	require.NoError(t, err)

	answer, err := f.svc.Answer(ctx, "vid-1", "when does the rocket launch?")
	require.NoError(t, err)
	assert.Equal(t, "summary", answer.Response)
	require.NotNil(t, answer.TimestampS)
	assert.Equal(t, 120.0, *answer.TimestampS)

	require.Equal(t, 1, f.gen.calls)
	assert.Equal(t, "when does the rocket launch?", f.gen.prompt.Question)
	assert.Equal(t, answer.Context, f.gen.prompt.Context)
	assert.Contains(t, f.gen.prompt.User, answer.Context)
	assert.NotEmpty(t, f.gen.prompt.System)
}

func TestAnswer_NoMatch(t *testing.T) {
	f := setupService(t, Deps{})
	ctx := context.Background()

	_, err := f.svc.Build(ctx, "vid-1", rawCaptions())
	require.NoError(t, err)

	answer, err := f.svc.Answer(ctx, "vid-1", "submarine")
	require.NoError(t, err)
	assert.Equal(t, NoMatchResponse, answer.Response)
	assert.Nil(t, answer.TimestampS)
	assert.Zero(t, f.gen.calls)
}

func TestAnswer_GeneratorFailure(t *testing.T) {
	gen := &recordingGenerator{err: fmt.Errorf("backend down")}
	f := setupService(t, Deps{Generator: gen})
	ctx := context.Background()

	_, err := f.svc.Build(ctx, "vid-1", rawCaptions())
	require.NoError(t, err)

	_, err = f.svc.Answer(ctx, "vid-1", "rocket")
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestAnswer_DefaultGeneratorIsExtractive(t *testing.T) {
	svc := NewTranscriptService(Deps{}, 0, nil)
	assert.IsType(t, ExtractiveGenerator{}, svc.generator)
	assert.Equal(t, DefaultAcquireTimeout, svc.acquireTimeout)
}

func TestQuery_NotIndexed(t *testing.T) {
	f := setupService(t, Deps{})

	_, err := f.svc.Query(context.Background(), "vid-404", "rocket")
	assert.True(t, errors.Is(err, errors.ErrIndexNotFound))

	_, err = f.svc.Answer(context.Background(), "vid-404", "rocket")
	assert.True(t, errors.Is(err, errors.ErrIndexNotFound))
}

func TestIngest_FromFileSource(t *testing.T) {
	src := t.TempDir()
	var vtt strings.Builder
	vtt.WriteString("WEBVTT\n\n")
	vtt.WriteString("00:00:00.000 --> 00:00:05.000\nwelcome back\n\n")
	vtt.WriteString("00:00:05.000 --> 00:00:09.000\ntoday we talk about rockets\n")
	require.NoError(t, os.WriteFile(filepath.Join(src, "vid-7.vtt"), []byte(vtt.String()), 0o644))

	f := setupService(t, Deps{Source: captions.NewFileSource(src)})
	ctx := context.Background()

	report, err := f.svc.Ingest(ctx, "vid-7")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Captions)
	assert.Equal(t, 1, report.Chunks)

	result, err := f.svc.Query(ctx, "vid-7", "rockets")
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, 5.0, *result.MatchedTimestampS)

	_, err = f.svc.Ingest(ctx, "vid-8")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestIngest_NoSource(t *testing.T) {
	f := setupService(t, Deps{})

	_, err := f.svc.Ingest(context.Background(), "vid-1")
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestAcquire_Timeout(t *testing.T) {
	f := setupService(t, Deps{Source: slowSource{}})
	f.svc.acquireTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := f.svc.Acquire(context.Background(), "vid-1")
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBuild_RateLimited(t *testing.T) {
	limiter := ratelimit.New(0.001, 1)
	t.Cleanup(limiter.Stop)

	f := setupService(t, Deps{Limiter: limiter})
	ctx := context.Background()

	_, err := f.svc.Build(ctx, "vid-1", rawCaptions())
	require.NoError(t, err)

	_, err = f.svc.Build(ctx, "vid-1", rawCaptions())
	assert.True(t, errors.Is(err, errors.ErrRateLimited))

	// Other transcripts have their own budget.
	_, err = f.svc.Build(ctx, "vid-2", rawCaptions())
	assert.NoError(t, err)
}

func TestChunksStatusDelete(t *testing.T) {
	f := setupService(t, Deps{})
	ctx := context.Background()

	status, err := f.svc.Status(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, status.Indexed)

	_, err = f.svc.Chunks(ctx, "vid-1")
	assert.True(t, errors.Is(err, errors.ErrIndexNotFound))

	_, err = f.svc.Build(ctx, "vid-1", rawCaptions())
	require.NoError(t, err)

	chunks, err := f.svc.Chunks(ctx, "vid-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0.0, chunks[0].StartMs)
	assert.Equal(t, 300000.0, chunks[1].StartMs)

	status, err = f.svc.Status(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, TranscriptStatus{TranscriptID: "vid-1", Indexed: true, Captions: 20, Chunks: 2}, *status)

	require.NoError(t, f.svc.Delete(ctx, "vid-1"))

	status, err = f.svc.Status(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, status.Indexed)

	err = f.svc.Delete(ctx, "vid-1")
	assert.True(t, errors.Is(err, errors.ErrIndexNotFound))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("[2:00] the rocket launches", "what launches?")
	assert.Equal(t, systemPrompt, p.System)
	assert.Contains(t, p.User, "[2:00] the rocket launches")
	assert.Contains(t, p.User, "Question: what launches?")

	out, err := ExtractiveGenerator{}.Generate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "[2:00] the rocket launches", out)
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ExtractVideoID(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "https://vimeo.com/12345", "not a url", "https://www.youtube.com/watch?list=abc", "http://[::1"} {
		_, err := ExtractVideoID(bad)
		assert.True(t, errors.Is(err, errors.ErrValidation), bad)
	}
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	events []sse.Event
}

func (r *eventRecorder) Emit(e sse.Event) { r.events = append(r.events, e) }

func (r *eventRecorder) types() []sse.EventType {
	out := make([]sse.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestEvents_BuildAndDelete(t *testing.T) {
	rec := &eventRecorder{}
	f := setupService(t, Deps{Events: rec})
	ctx := context.Background()

	report, err := f.svc.Build(ctx, "vid-1", rawCaptions())
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, "vid-1"))

	assert.Equal(t, []sse.EventType{
		sse.EventBuildStarted,
		sse.EventBuildCompleted,
		sse.EventTranscriptDeleted,
	}, rec.types())

	started, ok := rec.events[0].Data.(sse.BuildStartedData)
	require.True(t, ok)
	assert.Equal(t, SourceCaptions, started.Source)

	completed, ok := rec.events[1].Data.(sse.BuildCompletedData)
	require.True(t, ok)
	assert.Equal(t, report.BuildID, completed.BuildID)
	assert.Equal(t, 20, completed.Captions)
	assert.Equal(t, 2, completed.Chunks)
	for _, e := range rec.events {
		assert.Equal(t, "vid-1", e.TranscriptID)
	}
}

func TestEvents_BuildFailed(t *testing.T) {
	rec := &eventRecorder{}
	f := setupService(t, Deps{Events: rec})

	_, err := f.svc.Build(context.Background(), "vid-1", nil)
	require.Error(t, err)

	require.Equal(t, []sse.EventType{sse.EventBuildStarted, sse.EventBuildFailed}, rec.types())
	failed, ok := rec.events[1].Data.(sse.BuildFailedData)
	require.True(t, ok)
	assert.Equal(t, string(errors.CodeEmptyTranscript), failed.Code)
}

func TestEvents_IngestAcquireFailure(t *testing.T) {
	rec := &eventRecorder{}
	f := setupService(t, Deps{Source: slowSource{}, Events: rec})

	_, err := f.svc.Ingest(context.Background(), "vid-1")
	require.Error(t, err)

	require.Equal(t, []sse.EventType{sse.EventBuildStarted, sse.EventBuildFailed}, rec.types())
	started, ok := rec.events[0].Data.(sse.BuildStartedData)
	require.True(t, ok)
	assert.Equal(t, SourceIngest, started.Source)
	failed, ok := rec.events[1].Data.(sse.BuildFailedData)
	require.True(t, ok)
	assert.Equal(t, string(errors.CodeUnavailable), failed.Code)
}
