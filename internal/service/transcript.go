// Package service coordinates acquisition, indexing and retrieval of transcripts.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/indexer"
	"github.com/listenupapp/transcript-server/internal/ratelimit"
	"github.com/listenupapp/transcript-server/internal/retrieval"
	"github.com/listenupapp/transcript-server/internal/sse"
)

// DefaultAcquireTimeout bounds a single caption acquisition.
const DefaultAcquireTimeout = 30 * time.Second

// CaptionSource acquires the raw captions of a transcript.
// Captions are measured in seconds.
type CaptionSource interface {
	Fetch(ctx context.Context, transcriptID string) ([]domain.RawCaption, error)
}

// CaptionCatalog reports what the caption index holds for a transcript.
type CaptionCatalog interface {
	Has(ctx context.Context, transcriptID string) (bool, error)
	CaptionCount(ctx context.Context, transcriptID string) (int, error)
	RangeQuery(ctx context.Context, transcriptID string, lowMs, highMs float64) ([]domain.IndexedCaption, error)
}

// EventEmitter publishes transcript lifecycle events.
type EventEmitter interface {
	Emit(event sse.Event)
}

// Build sources reported in build events.
const (
	SourceCaptions = "captions"
	SourceIngest   = "ingest"
)

// ChunkLister lists a transcript's stored chunks.
type ChunkLister interface {
	List(ctx context.Context, transcriptID string) ([]domain.ContextChunk, error)
}

// Answer is a generated response to a question about a transcript.
type Answer struct {
	Response   string   `json:"response"`
	TimestampS *float64 `json:"timestamp"`
	Context    string   `json:"context"`
}

// TranscriptStatus summarises the indexes of a transcript.
type TranscriptStatus struct {
	TranscriptID string `json:"transcript_id"`
	Indexed      bool   `json:"indexed"`
	Captions     int    `json:"captions"`
	Chunks       int    `json:"chunks"`
}

// Deps are the collaborators of a TranscriptService.
type Deps struct {
	Source    CaptionSource // Optional; Ingest fails with Unavailable without one
	Builder   *indexer.Builder
	Retriever *retrieval.Retriever
	Captions  CaptionCatalog
	Chunks    ChunkLister
	Generator Generator          // ExtractiveGenerator if nil
	Limiter   *ratelimit.Limiter // Optional rebuild throttle
	Events    EventEmitter       // Optional
}

// TranscriptService is the entry point for every transcript operation.
type TranscriptService struct {
	source         CaptionSource
	builder        *indexer.Builder
	retriever      *retrieval.Retriever
	captions       CaptionCatalog
	chunks         ChunkLister
	generator      Generator
	limiter        *ratelimit.Limiter
	events         EventEmitter
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// NewTranscriptService creates a new transcript service.
func NewTranscriptService(deps Deps, acquireTimeout time.Duration, logger *slog.Logger) *TranscriptService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	generator := deps.Generator
	if generator == nil {
		generator = ExtractiveGenerator{}
	}

	return &TranscriptService{
		source:         deps.Source,
		builder:        deps.Builder,
		retriever:      deps.Retriever,
		captions:       deps.Captions,
		chunks:         deps.Chunks,
		generator:      generator,
		limiter:        deps.Limiter,
		events:         deps.Events,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

// Acquire fetches raw captions from the source, bounded by the acquire timeout.
// Retrying is left to the caller.
func (s *TranscriptService) Acquire(ctx context.Context, transcriptID string) ([]domain.RawCaption, error) {
	if s.source == nil {
		return nil, errors.Unavailable("no caption source configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	raw, err := s.source.Fetch(ctx, transcriptID)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(err, errors.CodeUnavailable,
				"acquire captions for %q timed out after %s", transcriptID, s.acquireTimeout)
		}
		return nil, fmt.Errorf("acquire captions: %w", err)
	}
	return raw, nil
}

// Ingest acquires captions for transcriptID and builds its indexes.
func (s *TranscriptService) Ingest(ctx context.Context, transcriptID string) (*indexer.BuildReport, error) {
	if err := s.checkRebuild(transcriptID); err != nil {
		return nil, err
	}

	s.emit(sse.NewBuildStartedEvent(transcriptID, SourceIngest))
	raw, err := s.Acquire(ctx, transcriptID)
	if err != nil {
		s.emitFailed(transcriptID, err)
		return nil, err
	}
	return s.build(ctx, transcriptID, raw)
}

// Build indexes already acquired captions.
func (s *TranscriptService) Build(ctx context.Context, transcriptID string, raw []domain.RawCaption) (*indexer.BuildReport, error) {
	if err := s.checkRebuild(transcriptID); err != nil {
		return nil, err
	}
	s.emit(sse.NewBuildStartedEvent(transcriptID, SourceCaptions))
	return s.build(ctx, transcriptID, raw)
}

func (s *TranscriptService) build(ctx context.Context, transcriptID string, raw []domain.RawCaption) (*indexer.BuildReport, error) {
	report, err := s.builder.Build(ctx, transcriptID, raw)
	if err != nil {
		s.emitFailed(transcriptID, err)
		return nil, err
	}
	s.emit(sse.NewBuildCompletedEvent(transcriptID, report.BuildID, report.Captions, report.Chunks, report.Elapsed))
	return report, nil
}

// Query resolves a question to the best matching moment and its context.
func (s *TranscriptService) Query(ctx context.Context, transcriptID, q string) (*domain.RetrievalResult, error) {
	return s.retriever.Query(ctx, transcriptID, q)
}

// Answer queries the transcript and asks the generator to respond from the
// retrieved context. A question matching nothing gets NoMatchResponse and a
// nil timestamp without calling the generator.
func (s *TranscriptService) Answer(ctx context.Context, transcriptID, question string) (*Answer, error) {
	result, err := s.retriever.Query(ctx, transcriptID, question)
	if err != nil {
		return nil, err
	}
	if !result.Matched() {
		s.logger.Info("no relevant content found", "transcript_id", transcriptID)
		return &Answer{Response: NoMatchResponse}, nil
	}

	response, err := s.generator.Generate(ctx, BuildPrompt(result.Context, question))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "generate answer")
	}

	s.logger.Info("answered question",
		"transcript_id", transcriptID,
		"timestamp_s", *result.MatchedTimestampS,
	)
	return &Answer{
		Response:   response,
		TimestampS: result.MatchedTimestampS,
		Context:    result.Context,
	}, nil
}

// Chunks returns the stored chunks of an indexed transcript.
func (s *TranscriptService) Chunks(ctx context.Context, transcriptID string) ([]domain.ContextChunk, error) {
	if err := s.requireIndexed(ctx, transcriptID); err != nil {
		return nil, err
	}
	chunks, err := s.chunks.List(ctx, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}

// Captions returns every indexed caption of a transcript in start order.
func (s *TranscriptService) Captions(ctx context.Context, transcriptID string) ([]domain.CaptionRecord, error) {
	indexed, err := s.captions.RangeQuery(ctx, transcriptID, 0, math.MaxFloat64)
	if err != nil {
		return nil, err
	}

	records := make([]domain.CaptionRecord, len(indexed))
	for i, c := range indexed {
		records[i] = domain.CaptionRecord{
			Text:       c.Text,
			StartMs:    c.Metadata.TimestampMs,
			DurationMs: c.Metadata.DurationMs,
		}
	}
	return records, nil
}

// Status reports whether a transcript is indexed and how large it is.
func (s *TranscriptService) Status(ctx context.Context, transcriptID string) (*TranscriptStatus, error) {
	status := &TranscriptStatus{TranscriptID: transcriptID}

	count, err := s.captions.CaptionCount(ctx, transcriptID)
	if errors.Is(err, errors.ErrIndexNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunks.List(ctx, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	status.Indexed = true
	status.Captions = count
	status.Chunks = len(chunks)
	return status, nil
}

// Delete removes a transcript's indexes.
func (s *TranscriptService) Delete(ctx context.Context, transcriptID string) error {
	if err := s.requireIndexed(ctx, transcriptID); err != nil {
		return err
	}
	if err := s.builder.Invalidate(ctx, transcriptID); err != nil {
		return err
	}
	s.emit(sse.NewTranscriptDeletedEvent(transcriptID))
	return nil
}

func (s *TranscriptService) emit(event sse.Event) {
	if s.events != nil {
		s.events.Emit(event)
	}
}

func (s *TranscriptService) emitFailed(transcriptID string, err error) {
	s.emit(sse.NewBuildFailedEvent(transcriptID, string(errors.CodeOf(err)), err.Error()))
}

func (s *TranscriptService) requireIndexed(ctx context.Context, transcriptID string) error {
	has, err := s.captions.Has(ctx, transcriptID)
	if err != nil {
		return err
	}
	if !has {
		return errors.IndexNotFound(transcriptID)
	}
	return nil
}

func (s *TranscriptService) checkRebuild(transcriptID string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Check(transcriptID)
}
