// Package indexer builds both indexes of a transcript from its raw captions.
package indexer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/listenupapp/transcript-server/internal/chunker"
	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/id"
	"github.com/listenupapp/transcript-server/internal/normalize"
	"github.com/listenupapp/transcript-server/internal/store"
)

// invalidateTimeout bounds cleanup after a failed build.
const invalidateTimeout = 30 * time.Second

// CaptionIndexer is the fine-grained index as seen by the builder.
type CaptionIndexer interface {
	Index(ctx context.Context, transcriptID string, captions []domain.CaptionRecord) error
	Delete(ctx context.Context, transcriptID string) error
}

// ChunkWriter is the chunk store as seen by the builder.
type ChunkWriter interface {
	Replace(ctx context.Context, transcriptID string, chunks []domain.ContextChunk) error
	Delete(ctx context.Context, transcriptID string) error
}

// BuildReport describes a completed build.
type BuildReport struct {
	BuildID      string        `json:"build_id"`
	TranscriptID string        `json:"transcript_id"`
	Captions     int           `json:"captions"`
	Chunks       int           `json:"chunks"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Options configures a Builder.
type Options struct {
	ChunkWindow time.Duration // Accumulated duration that closes a chunk (5m if zero)
	Logger      *slog.Logger  // Uses discard if nil
}

// Builder rebuilds a transcript's chunk store and caption index together.
//
// Builds of the same transcript are serialised; builds of different
// transcripts run in parallel.
type Builder struct {
	captions CaptionIndexer
	chunks   ChunkWriter
	windowMs float64
	locks    *KeyedMutex
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(captions CaptionIndexer, chunks ChunkWriter, opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	windowMs := float64(opts.ChunkWindow.Milliseconds())
	if windowMs <= 0 {
		windowMs = chunker.DefaultWindowMs
	}

	return &Builder{
		captions: captions,
		chunks:   chunks,
		windowMs: windowMs,
		locks:    NewKeyedMutex(),
		logger:   logger,
	}
}

// Build normalizes raw, segments it into chunks, replaces the chunk store
// contents and then the caption index for transcriptID.
//
// Rebuilding with the same input is idempotent. If either store step fails
// or ctx is cancelled during one, both stores are cleared for transcriptID so
// it reads as not indexed, and an IndexBuild error wrapping the cause is
// returned. Invalid input fails before any store is touched, with
// EmptyTranscript or Validation errors.
func (b *Builder) Build(ctx context.Context, transcriptID string, raw []domain.RawCaption) (*BuildReport, error) {
	if err := store.ValidateTranscriptID(transcriptID); err != nil {
		return nil, err
	}

	buildID, err := id.NewBuildID()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate build id")
	}

	if err := b.locks.Lock(ctx, transcriptID); err != nil {
		return nil, errors.IndexBuild(transcriptID, err)
	}
	defer b.locks.Unlock(transcriptID)

	started := time.Now()
	logger := b.logger.With("build_id", buildID, "transcript_id", transcriptID)

	records, err := normalize.Captions(raw)
	if err != nil {
		logger.Info("rejected transcript", "error", err)
		return nil, err
	}

	chunks := chunker.Segment(transcriptID, records, b.windowMs)

	if err := b.chunks.Replace(ctx, transcriptID, chunks); err != nil {
		return nil, b.fail(ctx, logger, transcriptID, "replace chunks", err)
	}
	if err := b.captions.Index(ctx, transcriptID, records); err != nil {
		return nil, b.fail(ctx, logger, transcriptID, "index captions", err)
	}

	report := &BuildReport{
		BuildID:      buildID,
		TranscriptID: transcriptID,
		Captions:     len(records),
		Chunks:       len(chunks),
		StartedAt:    started.UTC(),
		Elapsed:      time.Since(started),
	}

	logger.Info("transcript indexed",
		"captions", report.Captions,
		"chunks", report.Chunks,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// Invalidate removes transcriptID from both stores.
func (b *Builder) Invalidate(ctx context.Context, transcriptID string) error {
	if err := b.locks.Lock(ctx, transcriptID); err != nil {
		return err
	}
	defer b.locks.Unlock(transcriptID)

	return b.invalidate(ctx, transcriptID)
}

// invalidate deletes from both stores, attempting both even if one fails.
// Caller must hold the transcript lock.
func (b *Builder) invalidate(ctx context.Context, transcriptID string) error {
	chunkErr := b.chunks.Delete(ctx, transcriptID)
	captionErr := b.captions.Delete(ctx, transcriptID)
	return errors.Join(chunkErr, captionErr)
}

// fail invalidates both stores after a failed step and wraps cause.
// Cleanup runs even when ctx is already cancelled.
func (b *Builder) fail(ctx context.Context, logger *slog.Logger, transcriptID, step string, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	if err := b.invalidate(cleanupCtx, transcriptID); err != nil {
		logger.Error("failed to invalidate after build failure",
			"step", step,
			"error", err,
		)
	}

	logger.Warn("build failed, transcript invalidated",
		"step", step,
		"error", cause,
	)
	return errors.IndexBuild(transcriptID, cause)
}
