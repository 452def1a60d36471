package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/listenupapp/transcript-server/internal/captions"
	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/indexer"
)

// CaptionExtensions are the file types a drop folder picks up.
var CaptionExtensions = []string{".vtt", ".srt"}

// TranscriptIndexer builds and removes transcript indexes.
type TranscriptIndexer interface {
	Build(ctx context.Context, transcriptID string, raw []domain.RawCaption) (*indexer.BuildReport, error)
	Delete(ctx context.Context, transcriptID string) error
}

// DropFolder indexes caption files placed in a directory.
// The transcript id is the file name without its extension; removing the
// file removes the transcript's indexes.
type DropFolder struct {
	dir     string
	watcher *Watcher
	indexer TranscriptIndexer
	logger  *slog.Logger
}

// NewDropFolder creates a drop folder over dir.
func NewDropFolder(dir string, idx TranscriptIndexer, logger *slog.Logger, opts Options) (*DropFolder, error) {
	opts.Extensions = CaptionExtensions
	w, err := New(logger, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(dir); err != nil {
		_ = w.Stop()
		return nil, err
	}

	return &DropFolder{
		dir:     dir,
		watcher: w,
		indexer: idx,
		logger:  logger.With("component", "drop_folder", "dir", dir),
	}, nil
}

// Run indexes the files already present, then handles events until ctx is cancelled.
func (d *DropFolder) Run(ctx context.Context) error {
	go d.watcher.Start(ctx) //nolint:errcheck // Start only returns nil

	d.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-d.watcher.Events():
			d.handle(ctx, event)
		case err := <-d.watcher.Errors():
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// Stop releases the underlying watcher.
func (d *DropFolder) Stop() error {
	return d.watcher.Stop()
}

func (d *DropFolder) scan(ctx context.Context) {
	err := filepath.WalkDir(d.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if path != d.dir && d.watcher.opts.shouldIgnore(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.watcher.opts.shouldIgnore(path) || !d.watcher.opts.accepts(path) {
			return nil
		}
		d.build(ctx, path)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		d.logger.Warn("initial scan failed", "error", err)
	}
}

func (d *DropFolder) handle(ctx context.Context, event Event) {
	if event.Rebuilds() {
		d.build(ctx, event.Path)
		return
	}

	// A remove followed by a quick re-create is a replace, not a delete.
	if _, err := os.Stat(event.Path); err == nil {
		return
	}
	transcriptID := event.TranscriptID()
	err := d.indexer.Delete(ctx, transcriptID)
	if err != nil && !errors.Is(err, errors.ErrIndexNotFound) {
		d.logger.Error("failed to remove transcript", "transcript_id", transcriptID, "error", err)
		return
	}
	d.logger.Info("transcript removed", "transcript_id", transcriptID)
}

func (d *DropFolder) build(ctx context.Context, path string) {
	transcriptID, raw, err := captions.ReadFile(path)
	if err != nil {
		d.logger.Warn("skipping caption file", "path", path, "error", err)
		return
	}

	report, err := d.indexer.Build(ctx, transcriptID, raw)
	if err != nil {
		d.logger.Error("failed to index caption file",
			"path", path,
			"transcript_id", transcriptID,
			"error", err,
		)
		return
	}

	d.logger.Debug("caption file indexed",
		"path", path,
		"build_id", report.BuildID,
	)
}
