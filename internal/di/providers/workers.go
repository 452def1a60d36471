package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/logger"
	"github.com/listenupapp/transcript-server/internal/service"
	"github.com/listenupapp/transcript-server/internal/watcher"
)

// DropFolderHandle wraps the drop-folder watcher with shutdown capability.
// DropFolder is nil when no watch path is configured.
type DropFolderHandle struct {
	*watcher.DropFolder
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *DropFolderHandle) Shutdown() error {
	if h.DropFolder == nil {
		return nil
	}
	h.cancel()
	return h.Stop()
}

// ProvideDropFolder provides the drop-folder watcher that indexes caption files.
func ProvideDropFolder(i do.Injector) (*DropFolderHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Ingest.WatchPath == "" {
		return &DropFolderHandle{}, nil
	}

	transcripts := do.MustInvoke[*service.TranscriptService](i)

	folder, err := watcher.NewDropFolder(cfg.Ingest.WatchPath, transcripts, log.Logger, watcher.Options{IgnoreHidden: true})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := folder.Run(ctx); err != nil {
			log.Error("Drop folder watcher error", "error", err)
		}
	}()

	log.Info("Watching drop folder", "path", cfg.Ingest.WatchPath)

	return &DropFolderHandle{
		DropFolder: folder,
		cancel:     cancel,
	}, nil
}
