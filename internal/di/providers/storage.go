package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/logger"
	"github.com/listenupapp/transcript-server/internal/search"
	"github.com/listenupapp/transcript-server/internal/store"
	"github.com/listenupapp/transcript-server/internal/store/sqlite"
)

// CaptionIndexHandle wraps the caption index with shutdown capability.
type CaptionIndexHandle struct {
	*search.CaptionIndex
}

// Shutdown implements do.Shutdownable.
func (h *CaptionIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideCaptionIndex provides the Bleve caption index.
func ProvideCaptionIndex(i do.Injector) (*CaptionIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewCaptionIndex(search.Options{
		DataPath: cfg.Data.BasePath,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Caption index initialized", "documents", docCount)

	return &CaptionIndexHandle{CaptionIndex: index}, nil
}

// ChunkStoreHandle wraps the configured chunk store with shutdown capability.
type ChunkStoreHandle struct {
	store.ChunkStore
	backend string
}

// Shutdown implements do.Shutdownable.
func (h *ChunkStoreHandle) Shutdown() error {
	return h.Close()
}

// Backend names the store implementation in use.
func (h *ChunkStoreHandle) Backend() string {
	return h.backend
}

// ProvideChunkStore provides the chunk store selected by CHUNK_BACKEND.
func ProvideChunkStore(i do.Injector) (*ChunkStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := cfg.ChunkStorePath()

	var (
		chunks store.ChunkStore
		err    error
	)
	switch cfg.Data.ChunkBackend {
	case config.ChunkBackendSQLite:
		chunks, err = sqlite.Open(path, log.Logger)
	case config.ChunkBackendBadger:
		chunks, err = store.New(path, log.Logger)
	default:
		return nil, fmt.Errorf("unknown chunk backend %q", cfg.Data.ChunkBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s chunk store: %w", cfg.Data.ChunkBackend, err)
	}

	log.Info("Chunk store opened", "backend", cfg.Data.ChunkBackend, "path", path)

	return &ChunkStoreHandle{ChunkStore: chunks, backend: cfg.Data.ChunkBackend}, nil
}
