package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/captions"
	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/indexer"
	"github.com/listenupapp/transcript-server/internal/logger"
	"github.com/listenupapp/transcript-server/internal/retrieval"
	"github.com/listenupapp/transcript-server/internal/service"
)

// ProvideBuilder provides the index builder.
func ProvideBuilder(i do.Injector) (*indexer.Builder, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	index := do.MustInvoke[*CaptionIndexHandle](i)
	chunks := do.MustInvoke[*ChunkStoreHandle](i)

	return indexer.NewBuilder(index.CaptionIndex, chunks.ChunkStore, indexer.Options{
		ChunkWindow: cfg.Index.ChunkWindow,
		Logger:      log.Logger,
	}), nil
}

// ProvideRetriever provides the retrieval orchestrator.
func ProvideRetriever(i do.Injector) (*retrieval.Retriever, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	index := do.MustInvoke[*CaptionIndexHandle](i)
	chunks := do.MustInvoke[*ChunkStoreHandle](i)

	return retrieval.New(index.CaptionIndex, chunks.ChunkStore, retrieval.Options{
		FallbackWindow: cfg.Index.FallbackWindow,
		Logger:         log.Logger,
	}), nil
}

// ProvideTranscriptService provides the transcript service.
func ProvideTranscriptService(i do.Injector) (*service.TranscriptService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	index := do.MustInvoke[*CaptionIndexHandle](i)
	chunks := do.MustInvoke[*ChunkStoreHandle](i)
	limiters := do.MustInvoke[*RateLimiters](i)
	events := do.MustInvoke[*EventsHandle](i)

	deps := service.Deps{
		Builder:   do.MustInvoke[*indexer.Builder](i),
		Retriever: do.MustInvoke[*retrieval.Retriever](i),
		Captions:  index.CaptionIndex,
		Chunks:    chunks.ChunkStore,
		Limiter:   limiters.Rebuild,
		Events:    events.Manager,
	}

	// Leave Source nil when unset so Ingest reports Unavailable.
	if cfg.Ingest.CaptionsPath != "" {
		deps.Source = captions.NewFileSource(cfg.Ingest.CaptionsPath)
		log.Info("Caption source configured", "path", cfg.Ingest.CaptionsPath)
	}

	return service.NewTranscriptService(deps, cfg.Ingest.AcquireTimeout, log.Logger), nil
}
