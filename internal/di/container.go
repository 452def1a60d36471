// Package di provides dependency injection configuration for the transcript server.
package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/di/providers"
	"github.com/listenupapp/transcript-server/internal/indexer"
	"github.com/listenupapp/transcript-server/internal/logger"
	"github.com/listenupapp/transcript-server/internal/retrieval"
	"github.com/listenupapp/transcript-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideRateLimiters)
	do.Provide(injector, providers.ProvideSSEManager)

	// Storage layer
	do.Provide(injector, providers.ProvideCaptionIndex)
	do.Provide(injector, providers.ProvideChunkStore)

	// Indexing and retrieval
	do.Provide(injector, providers.ProvideBuilder)
	do.Provide(injector, providers.ProvideRetriever)
	do.Provide(injector, providers.ProvideTranscriptService)

	// Workers
	do.Provide(injector, providers.ProvideDropFolder)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap eagerly constructs every long-lived component so configuration
// and storage errors surface at startup instead of on the first request.
// Starting the HTTP server, event stream and drop folder is a side effect.
func Bootstrap(injector *do.RootScope) error {
	steps := []struct {
		name   string
		invoke func() error
	}{
		{"config", invoke[*config.Config](injector)},
		{"logger", invoke[*logger.Logger](injector)},
		{"rate limiters", invoke[*providers.RateLimiters](injector)},
		{"event stream", invoke[*providers.EventsHandle](injector)},
		{"caption index", invoke[*providers.CaptionIndexHandle](injector)},
		{"chunk store", invoke[*providers.ChunkStoreHandle](injector)},
		{"index builder", invoke[*indexer.Builder](injector)},
		{"retriever", invoke[*retrieval.Retriever](injector)},
		{"transcript service", invoke[*service.TranscriptService](injector)},
		{"drop folder", invoke[*providers.DropFolderHandle](injector)},
		{"http server", invoke[*providers.HTTPServerHandle](injector)},
	}

	for _, step := range steps {
		if err := step.invoke(); err != nil {
			return fmt.Errorf("initialize %s: %w", step.name, err)
		}
	}
	return nil
}

func invoke[T any](injector do.Injector) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
