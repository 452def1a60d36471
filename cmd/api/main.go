// Package main runs the transcript server: HTTP API, drop-folder watcher and event stream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/di"
	"github.com/listenupapp/transcript-server/internal/di/providers"
	"github.com/listenupapp/transcript-server/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := di.NewContainer()
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	log.Info("Transcript server ready", "version", providers.Version)

	<-ctx.Done()
	stop() // a second signal kills the process
	log.Info("Shutting down server gracefully...")

	// Handles close in reverse dependency order: HTTP server and drop folder
	// first, then the event stream, the service and the stores.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Server stopped")
}
