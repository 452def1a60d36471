package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/api"
	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/logger"
	"github.com/listenupapp/transcript-server/internal/service"
	"github.com/listenupapp/transcript-server/internal/sse"
)

// Version is reported by the API. Set at build time with -ldflags.
var Version = "dev"

// HTTPServerHandle lets the container drain the server on shutdown.
type HTTPServerHandle struct {
	*http.Server
	timeout time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	index := do.MustInvoke[*CaptionIndexHandle](i)
	chunks := do.MustInvoke[*ChunkStoreHandle](i)
	limiters := do.MustInvoke[*RateLimiters](i)
	events := do.MustInvoke[*EventsHandle](i)
	transcripts := do.MustInvoke[*service.TranscriptService](i)

	handler := api.NewServer(transcripts, api.HealthDeps{
		Captions: index.CaptionIndex,
		Chunks:   chunks.ChunkStore,
		Events:   events.Manager,
	}, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimiter: limiters.Requests,
		Version:     Version,
		Events:      sse.NewHandler(events.Manager, log.Logger),
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// SSE streams never finish on their own; close them so Shutdown can drain.
	srv.RegisterOnShutdown(func() {
		if err := events.Shutdown(); err != nil {
			log.Warn("Event stream shutdown error", "error", err)
		}
	})

	// Bind before returning so a taken port fails bootstrap.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("HTTP server listening", "addr", ln.Addr().String())

	return &HTTPServerHandle{Server: srv, timeout: cfg.Server.ShutdownTimeout}, nil
}
