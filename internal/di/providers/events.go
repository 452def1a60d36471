package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/logger"
	"github.com/listenupapp/transcript-server/internal/sse"
)

// EventsHandle owns the SSE manager and the context its loops run under.
type EventsHandle struct {
	*sse.Manager
	cancel  context.CancelFunc
	timeout time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *EventsHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	defer h.cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the build event broadcaster.
func ProvideSSEManager(i do.Injector) (*EventsHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger, sse.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &EventsHandle{
		Manager: manager,
		cancel:  cancel,
		timeout: cfg.Server.ShutdownTimeout,
	}, nil
}
