package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Stream parameters.
const (
	TranscriptQueryParam = "transcript_id"
	LastEventIDHeader    = "Last-Event-ID"
	lastEventIDParam     = "last_event_id" // for clients that cannot set headers

	reconnectDelay = 3 * time.Second
	writeTimeout   = 60 * time.Second
)

// Handler serves the event stream at GET /api/v1/events.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler over manager.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// ServeHTTP streams events until the client leaves or the manager shuts down.
// Query transcript_id narrows the stream; a Last-Event-ID header (or
// last_event_id query parameter) replays remembered events after that id.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lastID, err := lastEventID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("event stream unsupported", "error", err)
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, backlog, err := h.manager.Connect(r.URL.Query().Get(TranscriptQueryParam), lastID)
	if err != nil {
		h.logger.Error("failed to register SSE client", "error", err)
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With("client_id", client.ID)
	s := stream{w: w, rc: rc}

	if err := s.retry(reconnectDelay); err != nil {
		return
	}
	if err := s.send(0, "connected", map[string]string{
		"client_id":     client.ID,
		"transcript_id": client.TranscriptID,
	}); err != nil {
		log.Warn("failed to send connected event", "error", err)
		return
	}
	for _, event := range backlog {
		if err := s.send(event.ID, string(event.Type), event); err != nil {
			return
		}
	}

	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := s.send(event.ID, string(event.Type), event); err != nil {
				log.Debug("client gone during send", "error", err)
				return
			}
		case <-client.Done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func lastEventID(r *http.Request) (uint64, error) {
	raw := r.Header.Get(LastEventIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get(lastEventIDParam)
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid last event id %q", raw)
	}
	return n, nil
}

// stream writes SSE frames, flushing each one.
type stream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s stream) retry(d time.Duration) error {
	if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return err
	}
	return s.flush()
}

// send writes one frame. An id of 0 omits the id line so it does not move
// the client's Last-Event-ID.
func (s stream) send(id uint64, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if id != 0 {
		if _, err := fmt.Fprintf(s.w, "id: %d\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	return s.flush()
}

func (s stream) flush() error {
	if err := s.rc.Flush(); err != nil {
		return err
	}
	// Not every ResponseWriter supports deadlines; the stream still works without one.
	_ = s.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return nil
}
