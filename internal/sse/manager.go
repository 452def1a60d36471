package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/transcript-server/internal/id"
)

// ClientPrefix prefixes SSE client ids.
const ClientPrefix = "sse"

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	HeartbeatInterval time.Duration // 30s
	QueueSize         int           // events waiting for broadcast, 1000
	ClientBuffer      int           // undelivered events per client, 100
	History           int           // events kept for Last-Event-ID replay, 256
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = 100
	}
	if o.History <= 0 {
		o.History = 256
	}
	return o
}

// Client is one connected event stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// TranscriptID limits delivery to one transcript's events.
	// Empty receives everything.
	TranscriptID string
}

// accepts reports whether e should reach c. Events without a transcript reach everyone.
func (c *Client) accepts(e Event) bool {
	return c.TranscriptID == "" || e.TranscriptID == "" || c.TranscriptID == e.TranscriptID
}

// Manager fans transcript events out to connected clients.
// Delivery is best-effort: a client whose buffer is full misses events.
type Manager struct {
	opts   Options
	logger *slog.Logger
	queue  chan Event
	wg     sync.WaitGroup

	mu      sync.RWMutex // guards clients and history
	clients map[string]*Client
	history []Event // ring of the most recent events, oldest first once full
	next    int     // write position in history once full

	// closedMu orders Emit against Shutdown closing queue.
	closedMu sync.RWMutex
	closed   bool
	lastID   uint64
}

// NewManager creates a Manager. Call Start to begin broadcasting.
func NewManager(logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Manager{
		opts:    opts,
		logger:  logger.With("component", "sse"),
		queue:   make(chan Event, opts.QueueSize),
		clients: make(map[string]*Client),
		history: make([]Event, 0, opts.History),
	}
}

// Start broadcasts queued events and heartbeats until ctx ends or Shutdown
// closes the queue.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	heartbeat := time.NewTicker(m.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.broadcast(event)
		case <-heartbeat.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued and closes every client.
// Calling it again is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closedMu.Lock()
	if m.closed {
		m.closedMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closedMu.Unlock()

	drained := make(chan struct{})
	go func() {
		for event := range m.queue {
			m.broadcast(event)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("event drain timed out, queued events dropped")
	}

	m.wg.Wait()
	m.closeAllClients()
	return nil
}

// Emit numbers event and queues it for broadcast. It never blocks: events
// emitted after Shutdown or into a full queue are dropped.
func (m *Manager) Emit(event Event) {
	m.closedMu.Lock()
	defer m.closedMu.Unlock()

	if m.closed {
		return
	}

	m.lastID++
	event.ID = m.lastID

	select {
	case m.queue <- event:
	default:
		m.logger.Error("event queue full, dropping event",
			"event_type", event.Type,
			"transcript_id", event.TranscriptID)
	}
}

func (m *Manager) broadcast(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID != 0 {
		m.remember(event)
	}

	var delivered, dropped int
	for _, client := range m.clients {
		if !client.accepts(event) {
			continue
		}
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
		}
	}

	if event.Type == EventHeartbeat {
		return
	}
	if dropped > 0 {
		m.logger.Warn("event dropped for slow clients",
			"event_type", event.Type,
			"transcript_id", event.TranscriptID,
			"dropped", dropped)
	}
	m.logger.Debug("event broadcast",
		"event_id", event.ID,
		"event_type", event.Type,
		"transcript_id", event.TranscriptID,
		"delivered", delivered)
}

// remember appends to the history ring. Caller holds mu.
func (m *Manager) remember(event Event) {
	if len(m.history) < m.opts.History {
		m.history = append(m.history, event)
		return
	}
	m.history[m.next] = event
	m.next = (m.next + 1) % len(m.history)
}

// since returns remembered events after lastID that c accepts, oldest first.
// Caller holds mu.
func (m *Manager) since(c *Client, lastID uint64) []Event {
	var out []Event
	n := len(m.history)
	for i := range n {
		e := m.history[(m.next+i)%n]
		if e.ID > lastID && c.accepts(e) {
			out = append(out, e)
		}
	}
	return out
}

// Connect registers a client watching transcriptID, or every transcript when empty.
// When lastEventID is non-zero, the remembered events after it are returned for replay;
// events older than the history are gone.
func (m *Manager) Connect(transcriptID string, lastEventID uint64) (*Client, []Event, error) {
	clientID, err := id.Generate(ClientPrefix)
	if err != nil {
		return nil, nil, err
	}

	client := &Client{
		ID:           clientID,
		TranscriptID: transcriptID,
		EventChan:    make(chan Event, m.opts.ClientBuffer),
		Done:         make(chan struct{}),
		ConnectedAt:  time.Now(),
	}

	m.mu.Lock()
	var backlog []Event
	if lastEventID > 0 {
		backlog = m.since(client, lastEventID)
	}
	m.clients[clientID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		"client_id", clientID,
		"transcript_id", transcriptID,
		"replayed", len(backlog),
		"total_clients", total)
	return client, backlog, nil
}

// Disconnect removes a client and closes its channels. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	total := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return
	}
	close(client.Done)
	close(client.EventChan)

	m.logger.Info("SSE client disconnected",
		"client_id", clientID,
		"duration", time.Since(client.ConnectedAt),
		"total_clients", total)
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
		close(client.EventChan)
	}
	clear(m.clients)
}
