package sse

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(testLogger(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = m.Shutdown(shutdownCtx)
		cancel()
	})
	return m
}

func connect(t *testing.T, m *Manager, transcriptID string) *Client {
	t.Helper()
	c, backlog, err := m.Connect(transcriptID, 0)
	require.NoError(t, err)
	require.Empty(t, backlog)
	return c
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.EventChan:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case e := <-c.EventChan:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_ConnectDisconnect(t *testing.T) {
	m := NewManager(testLogger(), Options{})

	c := connect(t, m, "")
	assert.True(t, len(c.ID) > len(ClientPrefix)+1)
	assert.Equal(t, 1, m.ClientCount())

	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())
	_, open := <-c.EventChan
	assert.False(t, open)

	m.Disconnect(c.ID)
}

func TestManager_BroadcastFiltersByTranscript(t *testing.T) {
	m := startManager(t, Options{})

	all := connect(t, m, "")
	vid1 := connect(t, m, "vid-1")
	vid2 := connect(t, m, "vid-2")

	m.Emit(NewBuildStartedEvent("vid-1", "captions"))

	assert.Equal(t, EventBuildStarted, receive(t, all).Type)
	got := receive(t, vid1)
	assert.Equal(t, EventBuildStarted, got.Type)
	assert.Equal(t, "vid-1", got.TranscriptID)
	assertNoEvent(t, vid2)
}

func TestManager_EmitNumbersEvents(t *testing.T) {
	m := startManager(t, Options{})
	c := connect(t, m, "")

	m.Emit(NewBuildStartedEvent("vid-1", "captions"))
	m.Emit(NewTranscriptDeletedEvent("vid-1"))

	assert.Equal(t, uint64(1), receive(t, c).ID)
	assert.Equal(t, uint64(2), receive(t, c).ID)
}

func TestManager_HeartbeatReachesFilteredClients(t *testing.T) {
	m := startManager(t, Options{HeartbeatInterval: 20 * time.Millisecond})
	c := connect(t, m, "vid-1")

	got := receive(t, c)
	assert.Equal(t, EventHeartbeat, got.Type)
	assert.Zero(t, got.ID)
}

func TestManager_ReplaysAfterLastEventID(t *testing.T) {
	m := NewManager(testLogger(), Options{History: 3})

	for _, id := range []string{"vid-1", "vid-2", "vid-1", "vid-1"} {
		m.Emit(NewTranscriptDeletedEvent(id))
		m.broadcast(<-m.queue)
	}

	// History holds ids 2..4; id 1 has been overwritten.
	c, backlog, err := m.Connect("vid-1", 1)
	require.NoError(t, err)
	defer m.Disconnect(c.ID)

	require.Len(t, backlog, 2)
	assert.Equal(t, uint64(3), backlog[0].ID)
	assert.Equal(t, uint64(4), backlog[1].ID)

	_, all, err := m.Connect("", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(3), all[0].ID)
}

func TestManager_SlowClientDropsEvents(t *testing.T) {
	m := NewManager(testLogger(), Options{ClientBuffer: 2})
	c := connect(t, m, "")

	for range 5 {
		m.broadcast(NewTranscriptDeletedEvent("vid-1"))
	}
	assert.Len(t, c.EventChan, 2)
}

func TestManager_ShutdownClosesClientsAndIgnoresEmit(t *testing.T) {
	m := NewManager(testLogger(), Options{})
	c := connect(t, m, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))

	assert.Equal(t, 0, m.ClientCount())
	select {
	case <-c.Done:
	default:
		t.Fatal("client not closed")
	}

	assert.NotPanics(t, func() { m.Emit(NewTranscriptDeletedEvent("vid-1")) })
}
