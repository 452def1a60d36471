package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, opts Options) (*Watcher, string) {
	t.Helper()

	w, err := New(testLogger(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	dir := t.TempDir()
	require.NoError(t, w.Watch(dir))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx) //nolint:errcheck // Test goroutine

	return w, dir
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case event := <-w.Events():
		return event
	case err := <-w.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestNew(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)
	require.NotNil(t, w)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop(), "Stop should be idempotent")
}

func TestWatcher_WatchRejectsFiles(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup

	file := filepath.Join(t.TempDir(), "vid-1.vtt")
	require.NoError(t, os.WriteFile(file, []byte("WEBVTT\n"), 0o644))

	assert.Error(t, w.Watch(file))
	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "missing")))
}

func TestWatcher_FileCreation(t *testing.T) {
	w, dir := startWatcher(t, Options{SettleDelay: 50 * time.Millisecond})

	testFile := filepath.Join(dir, "vid-1.vtt")
	require.NoError(t, os.WriteFile(testFile, []byte("WEBVTT\n\n"), 0o644))

	event := nextEvent(t, w)
	assert.Equal(t, EventAdded, event.Type)
	assert.Equal(t, testFile, event.Path)
	assert.Equal(t, int64(8), event.Size)
}

func TestWatcher_ModifiedAfterAdded(t *testing.T) {
	w, dir := startWatcher(t, Options{SettleDelay: 50 * time.Millisecond})

	testFile := filepath.Join(dir, "vid-1.srt")
	require.NoError(t, os.WriteFile(testFile, []byte("1\n"), 0o644))
	assert.Equal(t, EventAdded, nextEvent(t, w).Type)

	require.NoError(t, os.WriteFile(testFile, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), 0o644))
	assert.Equal(t, EventModified, nextEvent(t, w).Type)
}

func TestWatcher_FileDeletion(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup

	dir := t.TempDir()
	testFile := filepath.Join(dir, "vid-1.vtt")
	require.NoError(t, os.WriteFile(testFile, []byte("WEBVTT\n"), 0o644))
	require.NoError(t, w.Watch(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx) //nolint:errcheck // Test goroutine

	require.NoError(t, os.Remove(testFile))

	event := nextEvent(t, w)
	assert.Equal(t, EventRemoved, event.Type)
	assert.Equal(t, testFile, event.Path)
}

func TestWatcher_ExtensionFilter(t *testing.T) {
	w, dir := startWatcher(t, Options{
		Extensions:  []string{".vtt"},
		SettleDelay: 50 * time.Millisecond,
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))
	captionFile := filepath.Join(dir, "vid-1.vtt")
	require.NoError(t, os.WriteFile(captionFile, []byte("WEBVTT\n"), 0o644))

	assert.Equal(t, captionFile, nextEvent(t, w).Path)

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected event: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_IgnoreHidden(t *testing.T) {
	w, dir := startWatcher(t, Options{
		IgnoreHidden: true,
		SettleDelay:  50 * time.Millisecond,
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.vtt"), []byte("secret"), 0o644))
	normalFile := filepath.Join(dir, "normal.vtt")
	require.NoError(t, os.WriteFile(normalFile, []byte("content"), 0o644))

	assert.Equal(t, normalFile, nextEvent(t, w).Path)

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected event for hidden file: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	w, dir := startWatcher(t, Options{SettleDelay: 50 * time.Millisecond})

	sub := filepath.Join(dir, "channel")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(sub, "vid-9.vtt")
	require.NoError(t, os.WriteFile(testFile, []byte("WEBVTT\n"), 0o644))

	assert.Equal(t, testFile, nextEvent(t, w).Path)
}
