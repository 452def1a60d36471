// Package watcher reports settled changes to caption files in a drop folder.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns raw fsnotify notifications into one Event per settled file.
// A written file is reported once its size and mtime hold still for
// Options.SettleDelay, so half-copied captions are never indexed.
type Watcher struct {
	logger *slog.Logger
	opts   Options
	fs     *fsnotify.Watcher

	mu       sync.Mutex
	settling map[string]*settling // files still changing
	seen     map[string]struct{}  // files reported at least once

	events   chan Event
	errors   chan error
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// settling is the last observed state of a file waiting to settle.
type settling struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

func (s *settling) unchanged(info fs.FileInfo) bool {
	return s.size == info.Size() && s.modTime.Equal(info.ModTime())
}

// New returns a Watcher with no directories yet. Call Watch, then Start.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		logger:   logger,
		opts:     opts.withDefaults(),
		fs:       fw,
		settling: make(map[string]*settling),
		seen:     make(map[string]struct{}),
		events:   make(chan Event, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}, nil
}

// Watch adds dir and every non-ignored directory below it.
func (w *Watcher) Watch(dir string) error {
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat watch path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path %q is not a directory", dir)
	}
	return w.addTree(dir)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			w.logger.Warn("skipping unreadable path", "path", p, "error", err)
			return nil
		case !d.IsDir():
			return nil
		case p != root && w.opts.shouldIgnore(p):
			return filepath.SkipDir
		}

		if err := w.fs.Add(p); err != nil {
			w.logger.Error("watch directory", "path", p, "error", err)
			return nil
		}
		w.logger.Debug("watching directory", "path", p)
		return nil
	})
}

// Start forwards notifications until ctx is cancelled or Stop is called.
// It blocks until ctx is done and always returns nil.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Go(func() { w.loop(ctx) })
	<-ctx.Done()
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("watcher error dropped", "error", err)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := ev.Name
	if w.opts.shouldIgnore(path) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addTree(path); err != nil {
				w.logger.Warn("watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	if !w.opts.accepts(path) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.mu.Lock()
		w.forget(path)
		w.mu.Unlock()
		w.emit(Event{Type: EventRemoved, Path: path})
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		w.observe(path)
	}
}

// observe (re)starts the settle timer for path from its current state.
func (w *Watcher) observe(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.settling[path]; ok {
		s.timer.Stop()
		delete(w.settling, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		w.logger.Warn("stat changed file", "path", path, "error", err)
		return
	}
	if info.IsDir() {
		return
	}

	s := &settling{size: info.Size(), modTime: info.ModTime()}
	s.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.settle(path) })
	w.settling[path] = s
}

// settle runs when a settle timer fires. It re-arms the timer if the file
// changed since it was last observed and otherwise emits the event.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.settling[path]
	if !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		w.forget(path)
		w.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if !s.unchanged(info) {
		s.size, s.modTime = info.Size(), info.ModTime()
		s.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.settle(path) })
		return
	}

	delete(w.settling, path)
	kind := EventAdded
	if _, ok := w.seen[path]; ok {
		kind = EventModified
	}
	w.seen[path] = struct{}{}

	w.emit(Event{Type: kind, Path: path, Size: info.Size(), ModTime: info.ModTime()})
}

// forget drops all state for path. Callers hold w.mu.
func (w *Watcher) forget(path string) {
	if s, ok := w.settling[path]; ok {
		s.timer.Stop()
		delete(w.settling, path)
	}
	delete(w.seen, path)
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// Events delivers settled file events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors delivers fsnotify errors. Errors are dropped while the buffer is full.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases the fsnotify watcher and cancels pending settle timers.
// It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, s := range w.settling {
			s.timer.Stop()
		}
		clear(w.settling)
		w.mu.Unlock()

		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
