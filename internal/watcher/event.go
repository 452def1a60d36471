package watcher

import (
	"time"

	"github.com/listenupapp/transcript-server/internal/captions"
)

// EventType classifies a settled file change.
type EventType string

const (
	// EventAdded is a caption file seen for the first time.
	EventAdded EventType = "added"
	// EventModified is a known caption file whose content changed.
	EventModified EventType = "modified"
	// EventRemoved is a caption file deleted or renamed away.
	EventRemoved EventType = "removed"
)

// Event represents a settled change to a file in a watched folder.
// Size and ModTime are zero for removals.
type Event struct {
	ModTime time.Time
	Type    EventType
	Path    string
	Size    int64
}

// TranscriptID is the transcript the file names: its base name without extension.
func (e Event) TranscriptID() string {
	return captions.TranscriptIDFromPath(e.Path)
}

// Rebuilds reports whether the event should (re)index the file.
func (e Event) Rebuilds() bool {
	return e.Type == EventAdded || e.Type == EventModified
}
