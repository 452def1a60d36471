// Package sse implements Server-Sent Events for transcript build notifications.
package sse

import (
	"time"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventBuildStarted is sent when a build passes throttling and starts.
	EventBuildStarted EventType = "transcript.build_started"
	// EventBuildCompleted is sent when both indexes of a transcript are replaced.
	EventBuildCompleted EventType = "transcript.build_completed"
	// EventBuildFailed is sent when a started build fails.
	EventBuildFailed EventType = "transcript.build_failed"
	// EventTranscriptDeleted is sent when a transcript's indexes are removed.
	EventTranscriptDeleted EventType = "transcript.deleted"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	// ID is assigned by the Manager when the event is queued; heartbeats keep 0.
	ID        uint64    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"` // Event-specific data as JSON object
	Type      EventType `json:"type"`

	// TranscriptID routes the event to clients watching that transcript.
	// Empty means every client receives it.
	TranscriptID string `json:"-"`
}

// BuildStartedData is the payload of a build_started event.
type BuildStartedData struct {
	TranscriptID string `json:"transcript_id"`
	Source       string `json:"source"` // "captions" or "ingest"
}

// BuildCompletedData is the payload of a build_completed event.
type BuildCompletedData struct {
	TranscriptID string `json:"transcript_id"`
	BuildID      string `json:"build_id"`
	Captions     int    `json:"captions"`
	Chunks       int    `json:"chunks"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

// BuildFailedData is the payload of a build_failed event.
type BuildFailedData struct {
	TranscriptID string `json:"transcript_id"`
	Code         string `json:"code"`
	Error        string `json:"error"`
}

// TranscriptDeletedData is the payload of a deleted event.
type TranscriptDeletedData struct {
	TranscriptID string `json:"transcript_id"`
}

// NewBuildStartedEvent creates a build_started event.
func NewBuildStartedEvent(transcriptID, source string) Event {
	return Event{
		Type:         EventBuildStarted,
		Timestamp:    time.Now(),
		TranscriptID: transcriptID,
		Data: BuildStartedData{
			TranscriptID: transcriptID,
			Source:       source,
		},
	}
}

// NewBuildCompletedEvent creates a build_completed event.
func NewBuildCompletedEvent(transcriptID, buildID string, captions, chunks int, elapsed time.Duration) Event {
	return Event{
		Type:         EventBuildCompleted,
		Timestamp:    time.Now(),
		TranscriptID: transcriptID,
		Data: BuildCompletedData{
			TranscriptID: transcriptID,
			BuildID:      buildID,
			Captions:     captions,
			Chunks:       chunks,
			ElapsedMs:    elapsed.Milliseconds(),
		},
	}
}

// NewBuildFailedEvent creates a build_failed event.
func NewBuildFailedEvent(transcriptID, code, errMsg string) Event {
	return Event{
		Type:         EventBuildFailed,
		Timestamp:    time.Now(),
		TranscriptID: transcriptID,
		Data: BuildFailedData{
			TranscriptID: transcriptID,
			Code:         code,
			Error:        errMsg,
		},
	}
}

// NewTranscriptDeletedEvent creates a deleted event.
func NewTranscriptDeletedEvent(transcriptID string) Event {
	return Event{
		Type:         EventTranscriptDeleted,
		Timestamp:    time.Now(),
		TranscriptID: transcriptID,
		Data:         TranscriptDeletedData{TranscriptID: transcriptID},
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
		Data:      map[string]any{},
	}
}
