package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_TranscriptID(t *testing.T) {
	assert.Equal(t, "vid-1", Event{Path: "/drop/vid-1.vtt"}.TranscriptID())
	assert.Equal(t, "talk.part1", Event{Path: "/drop/season/talk.part1.srt"}.TranscriptID())
}

func TestEvent_Rebuilds(t *testing.T) {
	assert.True(t, Event{Type: EventAdded}.Rebuilds())
	assert.True(t, Event{Type: EventModified}.Rebuilds())
	assert.False(t, Event{Type: EventRemoved}.Rebuilds())
}
