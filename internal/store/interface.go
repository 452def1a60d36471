// Package store defines the coarse chunk store and its Badger implementation.
package store

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
)

// ChunkStore persists the coarse chunks of each transcript.
//
// Absence is never an error: lookups for unknown transcripts, out-of-range
// indexes or timestamps return nil/false. The last chunk of a transcript is
// open-ended on its upper bound.
//
// Replace swaps a transcript's chunks atomically. Readers observe either
// the previous set or the new one, never a mix.
type ChunkStore interface {
	// Replace discards every chunk stored for transcriptID and stores chunks.
	Replace(ctx context.Context, transcriptID string, chunks []domain.ContextChunk) error

	// FindContaining returns the chunk whose interval contains timestampS.
	FindContaining(ctx context.Context, transcriptID string, timestampS float64) (*domain.ContextChunk, bool, error)

	// Neighbors returns the chunks immediately before and after index.
	Neighbors(ctx context.Context, transcriptID string, index int) (prev, next *domain.ContextChunk, err error)

	// Window returns the containing chunk and its neighbours read from a
	// single snapshot.
	Window(ctx context.Context, transcriptID string, timestampS float64) (domain.ChunkWindow, bool, error)

	// List returns every chunk of transcriptID ordered by index.
	List(ctx context.Context, transcriptID string) ([]domain.ContextChunk, error)

	// Delete removes every chunk of transcriptID. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, transcriptID string) error

	Close() error
}

// Backend names accepted by configuration.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// ValidateTranscriptID rejects ids that cannot be used as a storage key.
// Colons are reserved as key separators.
func ValidateTranscriptID(transcriptID string) error {
	if strings.TrimSpace(transcriptID) == "" {
		return errors.Validation("transcript id is required")
	}
	if strings.ContainsRune(transcriptID, ':') {
		return errors.Validationf("transcript id %q must not contain ':'", transcriptID)
	}
	return nil
}

// Locate returns the position in chunks of the chunk containing ms.
// chunks must be ordered by index. The containing chunk is the last one
// starting at or before ms; the final chunk has no upper bound.
func Locate(chunks []domain.ContextChunk, ms float64) (int, bool) {
	if len(chunks) == 0 || math.IsNaN(ms) || ms < 0 {
		return 0, false
	}

	// First chunk starting after ms, minus one.
	i := sort.Search(len(chunks), func(i int) bool { return chunks[i].StartMs > ms }) - 1
	if i < 0 {
		return 0, false
	}

	last := i == len(chunks)-1
	if !chunks[i].Contains(ms, last) {
		return 0, false
	}
	return i, true
}

// WindowAt assembles the window around position i of chunks.
func WindowAt(chunks []domain.ContextChunk, i int) domain.ChunkWindow {
	w := domain.ChunkWindow{Chunk: chunks[i]}
	if i > 0 {
		prev := chunks[i-1]
		w.Prev = &prev
	}
	if i < len(chunks)-1 {
		next := chunks[i+1]
		w.Next = &next
	}
	return w
}
