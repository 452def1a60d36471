package store

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Key layout:
//
//	chunk:gen:<id>                          -> published generation (uint64 BE)
//	chunk:data:<id>:<gen %016x>:<idx %08d>  -> JSON ContextChunk
//
// Fixed-width generation and index keep a generation's chunks in index order
// under badger's byte-wise iteration.
const (
	chunkGenPrefix  = "chunk:gen:"
	chunkDataPrefix = "chunk:data:"
)

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix + id + generation + index fit comfortably in 128 bytes.
		return make([]byte, 0, 128)
	},
}

// buildKey constructs a database key from prefix and suffix using a pooled buffer.
// Callers MUST call releaseKey when done with the key.
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// releaseKey returns a key buffer to the pool for reuse.
// After calling this, the key slice must not be used.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}

// genKey is the key of a transcript's published generation pointer, in a
// pooled buffer for reads. Release it with releaseKey.
func genKey(transcriptID string) []byte {
	return buildKey(chunkGenPrefix, transcriptID)
}

// genWriteKey is genKey in a fresh buffer. Badger holds keys passed to Set or
// Delete until the transaction commits, so writes must not use pooled keys.
func genWriteKey(transcriptID string) []byte {
	return []byte(chunkGenPrefix + transcriptID)
}

// transcriptPrefix covers every generation of a transcript's chunks.
func transcriptPrefix(transcriptID string) []byte {
	return []byte(chunkDataPrefix + transcriptID + ":")
}

// generationPrefix covers one generation of a transcript's chunks.
func generationPrefix(transcriptID string, gen uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x:", chunkDataPrefix, transcriptID, gen))
}

// chunkKey is the key of one chunk within a generation.
func chunkKey(transcriptID string, gen uint64, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x:%08d", chunkDataPrefix, transcriptID, gen, index))
}

func encodeGeneration(gen uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, gen)
}

func decodeGeneration(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed generation pointer: %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}
