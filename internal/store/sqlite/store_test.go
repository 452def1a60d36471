package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/store"
	"github.com/listenupapp/transcript-server/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chunks.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pragma[T any](t *testing.T, s *Store, name string) T {
	t.Helper()
	var v T
	require.NoError(t, s.db.QueryRow("PRAGMA "+name).Scan(&v))
	return v
}

func TestOpen_Schema(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, "wal", pragma[string](t, s, "journal_mode"))
	assert.Equal(t, 1, pragma[int](t, s, "foreign_keys"))

	for _, table := range []string{"chunk_sets", "chunks"} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpen_ChunksSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	ctx := context.Background()

	first, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Replace(ctx, "vid-1", storetest.Chunks("vid-1", 2)))
	require.NoError(t, first.Close())

	second, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	chunks, err := second.List(ctx, "vid-1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestReplace_UpdatesChunkSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, "vid-1", storetest.Chunks("vid-1", 4)))
	require.NoError(t, s.Replace(ctx, "vid-1", storetest.Chunks("vid-1", 1)))

	var recorded, rows int
	require.NoError(t, s.db.QueryRow(`SELECT chunk_count FROM chunk_sets WHERE transcript_id = 'vid-1'`).Scan(&recorded))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE transcript_id = 'vid-1'`).Scan(&rows))
	assert.Equal(t, 1, recorded)
	assert.Equal(t, 1, rows)
}

func TestChunkStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.ChunkStore {
		return newTestStore(t)
	})
}
