package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// chunkColumns is the column list for chunk SELECT queries.
const chunkColumns = `transcript_id, chunk_index, text, start_ms, duration_ms`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanChunk scans a row into a ContextChunk.
func scanChunk(sc scanner) (*domain.ContextChunk, error) {
	var c domain.ContextChunk
	if err := sc.Scan(&c.TranscriptID, &c.ChunkIndex, &c.Text, &c.StartMs, &c.DurationMs); err != nil {
		return nil, err
	}
	return &c, nil
}

// getChunk loads one chunk by index. Missing chunks return nil.
func getChunk(ctx context.Context, tx *sql.Tx, transcriptID string, index int) (*domain.ContextChunk, error) {
	if index < 0 {
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE transcript_id = ? AND chunk_index = ?`, transcriptID, index)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %d: %w", index, err)
	}
	return c, nil
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
