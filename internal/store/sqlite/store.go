// Package sqlite provides a SQLite-backed ChunkStore.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store is a ChunkStore backed by SQLite. Replace runs as one transaction,
// so readers see the previous chunk set or the new one.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.ChunkStore = (*Store)(nil)

// Open creates a new SQLite chunk store at the given path.
// It configures WAL mode, sets pragmas, and runs schema migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec pragma journal_mode: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	logger.Info("SQLite chunk store opened successfully", "path", path)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Replace implements store.ChunkStore.
func (s *Store) Replace(ctx context.Context, transcriptID string, chunks []domain.ContextChunk) error {
	if err := store.ValidateTranscriptID(transcriptID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := deleteTx(ctx, tx, transcriptID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chunk_sets (transcript_id, chunk_count, replaced_at) VALUES (?, ?, ?)`,
		transcriptID, len(chunks), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert chunk set: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (
		transcript_id, chunk_index, text, start_ms, duration_ms
	) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, transcriptID, i, c.Text, c.StartMs, c.DurationMs); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	// Last point at which the replace can be abandoned.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}

	s.logger.Debug("replaced chunks", "transcript_id", transcriptID, "chunks", len(chunks))
	return nil
}

// FindContaining implements store.ChunkStore.
func (s *Store) FindContaining(ctx context.Context, transcriptID string, timestampS float64) (*domain.ContextChunk, bool, error) {
	w, ok, err := s.Window(ctx, transcriptID, timestampS)
	if err != nil || !ok {
		return nil, false, err
	}
	chunk := w.Chunk
	return &chunk, true, nil
}

// Neighbors implements store.ChunkStore.
func (s *Store) Neighbors(ctx context.Context, transcriptID string, index int) (prev, next *domain.ContextChunk, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // reads only

	if prev, err = getChunk(ctx, tx, transcriptID, index-1); err != nil {
		return nil, nil, err
	}
	if next, err = getChunk(ctx, tx, transcriptID, index+1); err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

// Window implements store.ChunkStore. The containing chunk and its
// neighbours are read inside one transaction.
func (s *Store) Window(ctx context.Context, transcriptID string, timestampS float64) (domain.ChunkWindow, bool, error) {
	ms := domain.SecondsToMillis(timestampS)
	if ms < 0 || math.IsNaN(ms) {
		return domain.ChunkWindow{}, false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChunkWindow{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // reads only

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT chunk_count FROM chunk_sets WHERE transcript_id = ?`, transcriptID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChunkWindow{}, false, nil
	}
	if err != nil {
		return domain.ChunkWindow{}, false, fmt.Errorf("get chunk set: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE transcript_id = ? AND start_ms <= ?
		ORDER BY start_ms DESC, chunk_index DESC
		LIMIT 1`, transcriptID, ms)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChunkWindow{}, false, nil
	}
	if err != nil {
		return domain.ChunkWindow{}, false, fmt.Errorf("find containing chunk: %w", err)
	}

	if !chunk.Contains(ms, chunk.ChunkIndex == count-1) {
		return domain.ChunkWindow{}, false, nil
	}

	w := domain.ChunkWindow{Chunk: *chunk}
	if w.Prev, err = getChunk(ctx, tx, transcriptID, chunk.ChunkIndex-1); err != nil {
		return domain.ChunkWindow{}, false, err
	}
	if w.Next, err = getChunk(ctx, tx, transcriptID, chunk.ChunkIndex+1); err != nil {
		return domain.ChunkWindow{}, false, err
	}
	return w, true, nil
}

// List implements store.ChunkStore.
func (s *Store) List(ctx context.Context, transcriptID string) ([]domain.ContextChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE transcript_id = ?
		ORDER BY chunk_index`, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.ContextChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// Delete implements store.ChunkStore.
func (s *Store) Delete(ctx context.Context, transcriptID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := deleteTx(ctx, tx, transcriptID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return tx.Commit()
}

// deleteTx removes a transcript's chunk set and chunks inside tx.
func deleteTx(ctx context.Context, tx *sql.Tx, transcriptID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE transcript_id = ?`, transcriptID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM chunk_sets WHERE transcript_id = ?`, transcriptID)
	return err
}
