package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// Store is a ChunkStore backed by Badger.
//
// Each Replace writes a new generation of chunk keys and then publishes it
// by swapping the generation pointer in a single transaction. Readers
// resolve the pointer and read the chunks inside one View transaction, so
// they always see one complete generation.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ ChunkStore = (*Store)(nil)

// New opens (or creates) a Badger chunk store at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	logger.Info("Badger chunk store opened successfully", "path", path)

	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	s.logger.Info("Closing chunk store")
	return s.db.Close()
}

// Replace implements ChunkStore.
//
// Cancellation before the pointer swap removes the partial generation and
// leaves the previous one current.
func (s *Store) Replace(ctx context.Context, transcriptID string, chunks []domain.ContextChunk) error {
	if err := ValidateTranscriptID(transcriptID); err != nil {
		return err
	}

	current, _, err := s.generation(transcriptID)
	if err != nil {
		return err
	}
	next := current + 1

	// A crash between write and publish can leave keys behind at next.
	if err := s.deletePrefix(generationPrefix(transcriptID, next), nil); err != nil {
		return fmt.Errorf("clear stale generation: %w", err)
	}

	if err := s.writeGeneration(ctx, transcriptID, next, chunks); err != nil {
		s.discardGeneration(transcriptID, next)
		return err
	}

	// Last point at which the replace can be abandoned.
	if err := ctx.Err(); err != nil {
		s.discardGeneration(transcriptID, next)
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(genWriteKey(transcriptID), encodeGeneration(next))
	})
	if err != nil {
		s.discardGeneration(transcriptID, next)
		return fmt.Errorf("publish generation: %w", err)
	}

	// Superseded generations are garbage; a failure here only costs space.
	keep := generationPrefix(transcriptID, next)
	if err := s.deletePrefix(transcriptPrefix(transcriptID), keep); err != nil {
		s.logger.Warn("failed to collect superseded chunks",
			"transcript_id", transcriptID,
			"error", err,
		)
	}

	s.logger.Debug("replaced chunks",
		"transcript_id", transcriptID,
		"generation", next,
		"chunks", len(chunks),
	)
	return nil
}

// FindContaining implements ChunkStore.
func (s *Store) FindContaining(ctx context.Context, transcriptID string, timestampS float64) (*domain.ContextChunk, bool, error) {
	w, ok, err := s.Window(ctx, transcriptID, timestampS)
	if err != nil || !ok {
		return nil, false, err
	}
	chunk := w.Chunk
	return &chunk, true, nil
}

// Neighbors implements ChunkStore.
func (s *Store) Neighbors(_ context.Context, transcriptID string, index int) (prev, next *domain.ContextChunk, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		gen, ok, err := readGeneration(txn, transcriptID)
		if err != nil || !ok {
			return err
		}
		if prev, err = getChunk(txn, transcriptID, gen, index-1); err != nil {
			return err
		}
		next, err = getChunk(txn, transcriptID, gen, index+1)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

// Window implements ChunkStore.
func (s *Store) Window(_ context.Context, transcriptID string, timestampS float64) (domain.ChunkWindow, bool, error) {
	var (
		window domain.ChunkWindow
		found  bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		chunks, err := listChunks(txn, transcriptID)
		if err != nil {
			return err
		}
		i, ok := Locate(chunks, domain.SecondsToMillis(timestampS))
		if !ok {
			return nil
		}
		window, found = WindowAt(chunks, i), true
		return nil
	})
	if err != nil {
		return domain.ChunkWindow{}, false, err
	}
	return window, found, nil
}

// List implements ChunkStore.
func (s *Store) List(_ context.Context, transcriptID string) ([]domain.ContextChunk, error) {
	var chunks []domain.ContextChunk
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		chunks, err = listChunks(txn, transcriptID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// Delete implements ChunkStore. The pointer goes first so readers see the
// transcript as absent before any chunk key is removed.
func (s *Store) Delete(_ context.Context, transcriptID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(genWriteKey(transcriptID))
	})
	if err != nil {
		return fmt.Errorf("unpublish chunks: %w", err)
	}

	if err := s.deletePrefix(transcriptPrefix(transcriptID), nil); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// generation returns the published generation of a transcript.
func (s *Store) generation(transcriptID string) (uint64, bool, error) {
	var (
		gen uint64
		ok  bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		gen, ok, err = readGeneration(txn, transcriptID)
		return err
	})
	return gen, ok, err
}

func readGeneration(txn *badger.Txn, transcriptID string) (uint64, bool, error) {
	key := genKey(transcriptID)
	defer releaseKey(key)

	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var gen uint64
	err = item.Value(func(val []byte) error {
		gen, err = decodeGeneration(val)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return gen, true, nil
}

// getChunk loads one chunk of a generation. Missing chunks return nil.
func getChunk(txn *badger.Txn, transcriptID string, gen uint64, index int) (*domain.ContextChunk, error) {
	if index < 0 {
		return nil, nil
	}

	item, err := txn.Get(chunkKey(transcriptID, gen, index))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var chunk domain.ContextChunk
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &chunk)
	})
	if err != nil {
		return nil, fmt.Errorf("decode chunk %d: %w", index, err)
	}
	return &chunk, nil
}

// listChunks reads the published generation of a transcript in index order.
func listChunks(txn *badger.Txn, transcriptID string) ([]domain.ContextChunk, error) {
	gen, ok, err := readGeneration(txn, transcriptID)
	if err != nil || !ok {
		return nil, err
	}

	prefix := generationPrefix(transcriptID, gen)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var chunks []domain.ContextChunk
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var chunk domain.ContextChunk
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &chunk)
		})
		if err != nil {
			return nil, fmt.Errorf("decode chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
