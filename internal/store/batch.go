package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// writeGeneration stores chunks under generation gen using a WriteBatch.
// The generation is invisible to readers until its pointer is published.
func (s *Store) writeGeneration(ctx context.Context, transcriptID string, gen uint64, chunks []domain.ContextChunk) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk.TranscriptID = transcriptID
		chunk.ChunkIndex = i

		data, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("marshal chunk %d: %w", i, err)
		}
		if err := wb.Set(chunkKey(transcriptID, gen, i), data); err != nil {
			return fmt.Errorf("batch set chunk %d: %w", i, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush chunk batch: %w", err)
	}
	return nil
}

// discardGeneration removes an unpublished generation after a failed replace.
func (s *Store) discardGeneration(transcriptID string, gen uint64) {
	if err := s.deletePrefix(generationPrefix(transcriptID, gen), nil); err != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to discard partial generation",
			slog.String("transcript_id", transcriptID),
			slog.Uint64("generation", gen),
			slog.String("error", err.Error()),
		)
	}
}

// deletePrefix deletes every key under prefix, except keys under keep.
func (s *Store) deletePrefix(prefix, keep []byte) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if keep != nil && bytes.HasPrefix(key, keep) {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
	}
	return wb.Flush()
}
