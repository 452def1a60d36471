package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
)

// CaptionIndex wraps a Bleve index holding the captions of every transcript.
//
// Thread safety: All public methods are safe for concurrent use. Writers for
// the same transcript id must be serialised by the caller.
type CaptionIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex // Protects the index handle across Close
}

// Options configures the caption index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Logger for operations (uses discard if nil)
}

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch on startup drops the index; transcripts must then be rebuilt.
const mappingVersion = "1"

// NewCaptionIndex opens the index under opts.DataPath, creating it when
// missing. An index that fails to open or was written with another mapping
// version is dropped and recreated empty.
func NewCaptionIndex(opts Options) (*CaptionIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &CaptionIndex{
		path:   filepath.Join(opts.DataPath, "captions.bleve"),
		logger: logger,
	}
	versionPath := filepath.Join(opts.DataPath, "captions.version")

	index, stale := c.openExisting(versionPath)
	if index != nil {
		logger.Info("opened existing caption index", "path", c.path)
		c.index = index
		return c, nil
	}

	if stale {
		if err := os.RemoveAll(c.path); err != nil {
			return nil, fmt.Errorf("remove stale caption index: %w", err)
		}
	}

	index, err := bleve.New(c.path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create caption index: %w", err)
	}
	if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o600); err != nil {
		logger.Warn("caption index version not recorded", "error", err)
	}
	logger.Info("created caption index", "path", c.path, "mapping_version", mappingVersion)

	c.index = index
	return c, nil
}

// openExisting returns the index at c.path when it exists, opens and carries
// the current mapping version. stale means something is on disk that must be
// removed first.
func (c *CaptionIndex) openExisting(versionPath string) (index bleve.Index, stale bool) {
	if _, err := os.Stat(c.path); err != nil {
		return nil, false
	}

	version, err := os.ReadFile(versionPath)
	if err != nil || string(version) != mappingVersion {
		c.logger.Info("caption index mapping changed, recreating",
			"old_version", string(version),
			"new_version", mappingVersion,
		)
		return nil, true
	}

	index, err = bleve.Open(c.path)
	if err != nil {
		c.logger.Warn("caption index unreadable, recreating", "path", c.path, "error", err)
		return nil, true
	}
	return index, false
}

// Close closes the index and releases resources.
func (s *CaptionIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Index replaces every caption indexed for transcriptID with captions.
//
// The previous generation's deletes, the new documents and the manifest
// all go into a single Bleve batch, which is applied atomically: searches
// see either the old captions or the new ones. Do not split this batch.
func (s *CaptionIndex) Index(ctx context.Context, transcriptID string, captions []domain.CaptionRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prev, err := s.manifest(transcriptID)
	if err != nil {
		return err
	}

	batch := s.index.NewBatch()

	if prev != nil {
		for i := len(captions); i < prev.CaptionCount; i++ {
			batch.Delete(captionDocID(transcriptID, i))
		}
	}

	for i, c := range captions {
		if err := batch.Index(captionDocID(transcriptID, i), captionDocument(transcriptID, c)); err != nil {
			return fmt.Errorf("batch index caption %d: %w", i, err)
		}
	}

	m := manifest{CaptionCount: len(captions), IndexedAt: time.Now().UTC()}
	data, err := m.encode()
	if err != nil {
		return err
	}
	batch.SetInternal(manifestKey(transcriptID), data)

	// Last point at which the replace can be abandoned.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit caption batch: %w", err)
	}

	s.logger.Debug("indexed captions",
		"transcript_id", transcriptID,
		"captions", len(captions),
		"previous", previousCount(prev),
	)
	return nil
}

// Delete removes every caption and the manifest for transcriptID.
// Deleting an unindexed transcript is a no-op.
func (s *CaptionIndex) Delete(_ context.Context, transcriptID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prev, err := s.manifest(transcriptID)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}

	batch := s.index.NewBatch()
	for i := 0; i < prev.CaptionCount; i++ {
		batch.Delete(captionDocID(transcriptID, i))
	}
	batch.DeleteInternal(manifestKey(transcriptID))

	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

// Has reports whether transcriptID has been indexed.
func (s *CaptionIndex) Has(_ context.Context, transcriptID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.manifest(transcriptID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// CaptionCount returns the number of captions indexed for transcriptID.
func (s *CaptionIndex) CaptionCount(_ context.Context, transcriptID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.manifest(transcriptID)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, errors.IndexNotFound(transcriptID)
	}
	return m.CaptionCount, nil
}

// DocumentCount returns the total number of indexed captions across transcripts.
func (s *CaptionIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// manifest loads a transcript's manifest. Returns nil if never indexed.
// Callers must hold s.mu.
func (s *CaptionIndex) manifest(transcriptID string) (*manifest, error) {
	data, err := s.index.GetInternal(manifestKey(transcriptID))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return decodeManifest(data)
}

func previousCount(m *manifest) int {
	if m == nil {
		return 0
	}
	return m.CaptionCount
}
