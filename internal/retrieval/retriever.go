// Package retrieval resolves a free-text query to the best matching moment of
// a transcript and assembles the context around it.
package retrieval

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// DefaultFallbackWindow is the half-width of the caption range scanned when
// no chunk covers the matched timestamp.
const DefaultFallbackWindow = time.Minute

// CaptionSearcher is the fine-grained index as seen by the retriever.
type CaptionSearcher interface {
	Search(ctx context.Context, transcriptID, q string, limit int) ([]domain.QueryMatch, error)
	RangeQuery(ctx context.Context, transcriptID string, lowMs, highMs float64) ([]domain.IndexedCaption, error)
}

// ChunkWindows reads a chunk and its neighbours from one snapshot.
type ChunkWindows interface {
	Window(ctx context.Context, transcriptID string, timestampS float64) (domain.ChunkWindow, bool, error)
}

// Options configures a Retriever.
type Options struct {
	FallbackWindow time.Duration // Half-width of the fallback scan (DefaultFallbackWindow if zero)
	Logger         *slog.Logger  // Uses discard if nil
}

// Retriever answers queries against one caption index and one chunk store.
type Retriever struct {
	captions       CaptionSearcher
	chunks         ChunkWindows
	fallbackWindow float64 // milliseconds
	logger         *slog.Logger
}

// New creates a Retriever.
func New(captions CaptionSearcher, chunks ChunkWindows, opts Options) *Retriever {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	window := opts.FallbackWindow
	if window <= 0 {
		window = DefaultFallbackWindow
	}

	return &Retriever{
		captions:       captions,
		chunks:         chunks,
		fallbackWindow: float64(window.Milliseconds()),
		logger:         logger,
	}
}

// Best returns the single most relevant caption for q.
// ok is false when nothing matched.
func (r *Retriever) Best(ctx context.Context, transcriptID, q string) (match domain.QueryMatch, ok bool, err error) {
	matches, err := r.captions.Search(ctx, transcriptID, q, 1)
	if err != nil {
		return domain.QueryMatch{}, false, err
	}
	if len(matches) == 0 {
		return domain.QueryMatch{}, false, nil
	}
	return matches[0], true, nil
}

// Query finds the best match for q and assembles its context.
//
// Context comes from the chunk containing the match plus its neighbours.
// When no chunk covers the match, the captions within the fallback window
// either side of it are rendered one per line instead. A query matching
// nothing yields an empty result, not an error. Querying a transcript that
// was never indexed returns an IndexNotFound error.
func (r *Retriever) Query(ctx context.Context, transcriptID, q string) (*domain.RetrievalResult, error) {
	best, ok, err := r.Best(ctx, transcriptID, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.NoMatch(), nil
	}

	timestampMs := best.Caption.Metadata.TimestampMs
	timestampS := domain.MillisToSeconds(timestampMs)

	text, ok := r.chunkContext(ctx, transcriptID, timestampS)
	if !ok {
		captions, err := r.captions.RangeQuery(ctx, transcriptID,
			timestampMs-r.fallbackWindow, timestampMs+r.fallbackWindow)
		if err != nil {
			return nil, err
		}
		text = RenderCaptions(captions)

		r.logger.Debug("chunk miss, used caption window",
			"transcript_id", transcriptID,
			"timestamp_s", timestampS,
			"captions", len(captions),
		)
	}

	return &domain.RetrievalResult{
		Context:           text,
		MatchedTimestampS: &timestampS,
	}, nil
}

// chunkContext joins the containing chunk and its neighbours.
// Chunk store errors are treated as a miss.
func (r *Retriever) chunkContext(ctx context.Context, transcriptID string, timestampS float64) (string, bool) {
	w, ok, err := r.chunks.Window(ctx, transcriptID, timestampS)
	if err != nil {
		r.logger.Warn("chunk lookup failed, falling back to captions",
			"transcript_id", transcriptID,
			"timestamp_s", timestampS,
			"error", err,
		)
		return "", false
	}
	if !ok {
		return "", false
	}
	return strings.Join(w.Texts(), " "), true
}
