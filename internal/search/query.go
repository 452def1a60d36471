package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
)

// DefaultSearchLimit is used when a non-positive limit is passed to Search.
const DefaultSearchLimit = 10

// storedFields are requested on every hit.
var storedFields = []string{fieldText, fieldTranscriptID, fieldTimestampMs, fieldDurationMs}

// Search returns up to limit captions of transcriptID ranked by relevance to q.
// Ties on score are broken by ascending timestamp.
//
// Returns an IndexNotFound error if the transcript was never indexed. A blank
// query, or one that matches nothing, yields an empty slice.
func (s *CaptionIndex) Search(ctx context.Context, transcriptID, q string, limit int) ([]domain.QueryMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.manifest(transcriptID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.IndexNotFound(transcriptID)
	}

	q = strings.TrimSpace(q)
	if q == "" {
		return []domain.QueryMatch{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	textMatch := bleve.NewMatchQuery(q)
	textMatch.SetField(fieldText)

	req := bleve.NewSearchRequestOptions(
		bleve.NewConjunctionQuery(transcriptScope(transcriptID), textMatch),
		limit, 0, false,
	)
	req.SortBy([]string{"-_score", fieldTimestampMs})
	req.Fields = storedFields

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	matches := make([]domain.QueryMatch, 0, len(res.Hits))
	for _, hit := range res.Hits {
		matches = append(matches, domain.QueryMatch{
			Caption: captionFromFields(hit.Fields),
			Score:   hit.Score,
		})
	}
	return matches, nil
}

// RangeQuery returns every caption of transcriptID whose timestamp lies in
// [lowMs, highMs], ordered by ascending timestamp.
func (s *CaptionIndex) RangeQuery(ctx context.Context, transcriptID string, lowMs, highMs float64) ([]domain.IndexedCaption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.manifest(transcriptID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.IndexNotFound(transcriptID)
	}
	if highMs < lowMs {
		return []domain.IndexedCaption{}, nil
	}

	inclusive := true
	window := bleve.NewNumericRangeInclusiveQuery(&lowMs, &highMs, &inclusive, &inclusive)
	window.SetField(fieldTimestampMs)
	q := bleve.NewConjunctionQuery(transcriptScope(transcriptID), window)

	// The manifest can lag a concurrent replace; widen once if it did.
	size := max(m.CaptionCount, 1)
	res, err := s.rangeSearch(ctx, q, size)
	if err != nil {
		return nil, err
	}
	if res.Total > uint64(len(res.Hits)) {
		if res, err = s.rangeSearch(ctx, q, int(res.Total)); err != nil {
			return nil, err
		}
	}

	captions := make([]domain.IndexedCaption, 0, len(res.Hits))
	for _, hit := range res.Hits {
		captions = append(captions, captionFromFields(hit.Fields))
	}
	return captions, nil
}

func (s *CaptionIndex) rangeSearch(ctx context.Context, q query.Query, size int) (*bleve.SearchResult, error) {
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.SortBy([]string{fieldTimestampMs})
	req.Fields = storedFields

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute range query: %w", err)
	}
	return res, nil
}

// transcriptScope restricts a query to one transcript's captions.
func transcriptScope(transcriptID string) query.Query {
	tq := bleve.NewTermQuery(transcriptID)
	tq.SetField(fieldTranscriptID)
	return tq
}
