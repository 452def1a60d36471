package domain

// QueryMatch is a single fine-grained search hit.
type QueryMatch struct {
	Caption IndexedCaption `json:"caption"`
	Score   float64        `json:"score"`
}

// RetrievalResult is the assembled context around the best match.
// MatchedTimestampS is nil when nothing matched.
type RetrievalResult struct {
	Context           string   `json:"context"`
	MatchedTimestampS *float64 `json:"matched_timestamp_s"`
}

// NoMatch returns the empty result for a query that matched nothing.
func NoMatch() *RetrievalResult {
	return &RetrievalResult{}
}

// Matched reports whether the result carries a match.
func (r *RetrievalResult) Matched() bool {
	return r != nil && r.MatchedTimestampS != nil
}
