package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Field names in the caption index.
const (
	fieldText         = "text"
	fieldTranscriptID = "transcript_id"
	fieldTimestampMs  = "timestamp_ms"
	fieldDurationMs   = "duration_ms"
)

// buildIndexMapping creates the Bleve index mapping for caption documents.
//
//  1. Full-text search on caption text with English stemming
//  2. Exact keyword matching on transcript id for scoping
//  3. Numeric range queries and sorting on timestamp
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	// Caption text - the only relevance target
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = en.AnalyzerName
	textFieldMapping.Store = true
	docMapping.AddFieldMappingsAt(fieldText, textFieldMapping)

	// Transcript id - keyword, never analyzed
	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	idFieldMapping.Store = true
	docMapping.AddFieldMappingsAt(fieldTranscriptID, idFieldMapping)

	timestampFieldMapping := bleve.NewNumericFieldMapping()
	timestampFieldMapping.Store = true
	docMapping.AddFieldMappingsAt(fieldTimestampMs, timestampFieldMapping)

	durationFieldMapping := bleve.NewNumericFieldMapping()
	durationFieldMapping.Store = true
	durationFieldMapping.Index = false
	docMapping.AddFieldMappingsAt(fieldDurationMs, durationFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
