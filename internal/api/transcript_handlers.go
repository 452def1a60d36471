package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/transcript-server/internal/captions"
	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/indexer"
	"github.com/listenupapp/transcript-server/internal/service"
	"github.com/listenupapp/transcript-server/internal/validation"
)

func (s *Server) registerTranscriptRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "buildTranscript",
		Method:        http.MethodPost,
		Path:          "/api/v1/transcripts/{id}/build",
		Summary:       "Build transcript indexes",
		Description:   "Normalizes the supplied captions and replaces both indexes of the transcript",
		Tags:          []string{"Transcripts"},
		DefaultStatus: http.StatusCreated,
	}, s.handleBuildTranscript)

	huma.Register(s.api, huma.Operation{
		OperationID:   "ingestTranscript",
		Method:        http.MethodPost,
		Path:          "/api/v1/transcripts/ingest",
		Summary:       "Ingest transcript",
		Description:   "Acquires captions from the configured source and builds the transcript indexes",
		Tags:          []string{"Transcripts"},
		DefaultStatus: http.StatusCreated,
	}, s.handleIngestTranscript)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTranscript",
		Method:      http.MethodGet,
		Path:        "/api/v1/transcripts/{id}",
		Summary:     "Get transcript status",
		Description: "Reports whether a transcript is indexed and how many captions and chunks it holds",
		Tags:        []string{"Transcripts"},
	}, s.handleGetTranscript)

	huma.Register(s.api, huma.Operation{
		OperationID: "queryTranscript",
		Method:      http.MethodGet,
		Path:        "/api/v1/transcripts/{id}/query",
		Summary:     "Query transcript",
		Description: "Returns the context surrounding the best matching caption",
		Tags:        []string{"Transcripts"},
	}, s.handleQueryTranscript)

	huma.Register(s.api, huma.Operation{
		OperationID: "answerQuestion",
		Method:      http.MethodPost,
		Path:        "/api/v1/transcripts/{id}/answer",
		Summary:     "Answer question",
		Description: "Answers a question from the transcript context around the best match",
		Tags:        []string{"Transcripts"},
	}, s.handleAnswerQuestion)

	huma.Register(s.api, huma.Operation{
		OperationID: "listChunks",
		Method:      http.MethodGet,
		Path:        "/api/v1/transcripts/{id}/chunks",
		Summary:     "List chunks",
		Description: "Returns the coarse context chunks of a transcript in order",
		Tags:        []string{"Transcripts"},
	}, s.handleListChunks)

	huma.Register(s.api, huma.Operation{
		OperationID: "exportCaptions",
		Method:      http.MethodGet,
		Path:        "/api/v1/transcripts/{id}/captions.vtt",
		Summary:     "Export captions",
		Description: "Returns the indexed captions of a transcript as WebVTT",
		Tags:        []string{"Transcripts"},
	}, s.handleExportCaptions)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteTranscript",
		Method:      http.MethodDelete,
		Path:        "/api/v1/transcripts/{id}",
		Summary:     "Delete transcript",
		Description: "Removes both indexes of a transcript",
		Tags:        []string{"Transcripts"},
	}, s.handleDeleteTranscript)
}

// === DTOs ===

// TranscriptIDInput identifies a transcript in the path.
type TranscriptIDInput struct {
	ID string `path:"id" doc:"Transcript ID"`
}

// CaptionRequest is one caption as supplied by a client, in seconds.
type CaptionRequest struct {
	Text     string  `json:"text" doc:"Caption text"`
	Start    float64 `json:"start" validate:"gte=0" doc:"Start time in seconds"`
	Duration float64 `json:"duration" validate:"gte=0" doc:"Duration in seconds"`
}

// BuildTranscriptRequest is the request body for building a transcript.
type BuildTranscriptRequest struct {
	Captions []CaptionRequest `json:"captions" validate:"max=100000,dive" doc:"Captions in any order"`
}

// BuildTranscriptInput wraps the build request for Huma.
type BuildTranscriptInput struct {
	ID   string `path:"id" doc:"Transcript ID"`
	Body BuildTranscriptRequest
}

// IngestTranscriptRequest is the request body for ingesting a transcript.
// Exactly one of source_url and transcript_id is set.
type IngestTranscriptRequest struct {
	SourceURL    string `json:"source_url,omitempty" validate:"omitempty,http_url" doc:"Video URL the transcript id is derived from"`
	TranscriptID string `json:"transcript_id,omitempty" validate:"omitempty,transcript_id" doc:"Transcript ID"`
}

// IngestTranscriptInput wraps the ingest request for Huma.
type IngestTranscriptInput struct {
	Body IngestTranscriptRequest
}

// BuildReportResponse describes a completed build.
type BuildReportResponse struct {
	BuildID      string `json:"build_id" doc:"Build ID"`
	TranscriptID string `json:"transcript_id" doc:"Transcript ID"`
	Captions     int    `json:"captions" doc:"Captions indexed"`
	Chunks       int    `json:"chunks" doc:"Chunks stored"`
	ElapsedMs    int64  `json:"elapsed_ms" doc:"Build duration in milliseconds"`
}

// BuildReportOutput wraps the build report for Huma.
type BuildReportOutput struct {
	Body BuildReportResponse
}

// TranscriptStatusOutput wraps the transcript status for Huma.
type TranscriptStatusOutput struct {
	Body service.TranscriptStatus
}

// QueryTranscriptInput contains parameters for querying a transcript.
type QueryTranscriptInput struct {
	ID string `path:"id" doc:"Transcript ID"`
	Q  string `query:"q" required:"true" minLength:"1" maxLength:"1000" doc:"Query text"`
}

// QueryResponse is the retrieval result for a query.
type QueryResponse struct {
	Context           string   `json:"context" doc:"Context around the match, empty when nothing matched"`
	MatchedTimestampS *float64 `json:"matched_timestamp_s" doc:"Start of the matched caption in seconds, null when nothing matched"`
}

// QueryOutput wraps the query response for Huma.
type QueryOutput struct {
	Body QueryResponse
}

// AnswerQuestionRequest is the request body for answering a question.
type AnswerQuestionRequest struct {
	Question string `json:"question" minLength:"1" maxLength:"1000" doc:"Question about the transcript"`
}

// AnswerQuestionInput wraps the answer request for Huma.
type AnswerQuestionInput struct {
	ID   string `path:"id" doc:"Transcript ID"`
	Body AnswerQuestionRequest
}

// AnswerOutput wraps the answer for Huma.
type AnswerOutput struct {
	Body service.Answer
}

// ChunkResponse is one coarse chunk.
type ChunkResponse struct {
	ChunkIndex int     `json:"chunk_index" doc:"Position of the chunk in the transcript"`
	Text       string  `json:"text" doc:"Chunk text"`
	StartS     float64 `json:"start_s" doc:"Chunk start in seconds"`
	DurationS  float64 `json:"duration_s" doc:"Chunk duration in seconds"`
}

// ListChunksResponse lists the chunks of a transcript.
type ListChunksResponse struct {
	TranscriptID string          `json:"transcript_id" doc:"Transcript ID"`
	Chunks       []ChunkResponse `json:"chunks" doc:"Chunks ordered by index"`
}

// ListChunksOutput wraps the chunk list for Huma.
type ListChunksOutput struct {
	Body ListChunksResponse
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message" doc:"Response message"`
}

// MessageOutput wraps the message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleBuildTranscript(ctx context.Context, input *BuildTranscriptInput) (*BuildReportOutput, error) {
	if err := s.validateTranscriptID(input.ID); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	raw := make([]domain.RawCaption, len(input.Body.Captions))
	for i, c := range input.Body.Captions {
		raw[i] = domain.RawCaption{Text: c.Text, Start: c.Start, Duration: c.Duration}
	}

	report, err := s.transcripts.Build(ctx, input.ID, raw)
	if err != nil {
		return nil, err
	}
	return &BuildReportOutput{Body: toBuildReportResponse(report)}, nil
}

func (s *Server) handleIngestTranscript(ctx context.Context, input *IngestTranscriptInput) (*BuildReportOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	transcriptID := input.Body.TranscriptID
	switch {
	case input.Body.SourceURL != "" && transcriptID != "":
		return nil, errors.ValidationWithDetails("set either source_url or transcript_id, not both",
			map[string]string{"source_url": "must not be set together with transcript_id"})
	case input.Body.SourceURL != "":
		videoID, err := service.ExtractVideoID(input.Body.SourceURL)
		if err != nil {
			return nil, err
		}
		transcriptID = videoID
	case transcriptID == "":
		return nil, errors.ValidationWithDetails("source_url or transcript_id is required",
			map[string]string{"transcript_id": "is required when source_url is absent"})
	}

	report, err := s.transcripts.Ingest(ctx, transcriptID)
	if err != nil {
		return nil, err
	}
	return &BuildReportOutput{Body: toBuildReportResponse(report)}, nil
}

func (s *Server) handleGetTranscript(ctx context.Context, input *TranscriptIDInput) (*TranscriptStatusOutput, error) {
	if err := s.validateTranscriptID(input.ID); err != nil {
		return nil, err
	}

	status, err := s.transcripts.Status(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &TranscriptStatusOutput{Body: *status}, nil
}

func (s *Server) handleQueryTranscript(ctx context.Context, input *QueryTranscriptInput) (*QueryOutput, error) {
	if err := s.validateTranscriptID(input.ID); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(input.Q)
	if q == "" {
		return nil, errors.ValidationWithDetails("q must not be blank", map[string]string{"q": "must not be blank"})
	}

	result, err := s.transcripts.Query(ctx, input.ID, q)
	if err != nil {
		return nil, err
	}
	return &QueryOutput{Body: QueryResponse{
		Context:           result.Context,
		MatchedTimestampS: result.MatchedTimestampS,
	}}, nil
}

func (s *Server) handleAnswerQuestion(ctx context.Context, input *AnswerQuestionInput) (*AnswerOutput, error) {
	if err := s.validateTranscriptID(input.ID); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(input.Body.Question)
	if question == "" {
		return nil, errors.ValidationWithDetails("question must not be blank",
			map[string]string{"question": "must not be blank"})
	}

	answer, err := s.transcripts.Answer(ctx, input.ID, question)
	if err != nil {
		return nil, err
	}
	return &AnswerOutput{Body: *answer}, nil
}

func (s *Server) handleListChunks(ctx context.Context, input *TranscriptIDInput) (*ListChunksOutput, error) {
	if err := s.validateTranscriptID(input.ID); err != nil {
		return nil, err
	}

	chunks, err := s.transcripts.Chunks(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	resp := ListChunksResponse{
		TranscriptID: input.ID,
		Chunks:       make([]ChunkResponse, len(chunks)),
	}
	for i, c := range chunks {
		resp.Chunks[i] = ChunkResponse{
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			StartS:     domain.MillisToSeconds(c.StartMs),
			DurationS:  domain.MillisToSeconds(c.DurationMs),
		}
	}
	return &ListChunksOutput{Body: resp}, nil
}

func (s *Server) handleExportCaptions(ctx context.Context, input *TranscriptIDInput) (*huma.StreamResponse, error) {
	if err := s.validateTranscriptID(input.ID); err != nil {
		return nil, err
	}

	records, err := s.transcripts.Captions(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	// Render before streaming so failures still produce an error envelope.
	var buf bytes.Buffer
	if err := captions.RenderVTT(&buf, records); err != nil {
		return nil, err
	}

	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			ctx.SetHeader("Content-Type", "text/vtt; charset=utf-8")
			ctx.SetHeader("Content-Disposition", `attachment; filename="`+input.ID+`.vtt"`)
			ctx.SetHeader("Content-Length", strconv.Itoa(buf.Len()))
			if _, err := buf.WriteTo(ctx.BodyWriter()); err != nil {
				s.logger.Warn("Failed to stream captions", "transcript_id", input.ID, "error", err)
			}
		},
	}, nil
}

func (s *Server) handleDeleteTranscript(ctx context.Context, input *TranscriptIDInput) (*MessageOutput, error) {
	if err := s.validateTranscriptID(input.ID); err != nil {
		return nil, err
	}

	if err := s.transcripts.Delete(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Transcript deleted"}}, nil
}

// === Helpers ===

func (s *Server) validateTranscriptID(transcriptID string) error {
	return s.validator.Var("id", transcriptID, validation.TranscriptIDTag)
}

func toBuildReportResponse(r *indexer.BuildReport) BuildReportResponse {
	return BuildReportResponse{
		BuildID:      r.BuildID,
		TranscriptID: r.TranscriptID,
		Captions:     r.Captions,
		Chunks:       r.Chunks,
		ElapsedMs:    r.Elapsed.Milliseconds(),
	}
}
