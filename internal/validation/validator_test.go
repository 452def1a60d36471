package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/validation"
)

type testCaption struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start" validate:"gte=0"`
	Duration float64 `json:"duration" validate:"gte=0"`
}

type testRequest struct {
	TranscriptID string        `json:"transcript_id" validate:"transcript_id"`
	Source       string        `json:"source,omitempty" validate:"omitempty,http_url"`
	Captions     []testCaption `json:"captions" validate:"required_without=Source,max=3,dive"`
}

func validRequest() testRequest {
	return testRequest{
		TranscriptID: "vid-1",
		Captions:     []testCaption{{Text: "hello", Start: 0, Duration: 1.5}},
	}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(validRequest()))

	req := validRequest()
	req.Captions = nil
	req.Source = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	assert.NoError(t, v.Validate(req))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		mutate    func(*testRequest)
		wantField string
	}{
		{"empty transcript id", func(r *testRequest) { r.TranscriptID = "" }, "transcript_id"},
		{"colon in transcript id", func(r *testRequest) { r.TranscriptID = "a:b" }, "transcript_id"},
		{"path in transcript id", func(r *testRequest) { r.TranscriptID = "../x" }, "transcript_id"},
		{"negative start", func(r *testRequest) { r.Captions[0].Start = -1 }, "captions[0].start"},
		{"negative duration", func(r *testRequest) { r.Captions[0].Duration = -0.5 }, "captions[0].duration"},
		{"too many captions", func(r *testRequest) { r.Captions = make([]testCaption, 4) }, "captions"},
		{"no captions and no source", func(r *testRequest) { r.Captions = nil }, "captions"},
		{"bad source url", func(r *testRequest) { r.Source = "not a url" }, "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := v.Validate(req)
			require.Error(t, err)

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())
			assert.Contains(t, domainErr.Message, tt.wantField)

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	req := validRequest()
	req.TranscriptID = ""

	err := v.Validate(req)
	require.Error(t, err)

	// Should use JSON tag name "transcript_id", not struct field name "TranscriptID"
	assert.Contains(t, err.Error(), "transcript_id")
	assert.NotContains(t, err.Error(), "TranscriptID")
}

func TestValidator_Var(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Var("transcript_id", "vid-1", validation.TranscriptIDTag))

	err := v.Var("transcript_id", "bad:id", validation.TranscriptIDTag)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "transcript_id")
}
