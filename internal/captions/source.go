package captions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
)

// FileSource acquires captions from caption files in a directory.
// The transcript id is the file name without its extension.
type FileSource struct {
	Dir string
}

// NewFileSource creates a FileSource reading from dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Fetch reads <Dir>/<transcriptID>.vtt, falling back to .srt.
// Returns a NotFound error when neither exists.
func (s *FileSource) Fetch(ctx context.Context, transcriptID string) ([]domain.RawCaption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if transcriptID == "" || strings.ContainsAny(transcriptID, `/\`) || transcriptID == "." || transcriptID == ".." {
		return nil, errors.Validationf("invalid transcript id %q", transcriptID)
	}

	for _, ext := range []string{".vtt", ".srt"} {
		path := filepath.Join(s.Dir, transcriptID+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_, raw, err := ReadFile(path)
		return raw, err
	}
	return nil, errors.NotFoundf("no caption file for transcript %q", transcriptID)
}

// ReadFile parses a caption file, inferring the format from its extension.
// It returns the transcript id derived from the file name.
func ReadFile(path string) (string, []domain.RawCaption, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return "", nil, errors.Validationf("unsupported caption file %q", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open caption file: %w", err)
	}
	defer f.Close()

	raw, err := Parse(format, f)
	if err != nil {
		return "", nil, err
	}
	return TranscriptIDFromPath(path), raw, nil
}

// TranscriptIDFromPath returns the file name of path without its extension.
func TranscriptIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
