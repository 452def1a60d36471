package service

import (
	"net/url"
	"regexp"

	"github.com/listenupapp/transcript-server/internal/errors"
)

// videoIDPatterns locate a YouTube video id in watch, short-link and embed URLs.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?(?:[^#\s]*&)?v=|youtu\.be/)([^&\n?#/]+)`),
	regexp.MustCompile(`youtube\.com/(?:embed|shorts|live)/([^&\n?#/]+)`),
}

// ExtractVideoID returns the video id referenced by a YouTube URL.
// Returns a Validation error if rawURL is not a recognised YouTube URL.
func ExtractVideoID(rawURL string) (string, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return "", errors.Validationf("invalid URL: %v", err)
	}

	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil && m[1] != "" {
			return m[1], nil
		}
	}
	return "", errors.Validation("invalid YouTube URL")
}
