package captions

import (
	"bufio"
	"fmt"
	"io"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// RenderVTT writes captions as a WebVTT file, one cue per caption.
func RenderVTT(w io.Writer, captions []domain.CaptionRecord) error {
	bw := bufio.NewWriter(w)

	if _, err := io.WriteString(bw, "WEBVTT\n"); err != nil {
		return err
	}
	for _, c := range captions {
		start := domain.MillisToSeconds(c.StartMs)
		end := domain.MillisToSeconds(c.EndMs())
		if _, err := fmt.Fprintf(bw, "\n%s --> %s\n%s\n", formatTimestamp(start), formatTimestamp(end), c.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}
