// Package normalize turns raw acquisition captions into canonical caption records.
package normalize

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
)

// markupPattern matches inline caption markup such as <i>, </b>, <c.yellow>
// and WebVTT karaoke timestamps like <00:01:02.500>.
var markupPattern = regexp.MustCompile(`<[^>]*>`)

// Captions validates and cleans raw captions into records ordered by start time.
//
// Start and duration are converted from seconds to milliseconds here; nothing
// downstream sees seconds again. Captions whose text is blank after cleaning
// are dropped. Equal start times keep their input order.
func Captions(raw []domain.RawCaption) ([]domain.CaptionRecord, error) {
	if len(raw) == 0 {
		return nil, errors.ErrEmptyTranscript
	}

	records := make([]domain.CaptionRecord, 0, len(raw))
	invalid := make(map[string]string)

	for i, c := range raw {
		if msg := checkTiming(c); msg != "" {
			invalid[fmt.Sprintf("captions[%d]", i)] = msg
			continue
		}

		text := Text(c.Text)
		if text == "" {
			continue
		}

		records = append(records, domain.CaptionRecord{
			Text:       text,
			StartMs:    domain.SecondsToMillis(c.Start),
			DurationMs: domain.SecondsToMillis(c.Duration),
		})
	}

	if len(invalid) > 0 {
		return nil, errors.ValidationWithDetails("invalid caption timing", invalid)
	}
	if len(records) == 0 {
		return nil, errors.EmptyTranscript("all captions are blank")
	}

	slices.SortStableFunc(records, func(a, b domain.CaptionRecord) int {
		switch {
		case a.StartMs < b.StartMs:
			return -1
		case a.StartMs > b.StartMs:
			return 1
		default:
			return 0
		}
	})

	return records, nil
}

// Text cleans a single caption's text: NFC, entity decoding, markup removal
// and whitespace collapsing.
func Text(s string) string {
	s = html.UnescapeString(s)
	s = markupPattern.ReplaceAllString(s, " ")
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

func checkTiming(c domain.RawCaption) string {
	switch {
	case math.IsNaN(c.Start) || math.IsInf(c.Start, 0):
		return "start must be a finite number"
	case c.Start < 0:
		return "start must be >= 0"
	case math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0):
		return "duration must be a finite number"
	case c.Duration < 0:
		return "duration must be >= 0"
	}
	return ""
}
