package retrieval

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// FormatTimestamp renders seconds as m:ss. Minutes are not padded and are
// not rolled into hours.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	minutes := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// RenderCaptions renders captions as "[m:ss] text" lines in ascending
// timestamp order.
func RenderCaptions(captions []domain.IndexedCaption) string {
	sorted := slices.Clone(captions)
	slices.SortStableFunc(sorted, func(a, b domain.IndexedCaption) int {
		return cmp.Compare(a.Metadata.TimestampMs, b.Metadata.TimestampMs)
	})

	var b strings.Builder
	for i, c := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s", FormatTimestamp(c.TimestampS()), c.Text)
	}
	return b.String()
}
