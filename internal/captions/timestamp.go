package captions

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/listenupapp/transcript-server/internal/domain"
)

// parseTimestamp parses a cue timestamp into seconds.
// Accepts HH:MM:SS.mmm and MM:SS.mmm, with '.' (WebVTT) or ',' (SRT)
// before the milliseconds. Hours may exceed two digits.
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	clock, frac, ok := strings.Cut(strings.Replace(s, ",", ".", 1), ".")
	if !ok || len(frac) != 3 {
		return 0, fmt.Errorf("timestamp %q: want milliseconds after '.' or ','", s)
	}

	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q: want [HH:]MM:SS", s)
	}

	var total int
	for i, p := range parts {
		n, ok := digits(p)
		if !ok {
			return 0, fmt.Errorf("timestamp %q: bad field %q", s, p)
		}
		// Minutes and seconds must be two digits below 60.
		if i > 0 || len(parts) == 2 {
			if len(p) != 2 || n >= 60 {
				return 0, fmt.Errorf("timestamp %q: bad field %q", s, p)
			}
		}
		total = total*60 + n
	}

	ms, ok := digits(frac)
	if !ok {
		return 0, fmt.Errorf("timestamp %q: bad milliseconds %q", s, frac)
	}
	return float64(total) + domain.MillisToSeconds(float64(ms)), nil
}

// digits parses an unsigned decimal field. Signs and spaces are rejected.
func digits(field string) (int, bool) {
	if field == "" || strings.ContainsFunc(field, func(r rune) bool { return r < '0' || r > '9' }) {
		return 0, false
	}
	n, err := strconv.Atoi(field)
	return n, err == nil
}

// formatTimestamp renders seconds as HH:MM:SS.mmm, rounding to the
// nearest millisecond.
func formatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	totalMs := int64(math.Round(domain.SecondsToMillis(seconds)))
	h := totalMs / 3_600_000
	m := totalMs / 60_000 % 60
	s := totalMs / 1000 % 60
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
