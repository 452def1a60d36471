package domain

// MillisPerSecond is the conversion factor between the seconds used by
// acquisition sources and callers, and the milliseconds used for all
// stored metadata.
const MillisPerSecond = 1000.0

// SecondsToMillis converts an external seconds value to internal milliseconds.
func SecondsToMillis(s float64) float64 {
	return s * MillisPerSecond
}

// MillisToSeconds converts internal milliseconds to seconds for callers.
func MillisToSeconds(ms float64) float64 {
	return ms / MillisPerSecond
}
