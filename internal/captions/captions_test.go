package captions

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
)

const sampleVTT = "\ufeffWEBVTT\nKind: captions\nLanguage: en\n\n" +
	"NOTE produced by hand\n\n" +
	"00:00:01.000 --> 00:00:03.500 align:start position:0%\n" +
	"hello <c.yellow>there</c>\n\n" +
	"intro\n" +
	"00:02:00.000 --> 00:02:04.250\n" +
	"the rocket launches\n" +
	"at dawn\n"

const sampleSRT = "1\r\n" +
	"00:00:00,000 --> 00:00:01,830\r\n" +
	"I'm happy to\r\n" +
	"have you here today.\r\n" +
	"\r\n" +
	"2\r\n" +
	"01:00:01,910 --> 01:00:03,610\r\n" +
	"As I'm sure you're all\r\n"

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"00:00:01.000", 1},
		{"00:02:00.250", 120.25},
		{"01:00:01,910", 3601.91},
		{"02:03.004", 123.004},
		{"100:00:00.000", 360000},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}

	for _, bad := range []string{
		"", "1.000", "00:00:01", "00:60:00.000", "aa:bb:cc.ddd", "00:00:01.5",
		"00:00:01.-50", "00:00:01.+50", "00:+1:00.000", "-1:00:00.000", "00:00: 1.000",
	} {
		_, err := parseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00.000", formatTimestamp(0))
	assert.Equal(t, "00:02:00.250", formatTimestamp(120.25))
	assert.Equal(t, "01:01:01.001", formatTimestamp(3661.001))
	assert.Equal(t, "00:00:00.000", formatTimestamp(-5))
}

func TestParseVTT(t *testing.T) {
	raw, err := ParseVTT(strings.NewReader(sampleVTT))
	require.NoError(t, err)
	require.Len(t, raw, 2)

	assert.Equal(t, "hello <c.yellow>there</c>", raw[0].Text)
	assert.Equal(t, 1.0, raw[0].Start)
	assert.Equal(t, 2.5, raw[0].Duration)

	assert.Equal(t, "the rocket launches at dawn", raw[1].Text)
	assert.Equal(t, 120.0, raw[1].Start)
	assert.InDelta(t, 4.25, raw[1].Duration, 1e-9)
}

func TestParseVTT_Errors(t *testing.T) {
	_, err := ParseVTT(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = ParseVTT(strings.NewReader("00:00:01.000 --> 00:00:02.000\nhi\n"))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = ParseVTT(strings.NewReader("WEBVTT\n\n00:00:01.000 --> nonsense\nhi\n"))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = ParseVTT(strings.NewReader("WEBVTT\n\njust text\nmore text\n"))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestParseSRT(t *testing.T) {
	raw, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)
	require.Len(t, raw, 2)

	assert.Equal(t, "I'm happy to have you here today.", raw[0].Text)
	assert.Equal(t, 0.0, raw[0].Start)
	assert.InDelta(t, 1.83, raw[0].Duration, 1e-9)

	assert.InDelta(t, 3601.91, raw[1].Start, 1e-9)
	assert.InDelta(t, 1.7, raw[1].Duration, 1e-9)
}

func TestParse_InvertedCueHasZeroDuration(t *testing.T) {
	raw, err := ParseSRT(strings.NewReader("1\n00:00:05,000 --> 00:00:04,000\nbackwards\n"))
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, 0.0, raw[0].Duration)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse("ass", strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestFormatFromPath(t *testing.T) {
	f, ok := FormatFromPath("/tmp/abc.VTT")
	assert.True(t, ok)
	assert.Equal(t, FormatVTT, f)

	f, ok = FormatFromPath("abc.srt")
	assert.True(t, ok)
	assert.Equal(t, FormatSRT, f)

	_, ok = FormatFromPath("abc.txt")
	assert.False(t, ok)
}

func TestRenderVTT_RoundTrip(t *testing.T) {
	records := []domain.CaptionRecord{
		{Text: "hello there", StartMs: 1000, DurationMs: 2500},
		{Text: "the rocket launches at dawn", StartMs: 120000, DurationMs: 4250},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderVTT(&buf, records))

	assert.Equal(t, "WEBVTT\n\n"+
		"00:00:01.000 --> 00:00:03.500\nhello there\n\n"+
		"00:02:00.000 --> 00:02:04.250\nthe rocket launches at dawn\n", buf.String())

	raw, err := ParseVTT(&buf)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, 120.0, raw[1].Start)
	assert.Equal(t, records[1].Text, raw[1].Text)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vid-1.vtt"), []byte(sampleVTT), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vid-2.srt"), []byte(sampleSRT), 0o644))

	src := NewFileSource(dir)
	ctx := context.Background()

	raw, err := src.Fetch(ctx, "vid-1")
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	raw, err = src.Fetch(ctx, "vid-2")
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	_, err = src.Fetch(ctx, "vid-3")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = src.Fetch(ctx, "../etc/passwd")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dQw4w9WgXcQ.srt")
	require.NoError(t, os.WriteFile(path, []byte(sampleSRT), 0o644))

	id, raw, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", id)
	assert.Len(t, raw, 2)

	_, _, err = ReadFile(filepath.Join(t.TempDir(), "notes.txt"))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
