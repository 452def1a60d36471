// Package captions reads and writes caption files.
//
// WebVTT and SRT cues are parsed into raw captions measured in seconds, the
// unit acquisition sources supply. Rendering goes the other way, from
// normalized caption records back to WebVTT.
package captions

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/listenupapp/transcript-server/internal/domain"
	"github.com/listenupapp/transcript-server/internal/errors"
)

// byteOrderMark may prefix the first line of a UTF-8 caption file.
const byteOrderMark = "\ufeff"

// Format identifies a caption file format.
type Format string

// Supported formats.
const (
	FormatVTT Format = "vtt"
	FormatSRT Format = "srt"
)

// FormatFromPath infers a format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		return FormatVTT, true
	case ".srt":
		return FormatSRT, true
	}
	return "", false
}

// Parse reads captions in the given format.
func Parse(format Format, r io.Reader) ([]domain.RawCaption, error) {
	switch format {
	case FormatVTT:
		return ParseVTT(r)
	case FormatSRT:
		return ParseSRT(r)
	}
	return nil, errors.Validationf("unsupported caption format %q", format)
}

// ParseVTT parses a WebVTT file.
//
// NOTE, STYLE and REGION blocks are skipped. Cue settings after the end
// timestamp are ignored. Multi-line cue text is joined with spaces; markup
// is left for the normalizer.
func ParseVTT(r io.Reader) ([]domain.RawCaption, error) {
	blocks, err := readBlocks(r)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, errors.Validation("empty WebVTT file")
	}

	header := strings.TrimPrefix(blocks[0].lines[0], byteOrderMark)
	if header != "WEBVTT" && !strings.HasPrefix(header, "WEBVTT ") && !strings.HasPrefix(header, "WEBVTT\t") {
		return nil, errors.Validation("missing WEBVTT header")
	}

	var out []domain.RawCaption
	for _, b := range blocks[1:] {
		first := b.lines[0]
		if first == "NOTE" || strings.HasPrefix(first, "NOTE ") ||
			first == "STYLE" || first == "REGION" {
			continue
		}
		c, err := parseCue(b)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseSRT parses a SubRip file. Sequence numbers are ignored; cues keep
// file order.
func ParseSRT(r io.Reader) ([]domain.RawCaption, error) {
	blocks, err := readBlocks(r)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RawCaption, 0, len(blocks))
	for _, b := range blocks {
		if len(b.lines) > 0 {
			b.lines[0] = strings.TrimPrefix(b.lines[0], byteOrderMark)
		}
		c, err := parseCue(b)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// block is a run of non-blank lines.
type block struct {
	line  int // 1-based line number of the first line
	lines []string
}

func readBlocks(r io.Reader) ([]block, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		blocks []block
		cur    *block
		n      int
	)
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			cur = nil
			continue
		}
		if cur == nil {
			blocks = append(blocks, block{line: n})
			cur = &blocks[len(blocks)-1]
		}
		cur.lines = append(cur.lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	return blocks, nil
}

// parseCue reads an optional identifier line, a timing line and the cue text.
func parseCue(b block) (domain.RawCaption, error) {
	timing := 0
	if !strings.Contains(b.lines[0], "-->") {
		timing = 1
	}
	if timing >= len(b.lines) || !strings.Contains(b.lines[timing], "-->") {
		return domain.RawCaption{}, errors.Validationf("line %d: cue without timing line", b.line)
	}

	startStr, rest, _ := strings.Cut(b.lines[timing], "-->")
	endFields := strings.Fields(rest)
	if len(endFields) == 0 {
		return domain.RawCaption{}, errors.Validationf("line %d: missing end timestamp", b.line+timing)
	}

	start, err := parseTimestamp(startStr)
	if err != nil {
		return domain.RawCaption{}, errors.Validationf("line %d: %v", b.line+timing, err)
	}
	end, err := parseTimestamp(endFields[0])
	if err != nil {
		return domain.RawCaption{}, errors.Validationf("line %d: %v", b.line+timing, err)
	}

	text := make([]string, 0, len(b.lines)-timing-1)
	for _, l := range b.lines[timing+1:] {
		text = append(text, strings.TrimSpace(l))
	}

	return domain.RawCaption{
		Text:     strings.Join(text, " "),
		Start:    start,
		Duration: max(end-start, 0),
	}, nil
}
