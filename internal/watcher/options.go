package watcher

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultSettleDelay is how long a caption file must stay unchanged before it is reported.
const DefaultSettleDelay = 100 * time.Millisecond

// DefaultIgnorePatterns skip files that are still being written or are
// editor and OS byproducts rather than caption files.
var DefaultIgnorePatterns = []string{
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.part",
	"*.crdownload",
	"*.swp",
	"*~",
}

// Options configures the file watcher behavior.
type Options struct {
	// IgnorePatterns are filepath.Match patterns applied to the base name.
	// Nil selects DefaultIgnorePatterns and turns IgnoreHidden on.
	IgnorePatterns []string
	// Extensions restricts events to files with these extensions (case-insensitive).
	// Empty means every file.
	Extensions   []string
	SettleDelay  time.Duration
	IgnoreHidden bool
}

// withDefaults returns a copy of o with defaults applied and extensions
// lower-cased with a leading dot. The caller's slices are not modified.
func (o Options) withDefaults() Options {
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}

	if o.IgnorePatterns == nil {
		o.IgnorePatterns = slices.Clone(DefaultIgnorePatterns)
		o.IgnoreHidden = true
	}

	exts := make([]string, 0, len(o.Extensions))
	for _, ext := range o.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}
	o.Extensions = exts

	return o
}

// shouldIgnore reports whether path is hidden or matches an ignore pattern.
func (o Options) shouldIgnore(path string) bool {
	if o.IgnoreHidden {
		for part := range strings.SplitSeq(filepath.Clean(path), string(filepath.Separator)) {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := filepath.Base(path)
	return slices.ContainsFunc(o.IgnorePatterns, func(pattern string) bool {
		matched, err := filepath.Match(pattern, base)
		return err == nil && matched
	})
}

// accepts reports whether a file path passes the extension filter.
func (o Options) accepts(path string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	return slices.Contains(o.Extensions, strings.ToLower(filepath.Ext(path)))
}
