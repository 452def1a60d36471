// Package id generates prefixed NanoID identifiers.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	BuildPrefix   = "bld"
	RequestPrefix = "req"
)

const separator = "-"

// Generate returns prefix, a dash and a 21-character NanoID, such as
// "bld-V1StGXR8_Z5jdHi6B-myT". It fails only when the system entropy source does.
func Generate(prefix string) (string, error) {
	nano, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return prefix + separator + nano, nil
}

// MustGenerate is Generate for callers with no error path, like middleware.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(err)
	}
	return v
}

// NewBuildID returns an identifier for one index build.
func NewBuildID() (string, error) {
	return Generate(BuildPrefix)
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+separator)
	return ok && rest != ""
}
