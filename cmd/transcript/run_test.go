package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/transcript-server/internal/errors"
)

const sampleSRT = `1
00:00:00,000 --> 00:00:04,000
welcome to the launch stream

2
00:00:04,000 --> 00:00:09,500
the rocket lifts off at dawn

3
00:00:09,500 --> 00:00:12,000
thanks for watching
`

// isolateEnv keeps host configuration out of config.Load.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ENV", "LOG_LEVEL", "DATA_PATH", "CHUNK_BACKEND", "CHUNK_WINDOW", "FALLBACK_WINDOW"} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func TestRun_BuildQueryExportDelete(t *testing.T) {
	for _, backend := range []string{"badger", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			isolateEnv(t)
			dataPath := t.TempDir()
			file := filepath.Join(t.TempDir(), "launch.srt")
			require.NoError(t, os.WriteFile(file, []byte(sampleSRT), 0o644))

			exec := func(args ...string) (string, error) {
				var stdout, stderr bytes.Buffer
				flags := []string{"-data-path", dataPath, "-chunk-backend", backend}
				err := run(t.Context(), append(flags, args...), &stdout, &stderr)
				return stdout.String(), err
			}

			out, err := exec("build", file)
			require.NoError(t, err)
			var report map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &report))
			assert.Equal(t, "launch", report["transcript_id"])
			assert.Equal(t, float64(3), report["captions"])
			assert.Equal(t, float64(1), report["chunks"])

			out, err = exec("query", "launch", "rocket")
			require.NoError(t, err)
			var result map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &result))
			assert.Equal(t, 4.0, result["matched_timestamp_s"])
			assert.Contains(t, result["context"], "the rocket lifts off at dawn")

			out, err = exec("export", "launch")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "WEBVTT"))
			assert.Contains(t, out, "00:00:04.000 --> 00:00:09.500\nthe rocket lifts off at dawn")

			out, err = exec("delete", "launch")
			require.NoError(t, err)
			assert.Equal(t, "deleted launch\n", out)

			_, err = exec("query", "launch", "rocket")
			assert.True(t, errors.Is(err, errors.ErrIndexNotFound))
		})
	}
}

func TestRun_Usage(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"missing argument", []string{"query", "vid-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(t.Context(), tt.args, &stdout, &stderr)
			assert.ErrorIs(t, err, errUsage)
		})
	}
}
