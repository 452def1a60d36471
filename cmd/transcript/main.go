// Package main provides an offline tool that builds and queries transcript
// indexes directly on disk, without the HTTP server.
//
// Usage:
//
//	transcript [flags] build <file.vtt|file.srt>
//	transcript [flags] query <transcript-id> <text>
//	transcript [flags] answer <transcript-id> <question>
//	transcript [flags] chunks <transcript-id>
//	transcript [flags] status <transcript-id>
//	transcript [flags] export <transcript-id>
//	transcript [flags] delete <transcript-id>
//
// Storage settings come from the same environment variables as the server
// (DATA_PATH, CHUNK_BACKEND, CHUNK_WINDOW, ...) and may be overridden by flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "transcript: %v\n", err)
		os.Exit(1)
	}
}
