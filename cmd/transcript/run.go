package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/listenupapp/transcript-server/internal/captions"
	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/indexer"
	"github.com/listenupapp/transcript-server/internal/logger"
	"github.com/listenupapp/transcript-server/internal/retrieval"
	"github.com/listenupapp/transcript-server/internal/search"
	"github.com/listenupapp/transcript-server/internal/service"
	"github.com/listenupapp/transcript-server/internal/store"
	"github.com/listenupapp/transcript-server/internal/store/sqlite"
)

var errUsage = errors.New("usage: transcript [flags] <build|query|answer|chunks|status|export|delete> args...")

// command is one subcommand. nargs is the exact number of positional arguments.
type command struct {
	nargs int
	run   func(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error
}

var commands = map[string]command{
	"build":  {1, runBuild},
	"query":  {2, runQuery},
	"answer": {2, runAnswer},
	"chunks": {1, runChunks},
	"status": {1, runStatus},
	"export": {1, runExport},
	"delete": {1, runDelete},
}

// run parses flags, opens the on-disk indexes and executes one command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("transcript", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataPath := fs.String("data-path", "", "Base path for index storage (overrides DATA_PATH)")
	backend := fs.String("chunk-backend", "", "Chunk store backend: badger or sqlite (overrides CHUNK_BACKEND)")
	verbose := fs.Bool("v", false, "Log at debug level to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", rest[0], errUsage)
	}
	if len(rest)-1 != cmd.nargs {
		return fmt.Errorf("%s takes %d argument(s): %w", rest[0], cmd.nargs, errUsage)
	}

	// Server flags are not accepted here; settings come from the environment.
	cfgArgs := []string{}
	if *dataPath != "" {
		cfgArgs = append(cfgArgs, "-data-path", *dataPath)
	}
	if *backend != "" {
		cfgArgs = append(cfgArgs, "-chunk-backend", *backend)
	}
	cfg, err := config.Load(cfgArgs)
	if err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: logger.ParseLevel(level), Writer: stderr})

	svc, closeAll, err := open(cfg, log)
	if err != nil {
		return err
	}
	defer closeAll()

	return cmd.run(ctx, svc, rest[1:], stdout)
}

// open wires the indexes and service the way the server does, minus HTTP.
func open(cfg *config.Config, log *logger.Logger) (*service.TranscriptService, func(), error) {
	index, err := search.NewCaptionIndex(search.Options{DataPath: cfg.Data.BasePath, Logger: log.Logger})
	if err != nil {
		return nil, nil, err
	}

	var chunks store.ChunkStore
	if cfg.Data.ChunkBackend == config.ChunkBackendSQLite {
		chunks, err = sqlite.Open(cfg.ChunkStorePath(), log.Logger)
	} else {
		chunks, err = store.New(cfg.ChunkStorePath(), log.Logger)
	}
	if err != nil {
		_ = index.Close()
		return nil, nil, err
	}

	svc := service.NewTranscriptService(service.Deps{
		Builder: indexer.NewBuilder(index, chunks, indexer.Options{
			ChunkWindow: cfg.Index.ChunkWindow,
			Logger:      log.Logger,
		}),
		Retriever: retrieval.New(index, chunks, retrieval.Options{
			FallbackWindow: cfg.Index.FallbackWindow,
			Logger:         log.Logger,
		}),
		Captions: index,
		Chunks:   chunks,
	}, cfg.Ingest.AcquireTimeout, log.Logger)

	closeAll := func() {
		if err := chunks.Close(); err != nil {
			log.Warn("Failed to close chunk store", "error", err)
		}
		if err := index.Close(); err != nil {
			log.Warn("Failed to close caption index", "error", err)
		}
	}
	return svc, closeAll, nil
}

func runBuild(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error {
	transcriptID, raw, err := captions.ReadFile(args[0])
	if err != nil {
		return err
	}

	report, err := svc.Build(ctx, transcriptID, raw)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

func runQuery(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error {
	result, err := svc.Query(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

func runAnswer(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error {
	answer, err := svc.Answer(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return writeJSON(out, answer)
}

func runChunks(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error {
	chunks, err := svc.Chunks(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(out, chunks)
}

func runStatus(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error {
	status, err := svc.Status(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(out, status)
}

func runExport(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error {
	records, err := svc.Captions(ctx, args[0])
	if err != nil {
		return err
	}
	return captions.RenderVTT(out, records)
}

func runDelete(ctx context.Context, svc *service.TranscriptService, args []string, out io.Writer) error {
	if err := svc.Delete(ctx, args[0]); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "deleted %s\n", strings.TrimSpace(args[0]))
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
