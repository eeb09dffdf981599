// scribe-ingest imports historical conversation files into scribe's store
// without going through NATS. Runs are resumable; progress is checkpointed
// under ~/.scribe/.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/capture"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/ingest"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

func main() {
	var (
		sessionDir  = flag.String("session-dir", "", "directory of session JSONL logs")
		exportDir   = flag.String("export-dir", "", "directory of export JSONL and transcript files")
		singleFile  = flag.String("file", "", "process a single file only")
		since       = flag.String("since", "", "only ingest conversations after this date (YYYY-MM-DD)")
		until       = flag.String("until", "", "only ingest conversations before this date (YYYY-MM-DD)")
		dryRun      = flag.Bool("dry-run", false, "parse and report without writing")
		batchSize   = flag.Int("batch-size", 25, "files per state checkpoint")
		minMessages = flag.Int("min-messages", 2, "skip conversations shorter than this")
		source      = flag.String("source", "ingest", "source label for stored records")
		agentOnly   = flag.Bool("include-agent-only", false, "keep conversations with no user messages")
		logLevel    = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	setupLogging(*logLevel)

	icfg := ingest.Config{
		SessionDir:    *sessionDir,
		ExportDir:     *exportDir,
		SingleFile:    *singleFile,
		DryRun:        *dryRun,
		BatchSize:     *batchSize,
		MinMessages:   *minMessages,
		Source:        *source,
		SkipAgentOnly: !*agentOnly,
	}
	if *since != "" {
		t, err := time.Parse("2006-01-02", *since)
		if err != nil {
			slog.Error("invalid --since date", "value", *since, "error", err)
			os.Exit(1)
		}
		icfg.Since = t
	}
	if *until != "" {
		t, err := time.Parse("2006-01-02", *until)
		if err != nil {
			slog.Error("invalid --until date", "value", *until, "error", err)
			os.Exit(1)
		}
		icfg.Until = t
	}
	if icfg.SessionDir == "" && icfg.ExportDir == "" && icfg.SingleFile == "" {
		slog.Error("one of --session-dir, --export-dir, or --file is required")
		os.Exit(1)
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" && !icfg.DryRun {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupt saves state and exits cleanly.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("interrupt received, finishing current file")
		cancel()
	}()

	var sink ingest.Sink
	if icfg.DryRun {
		sink = nil
	} else {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database connected")

		// No bus, no Slack: conflicts resolve by the fork policy.
		sink = capture.New(db, nil, nil, cfg.ForkOnConflict, slog.Default())
	}

	runner := ingest.NewRunner(icfg, sink, slog.Default())
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
