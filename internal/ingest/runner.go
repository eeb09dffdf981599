package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/capture"
	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

// Config holds the ingest command configuration.
type Config struct {
	SessionDir    string // chain-linked session JSONL logs
	ExportDir     string // flat export JSONL and plain transcripts
	Since         time.Time
	Until         time.Time
	DryRun        bool
	BatchSize     int    // files per state checkpoint
	MinMessages   int    // skip conversations shorter than this
	SingleFile    string // process a single file only
	Source        string // source label for stored records (default: "ingest")
	SkipAgentOnly bool   // skip conversations with no user messages
}

// Sink receives parsed message sequences. The capture pipeline implements it.
type Sink interface {
	ProcessMessages(ctx context.Context, captureID, source string, msgs []segment.Message) (capture.Result, error)
}

// Runner walks conversation files on disk and feeds them through the capture
// pipeline, resuming where a previous run left off.
type Runner struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
}

func NewRunner(cfg Config, sink Sink, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, sink: sink, logger: logger}
}

func (r *Runner) sourceLabel() string {
	if r.cfg.Source != "" {
		return r.cfg.Source
	}
	return "ingest"
}

type parsedFile struct {
	path string
	kind string // "session", "export", "transcript"
	msgs []segment.Message
	fp   fileFingerprint
}

// Run executes the ingest process.
func (r *Runner) Run(ctx context.Context) error {
	state, err := LoadState()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	sessionFiles, exportFiles, transcriptFiles, err := r.discoverFiles()
	if err != nil {
		return fmt.Errorf("discover files: %w", err)
	}

	r.logger.Info("files discovered",
		"session_files", len(sessionFiles),
		"export_files", len(exportFiles),
		"transcript_files", len(transcriptFiles),
	)

	sessionParsed := r.parseAll(state, sessionFiles, "session", ParseSessionFile)
	exportParsed := r.parseAll(state, exportFiles, "export", ParseExportFile)
	transcriptParsed := r.parseAll(state, transcriptFiles, "transcript", ParseTranscriptFile)

	// Drop export files that duplicate a session log.
	var sessionFPs, exportFPs []fileFingerprint
	for _, p := range sessionParsed {
		sessionFPs = append(sessionFPs, p.fp)
	}
	for _, p := range exportParsed {
		exportFPs = append(exportFPs, p.fp)
	}
	duplicates := FindDuplicates(sessionFPs, exportFPs)

	var allFiles []parsedFile
	allFiles = append(allFiles, sessionParsed...)
	for _, ex := range exportParsed {
		if duplicates[ex.path] {
			r.logger.Info("skipping duplicate export file", "path", ex.path)
			continue
		}
		allFiles = append(allFiles, ex)
	}
	allFiles = append(allFiles, transcriptParsed...)

	state.FilesRemaining = len(allFiles)
	r.logger.Info("files to process",
		"total", len(allFiles),
		"session", len(sessionParsed),
		"export_unique", len(exportParsed)-len(duplicates),
		"export_skipped", len(duplicates),
		"transcript", len(transcriptParsed),
	)

	filesInBatch := 0
	for _, pf := range allFiles {
		select {
		case <-ctx.Done():
			r.logger.Info("ingest interrupted, saving state")
			_ = state.Save()
			return ctx.Err()
		default:
		}

		r.logger.Info("processing file", "path", pf.path, "messages", len(pf.msgs), "kind", pf.kind)

		if r.cfg.DryRun {
			state.MarkProcessed(pf.path)
			state.FilesRemaining--
			continue
		}

		res, err := r.sink.ProcessMessages(ctx, uuid.New().String(), r.sourceLabel(), pf.msgs)
		if err != nil {
			r.logger.Error("ingest failed", "path", pf.path, "error", err)
			state.AddError(fmt.Sprintf("ingest %s: %v", pf.path, err))
			continue
		}

		switch {
		case res.Plan == reconcile.PlanCreateNew:
			state.Created++
		case res.Plan == reconcile.PlanAppend:
			state.Appended++
		case res.Plan == reconcile.PlanReplace:
			state.Replaced++
		case res.Plan == reconcile.PlanUnrelated:
			state.Conflicts++
		}

		r.logger.Info("file ingested",
			"path", pf.path,
			"plan", string(res.Plan),
			"conversation_id", res.Ref,
			"appended", res.Appended,
		)

		state.MarkProcessed(pf.path)
		state.FilesRemaining--

		filesInBatch++
		if filesInBatch >= r.cfg.BatchSize {
			_ = state.Save()
			filesInBatch = 0
		}
	}

	_ = state.Save()

	r.logger.Info("ingest complete",
		"files_processed", len(allFiles),
		"created", state.Created,
		"appended", state.Appended,
		"replaced", state.Replaced,
		"conflicts", state.Conflicts,
		"dry_run", r.cfg.DryRun,
	)

	fmt.Printf("\n=== Ingest Summary ===\n")
	fmt.Printf("Files processed: %d\n", len(allFiles))
	fmt.Printf("Conversations created: %d\n", state.Created)
	fmt.Printf("Continuations appended: %d\n", state.Appended)
	fmt.Printf("Records replaced: %d\n", state.Replaced)
	fmt.Printf("Conflicts: %d\n", state.Conflicts)
	fmt.Printf("Errors: %d\n", len(state.Errors))
	if r.cfg.DryRun {
		fmt.Printf("Mode: DRY RUN (no DB writes)\n")
	}
	fmt.Printf("State file: %s\n", expandHome(defaultStatePath))

	return nil
}

// parseAll parses and filters a file list, recording parse failures in state.
func (r *Runner) parseAll(state *State, paths []string, kind string, parse func(string) ([]segment.Message, error)) []parsedFile {
	var out []parsedFile
	for _, path := range paths {
		if state.IsProcessed(path) {
			continue
		}
		msgs, err := parse(path)
		if err != nil {
			r.logger.Warn("failed to parse file", "path", path, "kind", kind, "error", err)
			state.AddError(fmt.Sprintf("parse %s: %v", path, err))
			continue
		}
		if len(msgs) < r.cfg.MinMessages {
			continue
		}
		if r.cfg.SkipAgentOnly && !hasUserMessages(msgs) {
			continue
		}
		if !r.inDateRange(msgs) {
			continue
		}
		out = append(out, parsedFile{path: path, kind: kind, msgs: msgs, fp: BuildFingerprint(path, msgs)})
	}
	return out
}

func (r *Runner) discoverFiles() (sessionFiles, exportFiles, transcriptFiles []string, err error) {
	if r.cfg.SingleFile != "" {
		path := expandHome(r.cfg.SingleFile)
		if _, err := os.Stat(path); err != nil {
			return nil, nil, nil, fmt.Errorf("single file not found: %s", path)
		}
		switch {
		case strings.HasSuffix(path, ".md"), strings.HasSuffix(path, ".txt"):
			return nil, nil, []string{path}, nil
		case r.cfg.ExportDir != "" && strings.Contains(path, expandHome(r.cfg.ExportDir)):
			return nil, []string{path}, nil, nil
		default:
			return []string{path}, nil, nil, nil
		}
	}

	sessionFiles = walkFor(expandHome(r.cfg.SessionDir), ".jsonl")
	exportFiles = walkFor(expandHome(r.cfg.ExportDir), ".jsonl")
	transcriptFiles = append(
		walkFor(expandHome(r.cfg.ExportDir), ".md"),
		walkFor(expandHome(r.cfg.ExportDir), ".txt")...,
	)
	return sessionFiles, exportFiles, transcriptFiles, nil
}

func walkFor(dir, suffix string) []string {
	var out []string
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), suffix) {
			out = append(out, path)
		}
		return nil
	})
	return out
}

// hasUserMessages checks that the conversation has at least one user turn.
func hasUserMessages(msgs []segment.Message) bool {
	for _, m := range msgs {
		if m.Role == segment.RoleUser {
			return true
		}
	}
	return false
}

// inDateRange checks if any message falls within the configured since/until range.
func (r *Runner) inDateRange(msgs []segment.Message) bool {
	if r.cfg.Since.IsZero() && r.cfg.Until.IsZero() {
		return true
	}

	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			continue
		}
		if !r.cfg.Since.IsZero() && m.Timestamp.Before(r.cfg.Since) {
			continue
		}
		if !r.cfg.Until.IsZero() && m.Timestamp.After(r.cfg.Until) {
			continue
		}
		return true
	}
	return false
}
