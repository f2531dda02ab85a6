package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/framestate/internal/engine"
	"github.com/roach88/framestate/internal/query"
	"github.com/roach88/framestate/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Frames   string // path to a JSON frame stream, "-" for stdin
	Label    string

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunSummary is the outcome of a run.
type RunSummary struct {
	RunID    string      `json:"run_id"`
	Frames   int         `json:"frames"`
	Steps    int         `json:"steps"`
	Skipped  int         `json:"skipped"`
	RowCount int         `json:"row_count"`
	Rows     []query.Row `json:"rows,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config-dir>",
		Short: "Apply a stream of frames to a config",
		Long: `Run a config over a stream of frames and record every committed step.

Frames are JSON objects, one per step, read from --frames (a file, or "-"
for stdin). Each step and the query rows it produced are written to the
SQLite database given by --db, which is created if it doesn't exist.
A frame that fails (out of order, duplicate track id, class change) is
logged and skipped; the frames after it apply as if it never arrived.

Example:
  framestate run ./config --db ./runs.db --frames frames.jsonl
  tracker | framestate run ./config --db ./runs.db --label lobby-cam`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrames(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Frames, "frames", "-", `frame stream path, or "-" for stdin`)
	cmd.Flags().StringVar(&opts.Label, "label", "", "free-form run label")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runFrames(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	slog.Debug("loading config", "dir", dir)
	lc, err := loadConfig(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	slog.Debug("config loaded", "entities", len(lc.types), "queries", len(lc.cfg.Queries))

	in, closeIn, err := openFrames(opts.Frames, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open frames", err)
	}
	defer closeIn()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	eng, err := lc.newEngine(engine.WithRecorder(st), engine.WithRunIDGenerator(runIDs))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	run := store.Run{ID: eng.RunID(), ConfigHash: lc.hash, Rate: lc.rate(), Label: opts.Label}
	if err := st.BeginRun(ctx, run); err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", err)
	}

	summary := RunSummary{RunID: run.ID}
	handle := func(res *engine.StepResult) {
		summary.Steps++
		summary.RowCount += len(res.Rows)
		if formatter.JSON() {
			summary.Rows = append(summary.Rows, res.Rows...)
			return
		}
		for _, row := range res.Rows {
			writeRowText(formatter.Writer, row)
		}
	}

	type readResult struct {
		n   int
		err error
	}
	read := make(chan readResult, 1)
	go func() {
		defer eng.Stop()
		n, err := enqueueFrames(ctx, in, eng)
		read <- readResult{n, err}
	}()

	// Run returns once the reader stops the queue and it drains. On a
	// signal the reader may still be blocked on its input, so it is not
	// waited for.
	if err := eng.Run(ctx, handle); err != nil {
		if !errors.Is(err, context.Canceled) || parentCtx.Err() != nil {
			return WrapExitError(ExitFailure, "engine error", err)
		}
		slog.Info("run interrupted", "run", run.ID)
		select {
		case r := <-read:
			summary.Frames = r.n
		default:
			summary.Frames = summary.Steps
		}
	} else {
		r := <-read
		summary.Frames = r.n
		if r.err != nil {
			return WrapExitError(ExitFailure, "failed to read frames", r.err)
		}
	}
	summary.Skipped = summary.Frames - summary.Steps

	slog.Info("run finished", "run", run.ID, "steps", summary.Steps, "skipped", summary.Skipped)
	if formatter.JSON() {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "Run %s: %d frame(s), %d step(s), %d skipped, %d row(s)\n",
		summary.RunID, summary.Frames, summary.Steps, summary.Skipped, summary.RowCount)
	return nil
}

// openFrames opens path, or returns stdin for "-".
func openFrames(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// enqueueFrames decodes a stream of JSON frames into the engine queue. It
// returns the number of frames enqueued.
func enqueueFrames(ctx context.Context, r io.Reader, eng *engine.Engine) (int, error) {
	dec := json.NewDecoder(r)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var f engine.Frame
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("decode frame %d: %w", n+1, err)
		}
		if !eng.Enqueue(f) {
			return n, nil
		}
		n++
	}
}

func writeRowText(w io.Writer, row query.Row) {
	values, err := store.MarshalCanonical(row.Values)
	if err != nil {
		values = []byte(fmt.Sprint(row.Values))
	}
	fmt.Fprintf(w, "step=%d query=%s entity=%s %s\n", row.Step, row.Query, row.Entity, values)
}
