package cli

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/framestate/internal/engine"
	"github.com/roach88/framestate/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Steps         int    `json:"steps"`
	Rows          int    `json:"rows"`
	ConfigChanged bool   `json:"config_changed"`
	Deterministic bool   `json:"deterministic"`
	Mismatch      string `json:"mismatch,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <config-dir>",
		Short: "Re-run recorded frames and verify determinism",
		Long: `Replay the recorded frames of each run through a fresh engine and compare
the rows it produces against the recorded rows, by content hash.

A run whose config hash differs from the current config directory is
still replayed and reported as changed; a mismatch is then expected.

Exit codes:
  0 - All runs are deterministic
  1 - Replay produced different rows
  2 - Command error (database not found, etc.)

Examples:
  framestate replay ./config --db ./runs.db
  framestate replay ./config --db ./runs.db --run 0190...
  framestate replay ./config --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lc, err := loadConfig(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}
	if opts.RunID != "" {
		runs = slices.DeleteFunc(runs, func(r store.Run) bool { return r.ID != opts.RunID })
		if len(runs) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllDeterministic: true,
	}
	for _, run := range runs {
		formatter.VerboseLog("Replaying run %s", run.ID)
		rr, err := replayRun(ctx, st, lc, run)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", run.ID), err)
		}
		if !rr.Deterministic {
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, rr)
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.AllDeterministic {
			resp.Status = "error"
		}
		if err := formatter.Response(resp); err != nil {
			return err
		}
	} else {
		writeReplayText(formatter, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay produced different rows")
	}
	return nil
}

// replayRun steps a fresh engine through the stored frames of run and
// compares the rows by hash.
func replayRun(ctx context.Context, st *store.Store, lc *loadedConfig, run store.Run) (ReplayRunResult, error) {
	rr := ReplayRunResult{RunID: run.ID, ConfigChanged: run.ConfigHash != lc.hash}

	frames, err := st.ReadFrames(ctx, run.ID)
	if err != nil {
		return rr, err
	}
	stored, err := st.ReadResults(ctx, run.ID, "")
	if err != nil {
		return rr, err
	}
	rr.Steps = len(frames)
	rr.Rows = len(stored)

	eng, err := lc.newEngine(
		engine.WithRate(run.Rate),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(run.ID)),
		engine.WithClock(engine.NewClock()),
	)
	if err != nil {
		return rr, err
	}

	var replayed []store.StoredRow
	for _, f := range frames {
		res, err := eng.Step(ctx, f)
		if err != nil {
			// Every stored frame committed once
			rr.Mismatch = fmt.Sprintf("step %d: %v", f.Step, err)
			return rr, nil
		}
		for _, row := range res.Rows {
			h, err := store.RowHash(row)
			if err != nil {
				return rr, err
			}
			replayed = append(replayed, store.StoredRow{Row: row, Seq: res.Seq, Hash: h})
		}
	}

	slices.SortFunc(replayed, func(a, b store.StoredRow) int {
		return cmp.Or(
			cmp.Compare(a.Seq, b.Seq),
			cmp.Compare(a.Query, b.Query),
			cmp.Compare(a.Entity, b.Entity),
		)
	})
	rr.Mismatch = compareRows(stored, replayed)
	rr.Deterministic = rr.Mismatch == ""
	return rr, nil
}

// compareRows describes the first difference between two row lists in the
// same order, or returns "".
func compareRows(stored, replayed []store.StoredRow) string {
	for i := range min(len(stored), len(replayed)) {
		s, r := stored[i], replayed[i]
		if s.Hash != r.Hash {
			return fmt.Sprintf("seq %d: recorded %s/%s, replayed %s/%s with different values",
				s.Seq, s.Query, s.Entity, r.Query, r.Entity)
		}
	}
	if len(stored) != len(replayed) {
		return fmt.Sprintf("recorded %d row(s), replayed %d", len(stored), len(replayed))
	}
	return ""
}

func writeReplayText(f *OutputFormatter, result ReplayResult) {
	w := f.Writer
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return
	}
	for _, rr := range result.Runs {
		mark := "✓"
		if !rr.Deterministic {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d step(s), %d row(s)\n", mark, rr.RunID, rr.Steps, rr.Rows)
		if rr.ConfigChanged {
			fmt.Fprintln(w, "  config changed since the run was recorded")
		}
		if rr.Mismatch != "" {
			fmt.Fprintf(w, "  %s\n", rr.Mismatch)
		}
	}
	fmt.Fprintln(w)
	if result.AllDeterministic {
		fmt.Fprintf(w, "All %d run(s) replayed deterministically.\n", result.TotalRuns)
	} else {
		fmt.Fprintln(w, "Replay produced different rows.")
	}
}
