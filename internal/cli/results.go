package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/framestate/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Database string
	RunID    string
	Query    string
	Entity   string
	From     int64
	To       int64
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List recorded runs and their query rows",
		Long: `Read back what run recorded.

Without --run, lists every run in the database. With --run, prints the
rows of that run in commit order, optionally limited to one --query,
one --entity, or an inclusive --from/--to step range.

Examples:
  framestate results --db ./runs.db
  framestate results --db ./runs.db --run 0190... --query loitering
  framestate results --db ./runs.db --run 0190... --entity p1 --from 100 --to 200`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to read rows from")
	cmd.Flags().StringVar(&opts.Query, "query", "", "only rows of this query")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "only rows of this entity")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first step to include")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last step to include")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	// Don't create a database just to report it empty
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

	if opts.RunID == "" {
		if formatter.JSON() {
			if runs == nil {
				runs = []store.Run{}
			}
			return formatter.Success(runs)
		}
		writeRunsText(formatter.Writer, runs)
		return nil
	}

	if !hasRun(runs, opts.RunID) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	rows, err := st.SelectResults(ctx, store.ResultFilter{
		RunID:    opts.RunID,
		Query:    opts.Query,
		Entity:   opts.Entity,
		FromStep: opts.From,
		ToStep:   opts.To,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read results", err)
	}

	if formatter.JSON() {
		if rows == nil {
			rows = []store.StoredRow{}
		}
		return formatter.Success(rows)
	}
	for _, r := range rows {
		writeRowText(formatter.Writer, r.Row)
	}
	fmt.Fprintf(formatter.Writer, "%d row(s)\n", len(rows))
	return nil
}

func hasRun(runs []store.Run, id string) bool {
	for _, r := range runs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func writeRunsText(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tRATE\tCONFIG\tLABEL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%g\t%s\t%s\n", r.ID, r.Rate, shortHash(r.ConfigHash), r.Label)
	}
	_ = tw.Flush()
}

// shortHash trims a hex hash for display.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
