package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/framestate/internal/compiler"
)

// ValidationProblem is one error found in a config directory.
type ValidationProblem struct {
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Position string `json:"position,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Files    int                 `json:"files,omitempty"`
	Entities int                 `json:"entities,omitempty"`
	Queries  int                 `json:"queries,omitempty"`
	Errors   []ValidationProblem `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Check a config directory without running it",
		Long: `Compile a CUE config directory and check its cross references.

Reports every compile error (bad regions, unknown query kinds, invalid
settings) and every reference that compiles but cannot work at run time
(undeclared classes, attributes no transform produces).

Exit codes:
  0 - Config is valid
  1 - Config has errors
  2 - Command error (directory not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if cfg == nil && len(errs) > 0 && isPathError(errs[0]) {
		var loadErr *compiler.LoadError
		errors.As(errs[0], &loadErr)
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Message)
	}

	problems := make([]ValidationProblem, 0, len(errs))
	for _, err := range errs {
		problems = append(problems, toProblem(err))
	}
	if len(errs) == 0 {
		formatter.VerboseLog("Compiled %d CUE file(s) in %s", cfg.FileCount, dir)
		reg, err := newRegistry()
		if err != nil {
			return WrapExitError(ExitCommandError, "registry setup failed", err)
		}
		for _, v := range compiler.Validate(cfg, reg) {
			problems = append(problems, ValidationProblem{Code: v.Code, Field: v.Field, Message: v.Message})
		}
	}

	result := ValidationResult{Valid: len(problems) == 0, Errors: problems}
	if cfg != nil {
		result.Files = cfg.FileCount
		result.Entities = len(cfg.Entities)
		result.Queries = len(cfg.Queries)
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
		}
		if err := formatter.Response(resp); err != nil {
			return err
		}
	} else {
		writeValidationText(formatter.Writer, dir, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(problems)))
	}
	return nil
}

// isPathError reports whether err means dir itself is unusable, as opposed
// to holding an invalid config.
func isPathError(err error) bool {
	var loadErr *compiler.LoadError
	if !errors.As(err, &loadErr) {
		return false
	}
	switch loadErr.Code {
	case compiler.ErrCodeNotFound, compiler.ErrCodeScanError, compiler.ErrCodeNoFiles:
		return true
	}
	return false
}

// toProblem flattens a compile error, keeping its code and position.
func toProblem(err error) ValidationProblem {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		p := ValidationProblem{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			p.Position = loadErr.Pos.String()
		}
		return p
	}

	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		p := ValidationProblem{Code: compiler.ErrCodeGeneric, Field: compileErr.Field, Message: compileErr.Message}
		if compileErr.Pos.IsValid() {
			p.Position = compileErr.Pos.String()
		}
		return p
	}
	return ValidationProblem{Code: compiler.ErrCodeGeneric, Message: err.Error()}
}

func writeValidationText(w io.Writer, dir string, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(w, "✓ %s is valid (%d file(s), %d entity type(s), %d query(ies))\n",
			dir, result.Files, result.Entities, result.Queries)
		return
	}

	fmt.Fprintf(w, "✗ %s has %d error(s)\n", dir, len(result.Errors))
	for _, p := range result.Errors {
		loc := p.Field
		if p.Position != "" {
			loc = p.Position
		}
		if loc != "" {
			fmt.Fprintf(w, "  [%s] %s: %s\n", p.Code, loc, p.Message)
		} else {
			fmt.Fprintf(w, "  [%s] %s\n", p.Code, p.Message)
		}
	}
}
