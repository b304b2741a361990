package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tinker/internal/engine"
	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/view"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Database string // optional journal

	// Generator overrides the session id generator (for testing).
	Generator engine.SessionIDGenerator
}

// EvalResult is the log of a headless session.
type EvalResult struct {
	Session string           `json:"session"`
	Log     []state.LogEntry `json:"log"` // oldest first
	Errors  int              `json:"errors"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <module.wat> <expr>...",
		Short: "Evaluate expressions against a module without a terminal",
		Long: `Run a headless session: compile the module, submit each expression
in order, and print the resulting log.

Use "-" as the module to start from the built-in module.

Exit codes:
  0 - Every compile and evaluation succeeded
  1 - The log contains an error entry
  2 - Command error (module not found, journal not writable)

Examples:
  tinker eval - "main()"
  tinker eval add.wat "add(2, 3)" "answer"
  tinker eval add.wat "add(1, 1)" --db tinker.db --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the session to this SQLite database")

	return cmd
}

func runEval(opts *EvalOptions, path string, exprs []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	settings := opts.Settings()

	if path == "-" {
		path = ""
	}
	source, err := readModule(path)
	if err != nil {
		return moduleError(formatter, path, err)
	}

	journal := opts.Database
	if journal == "" {
		journal = settings.Journal
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := startSession(ctx, sessionOptions{
		Source:    source,
		Journal:   journal,
		MaxSteps:  settings.Eval.MaxSteps,
		Generator: opts.Generator,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}

	final, err := evalAll(ctx, sess.Engine, exprs, formatter)
	if closeErr := sess.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "session failed", err)
	}

	result := EvalResult{
		Session: sess.Engine.SessionID(),
		Log:     make([]state.LogEntry, 0, len(final.Log)),
	}
	for _, line := range view.Render(final) {
		result.Log = append(result.Log, state.LogEntry{Kind: line.Kind, Text: line.Text})
		if line.Kind == state.KindError {
			result.Errors++
		}
	}

	return outputEval(formatter, result)
}

// evalAll waits for the initial compile, then submits each expression in
// order. Each submission starts only after the previous one was applied.
func evalAll(ctx context.Context, eng *engine.Engine, exprs []string, formatter *OutputFormatter) (state.State, error) {
	snap, err := eng.Settle(ctx)
	if err != nil {
		return state.State{}, err
	}
	for _, expr := range exprs {
		formatter.VerboseLog("> %s", expr)
		if snap, err = eng.Dispatch(ctx, engine.CommandSubmitted(expr)); err != nil {
			return state.State{}, err
		}
	}
	return snap.State, nil
}

func outputEval(formatter *OutputFormatter, result EvalResult) error {
	if formatter.JSON() {
		response := CLIResponse{Status: "ok", Data: result, Session: result.Session}
		if result.Errors > 0 {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    ErrCodeEvalFailed,
				Message: fmt.Sprintf("%d error(s) in session log", result.Errors),
			}
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}
	} else {
		for _, e := range result.Log {
			fmt.Fprint(formatter.Writer, view.Format(view.Line{Kind: e.Kind, Text: e.Text}))
		}
	}

	if result.Errors > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d error(s) in session log", result.Errors))
	}
	return nil
}
