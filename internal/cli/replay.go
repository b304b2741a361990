package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tinker/internal/compiler"
	"github.com/roach88/tinker/internal/engine"
	"github.com/roach88/tinker/internal/evaluator"
	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - specific session only

	// Compiler overrides the wasmtime adapter (for testing).
	Compiler engine.SyncCompiler
	// Eval overrides the Starlark evaluator (for testing).
	Eval state.EvalFunc
}

// ReplayMismatch is one event whose log entries were not reproduced.
type ReplayMismatch struct {
	Seq      int64            `json:"seq"`
	Kind     string           `json:"kind"`
	Recorded []state.LogEntry `json:"recorded"`
	Replayed []state.LogEntry `json:"replayed"`
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session    string           `json:"session"`
	Events     int              `json:"events"`
	LogEntries int              `json:"log_entries"`
	Mismatches []ReplayMismatch `json:"mismatches"`
	OK         bool             `json:"ok"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions      []ReplaySessionResult `json:"sessions"`
	TotalSessions int                   `json:"total_sessions"`
	AllReproduced bool                  `json:"all_reproduced"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-fold journaled sessions and verify their logs",
		Long: `Replay journaled sessions and verify that they reproduce their logs.

Each session is folded again from its initial state, applying the journaled
events in seq order. Compile results are recomputed from the journaled source
so submitted commands evaluate against live exports. The log entries each
event adds are compared with the recorded ones.

Exit codes:
  0 - Every session reproduced its log
  1 - At least one event produced different log entries
  2 - Command error (database not found, session not found, etc.)

Examples:
  tinker replay --db ./tinker.db
  tinker replay --db ./tinker.db --session 0192f0c4-...
  tinker replay --db ./tinker.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, "failed to open database", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sessions, err := replaySessions(ctx, st, opts.Session)
	if err != nil {
		code := ErrCodeReadFailed
		if errors.Is(err, store.ErrNotFound) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, "failed to read sessions", err.Error())
		return WrapExitError(ExitCommandError, "failed to read sessions", err)
	}

	c := opts.Compiler
	if c == nil {
		c = compiler.New(compiler.WithCallTimeout(callTimeout))
	}
	eval := opts.Eval
	if eval == nil {
		eval = evaluator.New(evaluator.WithMaxSteps(opts.Settings().Eval.MaxSteps)).Func()
	}

	result := ReplayResult{
		Sessions:      make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions: len(sessions),
		AllReproduced: true,
	}

	for _, sess := range sessions {
		formatter.VerboseLog("replaying session %s", sess.ID)
		sessionResult, err := replaySession(ctx, st, sess, c, eval)
		if err != nil {
			_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("failed to replay session %s", sess.ID), err.Error())
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", sess.ID), err)
		}

		result.Sessions = append(result.Sessions, sessionResult)
		if !sessionResult.OK {
			result.AllReproduced = false
		}
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// replaySessions resolves the sessions to replay: one by id, or all.
func replaySessions(ctx context.Context, st *store.Store, id string) ([]store.Session, error) {
	if id == "" {
		return st.ListSessions(ctx)
	}
	sess, err := st.ReadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return []store.Session{sess}, nil
}

// replaySession re-folds a single session.
func replaySession(ctx context.Context, st *store.Store, sess store.Session, c engine.SyncCompiler, eval state.EvalFunc) (ReplaySessionResult, error) {
	records, err := st.ReadEvents(ctx, sess.ID)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	replayed, err := engine.Replay(ctx, sess, records, c, eval)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	result := ReplaySessionResult{
		Session:    sess.ID,
		Events:     replayed.Events,
		LogEntries: len(replayed.Final.Log),
		Mismatches: make([]ReplayMismatch, 0, len(replayed.Mismatches)),
		OK:         replayed.OK(),
	}
	for _, m := range replayed.Mismatches {
		result.Mismatches = append(result.Mismatches, ReplayMismatch{
			Seq:      m.Seq,
			Kind:     m.Kind,
			Recorded: m.Recorded,
			Replayed: m.Replayed,
		})
	}
	return result, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllReproduced {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeReplayMismatch,
			Message: "replay did not reproduce the journaled log",
		}
	}

	if err := formatter.Encode(response); err != nil {
		return err
	}

	if !result.AllReproduced {
		return NewExitError(ExitFailure, "replay mismatch")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	if result.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, sess := range result.Sessions {
		status := "✓"
		if !sess.OK {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Session: %s\n", status, sess.Session)
		fmt.Fprintf(w, "  Events: %d, log entries: %d\n", sess.Events, sess.LogEntries)

		for _, m := range sess.Mismatches {
			fmt.Fprintf(w, "  Mismatch at seq %d (%s)\n", m.Seq, m.Kind)
			if formatter.Verbose {
				fmt.Fprintf(w, "    recorded: %s\n", formatEntries(m.Recorded))
				fmt.Fprintf(w, "    replayed: %s\n", formatEntries(m.Replayed))
			}
		}
		fmt.Fprintln(w)
	}

	if result.AllReproduced {
		fmt.Fprintln(w, "✓ All sessions reproduced")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay did not reproduce the journaled log")
	return NewExitError(ExitFailure, "replay mismatch")
}

// formatEntries renders entries on one line, most recent first.
func formatEntries(entries []state.LogEntry) string {
	if len(entries) == 0 {
		return "(none)"
	}
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s %q", e.Kind, e.Text)
	}
	return out
}
