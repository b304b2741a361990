package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/roach88/tinker/internal/engine"
	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/view"
	"github.com/roach88/tinker/internal/watch"
)

// ReplOptions holds flags for the repl command.
type ReplOptions struct {
	*RootOptions
	Database string
	NoWatch  bool
}

// NewReplCommand creates the repl command.
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repl [module.wat]",
		Short: "Start an interactive session",
		Long: `Start an interactive session against a WebAssembly text module.

The module is compiled in the background and its exports are bound by name.
Each line typed at the prompt is evaluated against them. Up and down walk
the command history. When a module file is given it is watched, and every
saved edit is recompiled; exports from earlier compiles stay bound.

Examples:
  tinker repl
  tinker repl add.wat
  tinker repl add.wat --db tinker.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			return runRepl(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the session to this SQLite database")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not recompile when the module file changes")

	return cmd
}

func runRepl(opts *ReplOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	settings := opts.Settings()

	if path == "" {
		path = settings.Source
	}
	source, err := readModule(path)
	if err != nil {
		return moduleError(formatter, path, err)
	}

	journal := opts.Database
	if journal == "" {
		journal = settings.Journal
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	listener := &historyListener{ctx: ctx}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          settings.Prompt,
		HistoryLimit:    -1, // history belongs to the session state
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Listener:        listener,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open terminal", err)
	}
	defer rl.Close()

	printer := view.NewPrinter(rl.Stdout())
	sess, err := startSession(ctx, sessionOptions{
		Source:    source,
		Journal:   journal,
		MaxSteps:  settings.Eval.MaxSteps,
		Observers: []engine.Observer{printer.Observe},
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Error("error closing session", "error", err)
		}
	}()
	listener.attach(sess.Engine)
	slog.Info("session started", "session", sess.Engine.SessionID(), "module", path, "journal", journal)

	if path != "" && !opts.NoWatch {
		w, err := watch.New(path, settings.WatchInterval(), sess.Engine)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch module", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("watcher stopped", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
			rl.Close()
		case <-ctx.Done():
		}
	}()

	fmt.Fprint(rl.Stdout(), view.Format(view.Line{Kind: state.KindInfo, Text: "tinker: Ctrl-D to quit"}))
	return replLoop(ctx, rl, sess.Engine)
}

// lineReader is the part of readline.Instance the loop needs.
type lineReader interface {
	Readline() (string, error)
}

// submitter is the part of engine.Engine the terminal needs.
type submitter interface {
	Dispatch(ctx context.Context, ev engine.Event) (engine.Snapshot, error)
	Enqueue(ev engine.Event) bool
}

// replLoop submits every line, blank ones included, until EOF, an interrupt
// on an empty line, or ctx ends. Blank lines stay out of history but still
// reset the cursor and clear the command.
func replLoop(ctx context.Context, rl lineReader, eng submitter) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return WrapExitError(ExitFailure, "terminal error", err)
		}

		if _, err := eng.Dispatch(ctx, engine.CommandSubmitted(line)); err != nil {
			if ctx.Err() != nil || errors.Is(err, engine.ErrQueueClosed) {
				return nil
			}
			return WrapExitError(ExitFailure, "submit failed", err)
		}
	}
}

// historyListener mirrors the edit line into the session state and answers
// up/down from the session history.
type historyListener struct {
	ctx context.Context

	mu   sync.Mutex
	eng  submitter
	last string
}

// attach connects the listener to a running session. Keys pressed before
// that are ignored.
func (l *historyListener) attach(eng submitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.eng = eng
}

// OnChange implements readline.Listener.
func (l *historyListener) OnChange(line []rune, pos int, key rune) ([]rune, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.eng == nil {
		return nil, 0, false
	}

	switch key {
	case readline.CharPrev, readline.CharNext:
		ev := engine.HistoryPrevious()
		if key == readline.CharNext {
			ev = engine.HistoryNext()
		}
		snap, err := l.eng.Dispatch(l.ctx, ev)
		if err != nil {
			return nil, 0, false
		}
		l.last = snap.State.Command
		command := []rune(snap.State.Command)
		return command, len(command), true

	case readline.CharEnter, readline.CharCtrlJ:
		// Submission arrives through Readline.
		l.last = ""
		return nil, 0, false
	}

	text := string(line)
	if text != l.last {
		l.last = text
		l.eng.Enqueue(engine.CommandChanged(text))
	}
	return nil, 0, false
}
