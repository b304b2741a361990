package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/tinker/internal/compiler"
	"github.com/roach88/tinker/internal/engine"
	"github.com/roach88/tinker/internal/evaluator"
	"github.com/roach88/tinker/internal/store"
)

// callTimeout bounds a single call into a wasm export.
const callTimeout = 5 * time.Second

// sessionOptions configures a live engine for repl and eval.
type sessionOptions struct {
	Source    string
	Journal   string
	MaxSteps  uint64
	Observers []engine.Observer

	// Generator overrides the session id generator (for testing).
	Generator engine.SessionIDGenerator
}

// session is a running engine plus the journal it writes to.
type session struct {
	Engine  *engine.Engine
	journal *store.Store
	cancel  context.CancelFunc
	done    chan struct{}
}

// startSession creates an engine and starts its Run loop.
func startSession(ctx context.Context, so sessionOptions) (*session, error) {
	opts := []engine.Option{}
	for _, obs := range so.Observers {
		opts = append(opts, engine.WithObserver(obs))
	}
	if so.Generator != nil {
		opts = append(opts, engine.WithSessionGenerator(so.Generator))
	}

	s := &session{done: make(chan struct{})}
	if so.Journal != "" {
		st, err := store.Open(so.Journal)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = st
		opts = append(opts, engine.WithJournal(st))

		// Seqs stay unique across every session in one journal.
		last, err := st.LastSeq(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("read journal: %w", err)
		}
		opts = append(opts, engine.WithClock(engine.NewClockAt(last)))
	}

	eval := evaluator.New(evaluator.WithMaxSteps(so.MaxSteps)).Func()
	s.Engine = engine.New(compiler.New(compiler.WithCallTimeout(callTimeout)), eval, so.Source, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		defer close(s.done)
		if err := s.Engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("engine stopped", "error", err)
		}
	}()

	return s, nil
}

// Close stops the engine, waits for queued events to be journaled, and
// closes the journal.
func (s *session) Close() error {
	s.Engine.Stop()
	<-s.done
	s.cancel()
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			return fmt.Errorf("close journal: %w", err)
		}
	}
	return nil
}

// readModule returns the text of path, or the built-in module when path is
// empty.
func readModule(path string) (string, error) {
	if path == "" {
		return compiler.DefaultModule, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// moduleError maps a readModule failure to an exit error.
func moduleError(formatter *OutputFormatter, path string, err error) error {
	code := ErrCodeReadFailed
	if errors.Is(err, os.ErrNotExist) {
		code = ErrCodeNotFound
	}
	_ = formatter.Error(code, fmt.Sprintf("cannot read module %s", path), err.Error())
	return WrapExitError(ExitCommandError, "failed to read module", err)
}
