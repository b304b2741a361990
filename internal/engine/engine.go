package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/store"
)

// Compiler turns module text into a compile result, resolving exactly once.
// Implemented by compiler.Adapter.
type Compiler interface {
	CompileAsync(ctx context.Context, source string) <-chan state.CompileResult
}

// Journal records applied events. Implemented by store.Store.
type Journal interface {
	BeginSession(ctx context.Context, sess store.Session) error
	AppendEvent(ctx context.Context, rec store.EventRecord) error
}

// SeqClock hands out logical time. Implemented by Clock and
// testutil.DeterministicClock.
type SeqClock interface {
	Next() int64
	Current() int64
}

// Observer receives every committed snapshot, in seq order, on the Run
// goroutine. Observers must not block.
type Observer func(Snapshot)

// Engine is the single-writer state fold.
//
// CRITICAL: the State is written only by the Run goroutine. External callers
// submit events with Enqueue or Dispatch and read with State.
//
// Thread-safety model:
//   - Enqueue(), Dispatch(), Settle(), State(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	compiler  Compiler
	eval      state.EvalFunc
	queue     *eventQueue
	clock     SeqClock
	sessions  SessionIDGenerator
	journal   Journal
	observers []Observer

	initial   string
	sessionID string

	// Owned by Run.
	state state.State

	current atomic.Pointer[Snapshot]

	// inflight counts compiles started but not yet applied.
	inflight atomic.Int64

	mu       sync.Mutex
	compiled chan struct{} // closed and replaced whenever a compile result is applied

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a snapshot observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, obs)
	}
}

// WithJournal records every snapshot into j.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithClock replaces the logical clock.
func WithClock(c SeqClock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSessionGenerator replaces the session id generator.
func WithSessionGenerator(g SessionIDGenerator) Option {
	return func(e *Engine) {
		e.sessions = g
	}
}

// New creates an Engine whose state starts as state.Initial(source).
//
// The initial source is enqueued as the first SourceChanged event, so the
// first compile goes through the same path as every later edit.
func New(c Compiler, eval state.EvalFunc, source string, opts ...Option) *Engine {
	e := &Engine{
		compiler: c,
		eval:     eval,
		queue:    newEventQueue(),
		clock:    NewClock(),
		sessions: UUIDv7Generator{},
		initial:  source,
		state:    state.Initial(source),
		compiled: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.sessionID = e.sessions.Generate()
	e.current.Store(&Snapshot{Seq: e.clock.Current(), State: e.state})
	e.queue.Enqueue(SourceChanged(source))

	return e
}

// SessionID returns the id this engine journals under.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// State returns the latest committed snapshot.
func (e *Engine) State() Snapshot {
	return *e.current.Load()
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	ev.reply = nil
	ev.pending = false
	return e.queue.Enqueue(ev)
}

// Dispatch submits an event and waits for the snapshot it produced.
//
// Returns ErrQueueClosed if the engine has stopped, or ctx.Err() if ctx ends
// first. The event may still be applied after ctx ends.
func (e *Engine) Dispatch(ctx context.Context, ev Event) (Snapshot, error) {
	ev.reply = make(chan Snapshot, 1)
	ev.pending = false
	if !e.queue.Enqueue(ev) {
		return Snapshot{}, ErrQueueClosed
	}

	select {
	case snap := <-ev.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-e.done:
		// Run may have answered just before exiting.
		select {
		case snap := <-ev.reply:
			return snap, nil
		default:
			return Snapshot{}, ErrQueueClosed
		}
	}
}

// Settle blocks until every event enqueued before the call has been applied
// and no compile is in flight. It returns the snapshot at that point.
//
// Events enqueued concurrently by other goroutines may or may not be
// included.
func (e *Engine) Settle(ctx context.Context) (Snapshot, error) {
	for {
		e.mu.Lock()
		compiled := e.compiled
		e.mu.Unlock()

		snap, err := e.Dispatch(ctx, Event{Kind: eventBarrier})
		if err != nil {
			return Snapshot{}, err
		}
		if e.inflight.Load() == 0 {
			return snap, nil
		}

		select {
		case <-compiled:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-e.done:
			return Snapshot{}, ErrQueueClosed
		}
	}
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: a failed event (journal write, reducer panic) is logged
// with its context and processing continues with the next event.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "session", e.sessionID)
	defer e.doneOnce.Do(func() { close(e.done) })

	if e.journal != nil {
		err := e.journal.BeginSession(ctx, store.Session{
			ID:            e.sessionID,
			StartedAtSeq:  e.clock.Current(),
			InitialSource: e.initial,
		})
		if err != nil {
			logEventError(Event{Kind: EventSourceChanged}, &RuntimeError{
				Code:    ErrCodeJournalFailed,
				Message: "begin session",
				Err:     err,
			})
		}
	}

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, ev); err != nil {
				logEventError(ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately.
			if e.queue.Drained() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue. Run applies the events already queued and
// then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// processEvent applies one event.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	if ev.Kind == eventBarrier {
		e.reply(ev, e.State())
		return nil
	}

	if ev.pending {
		defer e.compileApplied()
	}

	reducer, err := ev.reducer(e.eval)
	if err != nil {
		e.reply(ev, e.State())
		return &RuntimeError{Code: ErrCodeUnknownEvent, Message: err.Error(), Event: ev.Kind}
	}

	prev := e.state
	next, err := applyReducer(reducer, prev)
	if err != nil {
		e.reply(ev, e.State())
		return &RuntimeError{Code: ErrCodeReducerPanic, Message: "reducer panicked", Event: ev.Kind, Err: err}
	}

	seq := e.clock.Next()
	stored := ev
	stored.reply = nil
	stored.pending = false
	snap := Snapshot{
		Seq:   seq,
		Event: stored,
		State: next,
		Added: added(prev, next),
	}

	e.state = next
	e.current.Store(&snap)

	slog.Debug("event applied", "seq", seq, "event", ev.String(), "added", len(snap.Added), "queued", e.queue.Len())

	if ev.Kind == EventSourceChanged {
		e.startCompile(ctx, ev.Text)
	}

	for _, obs := range e.observers {
		obs(snap)
	}
	e.reply(ev, snap)

	if e.journal != nil {
		if err := e.journal.AppendEvent(ctx, e.record(snap)); err != nil {
			return &RuntimeError{Code: ErrCodeJournalFailed, Message: "append event", Seq: seq, Event: ev.Kind, Err: err}
		}
	}

	return nil
}

// startCompile compiles source off the loop and feeds the result back as a
// CompileCompleted event. There is no cancellation: a superseded compile
// still delivers its result.
func (e *Engine) startCompile(ctx context.Context, source string) {
	e.inflight.Add(1)

	if e.compiler == nil {
		e.deliverCompile(state.CompileFailure(errors.New("no compiler configured")), source)
		return
	}

	results := e.compiler.CompileAsync(ctx, source)
	go func() {
		result, ok := <-results
		if !ok {
			result = state.CompileFailure(errors.New("compiler closed without a result"))
		}
		e.deliverCompile(result, source)
	}()
}

func (e *Engine) deliverCompile(result state.CompileResult, source string) {
	ev := CompileCompleted(result, source)
	ev.pending = true
	if !e.queue.Enqueue(ev) {
		slog.Debug("compile result dropped: engine stopped")
		e.compileApplied()
	}
}

// compileApplied retires one in-flight compile and wakes Settle callers.
func (e *Engine) compileApplied() {
	e.inflight.Add(-1)

	e.mu.Lock()
	close(e.compiled)
	e.compiled = make(chan struct{})
	e.mu.Unlock()
}

func (e *Engine) reply(ev Event, snap Snapshot) {
	if ev.reply != nil {
		ev.reply <- snap
	}
}

// record converts a snapshot to its journal row.
func (e *Engine) record(snap Snapshot) store.EventRecord {
	return store.EventRecord{
		SessionID: e.sessionID,
		Seq:       snap.Seq,
		Kind:      string(snap.Event.Kind),
		Payload:   eventPayload(snap.Event),
		Entries:   snap.Added,
	}
}

// eventPayload holds the inputs needed to re-apply an event.
func eventPayload(ev Event) map[string]any {
	switch ev.Kind {
	case EventHistoryNavigated:
		return map[string]any{"direction": string(ev.Direction)}
	case EventCompileCompleted:
		p := map[string]any{"source": ev.Text}
		if ev.Result != nil {
			if ev.Result.Failed() {
				p["error"] = ev.Result.Err.Error()
			} else {
				names := ev.Result.Names
				if names == nil {
					names = []string{}
				}
				p["names"] = names
			}
		}
		return p
	default:
		return map[string]any{"text": ev.Text}
	}
}

// applyReducer runs r, converting a panic into an error.
func applyReducer(r state.Reducer, s state.State) (next state.State, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()
	return r(s), nil
}

// added returns the entries next prepended to prev's log.
func added(prev, next state.State) []state.LogEntry {
	n := len(next.Log) - len(prev.Log)
	if n <= 0 {
		return nil
	}
	out := make([]state.LogEntry, n)
	copy(out, next.Log[:n])
	return out
}

func logEventError(ev Event, err error) {
	slog.Error("event processing failed",
		"event", ev.String(),
		"error", err,
	)
}
