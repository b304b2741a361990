// Package state holds the single authoritative session state and the pure
// reducers that move it forward.
//
// State is a value. Reducers never write to the slices or maps of the state
// they receive; each one returns a fully formed successor. The engine's fold
// is the only place a State is replaced, so no locking is needed here.
//
// # Ordering
//
// Log and History are stored most-recent-first: index 0 is the newest entry.
// Reducers prepend.
//
// # Totality
//
// Every reducer returns a valid State for every input. Failures coming from
// the compiler or evaluator arrive as values (CompileResult, EvalResult) and
// are turned into log entries tagged KindError.
package state
