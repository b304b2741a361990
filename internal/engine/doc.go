// Package engine implements the tinker state fold.
//
// The engine owns the single session State and is its only writer. Input
// events (source edits, command line edits, history navigation, command
// submission) and compile results all travel through one FIFO queue and are
// applied one at a time by Run.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every event maps to exactly one reducer from package state. Run dequeues
// an event, applies its reducer to the current state, stamps the result with
// the next logical seq, and publishes an immutable Snapshot. Events are never
// reordered, batched or dropped.
//
// Asynchronous Compile:
// Applying a source change starts a compile of that exact text on another
// goroutine. Its result comes back as a CompileCompleted event on the same
// queue and is applied to whatever state exists when it arrives. A compile
// that has been superseded by a newer edit is not cancelled; its exports
// still merge into the environment.
//
// Synchronous Evaluation:
// Submitting a command evaluates it inside the reducer. The loop processes
// nothing else until evaluation returns.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Snapshots are stamped with a monotonic seq from Clock.Next(). The journal
// orders by seq, never by wall-clock time.
//
// Log and Continue:
// Journal failures are logged and processing continues. No error stops the
// fold.
package engine
