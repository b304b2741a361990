// Package harness runs scripted tinker sessions and checks their outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: history_walk
//	description: "Up and down through two submitted commands"
//	source: |                  # optional, defaults to compiler.DefaultModule
//	  (module ...)
//	modules:                   # optional: script the compiler instead of wasmtime
//	  - source: "A"
//	    exports: [a]
//	  - source: "bad"
//	    error: "unexpected token"
//	steps:
//	  - submit: "1+1"
//	  - previous: true
//	  - expect:
//	      command: "1+1"
//	      cursor: "0"
//	  - source: "bad"
//	    async: true          # do not wait for this compile
//	  - settle: true
//	expect:
//	  log:                     # most recent first, prefix match
//	    - {kind: error, text: "Error compiling source: unexpected token"}
//	  history: ["1+1"]
//	  env: [main]
//
// Every step is exactly one of source, input, submit, previous, next,
// settle, or expect. A source step waits for its compile unless async is
// set. The top-level expect is checked after a final settle.
//
// # Deterministic Testing
//
// Each run uses a fresh engine with:
//   - Deterministic logical clock (testutil.DeterministicClock)
//   - Fixed session id (from scenario.session or "test-session")
//   - In-memory SQLite journal (isolated per run)
//
// The journal is read back as the run's trace, so scenarios without async
// steps produce byte-identical traces for golden file comparison.
package harness
