package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/testutil"
)

func loadProjectScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario("../../testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return scenario
}

func TestRun_ProjectScenarios(t *testing.T) {
	for _, name := range []string{
		"history_recall",
		"history_clamp",
		"compile_error",
		"merged_exports",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadProjectScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestRun_DefaultModule(t *testing.T) {
	result, err := Run(loadProjectScenario(t, "default_module"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_TraceFromJournal(t *testing.T) {
	result, err := Run(loadProjectScenario(t, "history_recall"))
	require.NoError(t, err)

	kinds := make([]string, len(result.Trace))
	for i, ev := range result.Trace {
		kinds[i] = ev.Kind
		assert.Equal(t, int64(i+1), ev.Seq, "trace must be ordered by seq")
	}
	assert.Equal(t, []string{
		"source_changed",
		"compile_completed",
		"command_submitted",
		"command_submitted",
		"history_navigated",
		"history_navigated",
	}, kinds)

	assert.Equal(t, "test-session", result.Session)
	assert.Equal(t, []state.LogEntry{
		{Kind: state.KindResult, Text: "2"},
		{Kind: state.KindPlain, Text: "> 1+1"},
	}, result.Trace[2].Entries)
	assert.Equal(t, "previous", result.Trace[4].Payload["direction"])
}

func TestRun_FailedExpectationsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong
description: "Expectations that do not hold"
source: "M"
modules:
  - source: "M"
    exports: [main]
steps:
  - submit: "1+1"
  - expect:
      command: "1+1"
expect:
  history: []
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[1].expect: command")
	assert.Contains(t, result.Errors[1], "expect: history")
}

func TestRun_CustomSession(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: session
description: "Fixed session id"
session: my-session
source: "M"
modules:
  - source: "M"
    exports: [main]
expect:
  env: [main]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "my-session", result.Session)
}

func TestRun_UnscriptedSourceFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unscripted
description: "A source the compiler script does not know"
source: "M"
modules:
  - source: "M"
    exports: [main]
steps:
  - source: "other"
expect:
  log:
    - {kind: error, text: "Error compiling source: unexpected source \"other\""}
  env: [main]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InjectedFakes(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: injected
description: "Compiler and evaluator supplied by the caller"
source: "A"
steps:
  - submit: "2+3"
  - submit: "x"
expect:
  log:
    - {kind: error, text: "Error: x is not defined"}
    - {kind: plain, text: "> x"}
    - {kind: result, text: "5"}
`))
	require.NoError(t, err)

	c := testutil.NewScriptedCompiler().Exports("A", "a")
	result, err := Run(scenario,
		WithCompiler(c),
		WithEval(testutil.SumEval),
		WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"A"}, c.Calls())
	assert.Equal(t, state.KindError, result.Final.Log[0].Kind)
}

func TestRun_DeterministicTrace(t *testing.T) {
	first, err := Run(loadProjectScenario(t, "compile_error"))
	require.NoError(t, err)
	second, err := Run(loadProjectScenario(t, "compile_error"))
	require.NoError(t, err)

	a, err := MarshalSnapshot("compile_error", first)
	require.NoError(t, err)
	b, err := MarshalSnapshot("compile_error", second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
