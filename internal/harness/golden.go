package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/store"
)

// TraceSnapshot is the golden form of a run: its trace and final log.
type TraceSnapshot struct {
	ScenarioName string
	Session      string
	Trace        []TraceEvent
	Final        state.State
}

// toCanonicalMap converts the snapshot for store.MarshalCanonical, which
// accepts only plain maps, lists, strings, integers and bools.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"kind": ev.Kind,
		}
		if len(ev.Payload) > 0 {
			m["payload"] = ev.Payload
		}
		if len(ev.Entries) > 0 {
			m["entries"] = entriesToList(ev.Entries)
		}
		trace[i] = m
	}

	history := make([]any, len(s.Final.History))
	for i, h := range s.Final.History {
		history[i] = h
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"session":       s.Session,
		"trace":         trace,
		"final": map[string]any{
			"log":     entriesToList(s.Final.Log),
			"history": history,
			"command": s.Final.Command,
			"cursor":  s.Final.Cursor.String(),
		},
	}
}

func entriesToList(entries []state.LogEntry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"kind": string(e.Kind), "text": e.Text}
	}
	return out
}

// MarshalSnapshot renders a run result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Session:      result.Session,
		Trace:        result.Trace,
		Final:        result.Final,
	}
	return store.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Scenarios with async steps do not have a deterministic trace and should
// not be used here.
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}

	data, err := MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
