package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinker/internal/engine"
	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/store"
	"github.com/roach88/tinker/internal/testutil"
)

func executeTrace(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func tracedJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "trace.db")
	c := testutil.NewScriptedCompiler().Exports("M", "main").Exports("N", "n")
	journalSession(t, dbPath, "s1", c, "M", "1+1", "nope()")
	journalSession(t, dbPath, "s2", c, "N", "n")
	return dbPath
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := executeTrace(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")
}

func TestTraceSessionText(t *testing.T) {
	dbPath := tracedJournal(t)

	out, err := executeTrace(t, "text", "--db", dbPath, "--session", "s1")
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for Session: s1")
	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, `  [1] source_changed {text="M"}`)
	assert.Contains(t, out, `  [2] compile_completed {names=["main"], source="M"}`)
	assert.Contains(t, out, "       info: Compiled, exported: main")
	assert.Contains(t, out, `  [5] history_navigated {direction="previous"}`)

	// Entries of one event print oldest first.
	echo := strings.Index(out, "       plain: > 1+1")
	result := strings.Index(out, "       result: 2")
	require.NotEqual(t, -1, echo)
	require.NotEqual(t, -1, result)
	assert.Less(t, echo, result)

	assert.Contains(t, out, "=== Stats ===")
	assert.Contains(t, out, "  Total Events: 5")
	assert.Contains(t, out, "  command_submitted: 2")
	assert.Contains(t, out, "  Log Entries:  5")
	assert.Contains(t, out, "  Errors:       1")
}

func TestTraceDefaultsToLatestSession(t *testing.T) {
	dbPath := tracedJournal(t)

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Session: s2")
}

func TestTraceKindFilterJSON(t *testing.T) {
	dbPath := tracedJournal(t)

	out, err := executeTrace(t, "json", "--db", dbPath, "--session", "s1", "--kind", string(engine.EventCommandSubmitted))
	require.NoError(t, err)

	var resp struct {
		Status  string      `json:"status"`
		Session string      `json:"session"`
		Data    TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "s1", resp.Session)
	assert.Equal(t, "M", resp.Data.InitialSource)

	require.Len(t, resp.Data.Timeline, 2)
	assert.Equal(t, int64(3), resp.Data.Timeline[0].Seq)
	assert.Equal(t, "1+1", resp.Data.Timeline[0].Payload["text"])
	assert.Equal(t, []state.LogEntry{
		{Kind: state.KindError, Text: "Error: nope is not defined"},
		{Kind: state.KindPlain, Text: "> nope()"},
	}, resp.Data.Timeline[1].Entries)

	// Stats cover the whole session.
	assert.Equal(t, 5, resp.Data.Stats.TotalEvents)
	assert.Equal(t, 1, resp.Data.Stats.ByKind[string(engine.EventCompileCompleted)])
}

func TestTraceUnknownSession(t *testing.T) {
	dbPath := tracedJournal(t)

	out, err := executeTrace(t, "json", "--db", dbPath, "--session", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestFormatArgs(t *testing.T) {
	long := strings.Repeat("x", 60)

	assert.Equal(t, "{}", formatArgs(nil, false))
	assert.Equal(t, `{a="1", b=[x, y]}`, formatArgs(map[string]any{"b": []string{"x", "y"}, "a": "1"}, false))
	assert.Equal(t, `{source="`+strings.Repeat("x", 36)+"...}", formatArgs(map[string]any{"source": long}, false))
	assert.Equal(t, `{source="`+long+`"}`, formatArgs(map[string]any{"source": long}, true))
}
