package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinker/internal/state"
)

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
}

func TestOpen_ReopenKeepsSessions(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "journal.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.BeginSession(ctx, Session{ID: "s1", StartedAtSeq: 1, InitialSource: "M"}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	sess, err := s2.ReadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "M", sess.InitialSource)
}

func TestOpen_MemoryJournal(t *testing.T) {
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.BeginSession(t.Context(), Session{ID: "mem", StartedAtSeq: 1}))
	_, err = s.ReadSession(t.Context(), "mem")
	assert.NoError(t, err, "single connection keeps the in-memory journal alive")
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "journal.db"))
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())

	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "closing twice is harmless")
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"j.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		dsn("j.db"))
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			var got string
			require.NoError(t, s.db.QueryRow("PRAGMA "+tt.pragma).Scan(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	assert.Subset(t, tableColumns(t, s.db, "sessions"), []string{"id", "started_at_seq", "initial_source"})
	assert.Subset(t, tableColumns(t, s.db, "events"), []string{"session_id", "seq", "kind", "payload"})
	assert.Subset(t, tableColumns(t, s.db, "log_entries"), []string{"session_id", "seq", "position", "kind", "text"})
}

func TestSchema_EventRequiresSession(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO events (session_id, seq, kind, payload) VALUES ('missing', 1, 'source_changed', '{}')`)
	assert.Error(t, err, "foreign keys are enforced")
}

func TestMigrate_FreshJournalIsCurrent(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, len(migrations), userVersion(t, s.db))
	assert.Contains(t, tableIndexes(t, s.db, "log_entries"), "idx_log_entries_kind")
}

func TestMigrate_ReopenIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		assert.Equal(t, len(migrations), userVersion(t, s.db), "open %d", i)
		require.NoError(t, s.Close())
	}
}

func TestMigrate_UpgradesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	// A journal written before any migration existed.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sessions (id, started_at_seq, initial_source) VALUES ('old', 1, 'M')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, len(migrations), userVersion(t, s.db))
	assert.Contains(t, tableIndexes(t, s.db, "log_entries"), "idx_log_entries_kind")

	_, err = s.ReadSession(t.Context(), "old")
	assert.NoError(t, err, "existing rows survive the upgrade")
}

func TestCountEntries(t *testing.T) {
	ctx := t.Context()
	s := createTestStore(t)
	require.NoError(t, s.BeginSession(ctx, Session{ID: "s1", StartedAtSeq: 1, InitialSource: "M"}))

	require.NoError(t, s.AppendEvent(ctx, EventRecord{
		SessionID: "s1", Seq: 1, Kind: "command_submitted",
		Payload: map[string]any{"text": "x()"},
		Entries: []state.LogEntry{
			{Kind: state.KindError, Text: "Error: x is not defined"},
			{Kind: state.KindPlain, Text: "> x()"},
		},
	}))
	require.NoError(t, s.AppendEvent(ctx, EventRecord{
		SessionID: "s1", Seq: 2, Kind: "command_submitted",
		Payload: map[string]any{"text": "1+1"},
		Entries: []state.LogEntry{
			{Kind: state.KindResult, Text: "2"},
			{Kind: state.KindPlain, Text: "> 1+1"},
		},
	}))

	errs, err := s.CountEntries(ctx, "s1", state.KindError)
	require.NoError(t, err)
	assert.Equal(t, 1, errs)

	plain, err := s.CountEntries(ctx, "s1", state.KindPlain)
	require.NoError(t, err)
	assert.Equal(t, 2, plain)

	none, err := s.CountEntries(ctx, "other", state.KindError)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	return cols
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

// createTestStore opens a fresh journal in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
