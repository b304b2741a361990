package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tinker/internal/state"
)

func TestBeginSession_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sess := Session{ID: "session-1", StartedAtSeq: 0, InitialSource: "(module)"}
	require.NoError(t, s.BeginSession(ctx, sess))
	require.NoError(t, s.BeginSession(ctx, sess))

	got, err := s.ReadSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	all, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReadSession_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadSession(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LatestSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.BeginSession(ctx, Session{ID: "a", StartedAtSeq: 0}))
	require.NoError(t, s.BeginSession(ctx, Session{ID: "b", StartedAtSeq: 0}))

	latest, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)
}

func TestAppendEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, Session{ID: "s"}))

	require.NoError(t, s.AppendEvent(ctx, EventRecord{
		SessionID: "s",
		Seq:       1,
		Kind:      "source_changed",
		Payload:   map[string]any{"text": "(module)"},
	}))
	require.NoError(t, s.AppendEvent(ctx, EventRecord{
		SessionID: "s",
		Seq:       2,
		Kind:      "compile_completed",
		Payload:   map[string]any{"source": "(module)", "names": []string{"main", "g"}},
		Entries: []state.LogEntry{
			{Kind: state.KindInfo, Text: "Compiled, exported: main, g"},
		},
	}))
	require.NoError(t, s.AppendEvent(ctx, EventRecord{
		SessionID: "s",
		Seq:       3,
		Kind:      "command_submitted",
		Payload:   map[string]any{"text": "1+1"},
		Entries: []state.LogEntry{
			{Kind: state.KindResult, Text: "2"},
			{Kind: state.KindPlain, Text: "> 1+1"},
		},
	}))

	records, err := s.ReadEvents(ctx, "s")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "source_changed", records[0].Kind)
	assert.Equal(t, "(module)", records[0].String("text"))
	assert.Empty(t, records[0].Entries)

	assert.Equal(t, []string{"main", "g"}, records[1].Strings("names"))
	assert.Equal(t, "", records[1].String("error"))

	assert.Equal(t, int64(3), records[2].Seq)
	assert.Equal(t, []state.LogEntry{
		{Kind: state.KindResult, Text: "2"},
		{Kind: state.KindPlain, Text: "> 1+1"},
	}, records[2].Entries)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestAppendEvent_OrderedBySeqNotInsertion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, Session{ID: "s"}))

	for _, seq := range []int64{3, 1, 2} {
		require.NoError(t, s.AppendEvent(ctx, EventRecord{SessionID: "s", Seq: seq, Kind: "command_changed"}))
	}

	records, err := s.ReadEvents(ctx, "s")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, int64(i+1), rec.Seq)
	}
}

func TestAppendEvent_DuplicateSeqRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, Session{ID: "s"}))

	rec := EventRecord{SessionID: "s", Seq: 1, Kind: "command_changed"}
	require.NoError(t, s.AppendEvent(ctx, rec))
	assert.Error(t, s.AppendEvent(ctx, rec))
}

func TestAppendEvent_FailedEntryRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// No session row, so the event insert violates the foreign key.
	err := s.AppendEvent(ctx, EventRecord{
		SessionID: "ghost",
		Seq:       1,
		Kind:      "command_submitted",
		Entries:   []state.LogEntry{{Kind: state.KindPlain, Text: "> x"}},
	})
	require.Error(t, err)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM log_entries").Scan(&count))
	assert.Zero(t, count)
}

func TestAppendEvent_UnsupportedPayload(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, Session{ID: "s"}))

	err := s.AppendEvent(ctx, EventRecord{SessionID: "s", Seq: 1, Kind: "x", Payload: map[string]any{"f": 1.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, Session{ID: "m"}))
	require.NoError(t, s.AppendEvent(ctx, EventRecord{SessionID: "m", Seq: 1, Kind: "source_changed"}))

	records, err := s.ReadEvents(ctx, "m")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLastSeq_SpansSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, last, "empty journal")

	require.NoError(t, s.BeginSession(ctx, Session{ID: "a"}))
	require.NoError(t, s.AppendEvent(ctx, EventRecord{SessionID: "a", Seq: 7, Kind: "source_changed", Payload: map[string]any{"text": ""}}))
	require.NoError(t, s.BeginSession(ctx, Session{ID: "b", StartedAtSeq: 7}))
	require.NoError(t, s.AppendEvent(ctx, EventRecord{SessionID: "b", Seq: 8, Kind: "source_changed", Payload: map[string]any{"text": ""}}))

	last, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), last)

	// A session that started but never applied an event still counts.
	require.NoError(t, s.BeginSession(ctx, Session{ID: "c", StartedAtSeq: 20}))
	last, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), last)
}
