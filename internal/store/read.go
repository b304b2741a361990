package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tinker/internal/state"
)

// ReadSession returns the session with the given id.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at_seq, initial_source
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.StartedAtSeq, &sess.InitialSource)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// LatestSession returns the session that started last in logical time.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at_seq, initial_source
		FROM sessions
		ORDER BY started_at_seq DESC, rowid DESC
		LIMIT 1
	`).Scan(&sess.ID, &sess.StartedAtSeq, &sess.InitialSource)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("latest session: %w", ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read latest session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions in the order they were begun.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at_seq, initial_source
		FROM sessions
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.StartedAtSeq, &sess.InitialSource); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ReadEvents returns every event of a session in seq order, each with the
// log entries it prepended.
func (s *Store) ReadEvents(ctx context.Context, sessionID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, payload
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	index := make(map[int64]int)
	for rows.Next() {
		rec := EventRecord{SessionID: sessionID}
		var payload string
		if err := rows.Scan(&rec.Seq, &rec.Kind, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("event seq=%d: unmarshal payload: %w", rec.Seq, err)
		}
		index[rec.Seq] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	entries, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, text
		FROM log_entries
		WHERE session_id = ?
		ORDER BY seq ASC, position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read log entries: %w", err)
	}
	defer entries.Close()

	for entries.Next() {
		var seq int64
		var kind, text string
		if err := entries.Scan(&seq, &kind, &text); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		i, ok := index[seq]
		if !ok {
			return nil, fmt.Errorf("log entry references missing event seq=%d", seq)
		}
		records[i].Entries = append(records[i].Entries, state.LogEntry{Kind: state.Kind(kind), Text: text})
	}
	return records, entries.Err()
}

// LastSeq returns the highest seq in the journal across all sessions, or 0
// for an empty journal. A new session continues after it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(seq) FROM events), 0),
			COALESCE((SELECT MAX(started_at_seq) FROM sessions), 0)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// CountEntries returns how many log entries of kind a session journaled.
func (s *Store) CountEntries(ctx context.Context, sessionID string, kind state.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM log_entries WHERE session_id = ? AND kind = ?
	`, sessionID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s entries: %w", kind, err)
	}
	return n, nil
}
