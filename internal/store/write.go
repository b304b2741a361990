package store

import (
	"context"
	"database/sql"
	"fmt"
)

// BeginSession records the start of an engine lifetime.
// Beginning an existing session again is a no-op.
func (s *Store) BeginSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at_seq, initial_source)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.StartedAtSeq, sess.InitialSource)
	if err != nil {
		return fmt.Errorf("begin session %s: %w", sess.ID, err)
	}
	return nil
}

// AppendEvent journals one applied event and the log entries it produced.
// The payload is stored as canonical JSON. The event row and its entries
// are written in a single transaction.
func (s *Store) AppendEvent(ctx context.Context, rec EventRecord) error {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("append event seq=%d: marshal payload: %w", rec.Seq, err)
	}

	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (session_id, seq, kind, payload)
			VALUES (?, ?, ?, ?)
		`, rec.SessionID, rec.Seq, rec.Kind, string(data))
		if err != nil {
			return fmt.Errorf("append event seq=%d: %w", rec.Seq, err)
		}

		for i, entry := range rec.Entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO log_entries (session_id, seq, position, kind, text)
				VALUES (?, ?, ?, ?, ?)
			`, rec.SessionID, rec.Seq, i, string(entry.Kind), entry.Text)
			if err != nil {
				return fmt.Errorf("append log entry seq=%d position=%d: %w", rec.Seq, i, err)
			}
		}
		return nil
	})
}
