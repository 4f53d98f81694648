package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
	"github.com/MikeSquared-Agency/sentinel/internal/session"
)

// SessionRow is the summary view of a stored session.
type SessionRow struct {
	SessionID string    `json:"sessionId"`
	PersonaID string    `json:"personaId"`
	MsgCount  int       `json:"msgCount"`
	Reported  bool      `json:"reported"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SaveSession records a new session. Saving an existing id is a no-op, so the
// persona of a stored session never changes.
func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	intel, err := json.Marshal(sess.Intelligence.Clone())
	if err != nil {
		return fmt.Errorf("marshal intelligence: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO honeypot_sessions (session_id, persona_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (session_id) DO NOTHING`,
		sess.ID, sess.PersonaID, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO honeypot_intelligence (session_id, data)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO NOTHING`,
		sess.ID, string(intel),
	)
	if err != nil {
		return fmt.Errorf("insert intelligence: %w", err)
	}

	return tx.Commit(ctx)
}

// AppendMessages stores turns at positions start, start+1, ... within the
// session. Positions already stored are left alone, so writes may arrive out
// of order or be retried.
func (s *Store) AppendMessages(ctx context.Context, sessionID string, start int, turns ...session.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, t := range turns {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO honeypot_messages (id, session_id, turn_index, role, text, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, turn_index) DO NOTHING`,
			uuid.New(), sessionID, start+i, string(t.Role), t.Text, ts,
		)
	}
	batch.Queue(`
		UPDATE honeypot_sessions SET msg_count = GREATEST(msg_count, $2), updated_at = now()
		WHERE session_id = $1`,
		sessionID, start+len(turns),
	)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}

	return tx.Commit(ctx)
}

// MergeIntelligence unions partial into the stored record and returns the
// result. The row is locked for the read-merge-write.
func (s *Store) MergeIntelligence(ctx context.Context, sessionID string, partial extractor.Record) (extractor.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return extractor.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current := extractor.Empty()
	var raw []byte
	err = tx.QueryRow(ctx, `
		SELECT data FROM honeypot_intelligence WHERE session_id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return extractor.Record{}, fmt.Errorf("read intelligence: %w", err)
	default:
		if err := json.Unmarshal(raw, &current); err != nil {
			return extractor.Record{}, fmt.Errorf("unmarshal intelligence: %w", err)
		}
	}

	merged := extractor.Merge(current, partial)
	data, err := json.Marshal(merged)
	if err != nil {
		return extractor.Record{}, fmt.Errorf("marshal intelligence: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO honeypot_intelligence (session_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		sessionID, string(data),
	)
	if err != nil {
		return extractor.Record{}, fmt.Errorf("upsert intelligence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return extractor.Record{}, fmt.Errorf("commit: %w", err)
	}
	return merged, nil
}

// MarkReported flags a session as having been sent to the collector.
func (s *Store) MarkReported(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE honeypot_sessions SET reported = true, updated_at = now() WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark reported: %w", err)
	}
	return nil
}

// LoadSession rebuilds a session from storage. It returns session.ErrNotFound
// for an unknown id.
func (s *Store) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	sess := &session.Session{ID: id, Turns: []session.Turn{}, Intelligence: extractor.Empty()}

	err := s.pool.QueryRow(ctx, `
		SELECT persona_id, created_at FROM honeypot_sessions WHERE session_id = $1`,
		id,
	).Scan(&sess.PersonaID, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	turns, err := s.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == session.RoleAgent {
			sess.LastReply = turns[i].Text
			break
		}
	}

	var raw []byte
	err = s.pool.QueryRow(ctx, `
		SELECT data FROM honeypot_intelligence WHERE session_id = $1`,
		id,
	).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load intelligence: %w", err)
	default:
		var rec extractor.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal intelligence: %w", err)
		}
		sess.Intelligence = rec.Clone()
	}

	return sess, nil
}

// GetMessages returns a session's turns in arrival order.
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]session.Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, text, created_at FROM honeypot_messages
		WHERE session_id = $1
		ORDER BY turn_index`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	turns := []session.Turn{}
	for rows.Next() {
		var t session.Turn
		var role string
		if err := rows.Scan(&role, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		t.Role = session.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListSessions returns stored sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, persona_id, msg_count, reported, created_at, updated_at
		FROM honeypot_sessions
		ORDER BY updated_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionRow{}
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.SessionID, &r.PersonaID, &r.MsgCount, &r.Reported, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
