package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// SessionStore persists stage sessions in the stage_sessions table.
// Sessions not updated within ttl are treated as missing.
type SessionStore struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

// Sessions returns a SessionStore on db. A zero ttl disables expiry.
func (db *DB) Sessions(ttl time.Duration) *SessionStore {
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

// Save inserts or replaces the session.
func (s *SessionStore) Save(ctx context.Context, sess *stage.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	updated := sess.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}

	_, err = s.db.Exec(`
		INSERT INTO stage_sessions (id, stage, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET stage = excluded.stage, data = excluded.data, updated_at = excluded.updated_at
	`, sess.ID, string(sess.Stage), string(data), formatTime(sess.CreatedAt), formatTime(updated))
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Load returns the session or a *models.SessionNotFoundError.
func (s *SessionStore) Load(ctx context.Context, id string) (*stage.Session, error) {
	var data, updatedAt string
	row := s.db.QueryRow("SELECT data, updated_at FROM stage_sessions WHERE id = ?", id)
	if err := row.Scan(&data, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.SessionNotFoundError{SessionID: id}
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	if s.ttl > 0 {
		ts, err := parseTime(updatedAt)
		if err == nil && s.now().After(ts.Add(s.ttl)) {
			return nil, &models.SessionNotFoundError{SessionID: id}
		}
	}

	var sess stage.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec("DELETE FROM stage_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Purge deletes sessions not updated since olderThan ago and returns how many were removed.
func (s *SessionStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(s.now().Add(-olderThan))
	res, err := s.db.Exec("DELETE FROM stage_sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}
