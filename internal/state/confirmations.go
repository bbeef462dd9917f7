package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// ConfirmationStore persists pending confirmations in the
// pending_confirmations table. A context expires ttl after its PausedAt.
type ConfirmationStore struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

// Confirmations returns a ConfirmationStore on db.
func (db *DB) Confirmations(ttl time.Duration) *ConfirmationStore {
	return &ConfirmationStore{db: db, ttl: ttl, now: time.Now}
}

// SetClock overrides time.Now for expiry checks.
func (s *ConfirmationStore) SetClock(now func() time.Time) {
	s.now = now
}

// Save stores p and drops any other pending confirmation of the same session.
func (s *ConfirmationStore) Save(ctx context.Context, p *confirm.PendingContext) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending confirmation %s: %w", p.Ref, err)
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM pending_confirmations WHERE session_id = ? AND ref <> ?", p.SessionID, p.Ref); err != nil {
			return fmt.Errorf("clear superseded confirmations: %w", err)
		}
		_, err := tx.Exec(`
			INSERT INTO pending_confirmations (ref, session_id, chain_id, task_id, data, paused_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ref) DO UPDATE SET data = excluded.data
		`, p.Ref, p.SessionID, p.ChainID, p.TaskID, string(data), formatTime(p.PausedAt), formatTime(p.ExpiresAt(s.ttl)))
		if err != nil {
			return fmt.Errorf("save pending confirmation %s: %w", p.Ref, err)
		}
		return nil
	})
}

// Load removes and returns the pending confirmation. Unknown and expired
// refs return a *models.ExpiredConfirmationError; an expired row is removed too.
func (s *ConfirmationStore) Load(ctx context.Context, ref string) (*confirm.PendingContext, error) {
	var p confirm.PendingContext
	expired := false

	err := s.db.Transaction(func(tx *sql.Tx) error {
		var data, expiresAt string
		row := tx.QueryRow("SELECT data, expires_at FROM pending_confirmations WHERE ref = ?", ref)
		if err := row.Scan(&data, &expiresAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &models.ExpiredConfirmationError{Ref: ref}
			}
			return fmt.Errorf("load pending confirmation %s: %w", ref, err)
		}
		if _, err := tx.Exec("DELETE FROM pending_confirmations WHERE ref = ?", ref); err != nil {
			return fmt.Errorf("remove pending confirmation %s: %w", ref, err)
		}

		exp, err := parseTime(expiresAt)
		if err != nil {
			return fmt.Errorf("parse expiry of %s: %w", ref, err)
		}
		if s.now().After(exp) {
			expired = true
			return nil
		}
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return fmt.Errorf("decode pending confirmation %s: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, &models.ExpiredConfirmationError{Ref: ref}
	}
	return &p, nil
}

// Peek returns the pending confirmation without removing it.
func (s *ConfirmationStore) Peek(ctx context.Context, ref string) (*confirm.PendingContext, error) {
	var data, expiresAt string
	row := s.db.QueryRow("SELECT data, expires_at FROM pending_confirmations WHERE ref = ?", ref)
	if err := row.Scan(&data, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.ExpiredConfirmationError{Ref: ref}
		}
		return nil, fmt.Errorf("peek pending confirmation %s: %w", ref, err)
	}
	exp, err := parseTime(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expiry of %s: %w", ref, err)
	}
	if s.now().After(exp) {
		return nil, &models.ExpiredConfirmationError{Ref: ref}
	}
	var p confirm.PendingContext
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode pending confirmation %s: %w", ref, err)
	}
	return &p, nil
}

// Lookup returns the ref of the session's unexpired pending confirmation.
func (s *ConfirmationStore) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	var ref, expiresAt string
	row := s.db.QueryRow(`
		SELECT ref, expires_at FROM pending_confirmations
		WHERE session_id = ? ORDER BY paused_at DESC LIMIT 1
	`, sessionID)
	if err := row.Scan(&ref, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup pending confirmation for %s: %w", sessionID, err)
	}
	exp, err := parseTime(expiresAt)
	if err != nil {
		return "", false, fmt.Errorf("parse expiry of %s: %w", ref, err)
	}
	if s.now().After(exp) {
		return "", false, nil
	}
	return ref, true, nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *ConfirmationStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.Exec("DELETE FROM pending_confirmations WHERE expires_at < ?", formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("purge expired confirmations: %w", err)
	}
	return res.RowsAffected()
}
