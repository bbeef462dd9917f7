package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// SaveMenu records a completed menu. An empty ID is filled in.
func (db *DB) SaveMenu(ctx context.Context, m *models.Menu) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	courses, err := json.Marshal(m.Courses)
	if err != nil {
		return fmt.Errorf("marshal menu courses: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO menus (id, session_id, user_id, category, courses, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.SessionID, nullString(m.UserID), string(m.Category), string(courses), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("save menu %s: %w", m.ID, err)
	}
	return nil
}

// ListMenus returns a user's menus, newest first. A limit of 0 returns all.
func (db *DB) ListMenus(ctx context.Context, userID string, limit int) ([]*models.Menu, error) {
	query := `
		SELECT id, session_id, COALESCE(user_id, ''), category, courses, created_at
		FROM menus WHERE user_id = ? ORDER BY created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	defer rows.Close()

	var menus []*models.Menu
	for rows.Next() {
		var m models.Menu
		var category, courses, createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &category, &courses, &createdAt); err != nil {
			return nil, fmt.Errorf("scan menu: %w", err)
		}
		m.Category = models.MenuCategory(category)
		if err := json.Unmarshal([]byte(courses), &m.Courses); err != nil {
			return nil, fmt.Errorf("decode menu %s: %w", m.ID, err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse menu %s time: %w", m.ID, err)
		}
		menus = append(menus, &m)
	}
	return menus, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
