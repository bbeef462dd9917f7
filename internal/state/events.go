package state

import (
	"context"
	"fmt"
	"log"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
)

// TaskLog is a chain.Observer that appends every chain event to the
// task_events table.
type TaskLog struct {
	db *DB
}

// TaskLog returns an observer writing to db.
func (db *DB) TaskLog() *TaskLog {
	return &TaskLog{db: db}
}

// OnChainEvent records e. Write failures are logged, not returned.
func (l *TaskLog) OnChainEvent(e chain.Event) {
	_, err := l.db.Exec(`
		INSERT INTO task_events (chain_id, session_id, task_id, type, service, operation, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ChainID, e.SessionID, nullString(e.TaskID), string(e.Type),
		nullString(e.Service), nullString(e.Operation), nullString(e.Message), formatTime(e.Timestamp))
	if err != nil {
		log.Printf("[state] failed to record %s event for chain %s: %v", e.Type, e.ChainID, err)
	}
}

// ListTaskEvents returns the recorded events of a chain in insertion order.
func (db *DB) ListTaskEvents(ctx context.Context, chainID string) ([]chain.Event, error) {
	rows, err := db.Query(`
		SELECT chain_id, session_id, COALESCE(task_id, ''), type, COALESCE(service, ''),
			COALESCE(operation, ''), COALESCE(message, ''), created_at
		FROM task_events WHERE chain_id = ? ORDER BY id
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	defer rows.Close()

	var events []chain.Event
	for rows.Next() {
		var e chain.Event
		var typ, createdAt string
		if err := rows.Scan(&e.ChainID, &e.SessionID, &e.TaskID, &typ, &e.Service, &e.Operation, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		e.Type = chain.EventType(typ)
		if e.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse task event time: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
