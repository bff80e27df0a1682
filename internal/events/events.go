// Package events persists migration events into the destination database's
// event log. The engine itself only emits through the progress reporter;
// callers that want a durable event trail attach a Writer as a subscriber.
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"taskbridge/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// Log writes one migration event to the event log
func (w *Writer) Log(userID, migrationID string, ev domain.MigrationEvent) error {
	var payload interface{}
	if ev.Data != nil {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event payload: %w", err)
		}
		payload = string(data)
	}

	_, err := w.db.Exec(`
		INSERT INTO event_log (timestamp, user_id, migration_id, event_type, message, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), userID, migrationID, string(ev.Type), ev.Message, payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEntry is one persisted event log row.
type LogEntry struct {
	ID          int64  `json:"id"`
	Timestamp   string `json:"timestamp"`
	UserID      string `json:"user_id,omitempty"`
	MigrationID string `json:"migration_id,omitempty"`
	EventType   string `json:"event_type"`
	Message     string `json:"message,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

// Recent returns the most recent entries for a migration, oldest first.
func (w *Writer) Recent(migrationID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := w.db.Query(`
		SELECT id, timestamp, user_id, migration_id, event_type, message, payload
		FROM (
			SELECT * FROM event_log WHERE migration_id = ? ORDER BY id DESC LIMIT ?
		)
		ORDER BY id ASC
	`, migrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var userID, migID, message, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &userID, &migID, &e.EventType, &message, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.UserID = userID.String
		e.MigrationID = migID.String
		e.Message = message.String
		e.Payload = payload.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
