package store

import (
	"database/sql"
	"fmt"

	"github.com/karabot/karabot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanMessageRow scans a Message from a single sql.Row.
func scanMessageRow(row *sql.Row) (models.Message, error) {
	var m models.Message
	var direction string
	var remoteID sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.Content, &m.Kind, &direction, &m.Timestamp, &remoteID)
	if err != nil {
		return m, err
	}
	m.Direction = models.Direction(direction)
	m.RemoteID = remoteID.String
	return m, nil
}

// scanMessages scans all remaining rows into Messages.
func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var direction string
		var remoteID sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Kind, &direction, &m.Timestamp, &remoteID); err != nil {
			return nil, fmt.Errorf("scan message failed: %w", err)
		}
		m.Direction = models.Direction(direction)
		m.RemoteID = remoteID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
