// Package store provides storage backends for KaraBot.
//
// It persists conversation identities and the message log that backs the
// inbound duplicate guard. SQLite and PostgreSQL implementations share the
// same schema; an in-memory implementation exists for tests.
package store

import (
	"github.com/karabot/karabot/internal/models"
)

// Store is the narrow CRUD surface the conversation core depends on.
type Store interface {
	// GetOrCreateUser resolves the conversation identity for a WhatsApp id,
	// creating it on first contact. Safe under concurrent first contact from
	// the same sender: exactly one identity results.
	GetOrCreateUser(whatsappID string) (models.User, error)

	// RecordMessage appends one message to a user's history. When remoteID
	// is non-empty and a row with the same remote id already exists,
	// models.ErrDuplicateMessage is returned and nothing is stored.
	RecordMessage(userID int64, content string, direction models.Direction, kind string, remoteID string) (models.Message, error)

	// FindMessageByRemoteID returns the stored message carrying the given
	// platform message id, or nil if none exists. This is the duplicate
	// guard's backing query.
	FindMessageByRemoteID(remoteID string) (*models.Message, error)

	// GetUserByID returns the user with the given internal id, or
	// models.ErrUserNotFound.
	GetUserByID(id int64) (models.User, error)

	// ListUsers returns all conversation identities, oldest first.
	ListUsers() ([]models.User, error)

	// ListMessagesByUser returns a user's history ordered by timestamp.
	ListMessagesByUser(userID int64) ([]models.Message, error)

	// Close releases the underlying resources.
	Close() error
}
