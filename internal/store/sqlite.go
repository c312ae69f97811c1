// Package store: SQLite-backed implementation.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/karabot/karabot/internal/models"
	"github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetOrCreateUser(whatsappID string) (models.User, error) {
	// INSERT OR IGNORE keeps concurrent first contact from creating two rows.
	_, err := s.db.Exec(`INSERT OR IGNORE INTO users (whatsapp_id, created_at) VALUES (?, ?)`, whatsappID, time.Now())
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateUser insert failed", "error", err, "whatsapp_id", whatsappID)
		return models.User{}, fmt.Errorf("failed to upsert user %s: %w", whatsappID, err)
	}

	var u models.User
	err = s.db.QueryRow(`SELECT id, whatsapp_id, created_at FROM users WHERE whatsapp_id = ?`, whatsappID).
		Scan(&u.ID, &u.WhatsAppID, &u.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateUser select failed", "error", err, "whatsapp_id", whatsappID)
		return models.User{}, fmt.Errorf("failed to load user %s: %w", whatsappID, err)
	}
	return u, nil
}

func (s *SQLiteStore) RecordMessage(userID int64, content string, direction models.Direction, kind string, remoteID string) (models.Message, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO messages (user_id, content, message_type, direction, timestamp, whatsapp_message_id) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, content, kind, string(direction), now, nilIfEmpty(remoteID),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.Message{}, models.ErrDuplicateMessage
		}
		slog.Error("SQLiteStore RecordMessage failed", "error", err, "user_id", userID)
		return models.Message{}, fmt.Errorf("failed to insert message for user %d: %w", userID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to read inserted message id: %w", err)
	}
	return models.Message{
		ID:        id,
		UserID:    userID,
		Content:   content,
		Kind:      kind,
		Direction: direction,
		Timestamp: now,
		RemoteID:  remoteID,
	}, nil
}

func (s *SQLiteStore) FindMessageByRemoteID(remoteID string) (*models.Message, error) {
	if remoteID == "" {
		return nil, nil
	}
	row := s.db.QueryRow(
		`SELECT id, user_id, content, message_type, direction, timestamp, whatsapp_message_id FROM messages WHERE whatsapp_message_id = ?`,
		remoteID,
	)
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindMessageByRemoteID failed", "error", err, "remote_id", remoteID)
		return nil, fmt.Errorf("failed to query message by remote id: %w", err)
	}
	return &m, nil
}

func (s *SQLiteStore) GetUserByID(id int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRow(`SELECT id, whatsapp_id, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.WhatsAppID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, whatsapp_id, created_at FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.WhatsAppID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) ListMessagesByUser(userID int64) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, content, message_type, direction, timestamp, whatsapp_message_id FROM messages WHERE user_id = ? ORDER BY timestamp ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isSQLiteUniqueViolation reports whether err is a unique-constraint failure.
func isSQLiteUniqueViolation(err error) bool {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
