// Package store: PostgreSQL-backed implementation.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/karabot/karabot/internal/models"
	"github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetOrCreateUser(whatsappID string) (models.User, error) {
	// ON CONFLICT DO NOTHING keeps concurrent first contact from creating two rows.
	_, err := s.db.Exec(`INSERT INTO users (whatsapp_id, created_at) VALUES ($1, $2) ON CONFLICT (whatsapp_id) DO NOTHING`, whatsappID, time.Now())
	if err != nil {
		slog.Error("PostgresStore GetOrCreateUser insert failed", "error", err, "whatsapp_id", whatsappID)
		return models.User{}, fmt.Errorf("failed to upsert user %s: %w", whatsappID, err)
	}

	var u models.User
	err = s.db.QueryRow(`SELECT id, whatsapp_id, created_at FROM users WHERE whatsapp_id = $1`, whatsappID).
		Scan(&u.ID, &u.WhatsAppID, &u.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore GetOrCreateUser select failed", "error", err, "whatsapp_id", whatsappID)
		return models.User{}, fmt.Errorf("failed to load user %s: %w", whatsappID, err)
	}
	return u, nil
}

func (s *PostgresStore) RecordMessage(userID int64, content string, direction models.Direction, kind string, remoteID string) (models.Message, error) {
	now := time.Now()
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO messages (user_id, content, message_type, direction, timestamp, whatsapp_message_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		userID, content, kind, string(direction), now, nilIfEmpty(remoteID),
	).Scan(&id)
	if err != nil {
		if isPostgresUniqueViolation(err) {
			return models.Message{}, models.ErrDuplicateMessage
		}
		slog.Error("PostgresStore RecordMessage failed", "error", err, "user_id", userID)
		return models.Message{}, fmt.Errorf("failed to insert message for user %d: %w", userID, err)
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

func (s *PostgresStore) FindMessageByRemoteID(remoteID string) (*models.Message, error) {
	if remoteID == "" {
		return nil, nil
	}
	row := s.db.QueryRow(
		`SELECT id, user_id, content, message_type, direction, timestamp, whatsapp_message_id FROM messages WHERE whatsapp_message_id = $1`,
		remoteID,
	)
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindMessageByRemoteID failed", "error", err, "remote_id", remoteID)
		return nil, fmt.Errorf("failed to query message by remote id: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetUserByID(id int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRow(`SELECT id, whatsapp_id, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.WhatsAppID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers() ([]models.User, error) {
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

func (s *PostgresStore) ListMessagesByUser(userID int64) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, content, message_type, direction, timestamp, whatsapp_message_id FROM messages WHERE user_id = $1 ORDER BY timestamp ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// isPostgresUniqueViolation reports whether err is a unique-constraint failure.
func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
