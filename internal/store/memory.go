package store

import (
	"sync"
	"time"

	"github.com/karabot/karabot/internal/models"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a mutex-guarded in-memory Store used by tests and as the
// fallback when no database DSN is configured.
type InMemoryStore struct {
	mu         sync.Mutex
	users      []models.User
	messages   []models.Message
	nextUserID int64
	nextMsgID  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextUserID: 1, nextMsgID: 1}
}

func (s *InMemoryStore) GetOrCreateUser(whatsappID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.WhatsAppID == whatsappID {
			return u, nil
		}
	}
	u := models.User{ID: s.nextUserID, WhatsAppID: whatsappID, CreatedAt: time.Now()}
	s.nextUserID++
	s.users = append(s.users, u)
	return u, nil
}

func (s *InMemoryStore) RecordMessage(userID int64, content string, direction models.Direction, kind string, remoteID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if remoteID != "" {
		for _, m := range s.messages {
			if m.RemoteID == remoteID {
				return models.Message{}, models.ErrDuplicateMessage
			}
		}
	}
	m := models.Message{
		ID:        s.nextMsgID,
		UserID:    userID,
		Content:   content,
		Kind:      kind,
		Direction: direction,
		Timestamp: time.Now(),
		RemoteID:  remoteID,
	}
	s.nextMsgID++
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *InMemoryStore) FindMessageByRemoteID(remoteID string) (*models.Message, error) {
	if remoteID == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].RemoteID == remoteID {
			m := s.messages[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetUserByID(id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

func (s *InMemoryStore) ListUsers() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, len(s.users))
	copy(users, s.users)
	return users, nil
}

func (s *InMemoryStore) ListMessagesByUser(userID int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []models.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
