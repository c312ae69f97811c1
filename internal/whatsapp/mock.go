package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/karabot/karabot/internal/models"
)

// MockClient implements the same send surface as Client without touching
// the network. In tests, use whatsapp.NewMockClient() instead of NewClient.
type MockClient struct {
	mu   sync.Mutex
	sent []MockSend
	seq  int
	// FailKinds causes sends of the listed unit kinds to fail.
	FailKinds map[models.OutboundKind]bool
	// FailAll causes every send to fail.
	FailAll bool
	// Media maps media ids to bytes for FetchMedia; ids not present fail.
	Media map[string][]byte
}

// MockSend records one send call made against the mock.
type MockSend struct {
	To       string
	Kind     models.OutboundKind
	Body     string
	Choices  []models.ButtonChoice
	Sections []models.ListSection
	Label    string
	URL      string
	RemoteID string
}

func NewMockClient() *MockClient {
	return &MockClient{
		FailKinds: make(map[models.OutboundKind]bool),
		Media:     make(map[string][]byte),
	}
}

// Sent returns a copy of every send recorded so far.
func (m *MockClient) Sent() []MockSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSend, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockClient) record(send MockSend, kind models.OutboundKind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll || m.FailKinds[kind] {
		return "", models.ErrDeliveryFailed
	}
	m.seq++
	send.RemoteID = fmt.Sprintf("wamid.mock.%d", m.seq)
	send.Kind = kind
	m.sent = append(m.sent, send)
	return send.RemoteID, nil
}

func (m *MockClient) SendText(ctx context.Context, to, body string) (string, error) {
	return m.record(MockSend{To: to, Body: body}, models.OutboundKindText)
}

func (m *MockClient) SendButtons(ctx context.Context, to, body string, choices []models.ButtonChoice) (string, error) {
	return m.record(MockSend{To: to, Body: body, Choices: choices}, models.OutboundKindButtons)
}

func (m *MockClient) SendList(ctx context.Context, to, header, body string, sections []models.ListSection) (string, error) {
	return m.record(MockSend{To: to, Body: body, Sections: sections}, models.OutboundKindList)
}

func (m *MockClient) SendLinkButton(ctx context.Context, to, body, label, url string) (string, error) {
	return m.record(MockSend{To: to, Body: body, Label: label, URL: url}, models.OutboundKindLinkButton)
}

func (m *MockClient) SendMedia(ctx context.Context, to string, kind models.OutboundKind, url, caption, filename string) (string, error) {
	return m.record(MockSend{To: to, URL: url, Body: caption}, kind)
}

func (m *MockClient) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Media[mediaID]
	if !ok {
		return nil, "", fmt.Errorf("media %s not found", mediaID)
	}
	return data, "image/jpeg", nil
}
