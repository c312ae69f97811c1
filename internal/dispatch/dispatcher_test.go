package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/karabot/karabot/internal/delivery"
	"github.com/karabot/karabot/internal/flow"
	"github.com/karabot/karabot/internal/models"
	"github.com/karabot/karabot/internal/store"
	"github.com/karabot/karabot/internal/whatsapp"
)

func newTestDispatcher(t *testing.T, media *MediaStore) (*Dispatcher, *store.InMemoryStore, *whatsapp.MockClient) {
	t.Helper()
	st := store.NewInMemoryStore()
	mock := whatsapp.NewMockClient()
	engine := flow.NewEngine(flow.Script{}, flow.Config{})
	orch := delivery.NewOrchestrator(mock)
	return NewDispatcher(st, engine, orch, media, NewCounters()), st, mock
}

func envelopeWith(msgs ...models.EnvelopeMessage) models.WebhookEnvelope {
	return models.WebhookEnvelope{
		Entry: []models.WebhookEntry{{
			Changes: []models.WebhookChange{{
				Value: models.WebhookValue{Messages: msgs},
			}},
		}},
	}
}

func textMessage(from, id, body string) models.EnvelopeMessage {
	return models.EnvelopeMessage{
		From: from,
		ID:   id,
		Type: "text",
		Text: &models.TextPayload{Body: body},
	}
}

func countByDirection(t *testing.T, st *store.InMemoryStore, whatsappID string, dir models.Direction) int {
	t.Helper()
	user, err := st.GetOrCreateUser(whatsappID)
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	messages, err := st.ListMessagesByUser(user.ID)
	if err != nil {
		t.Fatalf("ListMessagesByUser failed: %v", err)
	}
	n := 0
	for _, m := range messages {
		if m.Direction == dir {
			n++
		}
	}
	return n
}

func TestHandleEnvelopeDuplicateIsNoOp(t *testing.T) {
	d, st, mock := newTestDispatcher(t, nil)
	env := envelopeWith(textMessage("15550001", "wamid.dup", "hi"))

	d.HandleEnvelope(context.Background(), env)
	firstSends := len(mock.Sent())
	if firstSends == 0 {
		t.Fatal("expected outbound sends for first delivery")
	}

	d.HandleEnvelope(context.Background(), env)
	if got := len(mock.Sent()); got != firstSends {
		t.Errorf("duplicate delivery must not resend: had %d sends, now %d", firstSends, got)
	}
	if got := countByDirection(t, st, "15550001", models.DirectionIncoming); got != 1 {
		t.Errorf("expected exactly 1 stored inbound record, got %d", got)
	}
	if d.Counters().Snapshot()["duplicate_events"] != 1 {
		t.Errorf("expected duplicate counter at 1, got %d", d.Counters().Snapshot()["duplicate_events"])
	}
}

func TestHandleEnvelopeConcurrentDuplicates(t *testing.T) {
	d, st, _ := newTestDispatcher(t, nil)
	env := envelopeWith(textMessage("15550002", "wamid.race", "hello"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.HandleEnvelope(context.Background(), env)
		}()
	}
	wg.Wait()

	if got := countByDirection(t, st, "15550002", models.DirectionIncoming); got != 1 {
		t.Errorf("expected exactly 1 stored inbound record under concurrency, got %d", got)
	}
}

func TestHandleEnvelopeEmptyEnvelopeIsNoOp(t *testing.T) {
	d, _, mock := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), models.WebhookEnvelope{})
	d.HandleEnvelope(context.Background(), envelopeWith())
	d.HandleEnvelope(context.Background(), models.WebhookEnvelope{
		Entry: []models.WebhookEntry{{Changes: []models.WebhookChange{}}},
	})
	if len(mock.Sent()) != 0 {
		t.Errorf("expected no sends for empty envelopes, got %d", len(mock.Sent()))
	}
}

func TestHandleEnvelopeMissingSenderSkipsUnitOnly(t *testing.T) {
	d, st, mock := newTestDispatcher(t, nil)
	env := envelopeWith(
		models.EnvelopeMessage{ID: "wamid.nosender", Type: "text", Text: &models.TextPayload{Body: "hi"}},
		textMessage("15550003", "wamid.sibling", "hi"),
	)
	d.HandleEnvelope(context.Background(), env)

	if got := countByDirection(t, st, "15550003", models.DirectionIncoming); got != 1 {
		t.Errorf("sibling unit should still be processed, got %d records", got)
	}
	if len(mock.Sent()) == 0 {
		t.Error("expected sends for the sibling unit")
	}
	if d.Counters().Snapshot()["malformed_units"] != 1 {
		t.Error("expected malformed unit to be counted")
	}
}

func TestMenuScenario(t *testing.T) {
	d, _, mock := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), envelopeWith(textMessage("15550004", "wamid.menu", "menu")))

	sent := mock.Sent()
	if len(sent) != 3 {
		t.Fatalf("expected welcome, offer, buttons; got %d sends", len(sent))
	}
	if sent[0].Kind != models.OutboundKindText || sent[1].Kind != models.OutboundKindText {
		t.Error("expected two leading text units")
	}
	if sent[2].Kind != models.OutboundKindButtons || len(sent[2].Choices) != 3 {
		t.Fatalf("expected trailing 3-choice button unit, got %+v", sent[2])
	}
}

func TestEmailScenario(t *testing.T) {
	d, _, mock := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), envelopeWith(
		textMessage("15550005", "wamid.email", "I want my.name+tag@example.co to be used"),
	))

	sent := mock.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected acknowledgment and payment options, got %d sends", len(sent))
	}
	if !strings.Contains(sent[0].Body, "my.name+tag@example.co") {
		t.Errorf("expected acknowledgment embedding the address, got %q", sent[0].Body)
	}
	if sent[1].Kind != models.OutboundKindButtons || len(sent[1].Choices) != 3 {
		t.Fatalf("expected 3 payment choices, got %+v", sent[1])
	}
	want := []string{flow.SelectionMeezan, flow.SelectionSadaPay, flow.SelectionBinance}
	for i, id := range want {
		if sent[1].Choices[i].ID != id {
			t.Errorf("payment choice %d: expected %s, got %s", i, id, sent[1].Choices[i].ID)
		}
	}
}

func TestInteractiveSelectionRouting(t *testing.T) {
	d, _, mock := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), envelopeWith(models.EnvelopeMessage{
		From: "15550006",
		ID:   "wamid.btn",
		Type: "interactive",
		Interactive: &models.InteractivePayload{
			Type:        "button_reply",
			ButtonReply: &models.SelectionPayload{ID: flow.SelectionTalkToHuman, Title: "Talk to Human"},
		},
	}))
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Kind != models.OutboundKindText {
		t.Fatalf("expected single terminal text, got %+v", sent)
	}
}

func TestInteractiveEmptySelectionFallsBack(t *testing.T) {
	d, _, mock := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), envelopeWith(models.EnvelopeMessage{
		From: "15550007",
		ID:   "wamid.weird",
		Type: "interactive",
		Interactive: &models.InteractivePayload{
			Type: "nft_share",
		},
	}))
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Body != flow.DefaultFallbackText {
		t.Fatalf("expected fallback reply, got %+v", sent)
	}
}

func TestUnsupportedKindFallsBack(t *testing.T) {
	d, _, mock := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), envelopeWith(models.EnvelopeMessage{
		From: "15550008",
		ID:   "wamid.audio",
		Type: "audio",
	}))
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Body != flow.DefaultFallbackText {
		t.Fatalf("expected fallback reply for unsupported kind, got %+v", sent)
	}
}

func imageMessage(from, id, mediaID, caption string) models.EnvelopeMessage {
	msg := models.EnvelopeMessage{From: from, ID: id, Type: "image"}
	if mediaID != "" || caption != "" {
		msg.Image = &models.MediaPayload{ID: mediaID, Caption: caption}
	}
	return msg
}

func lastIncoming(t *testing.T, st *store.InMemoryStore, whatsappID string) []models.Message {
	t.Helper()
	user, err := st.GetOrCreateUser(whatsappID)
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	messages, err := st.ListMessagesByUser(user.ID)
	if err != nil {
		t.Fatalf("ListMessagesByUser failed: %v", err)
	}
	var incoming []models.Message
	for _, m := range messages {
		if m.Direction == models.DirectionIncoming {
			incoming = append(incoming, m)
		}
	}
	return incoming
}

func TestImageMissingMediaIDStoresPlaceholderAndAcks(t *testing.T) {
	d, st, mock := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), envelopeWith(imageMessage("15550009", "wamid.img1", "", "")))

	incoming := lastIncoming(t, st, "15550009")
	if len(incoming) != 1 || !strings.Contains(incoming[0].Content, "media id missing") {
		t.Errorf("expected placeholder marker, got %+v", incoming)
	}
	if len(mock.Sent()) != 1 || mock.Sent()[0].Kind != models.OutboundKindText {
		t.Error("expected exactly one acknowledgment send")
	}
}

func TestImageFetchSuccessStoresFileAndCaption(t *testing.T) {
	fetcher := whatsapp.NewMockClient()
	fetcher.Media["media-1"] = []byte("fake-image-bytes")
	dir := t.TempDir()
	media, err := NewMediaStore(fetcher, dir)
	if err != nil {
		t.Fatalf("NewMediaStore failed: %v", err)
	}

	d, st, mock := newTestDispatcher(t, media)
	d.HandleEnvelope(context.Background(), envelopeWith(imageMessage("15550010", "wamid.img2", "media-1", "my receipt")))

	incoming := lastIncoming(t, st, "15550010")
	if len(incoming) != 2 {
		t.Fatalf("expected stored-reference and caption records, got %d", len(incoming))
	}
	if !strings.Contains(incoming[0].Content, "image stored") {
		t.Errorf("expected stored marker, got %q", incoming[0].Content)
	}
	if incoming[1].Content != "my receipt" {
		t.Errorf("expected caption record, got %q", incoming[1].Content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one stored file, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.Contains(name, "15550010") || !strings.Contains(name, "media-1") {
		t.Errorf("expected deterministic name from conversation and media id, got %q", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil || string(data) != "fake-image-bytes" {
		t.Errorf("stored bytes mismatch: %v %q", err, data)
	}

	if len(mock.Sent()) != 1 {
		t.Errorf("expected exactly one acknowledgment send, got %d", len(mock.Sent()))
	}
}

func TestImageFetchFailureStoresMarkerAndStillAcks(t *testing.T) {
	fetcher := whatsapp.NewMockClient() // no media registered: every fetch fails
	media, err := NewMediaStore(fetcher, t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaStore failed: %v", err)
	}

	d, st, mock := newTestDispatcher(t, media)
	d.HandleEnvelope(context.Background(), envelopeWith(imageMessage("15550011", "wamid.img3", "gone-404", "payment proof")))

	incoming := lastIncoming(t, st, "15550011")
	if len(incoming) != 1 {
		t.Fatalf("expected single failure marker, got %d records", len(incoming))
	}
	if !strings.Contains(incoming[0].Content, "download failed") || !strings.Contains(incoming[0].Content, "payment proof") {
		t.Errorf("expected failure marker with caption, got %q", incoming[0].Content)
	}
	if len(mock.Sent()) != 1 {
		t.Errorf("download failure must stay invisible: expected one ack, got %d sends", len(mock.Sent()))
	}
	if d.Counters().Snapshot()["media_failures"] != 1 {
		t.Error("expected media failure to be counted")
	}
}

func TestFallbackCounterCoversAllFallbackRoutes(t *testing.T) {
	d, _, _ := newTestDispatcher(t, nil)

	// Unknown selection id.
	d.HandleEnvelope(context.Background(), envelopeWith(models.EnvelopeMessage{
		From: "15550013",
		ID:   "wamid.fb1",
		Type: "interactive",
		Interactive: &models.InteractivePayload{
			Type:        "button_reply",
			ButtonReply: &models.SelectionPayload{ID: "zzz-does-not-exist", Title: "???"},
		},
	}))
	// Unrouted plain text.
	d.HandleEnvelope(context.Background(), envelopeWith(textMessage("15550013", "wamid.fb2", "completely unrelated")))
	// Unknown slash command.
	d.HandleEnvelope(context.Background(), envelopeWith(textMessage("15550013", "wamid.fb3", "/doesnotexist")))
	// Routed selections and text must not count.
	d.HandleEnvelope(context.Background(), envelopeWith(textMessage("15550013", "wamid.fb4", "menu")))

	if got := d.Counters().Snapshot()["fallback_replies"]; got != 3 {
		t.Errorf("expected fallback_replies=3 across routes, got %d", got)
	}
}

func TestDeliveryRecordsPersisted(t *testing.T) {
	d, st, _ := newTestDispatcher(t, nil)
	d.HandleEnvelope(context.Background(), envelopeWith(textMessage("15550012", "wamid.persist", "menu")))

	if got := countByDirection(t, st, "15550012", models.DirectionOutgoing); got != 3 {
		t.Errorf("expected 3 outgoing records for the greeting flow, got %d", got)
	}
}
