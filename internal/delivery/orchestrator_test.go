package delivery

import (
	"context"
	"strings"
	"testing"

	"github.com/karabot/karabot/internal/models"
	"github.com/karabot/karabot/internal/whatsapp"
)

func interactiveBatch() []models.OutboundUnit {
	return []models.OutboundUnit{
		models.TextUnit("Welcome!"),
		models.ButtonsUnit("Pick one:",
			models.ButtonChoice{ID: "a", Title: "Alpha"},
			models.ButtonChoice{ID: "b", Title: "Beta"},
		),
		models.ListUnit("Menu", "Choose:", []models.ListRow{
			{ID: "x", Title: "Xray"},
			{ID: "y", Title: "Yankee"},
		}),
	}
}

func TestDeliverAllSucceed(t *testing.T) {
	mock := whatsapp.NewMockClient()
	orch := NewOrchestrator(mock)

	records := orch.Deliver(context.Background(), "123", interactiveBatch())
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Outcome != models.OutcomeDelivered {
			t.Errorf("record %d: expected delivered, got %s", i, r.Outcome)
		}
		if r.RemoteID == "" {
			t.Errorf("record %d: expected a remote id", i)
		}
	}
}

// Degrade law: interactive failures become delivered text units containing
// every original choice title as a bullet line; non-interactive units in
// the same batch are unaffected.
func TestDeliverDegradesInteractiveToText(t *testing.T) {
	mock := whatsapp.NewMockClient()
	mock.FailKinds[models.OutboundKindButtons] = true
	mock.FailKinds[models.OutboundKindList] = true
	orch := NewOrchestrator(mock)

	records := orch.Deliver(context.Background(), "123", interactiveBatch())

	if records[0].Outcome != models.OutcomeDelivered {
		t.Errorf("text unit should be unaffected, got %s", records[0].Outcome)
	}
	for i, titles := range map[int][]string{1: {"Alpha", "Beta"}, 2: {"Xray", "Yankee"}} {
		r := records[i]
		if r.Outcome != models.OutcomeDegraded {
			t.Fatalf("record %d: expected degraded, got %s", i, r.Outcome)
		}
		if r.RemoteID == "" {
			t.Errorf("record %d: degraded send should carry a remote id", i)
		}
		rendered := RenderAsText(r.Unit)
		if !strings.Contains(rendered, "Options:") {
			t.Errorf("record %d: degraded text missing Options header", i)
		}
		for _, title := range titles {
			if !strings.Contains(rendered, "- "+title) {
				t.Errorf("record %d: degraded text missing bullet for %s", i, title)
			}
		}
	}

	// The degraded sends arrive as text.
	sent := mock.Sent()
	if len(sent) != 3 {
		t.Fatalf("expected 3 successful sends, got %d", len(sent))
	}
	if sent[1].Kind != models.OutboundKindText || sent[2].Kind != models.OutboundKindText {
		t.Error("expected degraded sends to go out as text")
	}
}

func TestDeliverDegradedSendFailureIsTerminal(t *testing.T) {
	mock := whatsapp.NewMockClient()
	mock.FailAll = true
	orch := NewOrchestrator(mock)

	records := orch.Deliver(context.Background(), "123", []models.OutboundUnit{
		models.ButtonsUnit("Pick:", models.ButtonChoice{ID: "a", Title: "Alpha"}),
	})
	if records[0].Outcome != models.OutcomeFailed {
		t.Errorf("expected failed after degraded send also failed, got %s", records[0].Outcome)
	}
	if records[0].RemoteID != "" {
		t.Error("failed record must not carry a remote id")
	}
}

func TestDeliverLinkButtonFailureIsOmitted(t *testing.T) {
	mock := whatsapp.NewMockClient()
	mock.FailKinds[models.OutboundKindLinkButton] = true
	orch := NewOrchestrator(mock)

	records := orch.Deliver(context.Background(), "123", []models.OutboundUnit{
		models.LinkButtonUnit("Details here", "Learn More", "https://example.com"),
		models.TextUnit("after"),
	})
	if records[0].Outcome != models.OutcomeFailed {
		t.Errorf("expected link button to fail without degrade, got %s", records[0].Outcome)
	}
	// No degraded text was attempted for the link button.
	for _, send := range mock.Sent() {
		if strings.Contains(send.Body, "Options:") {
			t.Error("link button must not degrade to text")
		}
	}
	if records[1].Outcome != models.OutcomeDelivered {
		t.Error("subsequent units must still be delivered")
	}
}

func TestDeliverPlainFailureIsDropped(t *testing.T) {
	mock := whatsapp.NewMockClient()
	mock.FailKinds[models.OutboundKindImage] = true
	orch := NewOrchestrator(mock)

	records := orch.Deliver(context.Background(), "123", []models.OutboundUnit{
		models.ImageUnit("https://example.com/a.png", ""),
		models.TextUnit("still here"),
	})
	if records[0].Outcome != models.OutcomeFailed {
		t.Errorf("expected image failure to be dropped, got %s", records[0].Outcome)
	}
	if records[1].Outcome != models.OutcomeDelivered {
		t.Error("sibling unit must still be delivered")
	}
}
