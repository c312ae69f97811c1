// Package dispatch normalizes inbound webhook events and drives them
// through the conversation flow.
//
// The dispatcher owns per-unit isolation: a malformed, duplicate, or
// failing unit is counted and logged, and never prevents sibling units or
// the webhook acknowledgment.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/karabot/karabot/internal/delivery"
	"github.com/karabot/karabot/internal/flow"
	"github.com/karabot/karabot/internal/models"
	"github.com/karabot/karabot/internal/store"
)

// Dispatcher routes normalized inbound messages: duplicate guard, identity
// resolution, sub-handler classification, delivery, persistence.
type Dispatcher struct {
	st       store.Store
	engine   *flow.Engine
	orch     *delivery.Orchestrator
	media    *MediaStore
	counters *Counters
}

// NewDispatcher wires the dispatcher's collaborators. media may be nil when
// no media storage is configured; image downloads then record a failure
// marker but the user acknowledgment still goes out.
func NewDispatcher(st store.Store, engine *flow.Engine, orch *delivery.Orchestrator, media *MediaStore, counters *Counters) *Dispatcher {
	if counters == nil {
		counters = NewCounters()
	}
	return &Dispatcher{st: st, engine: engine, orch: orch, media: media, counters: counters}
}

// Counters exposes the error-taxonomy counters.
func (d *Dispatcher) Counters() *Counters {
	return d.counters
}

// HandleEnvelope processes every message unit in a webhook envelope.
// Absent or empty entries, changes, and message lists are a no-op. It never
// returns an error: each unit's failure is contained to that unit.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, env models.WebhookEnvelope) {
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, raw := range change.Value.Messages {
				in := raw.Normalize()
				if in.From == "" {
					d.counters.malformedUnits.Add(1)
					slog.Warn("Dispatcher skipping unit without sender", "remote_id", in.RemoteID, "kind", in.Kind)
					continue
				}
				if err := d.handleInbound(ctx, in); err != nil {
					slog.Error("Dispatcher failed to process inbound unit", "error", err, "from", in.From, "remote_id", in.RemoteID)
				}
			}
		}
	}
}

// handleInbound processes one canonical inbound message end to end.
func (d *Dispatcher) handleInbound(ctx context.Context, in models.InboundMessage) error {
	user, err := d.st.GetOrCreateUser(in.From)
	if err != nil {
		return fmt.Errorf("failed to resolve identity for %s: %w", in.From, err)
	}

	// Duplicate guard: a stored message carrying this remote id is proof of
	// prior handling.
	if in.RemoteID != "" {
		seen, err := d.st.FindMessageByRemoteID(in.RemoteID)
		if err != nil {
			return fmt.Errorf("duplicate check failed for %s: %w", in.RemoteID, err)
		}
		if seen != nil {
			d.counters.duplicateEvents.Add(1)
			slog.Info("Dispatcher skipping duplicate event", "remote_id", in.RemoteID, "from", in.From)
			return nil
		}
	}

	units, err := d.route(ctx, user, in)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateMessage) {
			// Lost the race against a concurrent delivery of the same event;
			// the winner handles it.
			d.counters.duplicateEvents.Add(1)
			slog.Info("Dispatcher skipping concurrent duplicate", "remote_id", in.RemoteID, "from", in.From)
			return nil
		}
		return err
	}

	records := d.orch.Deliver(ctx, in.From, units)
	d.persistDeliveries(user, records)
	return nil
}

// route persists the inbound unit and classifies it into outbound units via
// the matching sub-handler.
func (d *Dispatcher) route(ctx context.Context, user models.User, in models.InboundMessage) ([]models.OutboundUnit, error) {
	switch in.Kind {
	case models.InboundKindText:
		if _, err := d.st.RecordMessage(user.ID, in.Text, models.DirectionIncoming, string(in.Kind), in.RemoteID); err != nil {
			return nil, err
		}
		units, fell := d.engine.RouteText(in.Text)
		if fell {
			d.counters.fallbackReplies.Add(1)
		}
		return units, nil

	case models.InboundKindButton, models.InboundKindList:
		if _, err := d.st.RecordMessage(user.ID, in.SelectionTitle, models.DirectionIncoming, string(in.Kind), in.RemoteID); err != nil {
			return nil, err
		}
		if in.SelectionID == "" {
			d.counters.fallbackReplies.Add(1)
			return d.engine.Fallback(), nil
		}
		units, fell := d.engine.Resolve(in.SelectionID)
		if fell {
			d.counters.fallbackReplies.Add(1)
		}
		return units, nil

	case models.InboundKindImage:
		return d.handleImage(ctx, user, in)

	default:
		if _, err := d.st.RecordMessage(user.ID, "Unsupported message type", models.DirectionIncoming, string(models.InboundKindUnsupported), in.RemoteID); err != nil {
			return nil, err
		}
		d.counters.fallbackReplies.Add(1)
		slog.Warn("Dispatcher received unsupported message type", "from", in.From, "remote_id", in.RemoteID)
		return d.engine.Fallback(), nil
	}
}

// handleImage stores the inbound image (or a marker describing why it could
// not be stored) and always returns the single wait acknowledgment. The
// three sub-outcomes are invisible to the counterparty.
func (d *Dispatcher) handleImage(ctx context.Context, user models.User, in models.InboundMessage) ([]models.OutboundUnit, error) {
	switch {
	case in.MediaID == "":
		d.counters.mediaFailures.Add(1)
		if _, err := d.st.RecordMessage(user.ID, "[image received: media id missing]", models.DirectionIncoming, string(in.Kind), in.RemoteID); err != nil {
			return nil, err
		}

	default:
		filename, fetchErr := d.saveMedia(ctx, user, in)
		if fetchErr != nil {
			d.counters.mediaFailures.Add(1)
			slog.Warn("Dispatcher image download failed", "error", fetchErr, "from", in.From, "media_id", in.MediaID)
			marker := "[image download failed]"
			if in.Caption != "" {
				marker += " " + in.Caption
			}
			if _, err := d.st.RecordMessage(user.ID, marker, models.DirectionIncoming, string(in.Kind), in.RemoteID); err != nil {
				return nil, err
			}
			break
		}
		if _, err := d.st.RecordMessage(user.ID, "[image stored: "+filename+"]", models.DirectionIncoming, string(in.Kind), in.RemoteID); err != nil {
			return nil, err
		}
		if in.Caption != "" {
			if _, err := d.st.RecordMessage(user.ID, in.Caption, models.DirectionIncoming, string(models.InboundKindText), ""); err != nil {
				slog.Error("Dispatcher failed to record image caption", "error", err, "from", in.From)
			}
		}
	}

	return d.engine.ImageReceived(), nil
}

func (d *Dispatcher) saveMedia(ctx context.Context, user models.User, in models.InboundMessage) (string, error) {
	if d.media == nil {
		return "", fmt.Errorf("no media store configured")
	}
	return d.media.Save(ctx, user.WhatsAppID, in.MediaID)
}

// persistDeliveries appends delivery records to the conversation history.
// Failed units are counted but not stored; degraded units are stored with
// their text rendition.
func (d *Dispatcher) persistDeliveries(user models.User, records []models.DeliveryRecord) {
	for _, record := range records {
		if record.Outcome == models.OutcomeFailed {
			d.counters.deliveryFailures.Add(1)
			continue
		}
		content := record.Unit.Body
		switch {
		case record.Outcome == models.OutcomeDegraded:
			d.counters.deliveryFailures.Add(1)
			content = delivery.RenderAsText(record.Unit)
		case record.Unit.Kind == models.OutboundKindImage || record.Unit.Kind == models.OutboundKindDocument:
			content = record.Unit.URL
		}
		if _, err := d.st.RecordMessage(user.ID, content, models.DirectionOutgoing, string(record.Unit.Kind), record.RemoteID); err != nil {
			slog.Error("Dispatcher failed to persist delivery record", "error", err, "user_id", user.ID, "kind", record.Unit.Kind)
		}
	}
}
