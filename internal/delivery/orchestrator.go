package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/karabot/karabot/internal/models"
)

// Orchestrator sends outbound units through a Port and records per-unit
// outcomes. Degrade policy:
//   - buttons/list: on failure, re-render the same content as one text unit
//     and send that instead; the degraded send is never degraded again
//   - link button: on failure, omit the unit entirely
//   - text/image/document: on failure, drop the unit (retries belong to the
//     Port, not this layer)
type Orchestrator struct {
	port Port
}

// NewOrchestrator creates an orchestrator over the given delivery port.
func NewOrchestrator(port Port) *Orchestrator {
	return &Orchestrator{port: port}
}

// Deliver sends every unit in order and returns one record per unit. A
// failed unit never stops the rest of the batch; Deliver itself never fails.
func (o *Orchestrator) Deliver(ctx context.Context, to string, units []models.OutboundUnit) []models.DeliveryRecord {
	records := make([]models.DeliveryRecord, 0, len(units))
	for _, unit := range units {
		records = append(records, o.deliverUnit(ctx, to, unit))
	}
	return records
}

func (o *Orchestrator) deliverUnit(ctx context.Context, to string, unit models.OutboundUnit) models.DeliveryRecord {
	remoteID, err := o.send(ctx, to, unit)
	if err == nil {
		return models.DeliveryRecord{Unit: unit, Outcome: models.OutcomeDelivered, RemoteID: remoteID}
	}
	slog.Warn("Orchestrator send failed", "error", err, "to", to, "kind", unit.Kind)

	switch unit.Kind {
	case models.OutboundKindButtons, models.OutboundKindList:
		degraded := RenderAsText(unit)
		remoteID, degradeErr := o.port.SendText(ctx, to, degraded)
		if degradeErr != nil {
			slog.Warn("Orchestrator degraded send failed", "error", degradeErr, "to", to, "kind", unit.Kind)
			return models.DeliveryRecord{Unit: unit, Outcome: models.OutcomeFailed}
		}
		return models.DeliveryRecord{Unit: unit, Outcome: models.OutcomeDegraded, RemoteID: remoteID}
	default:
		// Link buttons are non-critical and dropped outright, like plain
		// text and media.
		return models.DeliveryRecord{Unit: unit, Outcome: models.OutcomeFailed}
	}
}

func (o *Orchestrator) send(ctx context.Context, to string, unit models.OutboundUnit) (string, error) {
	if err := unit.Validate(); err != nil {
		return "", fmt.Errorf("invalid outbound unit: %w", err)
	}
	switch unit.Kind {
	case models.OutboundKindText:
		return o.port.SendText(ctx, to, unit.Body)
	case models.OutboundKindButtons:
		return o.port.SendButtons(ctx, to, unit.Body, unit.Choices)
	case models.OutboundKindList:
		return o.port.SendList(ctx, to, unit.Header, unit.Body, unit.Sections)
	case models.OutboundKindLinkButton:
		return o.port.SendLinkButton(ctx, to, unit.Body, unit.Label, unit.LinkURL)
	case models.OutboundKindImage, models.OutboundKindDocument:
		return o.port.SendMedia(ctx, to, unit.Kind, unit.URL, unit.Caption, unit.Filename)
	default:
		return "", models.ErrInvalidUnitKind
	}
}

// RenderAsText flattens an interactive unit into a plain text rendition:
// the body, a blank line, "Options:", and one bullet per choice title.
func RenderAsText(unit models.OutboundUnit) string {
	var b strings.Builder
	b.WriteString(unit.Body)
	b.WriteString("\n\nOptions:")
	switch unit.Kind {
	case models.OutboundKindButtons:
		for _, c := range unit.Choices {
			b.WriteString("\n- ")
			b.WriteString(c.Title)
		}
	case models.OutboundKindList:
		for _, sec := range unit.Sections {
			for _, row := range sec.Rows {
				b.WriteString("\n- ")
				b.WriteString(row.Title)
			}
		}
	}
	return b.String()
}
