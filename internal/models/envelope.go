// Package models: webhook envelope types for the WhatsApp Cloud API.
//
// The envelope nests entries -> changes -> value -> messages. Every level
// may be absent or empty; an empty envelope is a no-op, not an error.
package models

// WebhookEnvelope is the top-level POST body delivered by the platform.
type WebhookEnvelope struct {
	Object string         `json:"object,omitempty"`
	Entry  []WebhookEntry `json:"entry,omitempty"`
}

// WebhookEntry is one account-level entry inside an envelope.
type WebhookEntry struct {
	ID      string          `json:"id,omitempty"`
	Changes []WebhookChange `json:"changes,omitempty"`
}

// WebhookChange carries one batch of message events.
type WebhookChange struct {
	Field string       `json:"field,omitempty"`
	Value WebhookValue `json:"value,omitempty"`
}

// WebhookValue holds the messages of a change.
type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product,omitempty"`
	Messages         []EnvelopeMessage `json:"messages,omitempty"`
}

// EnvelopeMessage is one raw inbound message unit as delivered on the wire.
type EnvelopeMessage struct {
	From        string              `json:"from,omitempty"`
	ID          string              `json:"id,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Type        string              `json:"type,omitempty"`
	Text        *TextPayload        `json:"text,omitempty"`
	Interactive *InteractivePayload `json:"interactive,omitempty"`
	Image       *MediaPayload       `json:"image,omitempty"`
}

// TextPayload is the body of a text message.
type TextPayload struct {
	Body string `json:"body"`
}

// InteractivePayload carries a button or list selection.
type InteractivePayload struct {
	Type        string            `json:"type"`
	ButtonReply *SelectionPayload `json:"button_reply,omitempty"`
	ListReply   *SelectionPayload `json:"list_reply,omitempty"`
}

// SelectionPayload identifies the chosen option.
type SelectionPayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MediaPayload references uploaded media by its short-lived platform id.
type MediaPayload struct {
	ID       string `json:"id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// Normalize converts a raw envelope message into its canonical form.
// Unrecognized message and interactive types map to InboundKindUnsupported;
// classification never fails.
func (m EnvelopeMessage) Normalize() InboundMessage {
	in := InboundMessage{
		RemoteID: m.ID,
		From:     m.From,
	}
	switch m.Type {
	case "text":
		in.Kind = InboundKindText
		if m.Text != nil {
			in.Text = m.Text.Body
		}
	case "interactive":
		switch {
		case m.Interactive == nil:
			in.Kind = InboundKindUnsupported
		case m.Interactive.Type == "button_reply" && m.Interactive.ButtonReply != nil:
			in.Kind = InboundKindButton
			in.SelectionID = m.Interactive.ButtonReply.ID
			in.SelectionTitle = m.Interactive.ButtonReply.Title
		case m.Interactive.Type == "list_reply" && m.Interactive.ListReply != nil:
			in.Kind = InboundKindList
			in.SelectionID = m.Interactive.ListReply.ID
			in.SelectionTitle = m.Interactive.ListReply.Title
		default:
			in.Kind = InboundKindUnsupported
		}
	case "image":
		in.Kind = InboundKindImage
		if m.Image != nil {
			in.MediaID = m.Image.ID
			in.Caption = m.Image.Caption
		}
	default:
		in.Kind = InboundKindUnsupported
	}
	return in
}
