// Package models defines the core data structures for KaraBot.
//
// It includes the canonical inbound event, the outbound unit union consumed
// by the delivery orchestrator, delivery records, and the persistence row
// types shared across modules.
package models

import (
	"errors"
	"time"
)

// InboundKind classifies a normalized inbound message.
type InboundKind string

const (
	// InboundKindText is a plain text message.
	InboundKindText InboundKind = "text"
	// InboundKindButton is a reply-button selection.
	InboundKindButton InboundKind = "interactive_button"
	// InboundKindList is a list-menu selection.
	InboundKindList InboundKind = "interactive_list"
	// InboundKindImage is an image upload.
	InboundKindImage InboundKind = "image"
	// InboundKindUnsupported covers every message type the bot does not handle.
	InboundKindUnsupported InboundKind = "unsupported"
)

// Direction marks which way a stored message travelled.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// InboundMessage is the canonical form of one message unit extracted from a
// webhook envelope. RemoteID is the platform message id and, when present,
// the idempotence key; some event kinds arrive without one.
type InboundMessage struct {
	RemoteID       string
	From           string
	Kind           InboundKind
	Text           string
	SelectionID    string
	SelectionTitle string
	MediaID        string
	Caption        string
}

// OutboundKind identifies the variant of an outbound unit.
type OutboundKind string

const (
	OutboundKindText       OutboundKind = "text"
	OutboundKindImage      OutboundKind = "image"
	OutboundKindDocument   OutboundKind = "document"
	OutboundKindButtons    OutboundKind = "buttons"
	OutboundKindList       OutboundKind = "list"
	OutboundKindLinkButton OutboundKind = "link_button"
)

// Validation constants for outbound units.
const (
	// MaxButtonChoices is the WhatsApp limit on reply buttons per message.
	MaxButtonChoices = 3
	// MaxListRows is the WhatsApp limit on rows in a single list section.
	MaxListRows = 10
	// MaxButtonTitleLength is the WhatsApp limit on button title length.
	MaxButtonTitleLength = 20
)

// Error variables for better error handling and testability.
var (
	ErrInvalidUnitKind  = errors.New("invalid outbound unit kind")
	ErrEmptyBody        = errors.New("body is required")
	ErrNoChoices        = errors.New("at least one choice is required")
	ErrTooManyChoices   = errors.New("too many button choices")
	ErrTooManyRows      = errors.New("too many list rows")
	ErrEmptyLinkURL     = errors.New("link URL is required")
	ErrDuplicateMessage = errors.New("message with this remote id already recorded")
	ErrUserNotFound     = errors.New("user not found")
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrInvalidScript    = errors.New("invalid script definition")
)

// ButtonChoice is one selectable reply button.
type ButtonChoice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListRow is one selectable row inside a list section.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups rows under a section title.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// OutboundUnit is one discrete message the flow engine intends to send.
// It is a tagged union: Kind selects which fields are meaningful. Units are
// immutable after creation and consumed exactly once by the orchestrator.
type OutboundUnit struct {
	Kind     OutboundKind   `json:"kind"`
	Body     string         `json:"body,omitempty"`
	URL      string         `json:"url,omitempty"`
	Caption  string         `json:"caption,omitempty"`
	Filename string         `json:"filename,omitempty"`
	Header   string         `json:"header,omitempty"`
	Choices  []ButtonChoice `json:"choices,omitempty"`
	Sections []ListSection  `json:"sections,omitempty"`
	Label    string         `json:"label,omitempty"`
	LinkURL  string         `json:"link_url,omitempty"`
}

// Validate checks the structural constraints of the unit for its kind.
func (u OutboundUnit) Validate() error {
	switch u.Kind {
	case OutboundKindText:
		if u.Body == "" {
			return ErrEmptyBody
		}
	case OutboundKindImage, OutboundKindDocument:
		if u.URL == "" {
			return ErrEmptyLinkURL
		}
	case OutboundKindButtons:
		if u.Body == "" {
			return ErrEmptyBody
		}
		if len(u.Choices) == 0 {
			return ErrNoChoices
		}
		if len(u.Choices) > MaxButtonChoices {
			return ErrTooManyChoices
		}
	case OutboundKindList:
		if u.Body == "" {
			return ErrEmptyBody
		}
		if len(u.Sections) == 0 {
			return ErrNoChoices
		}
		for _, sec := range u.Sections {
			if len(sec.Rows) > MaxListRows {
				return ErrTooManyRows
			}
		}
	case OutboundKindLinkButton:
		if u.Body == "" {
			return ErrEmptyBody
		}
		if u.LinkURL == "" {
			return ErrEmptyLinkURL
		}
	default:
		return ErrInvalidUnitKind
	}
	return nil
}

// TextUnit builds a plain text unit.
func TextUnit(body string) OutboundUnit {
	return OutboundUnit{Kind: OutboundKindText, Body: body}
}

// ImageUnit builds an image unit from a public link.
func ImageUnit(url, caption string) OutboundUnit {
	return OutboundUnit{Kind: OutboundKindImage, URL: url, Caption: caption}
}

// ButtonsUnit builds a reply-button unit.
func ButtonsUnit(body string, choices ...ButtonChoice) OutboundUnit {
	return OutboundUnit{Kind: OutboundKindButtons, Body: body, Choices: choices}
}

// ListUnit builds a single-section list unit.
func ListUnit(header, body string, rows []ListRow) OutboundUnit {
	return OutboundUnit{
		Kind:     OutboundKindList,
		Header:   header,
		Body:     body,
		Sections: []ListSection{{Title: header, Rows: rows}},
	}
}

// LinkButtonUnit builds an external-link button unit.
func LinkButtonUnit(body, label, url string) OutboundUnit {
	return OutboundUnit{Kind: OutboundKindLinkButton, Body: body, Label: label, LinkURL: url}
}

// DeliveryOutcome describes what happened to one outbound unit.
type DeliveryOutcome string

const (
	// OutcomeDelivered means the unit went out as composed.
	OutcomeDelivered DeliveryOutcome = "delivered"
	// OutcomeDegraded means an interactive unit was re-sent as plain text.
	OutcomeDegraded DeliveryOutcome = "degraded_to_text"
	// OutcomeFailed means the unit was not delivered in any form.
	OutcomeFailed DeliveryOutcome = "failed"
)

// DeliveryRecord pairs an outbound unit with its delivery outcome. RemoteID
// is set for delivered and degraded outcomes only.
type DeliveryRecord struct {
	Unit     OutboundUnit    `json:"unit"`
	Outcome  DeliveryOutcome `json:"outcome"`
	RemoteID string          `json:"remote_id,omitempty"`
}

// User is one conversation identity: the durable handle for an external
// counterparty, keyed by the platform-assigned WhatsApp id.
type User struct {
	ID         int64     `json:"id"`
	WhatsAppID string    `json:"whatsapp_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is one stored conversation entry, inbound or outbound. RemoteID
// holds the platform message id when known; its uniqueness in the store is
// the duplicate guard's proof of prior handling.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	Kind      string    `json:"message_type"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
	RemoteID  string    `json:"whatsapp_message_id,omitempty"`
}
