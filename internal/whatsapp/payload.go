package whatsapp

import "github.com/karabot/karabot/internal/models"

// Wire types for the Cloud API messages endpoint. Field names and nesting
// must match the platform exactly.

type messagePayload struct {
	MessagingProduct string              `json:"messaging_product"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *textBody           `json:"text,omitempty"`
	Interactive      *interactivePayload `json:"interactive,omitempty"`
	Image            *mediaLink          `json:"image,omitempty"`
	Document         *mediaLink          `json:"document,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type interactivePayload struct {
	Type   string             `json:"type"`
	Header *interactiveHeader `json:"header,omitempty"`
	Body   *interactiveText   `json:"body,omitempty"`
	Action *interactiveAction `json:"action,omitempty"`
}

type interactiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interactiveText struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Button   string               `json:"button,omitempty"`
	Buttons  []interactiveButton  `json:"buttons,omitempty"`
	Sections []models.ListSection `json:"sections,omitempty"`
}

type interactiveButton struct {
	Type      string       `json:"type"`
	Reply     *buttonReply `json:"reply,omitempty"`
	URLButton *urlButton   `json:"url_button,omitempty"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type urlButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type mediaLink struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}
