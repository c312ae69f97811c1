package models

import (
	"errors"
	"testing"
)

func TestOutboundUnitValidate(t *testing.T) {
	cases := []struct {
		name string
		unit OutboundUnit
		want error
	}{
		{"valid text", TextUnit("hello"), nil},
		{"text without body", OutboundUnit{Kind: OutboundKindText}, ErrEmptyBody},
		{"valid image", ImageUnit("https://x/y.png", "caption"), nil},
		{"image without url", OutboundUnit{Kind: OutboundKindImage}, ErrEmptyLinkURL},
		{"valid buttons", ButtonsUnit("pick", ButtonChoice{ID: "a", Title: "A"}), nil},
		{"buttons without choices", ButtonsUnit("pick"), ErrNoChoices},
		{
			"too many buttons",
			ButtonsUnit("pick",
				ButtonChoice{ID: "a"}, ButtonChoice{ID: "b"},
				ButtonChoice{ID: "c"}, ButtonChoice{ID: "d"},
			),
			ErrTooManyChoices,
		},
		{"valid list", ListUnit("Header", "body", []ListRow{{ID: "r1", Title: "Row"}}), nil},
		{"list without sections", OutboundUnit{Kind: OutboundKindList, Body: "body"}, ErrNoChoices},
		{"valid link button", LinkButtonUnit("details", "Learn More", "https://x"), nil},
		{"link button without url", OutboundUnit{Kind: OutboundKindLinkButton, Body: "details"}, ErrEmptyLinkURL},
		{"unknown kind", OutboundUnit{Kind: "carrier_pigeon", Body: "coo"}, ErrInvalidUnitKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.unit.Validate()
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestListUnitRowLimit(t *testing.T) {
	rows := make([]ListRow, MaxListRows+1)
	for i := range rows {
		rows[i] = ListRow{ID: "r", Title: "Row"}
	}
	if err := ListUnit("H", "b", rows).Validate(); !errors.Is(err, ErrTooManyRows) {
		t.Errorf("expected ErrTooManyRows, got %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	in := EnvelopeMessage{
		From: "15550400",
		ID:   "wamid.n1",
		Type: "text",
		Text: &TextPayload{Body: "hello there"},
	}.Normalize()
	if in.Kind != InboundKindText || in.Text != "hello there" || in.From != "15550400" || in.RemoteID != "wamid.n1" {
		t.Errorf("unexpected normalization: %+v", in)
	}
}

func TestNormalizeButtonReply(t *testing.T) {
	in := EnvelopeMessage{
		From: "15550401",
		ID:   "wamid.n2",
		Type: "interactive",
		Interactive: &InteractivePayload{
			Type:        "button_reply",
			ButtonReply: &SelectionPayload{ID: "buy", Title: "Buy Now"},
		},
	}.Normalize()
	if in.Kind != InboundKindButton || in.SelectionID != "buy" || in.SelectionTitle != "Buy Now" {
		t.Errorf("unexpected normalization: %+v", in)
	}
}

func TestNormalizeListReply(t *testing.T) {
	in := EnvelopeMessage{
		From: "15550402",
		ID:   "wamid.n3",
		Type: "interactive",
		Interactive: &InteractivePayload{
			Type:      "list_reply",
			ListReply: &SelectionPayload{ID: "netflix_1m", Title: "1 Month"},
		},
	}.Normalize()
	if in.Kind != InboundKindList || in.SelectionID != "netflix_1m" {
		t.Errorf("unexpected normalization: %+v", in)
	}
}

func TestNormalizeImage(t *testing.T) {
	in := EnvelopeMessage{
		From:  "15550403",
		ID:    "wamid.n4",
		Type:  "image",
		Image: &MediaPayload{ID: "media-9", Caption: "receipt"},
	}.Normalize()
	if in.Kind != InboundKindImage || in.MediaID != "media-9" || in.Caption != "receipt" {
		t.Errorf("unexpected normalization: %+v", in)
	}

	// An image without a payload still classifies; the media id is just empty.
	bare := EnvelopeMessage{From: "15550403", ID: "wamid.n5", Type: "image"}.Normalize()
	if bare.Kind != InboundKindImage || bare.MediaID != "" {
		t.Errorf("unexpected normalization: %+v", bare)
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	cases := []EnvelopeMessage{
		{From: "1", ID: "w1", Type: "audio"},
		{From: "1", ID: "w2", Type: "sticker"},
		{From: "1", ID: "w3", Type: "interactive"},
		{From: "1", ID: "w4", Type: "interactive", Interactive: &InteractivePayload{Type: "nft_share"}},
		{From: "1", ID: "w5", Type: "interactive", Interactive: &InteractivePayload{Type: "button_reply"}},
		{From: "1", ID: "w6", Type: ""},
	}
	for _, msg := range cases {
		if in := msg.Normalize(); in.Kind != InboundKindUnsupported {
			t.Errorf("type %q/%+v: expected unsupported, got %s", msg.Type, msg.Interactive, in.Kind)
		}
	}
}

func TestNormalizeTextWithoutPayload(t *testing.T) {
	in := EnvelopeMessage{From: "15550404", ID: "wamid.n6", Type: "text"}.Normalize()
	if in.Kind != InboundKindText || in.Text != "" {
		t.Errorf("unexpected normalization: %+v", in)
	}
}
