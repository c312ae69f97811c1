// Package delivery walks outbound unit lists and applies the degrade policy.
//
// The Port interface is the single seam to the messaging platform's send
// API; the orchestrator owns what happens when a send fails.
package delivery

import (
	"context"

	"github.com/karabot/karabot/internal/models"
)

// Port abstracts sending one outbound unit to a recipient. Every call is
// synchronous with a bounded timeout; a failed send is an error value, never
// a panic. The returned string is the platform-assigned message id.
type Port interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendButtons(ctx context.Context, to, body string, choices []models.ButtonChoice) (string, error)
	SendList(ctx context.Context, to, header, body string, sections []models.ListSection) (string, error)
	SendLinkButton(ctx context.Context, to, body, label, url string) (string, error)
	SendMedia(ctx context.Context, to string, kind models.OutboundKind, url, caption, filename string) (string, error)
}
