// Package whatsapp wraps the Meta WhatsApp Cloud API for KaraBot.
//
// It implements the delivery port over the Graph messages endpoint and the
// two-step media fetch (media id -> short-lived URL -> bytes).
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/karabot/karabot/internal/models"
)

// Constants for WhatsApp client configuration.
const (
	// DefaultBaseURL is the Graph API root.
	DefaultBaseURL = "https://graph.facebook.com"
	// APIVersion is the Graph API version the payloads are written against.
	APIVersion = "v18.0"
	// DefaultRequestTimeout bounds every outbound API call.
	DefaultRequestTimeout = 10 * time.Second
	// MaxMediaDownloadBytes caps a single media download.
	MaxMediaDownloadBytes = 25 << 20
)

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithToken sets the Cloud API bearer token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithPhoneNumberID sets the sending phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) {
		o.PhoneNumberID = id
	}
}

// WithBaseURL overrides the Graph API root (used by tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Client is a thin wrapper around the Cloud API messages endpoint.
type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

// NewClient creates a new WhatsApp Cloud API client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("WhatsApp token not set")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("WhatsApp phone number id not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	slog.Debug("WhatsApp client configured", "base_url", cfg.BaseURL, "phone_number_id", cfg.PhoneNumberID)
	return &Client{
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       cfg.BaseURL,
		httpClient:    httpClient,
	}, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.sendMessage(ctx, messagePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendButtons sends an interactive reply-button message.
func (c *Client) SendButtons(ctx context.Context, to, body string, choices []models.ButtonChoice) (string, error) {
	buttons := make([]interactiveButton, 0, len(choices))
	for _, choice := range choices {
		buttons = append(buttons, interactiveButton{
			Type:  "reply",
			Reply: &buttonReply{ID: choice.ID, Title: truncate(choice.Title, models.MaxButtonTitleLength)},
		})
	}
	return c.sendMessage(ctx, messagePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive: &interactivePayload{
			Type:   "button",
			Body:   &interactiveText{Text: body},
			Action: &interactiveAction{Buttons: buttons},
		},
	})
}

// SendList sends an interactive list menu.
func (c *Client) SendList(ctx context.Context, to, header, body string, sections []models.ListSection) (string, error) {
	return c.sendMessage(ctx, messagePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive: &interactivePayload{
			Type:   "list",
			Header: &interactiveHeader{Type: "text", Text: header},
			Body:   &interactiveText{Text: body},
			Action: &interactiveAction{Button: "View Options", Sections: sections},
		},
	})
}

// SendLinkButton sends a single URL button opening an external website.
// The button label is truncated to the platform's 20-character limit.
func (c *Client) SendLinkButton(ctx context.Context, to, body, label, url string) (string, error) {
	return c.sendMessage(ctx, messagePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive: &interactivePayload{
			Type: "button",
			Body: &interactiveText{Text: body},
			Action: &interactiveAction{
				Buttons: []interactiveButton{{
					Type:      "url",
					URLButton: &urlButton{Text: truncate(label, models.MaxButtonTitleLength), URL: url},
				}},
			},
		},
	})
}

// SendMedia sends an image or document by public link.
func (c *Client) SendMedia(ctx context.Context, to string, kind models.OutboundKind, url, caption, filename string) (string, error) {
	payload := messagePayload{
		MessagingProduct: "whatsapp",
		To:               to,
	}
	switch kind {
	case models.OutboundKindImage:
		payload.Type = "image"
		payload.Image = &mediaLink{Link: url, Caption: caption}
	case models.OutboundKindDocument:
		payload.Type = "document"
		payload.Document = &mediaLink{Link: url, Caption: caption, Filename: filename}
	default:
		return "", fmt.Errorf("media kind must be image or document, got %s", kind)
	}
	return c.sendMessage(ctx, payload)
}

// sendMessage posts one payload to the messages endpoint and extracts the
// platform-assigned message id from the response.
func (c *Client) sendMessage(ctx context.Context, payload messagePayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, APIVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("WhatsApp send request failed", "error", err, "to", payload.To, "type", payload.Type)
		return "", fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("WhatsApp send rejected", "status", resp.StatusCode, "to", payload.To, "type", payload.Type, "body", string(respBody))
		return "", fmt.Errorf("send rejected with status %d", resp.StatusCode)
	}

	remoteID := extractMessageID(respBody)
	slog.Info("WhatsApp message sent", "to", payload.To, "type", payload.Type, "remote_id", remoteID)
	return remoteID, nil
}

// ResolveMediaURL resolves a short-lived media id to a download URL.
func (c *Client) ResolveMediaURL(ctx context.Context, mediaID string) (string, string, error) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, APIVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build media lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("media lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("media lookup rejected with status %d", resp.StatusCode)
	}

	var info struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", "", fmt.Errorf("failed to decode media lookup response: %w", err)
	}
	if info.URL == "" {
		return "", "", fmt.Errorf("media lookup returned no URL for id %s", mediaID)
	}
	return info.URL, info.MimeType, nil
}

// DownloadMedia fetches the bytes behind a previously resolved media URL.
func (c *Client) DownloadMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download rejected with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read media bytes: %w", err)
	}
	return data, nil
}

// FetchMedia performs the full two-step fetch and returns the media bytes
// with their mime type.
func (c *Client) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	url, mimeType, err := c.ResolveMediaURL(ctx, mediaID)
	if err != nil {
		return nil, "", err
	}
	data, err := c.DownloadMedia(ctx, url)
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

// extractMessageID safely pulls the message id out of a send API response.
// A response without one yields an empty id, not an error.
func extractMessageID(body []byte) string {
	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if len(parsed.Messages) == 0 {
		return ""
	}
	return parsed.Messages[0].ID
}

// truncate shortens s to at most max characters. The limit counts runes,
// not bytes, so multibyte titles are never cut mid-rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
