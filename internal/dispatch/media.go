package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MediaFetcher resolves a short-lived media id to its bytes and mime type.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// unsafeNameChars matches every character not allowed in a stored filename.
var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// MediaStore downloads inbound media and stores it under a deterministic
// name derived from the conversation and the remote media id. Re-downloads
// for the same key overwrite: last write wins.
type MediaStore struct {
	fetcher MediaFetcher
	dir     string
}

// NewMediaStore creates a media store writing into dir.
func NewMediaStore(fetcher MediaFetcher, dir string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &MediaStore{fetcher: fetcher, dir: dir}, nil
}

// Save fetches the media and writes it to disk, returning the stored
// filename.
func (m *MediaStore) Save(ctx context.Context, conversationID, mediaID string) (string, error) {
	data, mimeType, err := m.fetcher.FetchMedia(ctx, mediaID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch media %s: %w", mediaID, err)
	}

	name := sanitizeName(conversationID) + "_" + sanitizeName(mediaID) + extensionFor(mimeType)
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to store media %s: %w", mediaID, err)
	}
	slog.Debug("MediaStore stored inbound media", "file", name, "bytes", len(data))
	return name, nil
}

func sanitizeName(s string) string {
	return unsafeNameChars.ReplaceAllString(s, "_")
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
