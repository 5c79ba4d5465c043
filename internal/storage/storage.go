// Package storage abstracts where profile images live.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// ImageStorage defines the interface for profile image operations.
type ImageStorage interface {
	// Upload stores an image and returns the result with public ID and URL.
	Upload(ctx context.Context, input *UploadInput) (*UploadResult, error)

	// Delete removes an image by its public ID.
	Delete(ctx context.Context, publicID string) error

	// GetURL returns the public URL for the given public ID.
	GetURL(ctx context.Context, publicID string) (string, error)
}

// UploadInput holds the parameters for uploading an image.
type UploadInput struct {
	PublicID    string
	ContentType string
	Data        []byte
}

// UploadResult holds the result of a successful upload.
type UploadResult struct {
	PublicID string
	URL      string
}

// ParseDataURL decodes an RFC 2397 data URL of the form
// "data:image/png;base64,...." into its content type and raw bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL: missing payload")
	}

	contentType, encoding, hasEncoding := strings.Cut(meta, ";")
	if !hasEncoding || encoding != "base64" {
		return "", nil, fmt.Errorf("unsupported data URL encoding: %q", meta)
	}

	if contentType == "" {
		contentType = "text/plain"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL payload: %w", err)
	}

	return contentType, data, nil
}
