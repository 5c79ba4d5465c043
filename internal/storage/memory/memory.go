// Package memory provides an in-process ImageStorage used for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ensp1re/beaura-api/internal/storage"
)

// imageEntry stores an uploaded image and its metadata in memory.
type imageEntry struct {
	PublicID    string
	ContentType string
	Data        []byte
	URL         string
}

// Storage implements storage.ImageStorage using an in-memory map.
type Storage struct {
	mu      sync.RWMutex
	images  map[string]*imageEntry
	baseURL string
}

// New creates a new in-memory image storage instance.
func New(baseURL string) *Storage {
	return &Storage{
		images:  make(map[string]*imageEntry),
		baseURL: baseURL,
	}
}

// Upload stores the image in memory and returns the generated URL.
func (s *Storage) Upload(_ context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	url := fmt.Sprintf("%s/images/%s", s.baseURL, input.PublicID)

	s.images[input.PublicID] = &imageEntry{
		PublicID:    input.PublicID,
		ContentType: input.ContentType,
		Data:        input.Data,
		URL:         url,
	}

	return &storage.UploadResult{
		PublicID: input.PublicID,
		URL:      url,
	}, nil
}

// Delete removes an image from memory.
func (s *Storage) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.images[publicID]; !exists {
		return fmt.Errorf("image not found: %s", publicID)
	}

	delete(s.images, publicID)
	return nil
}

// GetURL returns the URL for the given public ID.
func (s *Storage) GetURL(_ context.Context, publicID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.images[publicID]
	if !exists {
		return "", fmt.Errorf("image not found: %s", publicID)
	}

	return entry.URL, nil
}
