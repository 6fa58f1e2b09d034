package memory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"lender_directory/internal/domain"
)

type blob struct {
	data        []byte
	contentType string
}

// Blobs keeps objects in a map and serves public URLs under BaseURL.
type Blobs struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]blob
}

func NewBlobs(baseURL string) *Blobs {
	if baseURL == "" {
		baseURL = "http://blobs.local/criteria-sheets"
	}
	return &Blobs{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string]blob{}}
}

func (b *Blobs) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("blob name: %w", domain.ErrValidation)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[name]; ok {
		return "", fmt.Errorf("blob %s: %w", name, domain.ErrConstraint)
	}
	b.objects[name] = blob{data: append([]byte{}, data...), contentType: contentType}
	return name, nil
}

func (b *Blobs) PublicURL(name string) string {
	return b.BaseURL + "/" + url.PathEscape(name)
}

func (b *Blobs) Delete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[name]; !ok {
		return fmt.Errorf("blob %s: %w", name, domain.ErrNotFound)
	}
	delete(b.objects, name)
	return nil
}

// Has reports whether an object named name is stored.
func (b *Blobs) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[name]
	return ok
}

func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
