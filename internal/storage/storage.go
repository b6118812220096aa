package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// In-memory artifact store
// Generated images, videos, and audio live for the session only; there is
// no persisted state. Artifacts are handed out as opaque IDs with serving
// URLs; the API serves the raw bytes at /assets/{id}. Resetting a batch
// releases the artifacts it owned.
// ---------------------------------------------------------------------------

// Kind labels what an asset holds.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Asset is one stored artifact.
type Asset struct {
	ID          uuid.UUID
	Kind        Kind
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// Store is a session-scoped blob store.
type Store struct {
	mu      sync.RWMutex
	assets  map[uuid.UUID]*Asset
	baseURL string
}

// New creates a store. baseURL prefixes served asset URLs
// (e.g. "http://localhost:8080").
func New(baseURL string) *Store {
	return &Store{
		assets:  make(map[uuid.UUID]*Asset),
		baseURL: baseURL,
	}
}

// Put stores bytes and returns the new asset.
func (s *Store) Put(kind Kind, contentType string, data []byte) *Asset {
	asset := &Asset{
		ID:          uuid.New(),
		Kind:        kind,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now(),
	}
	s.mu.Lock()
	s.assets[asset.ID] = asset
	s.mu.Unlock()
	return asset
}

// Get returns an asset by ID.
func (s *Store) Get(id uuid.UUID) (*Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	return a, ok
}

// URL returns the serving URL for an asset ID.
func (s *Store) URL(id uuid.UUID) string {
	return fmt.Sprintf("%s/assets/%s", s.baseURL, id)
}

// Release drops assets, freeing their bytes. Nil IDs are skipped so callers
// can pass optional asset references directly.
func (s *Store) Release(ids ...*uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if id != nil {
			delete(s.assets, *id)
		}
	}
}

// Len returns the number of stored assets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}
