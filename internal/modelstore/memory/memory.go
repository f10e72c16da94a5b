package memory

import (
	"context"
	"sync"

	"railog/internal/domain"
	"railog/internal/model"
	"railog/internal/modelstore"
)

// Storage keeps the last saved model in memory, in its persisted form, so a
// load always goes through the same validation as the file store.
type Storage struct {
	mu    sync.RWMutex
	doc   modelstore.Document
	saved bool
	saves int
}

// NewStorage returns an empty store.
func NewStorage() *Storage { return &Storage{} }

func (s *Storage) String() string { return "memory" }

// Load returns a fresh copy of the saved model.
func (s *Storage) Load(_ context.Context) (*model.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return nil, domain.ErrModelNotFound
	}
	return modelstore.FromDocument(s.doc)
}

// Save replaces the stored model.
func (s *Storage) Save(_ context.Context, m *model.Model) error {
	doc := modelstore.ToDocument(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.saved = true
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *Storage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
