package store

import (
	"context"
	"sync"
	"time"

	"veilscreen/internal/classify"
	"veilscreen/internal/screening/models"
	"veilscreen/pkg/platform/sentinel"
)

// InMemoryStore keeps the ledger in process memory. It intentionally favors
// clarity over performance and is the default for tests and single-instance
// runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  models.EntryID
	entries map[models.EntryID]models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:  1,
		entries: make(map[models.EntryID]models.Entry),
	}
}

func (s *InMemoryStore) Create(_ context.Context, entry models.Entry) (models.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextID
	entry.Status = models.StatusSubmitted
	s.nextID++
	s.entries[entry.ID] = entry
	return entry.ID, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id models.EntryID) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return models.Entry{}, sentinel.ErrNotFound
	}
	return entry, nil
}

func (s *InMemoryStore) MarkRevealRequested(_ context.Context, id models.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	switch entry.Status {
	case models.StatusRevealed:
		return sentinel.ErrInvalidState
	case models.StatusRevealRequested:
		return sentinel.ErrConflict
	}
	entry.Status = models.StatusRevealRequested
	s.entries[id] = entry
	return nil
}

func (s *InMemoryStore) RevertRevealRequested(_ context.Context, id models.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if entry.Status != models.StatusRevealRequested {
		return sentinel.ErrInvalidState
	}
	entry.Status = models.StatusSubmitted
	s.entries[id] = entry
	return nil
}

func (s *InMemoryStore) Reveal(_ context.Context, id models.EntryID, textFeature, voiceFeature, category string, risk classify.RiskLevel, revealedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if entry.Status == models.StatusRevealed {
		return sentinel.ErrInvalidState
	}
	// Commit all revealed fields in one step; the map write is the only
	// observable point.
	entry.Status = models.StatusRevealed
	entry.TextFeature = textFeature
	entry.VoiceFeature = voiceFeature
	entry.Category = category
	entry.RiskLevel = risk
	at := revealedAt
	entry.RevealedAt = &at
	s.entries[id] = entry
	return nil
}
