package correlation

import (
	"context"
	"sync"
	"time"

	"veilscreen/internal/oracle"
	"veilscreen/pkg/platform/sentinel"
)

type registration struct {
	key      Key
	deadline time.Time
}

// InMemoryStore keeps the correlation table in process memory. It favors
// clarity over performance and is the default for single-instance deployments
// and tests.
type InMemoryStore struct {
	mu      sync.Mutex
	pending map[oracle.RequestID]registration
	clock   func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pending: make(map[oracle.RequestID]registration),
		clock:   time.Now,
	}
}

// WithClock overrides the time source for deadline checks in tests.
func (s *InMemoryStore) WithClock(clock func() time.Time) *InMemoryStore {
	s.clock = clock
	return s
}

func (s *InMemoryStore) Register(_ context.Context, id oracle.RequestID, key Key, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return sentinel.ErrConflict
	}
	s.pending[id] = registration{key: key, deadline: s.clock().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Resolve(_ context.Context, id oracle.RequestID) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.pending[id]
	if !ok {
		return Key{}, sentinel.ErrNotFound
	}
	delete(s.pending, id)
	if s.clock().After(reg.deadline) {
		return Key{}, sentinel.ErrExpired
	}
	return reg.key, nil
}

func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []Key
	for id, reg := range s.pending {
		if now.After(reg.deadline) {
			expired = append(expired, reg.key)
			delete(s.pending, id)
		}
	}
	return expired, nil
}
