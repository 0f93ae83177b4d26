package memory

import (
	"context"
	"sync"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// SessionStore is an in-memory ports.SessionStore. Clones on both save and
// load simulate the serialization boundary of a real store.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SessionState
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[string]*domain.SessionState)}
}

var _ ports.SessionStore = (*SessionStore)(nil)

// Load retrieves a session by key.
func (s *SessionStore) Load(ctx context.Context, key domain.SessionKey) (*domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[key.String()]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state.Clone(), nil
}

// Save persists a session atomically.
func (s *SessionStore) Save(ctx context.Context, state *domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[state.Key.String()] = state.Clone()
	return nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key.String())
	return nil
}
