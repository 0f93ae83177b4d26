package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// FactStore is an in-memory ports.FactStore. Facts are profile data, so the
// key scope is tenant+interlocutor: the same person talking on another
// channel sees the same profile.
type FactStore struct {
	mu   sync.RWMutex
	data map[string]map[string]ports.Fact

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewFactStore creates an empty in-memory fact store.
func NewFactStore() *FactStore {
	return &FactStore{
		data: make(map[string]map[string]ports.Fact),
		now:  time.Now,
	}
}

var _ ports.FactStore = (*FactStore)(nil)

func profileKey(key domain.SessionKey) string {
	return key.Tenant + ":" + key.Interlocutor
}

// GetField returns a field, treating expired facts as absent.
func (s *FactStore) GetField(ctx context.Context, key domain.SessionKey, name string) (ports.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fact, ok := s.data[profileKey(key)][name]
	if !ok || fact.Expired(s.now()) {
		return ports.Fact{}, domain.ErrFactNotFound
	}
	return fact, nil
}

// SetField stores a field.
func (s *FactStore) SetField(ctx context.Context, key domain.SessionKey, fact ports.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := profileKey(key)
	if s.data[pk] == nil {
		s.data[pk] = make(map[string]ports.Fact)
	}
	s.data[pk][fact.Name] = fact
	return nil
}
