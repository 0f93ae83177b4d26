package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// FactStore implements ports.FactStore on Redis. Each fact lives under its
// own key so per-fact expiry maps directly onto Redis TTLs.
type FactStore struct {
	client *backend.Client
	prefix string
}

// NewFactStore creates a fact store from an existing client.
func NewFactStore(client *backend.Client, prefix string) *FactStore {
	if prefix == "" {
		prefix = "flowline:fact:"
	}
	return &FactStore{client: client, prefix: prefix}
}

var _ ports.FactStore = (*FactStore)(nil)

// Profile scope is tenant+interlocutor: the same person on another channel
// shares one profile.
func (s *FactStore) key(key domain.SessionKey, name string) string {
	return s.prefix + key.Tenant + ":" + key.Interlocutor + ":" + name
}

// GetField returns a field; Redis TTL makes expired facts read as absent.
func (s *FactStore) GetField(ctx context.Context, key domain.SessionKey, name string) (ports.Fact, error) {
	val, err := s.client.Get(ctx, s.key(key, name)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return ports.Fact{}, domain.ErrFactNotFound
		}
		return ports.Fact{}, fmt.Errorf("failed to get fact from redis: %w", err)
	}

	var fact ports.Fact
	if err := json.Unmarshal([]byte(val), &fact); err != nil {
		return ports.Fact{}, fmt.Errorf("failed to unmarshal fact: %w", err)
	}
	if fact.Expired(time.Now()) {
		return ports.Fact{}, domain.ErrFactNotFound
	}
	return fact, nil
}

// SetField stores a field, translating its expiry into a key TTL.
func (s *FactStore) SetField(ctx context.Context, key domain.SessionKey, fact ports.Fact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("failed to marshal fact: %w", err)
	}

	var ttl time.Duration
	if !fact.ExpiresAt.IsZero() {
		ttl = time.Until(fact.ExpiresAt)
		if ttl <= 0 {
			// Already expired; storing it would only resurrect stale data.
			return s.client.Del(ctx, s.key(key, fact.Name)).Err()
		}
	}

	if err := s.client.Set(ctx, s.key(key, fact.Name), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save fact to redis: %w", err)
	}
	return nil
}
