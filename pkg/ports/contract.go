package ports

import (
	"context"
	"testing"
	"time"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a
// SessionStore implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	key := domain.SessionKey{
		Tenant:       "contract",
		Agent:        "agent",
		Interlocutor: "user-" + time.Now().Format("20060102150405"),
		Channel:      "test",
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewSession(key)
		state.EnterScenario("onboarding", "welcome", 3)
		state.Variables["name"] = "ada"

		err := store.Save(ctx, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "onboarding", loaded.ActiveScenarioID)
		assert.Equal(t, "welcome", loaded.ActiveStepID)
		assert.Equal(t, 3, loaded.ActiveScenarioVersion)
		// JSON persistence may not preserve value types exactly; existence
		// is what the contract requires.
		assert.NotNil(t, loaded.Variables["name"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		missing := key
		missing.Interlocutor = "nobody"
		_, err := store.Load(ctx, missing)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSession(key)))
		require.NoError(t, store.Delete(ctx, key))

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})
}

// RunFactStoreContract verifies a FactStore implementation, including expiry
// semantics.
func RunFactStoreContract(t *testing.T, store FactStore) {
	ctx := context.Background()
	key := domain.SessionKey{Tenant: "contract", Agent: "agent", Interlocutor: "user", Channel: "test"}

	t.Run("Set and Get", func(t *testing.T) {
		err := store.SetField(ctx, key, Fact{
			Name:       "email",
			Value:      "ada@example.com",
			Source:     "extraction",
			Confidence: 0.92,
		})
		require.NoError(t, err)

		fact, err := store.GetField(ctx, key, "email")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", fact.Value)
		assert.InDelta(t, 0.92, fact.Confidence, 0.001)
	})

	t.Run("Missing Field", func(t *testing.T) {
		_, err := store.GetField(ctx, key, "never-set")
		assert.ErrorIs(t, err, domain.ErrFactNotFound)
	})

	t.Run("Expired Field", func(t *testing.T) {
		err := store.SetField(ctx, key, Fact{
			Name:      "otp",
			Value:     "123456",
			ExpiresAt: time.Now().Add(-time.Minute),
		})
		require.NoError(t, err)

		_, err = store.GetField(ctx, key, "otp")
		assert.ErrorIs(t, err, domain.ErrFactNotFound, "expired facts must read as absent")
	})

	t.Run("Tenant Isolation", func(t *testing.T) {
		other := key
		other.Tenant = "other-tenant"
		_, err := store.GetField(ctx, other, "email")
		assert.ErrorIs(t, err, domain.ErrFactNotFound)
	})
}
