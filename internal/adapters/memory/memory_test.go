package memory

import (
	"context"
	"testing"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, NewSessionStore())
}

func TestFactStore_Contract(t *testing.T) {
	ports.RunFactStoreContract(t, NewFactStore())
}

func TestGraphStore_VersionResolution(t *testing.T) {
	ctx := context.Background()
	store := NewGraphStore()

	v1, err := domain.NewScenarioGraph("s", 1, []domain.Step{{ID: "a", IsEntry: true, IsTerminal: true}})
	require.NoError(t, err)
	v2, err := domain.NewScenarioGraph("s", 2, []domain.Step{{ID: "a", IsEntry: true, IsTerminal: true}})
	require.NoError(t, err)

	require.NoError(t, store.PublishScenario(ctx, v1))
	require.NoError(t, store.PublishScenario(ctx, v2))

	latest, err := store.LatestVersion(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	g, err := store.GetScenario(ctx, "s", ports.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Version())

	g, err = store.GetScenario(ctx, "s", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Version())

	_, err = store.GetScenario(ctx, "s", 9)
	assert.ErrorIs(t, err, domain.ErrScenarioNotFound)

	_, err = store.GetScenario(ctx, "missing", ports.CurrentVersion)
	assert.ErrorIs(t, err, domain.ErrScenarioNotFound)
}

func TestGraphStore_Plans(t *testing.T) {
	ctx := context.Background()
	store := NewGraphStore()

	_, err := store.GetMigrationPlan(ctx, "s", 1, 2)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	plan := &domain.MigrationPlan{
		ScenarioID:  "s",
		FromVersion: 1,
		ToVersion:   2,
		StepActions: map[string]domain.StepAction{"a": {Type: domain.ActionContinue}},
	}
	require.NoError(t, store.SaveMigrationPlan(ctx, plan))

	got, err := store.GetMigrationPlan(ctx, "s", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionContinue, got.StepActions["a"].Type)
}
