package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mroche14/flowline/pkg/domain"
)

func mustGraph(t *testing.T, id string, version int, steps []domain.Step) *domain.ScenarioGraph {
	t.Helper()
	g, err := domain.NewScenarioGraph(id, version, steps)
	require.NoError(t, err)
	return g
}

func TestGenerate_DeletedStepRelocatesToNearestAnchor(t *testing.T) {
	oldG := mustGraph(t, "onboarding", 1, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "b"}}},
		{ID: "b", Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "c", IsTerminal: true},
	})
	newG := mustGraph(t, "onboarding", 2, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "c", IsTerminal: true},
	})

	plan, err := NewGenerator().Generate(context.Background(), oldG, newG)
	require.NoError(t, err)

	assert.Equal(t, domain.StepAction{Type: domain.ActionRelocate, Target: "a"}, plan.StepActions["b"])
	assert.Equal(t, domain.ActionContinue, plan.StepActions["a"].Type)
	assert.Equal(t, domain.ActionContinue, plan.StepActions["c"].Type)

	assert.Equal(t, 1, plan.Summary.Counts[domain.ActionRelocate])
	assert.Equal(t, 2, plan.Summary.Counts[domain.ActionContinue])
}

func TestGenerate_DeletedStepWithoutAnchorExits(t *testing.T) {
	oldG := mustGraph(t, "onboarding", 1, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "b"}}},
		{ID: "b", IsTerminal: true},
	})
	newG := mustGraph(t, "onboarding", 2, []domain.Step{
		{ID: "x", IsEntry: true, Transitions: []domain.Transition{{Target: "b"}}},
		{ID: "b", IsTerminal: true},
	})

	plan, err := NewGenerator().Generate(context.Background(), oldG, newG)
	require.NoError(t, err)

	// "a" has no predecessors to fall back on.
	assert.Equal(t, domain.ActionExit, plan.StepActions["a"].Type)
	require.Len(t, plan.Summary.Warnings, 1)
	assert.Contains(t, plan.Summary.Warnings[0], "CRITICAL")
	assert.Contains(t, plan.Summary.Warnings[0], "'a'")
}

func TestGenerate_NewUpstreamCollectorYieldsCollect(t *testing.T) {
	oldG := mustGraph(t, "onboarding", 1, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "b"}}},
		{ID: "b", Transitions: []domain.Transition{{Target: "d"}}},
		{ID: "d", IsTerminal: true},
	})
	// v2 inserts a step collecting email before b; b's outbound condition
	// consumes it, so sessions at b have a real gap.
	newG := mustGraph(t, "onboarding", 2, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "e"}}},
		{ID: "e", CollectsFields: []string{"email"}, Transitions: []domain.Transition{{Target: "b"}}},
		{ID: "b", Transitions: []domain.Transition{{Target: "d", Condition: "email != ''", ConditionFields: []string{"email"}}}},
		{ID: "d", IsTerminal: true},
	})

	plan, err := NewGenerator().Generate(context.Background(), oldG, newG)
	require.NoError(t, err)

	action := plan.StepActions["b"]
	assert.Equal(t, domain.ActionCollect, action.Type)
	assert.Equal(t, []string{"email"}, action.Fields)

	// Sessions past the point where the field matters are left alone.
	assert.Equal(t, domain.ActionContinue, plan.StepActions["d"].Type)
}

func TestGenerate_ModifiedForkYieldsTeleport(t *testing.T) {
	oldG := mustGraph(t, "signup", 1, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "b"}}},
		{ID: "b", Transitions: []domain.Transition{{Target: "payment"}}},
		{ID: "payment", IsCheckpoint: true, CheckpointDescription: "Payment Processed", Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "c", IsTerminal: true},
	})
	// v2 adds a minor branch at a: sessions downstream may have been routed
	// wrong under the old rules.
	newG := mustGraph(t, "signup", 2, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{
			{Target: "b"},
			{Target: "minor_flow", Condition: "age < 18", ConditionFields: []string{"age"}},
		}},
		{ID: "b", Transitions: []domain.Transition{{Target: "payment"}}},
		{ID: "payment", IsCheckpoint: true, CheckpointDescription: "Payment Processed", Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "minor_flow", IsTerminal: true},
		{ID: "c", IsTerminal: true},
	})

	plan, err := NewGenerator().Generate(context.Background(), oldG, newG)
	require.NoError(t, err)

	// At b, nothing irreversible has happened yet: a clean teleport.
	atB := plan.StepActions["b"]
	assert.Equal(t, domain.ActionTeleport, atB.Type)
	assert.Equal(t, "minor_flow", atB.Target)
	assert.Equal(t, "age < 18", atB.Condition)
	assert.Equal(t, []string{"age"}, atB.ConditionFields)
	assert.Equal(t, domain.ActionContinue, atB.Fallback)
	assert.Empty(t, atB.Checkpoints)

	// At c, the payment checkpoint lies between the fork and the session.
	atC := plan.StepActions["c"]
	assert.Equal(t, domain.ActionTeleport, atC.Type)
	require.Len(t, atC.Checkpoints, 1)
	assert.Equal(t, "payment", atC.Checkpoints[0].StepID)
	assert.Equal(t, "Payment Processed", atC.Checkpoints[0].Description)

	require.NotEmpty(t, plan.Summary.Warnings)
	assert.Contains(t, plan.Summary.Warnings[0], "payment")
}

func TestGenerate_NewRequiredActionYieldsExecute(t *testing.T) {
	oldG := mustGraph(t, "kyc", 1, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "c", IsTerminal: true},
	})
	newG := mustGraph(t, "kyc", 2, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "verify"}}},
		{ID: "verify", IsRequiredAction: true, Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "c", IsTerminal: true},
	})

	plan, err := NewGenerator().Generate(context.Background(), oldG, newG)
	require.NoError(t, err)

	action := plan.StepActions["c"]
	assert.Equal(t, domain.ActionExecute, action.Type)
	assert.Equal(t, []string{"verify"}, action.RequiredActionIDs)
}

func TestGenerate_IsDeterministic(t *testing.T) {
	oldG := mustGraph(t, "signup", 1, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{{Target: "b"}}},
		{ID: "b", Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "c", IsTerminal: true},
	})
	newG := mustGraph(t, "signup", 2, []domain.Step{
		{ID: "a", IsEntry: true, Transitions: []domain.Transition{
			{Target: "b"},
			{Target: "d", Condition: "vip", ConditionFields: []string{"vip"}},
		}},
		{ID: "b", Transitions: []domain.Transition{{Target: "c"}}},
		{ID: "d", IsTerminal: true},
		{ID: "c", IsTerminal: true},
	})

	g := NewGenerator()
	first, err := g.Generate(context.Background(), oldG, newG)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), oldG, newG)
	require.NoError(t, err)

	assert.Equal(t, first.StepActions, second.StepActions)
	assert.Equal(t, first.Summary.Counts, second.Summary.Counts)
}

func TestGenerate_SessionEstimate(t *testing.T) {
	oldG := mustGraph(t, "s", 1, []domain.Step{{ID: "a", IsEntry: true, IsTerminal: true}})
	newG := mustGraph(t, "s", 2, []domain.Step{{ID: "a", IsEntry: true, IsTerminal: true}})

	g := NewGenerator(WithSessionEstimator(func(ctx context.Context, scenarioID string, version int) (int, error) {
		return 42, nil
	}))
	plan, err := g.Generate(context.Background(), oldG, newG)
	require.NoError(t, err)
	assert.Equal(t, 42, plan.Summary.AffectedSessions)
}

func TestGenerate_RejectsBadInputs(t *testing.T) {
	a := mustGraph(t, "one", 1, []domain.Step{{ID: "a", IsEntry: true, IsTerminal: true}})
	b := mustGraph(t, "two", 2, []domain.Step{{ID: "a", IsEntry: true, IsTerminal: true}})
	aOld := mustGraph(t, "one", 1, []domain.Step{{ID: "a", IsEntry: true, IsTerminal: true}})

	g := NewGenerator()

	_, err := g.Generate(context.Background(), a, b)
	assert.Error(t, err, "different scenario ids must not diff")

	_, err = g.Generate(context.Background(), a, aOld)
	assert.Error(t, err, "version must move forward")
}
