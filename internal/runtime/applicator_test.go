package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mroche14/flowline/internal/adapters/memory"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

func newApplicator(facts ports.FactStore) *Applicator {
	if facts == nil {
		facts = memory.NewFactStore()
	}
	cfg := DefaultConfig()
	return NewApplicator(NewGapFill(facts, nil, cfg), cfg, nil)
}

func planWith(actions map[string]domain.StepAction) *domain.MigrationPlan {
	return &domain.MigrationPlan{
		ScenarioID:  "support",
		FromVersion: 1,
		ToVersion:   2,
		StepActions: actions,
	}
}

func TestApplicator_Continue(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "triage", 1)
	session.BlockedTeleports = 2

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"triage": {Type: domain.ActionContinue},
	}), session, nil)

	assert.Equal(t, domain.Continue(), res)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
	assert.Zero(t, session.BlockedTeleports)
}

func TestApplicator_StepMissingFromPlan(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "orphan", 1)

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{}), session, nil)

	// Drift degrades to continue so navigation can re-localize next.
	assert.Equal(t, domain.ResultContinue, res.Type)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_Relocate(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "removed", 1)

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"removed": {Type: domain.ActionRelocate, Target: "triage"},
	}), session, nil)

	assert.Equal(t, domain.ResultContinue, res.Type)
	assert.Equal(t, "triage", res.Target)
	assert.Equal(t, "triage", session.ActiveStepID)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_Exit(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "removed", 1)

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"removed": {Type: domain.ActionExit},
	}), session, nil)

	assert.Equal(t, domain.ResultExitScenario, res.Type)
	assert.NotEmpty(t, res.Message)
	assert.False(t, session.InScenario())
}

func TestApplicator_Execute(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "checkout", 1)

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"checkout": {Type: domain.ActionExecute, RequiredActionIDs: []string{"verify_identity"}},
	}), session, nil)

	assert.Equal(t, domain.ResultExecuteAction, res.Type)
	assert.Equal(t, []string{"verify_identity"}, res.ActionIDs)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_ReapplyingCompletedPlanIsNoOp(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "checkout", 1)

	plan := planWith(map[string]domain.StepAction{
		"checkout": {Type: domain.ActionExecute, RequiredActionIDs: []string{"send_welcome_email"}},
	})

	res := a.Apply(context.Background(), plan, session, nil)
	require.Equal(t, domain.ResultExecuteAction, res.Type)
	require.Equal(t, 2, session.ActiveScenarioVersion)

	// A second pass over the same plan must not replay the irreversible
	// action or touch the session.
	res = a.Apply(context.Background(), plan, session, nil)
	assert.Equal(t, domain.Continue(), res)
	assert.Empty(t, res.ActionIDs)
	assert.Equal(t, "checkout", session.ActiveStepID)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_CollectWithholdsVersionUntilFilled(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "checkout", 1)

	plan := planWith(map[string]domain.StepAction{
		"checkout": {Type: domain.ActionCollect, Fields: []string{"email"}, Reason: "new verification step"},
	})

	res := a.Apply(context.Background(), plan, session, nil)
	assert.Equal(t, domain.ResultCollect, res.Type)
	assert.Equal(t, []string{"email"}, res.Fields)
	assert.Equal(t, 1, session.ActiveScenarioVersion, "a pending collect must stay resumable")

	// The user answered; the same plan applies again next turn and completes.
	session.Variables["email"] = "a@b.c"
	res = a.Apply(context.Background(), plan, session, nil)
	assert.Equal(t, domain.Continue(), res)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_CollectResolvedFromProfile(t *testing.T) {
	facts := memory.NewFactStore()
	require.NoError(t, facts.SetField(context.Background(), runtimeKey(), ports.Fact{Name: "email", Value: "a@b.c"}))

	a := newApplicator(facts)
	session := sessionAt("support", "checkout", 1)

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"checkout": {Type: domain.ActionCollect, Fields: []string{"email"}},
	}), session, nil)

	// Known data is never asked for again.
	assert.Equal(t, domain.Continue(), res)
	assert.Equal(t, "a@b.c", session.Variables["email"])
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_TeleportConditionMatch(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "plan_selection", 1)
	session.Variables["age"] = 16

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"plan_selection": {
			Type: domain.ActionTeleport, Target: "guardian_consent",
			Condition: "age < 18", ConditionFields: []string{"age"},
			Fallback: domain.ActionContinue,
		},
	}), session, nil)

	assert.Equal(t, domain.ResultTeleport, res.Type)
	assert.Equal(t, "guardian_consent", res.Target)
	assert.Equal(t, "guardian_consent", session.ActiveStepID)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_TeleportConditionNoMatch(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "plan_selection", 1)
	session.Variables["age"] = 30

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"plan_selection": {
			Type: domain.ActionTeleport, Target: "guardian_consent",
			Condition: "age < 18", ConditionFields: []string{"age"},
		},
	}), session, nil)

	assert.Equal(t, domain.Continue(), res)
	assert.Equal(t, "plan_selection", session.ActiveStepID)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestApplicator_TeleportMissingFieldCollectsFirst(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "plan_selection", 1)

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"plan_selection": {
			Type: domain.ActionTeleport, Target: "guardian_consent",
			Condition: "age < 18", ConditionFields: []string{"age"},
		},
	}), session, nil)

	assert.Equal(t, domain.ResultCollect, res.Type)
	assert.Equal(t, []string{"age"}, res.Fields)
	assert.Equal(t, 1, session.ActiveScenarioVersion, "cannot finish migrating before the condition is decidable")
	assert.Equal(t, "plan_selection", session.ActiveStepID)
}

func TestApplicator_TeleportBlockedByCheckpoint(t *testing.T) {
	a := newApplicator(nil)
	session := sessionAt("support", "delivery", 1)
	session.MoveTo("payment", domain.ReasonTransitionPrefix+"paid", 0.9)
	session.MoveTo("delivery", domain.ReasonTransitionPrefix+"shipped", 0.9)
	session.Variables["age"] = 16

	res := a.Apply(context.Background(), planWith(map[string]domain.StepAction{
		"delivery": {
			Type: domain.ActionTeleport, Target: "plan_selection",
			Condition: "age < 18", ConditionFields: []string{"age"},
			Checkpoints: []domain.CheckpointRef{{StepID: "payment", Description: "Payment Processed"}},
		},
	}), session, nil)

	assert.Equal(t, domain.ResultContinue, res.Type)
	assert.True(t, res.BlockedByCheckpoint)
	assert.Contains(t, res.CheckpointWarning, "payment")
	assert.Equal(t, "delivery", session.ActiveStepID, "the session never moves back across a checkpoint")
	assert.Equal(t, 2, session.ActiveScenarioVersion)
	assert.Equal(t, 1, session.BlockedTeleports)
}
