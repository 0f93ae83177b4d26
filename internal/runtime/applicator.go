package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/pkg/domain"
)

// Applicator consumes a single precomputed migration plan for one session.
// It never regenerates plans and never walks the graph; reconciliation is a
// plan lookup, which keeps the per-turn cost O(1).
type Applicator struct {
	gapfill *GapFill
	cfg     Config
	logger  *slog.Logger
}

// NewApplicator creates an applicator backed by the given gap-fill resolver.
func NewApplicator(gapfill *GapFill, cfg Config, logger *slog.Logger) *Applicator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Applicator{gapfill: gapfill, cfg: cfg, logger: logger}
}

// Apply executes the plan's action for the session's current step, mutating
// the session in place. The session's version only advances once the applied
// action is something other than collect: a pending collect must stay
// resumable on the next turn.
func (a *Applicator) Apply(ctx context.Context, plan *domain.MigrationPlan, session *domain.SessionState, recentTurns []string) domain.ReconciliationResult {
	if session.ActiveScenarioVersion >= plan.ToVersion {
		// Already reconciled to this version or past it. Re-applying must be
		// a no-op: execute actions are irreversible and never replay.
		return domain.Continue()
	}

	action, ok := plan.StepActions[session.ActiveStepID]
	if !ok {
		// Plan/graph drift. A silent one-turn inconsistency self-heals via
		// re-localization; corrupting the conversation would not.
		a.logger.Warn("session step missing from migration plan, treating as continue",
			"session", session.Key.String(),
			"step", session.ActiveStepID,
			"plan", fmt.Sprintf("%s:%d->%d", plan.ScenarioID, plan.FromVersion, plan.ToVersion))
		session.ActiveScenarioVersion = plan.ToVersion
		return domain.Continue()
	}

	switch action.Type {
	case domain.ActionContinue:
		session.ActiveScenarioVersion = plan.ToVersion
		session.BlockedTeleports = 0
		return domain.Continue()

	case domain.ActionExit:
		session.ExitScenario()
		return domain.ReconciliationResult{
			Type:    domain.ResultExitScenario,
			Reason:  "step deleted with no surviving anchor",
			Message: "We've updated this flow - let's start fresh.",
		}

	case domain.ActionRelocate:
		session.MoveTo(action.Target, domain.ReasonMigration, 1.0)
		session.ActiveScenarioVersion = plan.ToVersion
		session.BlockedTeleports = 0
		// Relocation is invisible to the user: the result reads as continue
		// at the anchor.
		return domain.ReconciliationResult{Type: domain.ResultContinue, Target: action.Target, Reason: domain.ReasonMigration}

	case domain.ActionExecute:
		session.ActiveScenarioVersion = plan.ToVersion
		session.BlockedTeleports = 0
		return domain.ReconciliationResult{Type: domain.ResultExecuteAction, ActionIDs: action.RequiredActionIDs}

	case domain.ActionCollect:
		return a.applyCollect(ctx, plan, session, action, recentTurns)

	case domain.ActionTeleport:
		return a.applyTeleport(ctx, plan, session, action, recentTurns)

	default:
		a.logger.Warn("unknown migration action, treating as continue", "action", string(action.Type))
		session.ActiveScenarioVersion = plan.ToVersion
		return domain.Continue()
	}
}

func (a *Applicator) applyCollect(ctx context.Context, plan *domain.MigrationPlan, session *domain.SessionState, action domain.StepAction, recentTurns []string) domain.ReconciliationResult {
	resolved, missing := a.gapfill.ResolveAll(ctx, session, action.Fields, recentTurns)
	for name, value := range resolved {
		session.Variables[name] = value
	}

	if len(missing) > 0 {
		// Version deliberately stays put; the collect resumes next turn.
		return domain.ReconciliationResult{
			Type:   domain.ResultCollect,
			Fields: missing,
			Prompt: action.Reason,
		}
	}

	session.ActiveScenarioVersion = plan.ToVersion
	session.BlockedTeleports = 0
	return domain.Continue()
}

func (a *Applicator) applyTeleport(ctx context.Context, plan *domain.MigrationPlan, session *domain.SessionState, action domain.StepAction, recentTurns []string) domain.ReconciliationResult {
	// Checkpoint guard first: the system never moves a session backward
	// across a completed irreversible action.
	for _, cp := range action.Checkpoints {
		if session.HasPassedCheckpoint(cp.StepID) {
			return a.blockTeleport(plan, session, action, cp)
		}
	}

	resolved, missing := a.gapfill.ResolveAll(ctx, session, action.ConditionFields, recentTurns)
	for name, value := range resolved {
		session.Variables[name] = value
	}
	if len(missing) > 0 {
		// The condition cannot be evaluated yet; ask for the gap instead of
		// teleporting blind. No version advance.
		return domain.ReconciliationResult{
			Type:   domain.ResultCollect,
			Fields: missing,
			Prompt: fmt.Sprintf("needed to evaluate '%s'", action.Condition),
		}
	}

	env := make(map[string]any, len(action.ConditionFields))
	for _, f := range action.ConditionFields {
		env[f] = session.Variables[f]
	}

	matched, err := EvalCondition(action.Condition, env)
	if err != nil {
		a.logger.Warn("teleport condition failed to evaluate, falling back to continue",
			"condition", action.Condition, "err", err)
		matched = false
	}

	session.ActiveScenarioVersion = plan.ToVersion
	session.BlockedTeleports = 0

	if !matched {
		return domain.Continue()
	}

	session.MoveTo(action.Target, domain.ReasonMigration, 1.0)
	return domain.ReconciliationResult{
		Type:   domain.ResultTeleport,
		Target: action.Target,
		Reason: fmt.Sprintf("condition '%s' satisfied", action.Condition),
	}
}

// blockTeleport downgrades a checkpoint-blocked teleport to continue with a
// warning. Blocking forward progress would be worse than a stale position
// past an irreversible action.
func (a *Applicator) blockTeleport(plan *domain.MigrationPlan, session *domain.SessionState, action domain.StepAction, cp domain.CheckpointRef) domain.ReconciliationResult {
	session.BlockedTeleports++
	session.ActiveScenarioVersion = plan.ToVersion

	warning := fmt.Sprintf("teleport to '%s' blocked by passed checkpoint '%s'", action.Target, cp.StepID)
	a.logger.Warn("checkpoint blocked teleport",
		"session", session.Key.String(),
		"target", action.Target,
		"checkpoint", cp.StepID,
		"consecutive_blocks", session.BlockedTeleports)

	if a.cfg.CheckpointBlockEscalation > 0 && session.BlockedTeleports >= a.cfg.CheckpointBlockEscalation {
		a.logger.Error("checkpoint block threshold exceeded, operator attention needed",
			"session", session.Key.String(),
			"checkpoint", cp.StepID,
			"blocks", session.BlockedTeleports)
	}

	return domain.ReconciliationResult{
		Type:                domain.ResultContinue,
		BlockedByCheckpoint: true,
		CheckpointWarning:   warning,
	}
}
