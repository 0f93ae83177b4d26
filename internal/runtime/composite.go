package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// Composite squashes a chain of single-step migration plans for sessions
// that were dormant across several edits. The goal is a single user-visible
// migration event per dormancy gap: never ask for data only an intermediate
// version wanted, never teleport twice.
type Composite struct {
	graphs  ports.GraphStore
	gapfill *GapFill
	cfg     Config
	logger  *slog.Logger
}

// NewComposite creates a composite migration executor.
func NewComposite(graphs ports.GraphStore, gapfill *GapFill, cfg Config, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Composite{graphs: graphs, gapfill: gapfill, cfg: cfg, logger: logger}
}

// teleportRecord remembers a conditional jump seen during simulation, bound
// to the virtual position it would apply to.
type teleportRecord struct {
	from        string
	target      string
	condition   string
	fields      []string
	checkpoints []domain.CheckpointRef
}

// Execute reconciles a session whose recorded version trails the final graph
// by more than one edit. It simulates the plan chain in memory only, prunes
// the accumulated field set against what the final graph still needs, and
// then applies the net effect to the session in one move.
func (c *Composite) Execute(ctx context.Context, session *domain.SessionState, finalG *domain.ScenarioGraph, recentTurns []string) domain.ReconciliationResult {
	chain, ok := c.fetchChain(ctx, session.ActiveScenarioID, session.ActiveScenarioVersion, finalG.Version())
	if !ok {
		return c.anchorFallback(ctx, session, finalG)
	}

	// --- In-memory simulation; the session is not touched. ---
	ptr := session.ActiveStepID
	var accumulated []string
	accSeen := make(map[string]bool)
	var teleports []teleportRecord
	var actionIDs []string
	var checkpoints []domain.CheckpointRef

	accumulate := func(fields []string) {
		for _, f := range fields {
			if !accSeen[f] {
				accSeen[f] = true
				accumulated = append(accumulated, f)
			}
		}
	}

	for _, plan := range chain {
		action, found := plan.StepActions[ptr]
		if !found {
			// Drift inside the chain; same self-healing stance as the
			// single-step applicator.
			c.logger.Warn("virtual step missing from chained plan, treating as continue",
				"step", ptr, "from", plan.FromVersion, "to", plan.ToVersion)
			continue
		}

		switch action.Type {
		case domain.ActionContinue:
			// No effect.
		case domain.ActionRelocate:
			ptr = action.Target
		case domain.ActionExit:
			session.ExitScenario()
			return domain.ReconciliationResult{
				Type:    domain.ResultExitScenario,
				Reason:  fmt.Sprintf("no anchor across versions %d..%d", plan.FromVersion, plan.ToVersion),
				Message: "We've updated this flow - let's start fresh.",
			}
		case domain.ActionCollect:
			accumulate(action.Fields)
		case domain.ActionExecute:
			actionIDs = append(actionIDs, action.RequiredActionIDs...)
		case domain.ActionTeleport:
			accumulate(action.ConditionFields)
			checkpoints = append(checkpoints, action.Checkpoints...)
			teleports = append(teleports, teleportRecord{
				from:        ptr,
				target:      action.Target,
				condition:   action.Condition,
				fields:      action.ConditionFields,
				checkpoints: action.Checkpoints,
			})
		}
	}

	if !finalG.Has(ptr) {
		// The chain landed somewhere the final graph no longer knows.
		return c.anchorFallback(ctx, session, finalG)
	}

	// Checkpoint blocking is evaluated once, against everything the chain
	// ever referenced.
	blocked, blockedBy := c.anyCheckpointPassed(session, checkpoints)

	// --- Prune: keep only fields the final graph still needs. ---
	needed := finalG.FieldsNeededAt(ptr)
	for _, rec := range teleports {
		if rec.from != ptr || blocked {
			continue // superseded by later movement, or unusable anyway
		}
		for _, f := range rec.fields {
			needed[f] = struct{}{}
		}
	}

	var pruned []string
	for _, f := range accumulated {
		if _, keep := needed[f]; keep {
			pruned = append(pruned, f)
		}
	}

	// --- Only now touch gap fill and, possibly, the user. ---
	resolved, missing := c.gapfill.ResolveAll(ctx, session, pruned, recentTurns)
	for name, value := range resolved {
		session.Variables[name] = value
	}
	if len(missing) > 0 {
		// Single collect for the whole gap; version stays pending.
		return domain.ReconciliationResult{
			Type:   domain.ResultCollect,
			Fields: missing,
			Prompt: fmt.Sprintf("catching up on %d workflow updates", len(chain)),
		}
	}

	teleported := false
	var warning string
	if blocked {
		session.BlockedTeleports++
		warning = fmt.Sprintf("teleport blocked by passed checkpoint '%s'", blockedBy)
		c.logger.Warn("composite migration blocked by checkpoint",
			"session", session.Key.String(), "checkpoint", blockedBy)
	} else {
		for _, rec := range teleports {
			if rec.from != ptr {
				continue
			}
			env := make(map[string]any, len(rec.fields))
			for _, f := range rec.fields {
				env[f] = session.Variables[f]
			}
			match, err := EvalCondition(rec.condition, env)
			if err != nil {
				c.logger.Warn("chained teleport condition failed to evaluate",
					"condition", rec.condition, "err", err)
				continue
			}
			if match {
				ptr = rec.target
				teleported = true
			}
		}
	}

	// --- Commit the net effect atomically to the session. ---
	moved := ptr != session.ActiveStepID
	if moved {
		session.MoveTo(ptr, domain.ReasonMigration, 1.0)
	}
	session.ActiveScenarioVersion = finalG.Version()
	if !blocked {
		session.BlockedTeleports = 0
	}

	result := domain.ReconciliationResult{
		Type:                domain.ResultContinue,
		Reason:              domain.ReasonMigration,
		BlockedByCheckpoint: blocked,
		CheckpointWarning:   warning,
		ActionIDs:           actionIDs,
	}
	if moved {
		result.Target = ptr
	}
	if teleported {
		result.Type = domain.ResultTeleport
	} else if len(actionIDs) > 0 {
		result.Type = domain.ResultExecuteAction
	}
	return result
}

// fetchChain loads the ordered plan chain from..to. Any missing link, or a
// gap beyond MaxChainLength, invalidates the whole chain: partial squashes
// would be inconsistent.
func (c *Composite) fetchChain(ctx context.Context, scenarioID string, from, to int) ([]*domain.MigrationPlan, bool) {
	if to-from > c.cfg.MaxChainLength {
		c.logger.Warn("version gap exceeds chain limit, using anchor fallback",
			"scenario", scenarioID, "from", from, "to", to)
		return nil, false
	}

	var chain []*domain.MigrationPlan
	for v := from; v < to; v++ {
		plan, err := c.graphs.GetMigrationPlan(ctx, scenarioID, v, v+1)
		if err != nil {
			c.logger.Warn("missing plan link, using anchor fallback",
				"scenario", scenarioID, "from", v, "to", v+1, "err", err)
			return nil, false
		}
		chain = append(chain, plan)
	}
	return chain, true
}

// anchorFallback relocates the session against the final graph when the
// plan chain is unusable. Sessions are never stranded on a non-existent
// step: no anchor means a clean exit with a user-facing message.
func (c *Composite) anchorFallback(ctx context.Context, session *domain.SessionState, finalG *domain.ScenarioGraph) domain.ReconciliationResult {
	if finalG.Has(session.ActiveStepID) {
		session.ActiveScenarioVersion = finalG.Version()
		return domain.Continue()
	}

	oldG, err := c.graphs.GetScenario(ctx, session.ActiveScenarioID, session.ActiveScenarioVersion)
	if err == nil {
		if anchor, ok := oldG.FindNearestAnchor(session.ActiveStepID, finalG); ok {
			session.MoveTo(anchor, domain.ReasonMigration, 1.0)
			session.ActiveScenarioVersion = finalG.Version()
			return domain.ReconciliationResult{Type: domain.ResultContinue, Target: anchor, Reason: domain.ReasonMigration}
		}
	} else {
		c.logger.Warn("old graph unavailable for anchor search",
			"scenario", session.ActiveScenarioID, "version", session.ActiveScenarioVersion, "err", err)
	}

	session.ExitScenario()
	return domain.ReconciliationResult{
		Type:    domain.ResultExitScenario,
		Reason:  "no anchor in current graph",
		Message: "We've updated this flow - let's start fresh.",
	}
}

// anyCheckpointPassed checks the session history against the accumulated
// checkpoint set.
func (c *Composite) anyCheckpointPassed(session *domain.SessionState, refs []domain.CheckpointRef) (bool, string) {
	for _, ref := range refs {
		if session.HasPassedCheckpoint(ref.StepID) {
			return true, ref.StepID
		}
	}
	return false, ""
}
