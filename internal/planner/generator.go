// Package planner implements the offline migration plan generator: a
// one-time diff of two scenario graph versions producing a per-old-step
// instruction set. Generation runs once per operator edit, never on the
// per-turn hot path.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/pkg/domain"
)

// SessionEstimator reports how many sessions are parked on a scenario
// version, for the operator-facing summary. Optional.
type SessionEstimator func(ctx context.Context, scenarioID string, version int) (int, error)

// Generator diffs two graph versions into a MigrationPlan.
type Generator struct {
	logger    *slog.Logger
	estimator SessionEstimator
}

// Option configures the Generator.
type Option func(*Generator)

// WithLogger sets the generator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithSessionEstimator enables the affected-session estimate in summaries.
func WithSessionEstimator(e SessionEstimator) Option {
	return func(g *Generator) { g.estimator = e }
}

// NewGenerator creates a plan generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the plan for moving sessions from oldG to newG. The
// action per step is decided by a strict short-circuiting priority:
// relocate > teleport > collect > execute > continue.
func (g *Generator) Generate(ctx context.Context, oldG, newG *domain.ScenarioGraph) (*domain.MigrationPlan, error) {
	if oldG.ID() != newG.ID() {
		return nil, fmt.Errorf("cannot diff different scenarios '%s' and '%s'", oldG.ID(), newG.ID())
	}
	if newG.Version() <= oldG.Version() {
		return nil, fmt.Errorf("new version %d must be greater than old version %d", newG.Version(), oldG.Version())
	}

	plan := &domain.MigrationPlan{
		ScenarioID:  oldG.ID(),
		FromVersion: oldG.Version(),
		ToVersion:   newG.Version(),
		StepActions: make(map[string]domain.StepAction),
		CreatedAt:   time.Now().UTC(),
	}
	summary := domain.MigrationSummary{Counts: make(map[domain.ActionType]int)}

	for _, step := range oldG.Steps() {
		action := g.actionFor(oldG, newG, step, &summary)
		plan.StepActions[step.ID] = action
		summary.Counts[action.Type]++
	}

	if g.estimator != nil {
		n, err := g.estimator(ctx, oldG.ID(), oldG.Version())
		if err != nil {
			g.logger.Warn("session estimate failed", "scenario", oldG.ID(), "err", err)
		} else {
			summary.AffectedSessions = n
		}
	}

	plan.Summary = summary
	return plan, nil
}

// actionFor decides the migration action for one old step. Each check
// short-circuits the next.
func (g *Generator) actionFor(oldG, newG *domain.ScenarioGraph, step domain.Step, summary *domain.MigrationSummary) domain.StepAction {
	// 1. Deleted step: relocate to the nearest surviving anchor.
	if !newG.Has(step.ID) {
		anchor, ok := oldG.FindNearestAnchor(step.ID, newG)
		if !ok {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf(
				"CRITICAL: step '%s' was deleted and has no surviving anchor; sessions there will exit the scenario", step.ID))
			return domain.StepAction{Type: domain.ActionExit}
		}
		return domain.StepAction{Type: domain.ActionRelocate, Target: anchor}
	}

	upstream := upstreamOf(newG, step.ID)

	// 2. Teleport: a new or modified upstream fork has a conditional
	// alternate branch that does not lead back to this step.
	if action, ok := g.teleportAction(oldG, newG, step.ID, upstream, summary); ok {
		return action
	}

	// 3. Collect: new upstream steps gather fields the road ahead still needs.
	if fields := collectableFields(oldG, newG, step, upstream); len(fields) > 0 {
		return domain.StepAction{
			Type:   domain.ActionCollect,
			Fields: fields,
			Reason: fmt.Sprintf("new steps upstream of '%s' collect required data", step.ID),
		}
	}

	// 4. Execute: new upstream steps carry required actions this session
	// skipped past.
	if ids := requiredUpstreamActions(oldG, newG, upstream); len(ids) > 0 {
		return domain.StepAction{Type: domain.ActionExecute, RequiredActionIDs: ids}
	}

	// 5. Nothing upstream changed in a way that matters here.
	return domain.StepAction{Type: domain.ActionContinue}
}

// teleportAction inspects upstream forks of stepID in the new graph.
func (g *Generator) teleportAction(oldG, newG *domain.ScenarioGraph, stepID string, upstream []string, summary *domain.MigrationSummary) (domain.StepAction, bool) {
	for _, forkID := range upstream {
		if !isNewOrModifiedFork(oldG, newG, forkID) {
			continue
		}
		for _, t := range newG.TransitionsFrom(forkID) {
			if t.Condition == "" {
				// Unconditional branches are not teleport material; the
				// session cannot be said to have "missed" them.
				continue
			}
			if reaches(newG, t.Target, stepID) {
				continue // branch rejoins the current position
			}

			checkpoints := newG.CheckpointsBetween(forkID, stepID)
			if len(checkpoints) > 0 {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf(
					"teleport from '%s' to '%s' is blocked for sessions already past checkpoint '%s'",
					stepID, t.Target, checkpoints[0].StepID))
			}

			return domain.StepAction{
				Type:            domain.ActionTeleport,
				Target:          t.Target,
				Condition:       t.Condition,
				ConditionFields: t.ConditionFields,
				Fallback:        domain.ActionContinue,
				Checkpoints:     checkpoints,
			}, true
		}
	}
	return domain.StepAction{}, false
}

// collectableFields returns fields declared by new upstream steps that a
// downstream fork or the step itself still needs, in stable order.
func collectableFields(oldG, newG *domain.ScenarioGraph, step domain.Step, upstream []string) []string {
	var fields []string
	added := make(map[string]bool)

	for _, upID := range upstream {
		if oldG.Has(upID) {
			continue // only steps new in this version create gaps
		}
		upStep, _ := newG.Step(upID)
		for _, f := range upStep.CollectsFields {
			if added[f] {
				continue
			}
			if fieldNeededFrom(newG, step.ID, f) {
				fields = append(fields, f)
				added[f] = true
			}
		}
	}
	return fields
}

// requiredUpstreamActions returns ids of new upstream steps flagged
// is_required_action, in upstream walk order.
func requiredUpstreamActions(oldG, newG *domain.ScenarioGraph, upstream []string) []string {
	var ids []string
	for _, upID := range upstream {
		if oldG.Has(upID) {
			continue
		}
		if s, ok := newG.Step(upID); ok && s.IsRequiredAction {
			ids = append(ids, upID)
		}
	}
	return ids
}

// upstreamOf returns every step that can reach stepID in g, breadth-first
// from the nearest predecessors outward.
func upstreamOf(g *domain.ScenarioGraph, stepID string) []string {
	visited := map[string]bool{stepID: true}
	queue := g.Predecessors(stepID)
	var out []string

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, id)
		queue = append(queue, g.Predecessors(id)...)
	}
	return out
}

// isNewOrModifiedFork reports whether forkID is a branch point in newG that
// either did not exist in oldG or whose transition set changed.
func isNewOrModifiedFork(oldG, newG *domain.ScenarioGraph, forkID string) bool {
	newTransitions := newG.TransitionsFrom(forkID)
	if len(newTransitions) < 2 {
		return false
	}
	if !oldG.Has(forkID) {
		return true
	}

	oldTransitions := oldG.TransitionsFrom(forkID)
	if len(oldTransitions) != len(newTransitions) {
		return true
	}
	oldSet := make(map[string]bool, len(oldTransitions))
	for _, t := range oldTransitions {
		oldSet[t.Target+"\x00"+t.Condition] = true
	}
	for _, t := range newTransitions {
		if !oldSet[t.Target+"\x00"+t.Condition] {
			return true
		}
	}
	return false
}

// reaches reports whether to is reachable from from by following transitions.
func reaches(g *domain.ScenarioGraph, from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, t := range g.TransitionsFrom(id) {
			if t.Target == to {
				return true
			}
			if !visited[t.Target] {
				visited[t.Target] = true
				queue = append(queue, t.Target)
			}
		}
	}
	return false
}

// fieldNeededFrom reports whether field is consumed at or ahead of stepID:
// by the step's own collects list, or by any condition on a transition
// reachable forward from it.
func fieldNeededFrom(g *domain.ScenarioGraph, stepID, field string) bool {
	step, ok := g.Step(stepID)
	if !ok {
		return false
	}
	for _, f := range step.CollectsFields {
		if f == field {
			return true
		}
	}

	visited := map[string]bool{stepID: true}
	queue := []string{stepID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, t := range g.TransitionsFrom(id) {
			for _, f := range t.ConditionFields {
				if f == field {
					return true
				}
			}
			if !visited[t.Target] {
				visited[t.Target] = true
				queue = append(queue, t.Target)
			}
		}
	}
	return false
}
