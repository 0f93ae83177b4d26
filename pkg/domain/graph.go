package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ScenarioGraph is one immutable version of a scenario. Steps are held in an
// index-stable adjacency structure (id -> record, transitions as target-id
// references) so traversal, diffing and loop detection stay pure value
// computations over the snapshot, even when the graph contains cycles.
type ScenarioGraph struct {
	id      string
	version int

	steps map[string]Step
	order []string // declaration order, for stable iteration

	// preds is the reverse adjacency, computed once at construction.
	preds map[string][]string
}

// NewScenarioGraph builds and validates a graph snapshot. Validation is the
// only place this type can fail; a graph that loads never errors at runtime.
func NewScenarioGraph(id string, version int, steps []Step) (*ScenarioGraph, error) {
	g := &ScenarioGraph{
		id:      id,
		version: version,
		steps:   make(map[string]Step, len(steps)),
		order:   make([]string, 0, len(steps)),
		preds:   make(map[string][]string),
	}

	for _, s := range steps {
		if _, dup := g.steps[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id '%s'", ErrInvalidGraph, s.ID)
		}
		g.steps[s.ID] = s
		g.order = append(g.order, s.ID)
	}

	if err := g.validate(); err != nil {
		return nil, err
	}

	for _, id := range g.order {
		for _, t := range g.steps[id].Transitions {
			g.preds[t.Target] = append(g.preds[t.Target], id)
		}
	}

	return g, nil
}

// validate enforces the structural invariants: exactly one entry step, no
// dangling transition targets, and every non-terminal step has at least one
// way out.
func (g *ScenarioGraph) validate() error {
	var problems []string

	entries := 0
	for _, id := range g.order {
		s := g.steps[id]
		if s.IsEntry {
			entries++
		}
		if !s.IsTerminal && len(s.Transitions) == 0 {
			problems = append(problems, fmt.Sprintf("step '%s' is non-terminal but has no outbound transitions", id))
		}
		for _, t := range s.Transitions {
			if t.Target == "" {
				problems = append(problems, fmt.Sprintf("step '%s' has a transition with an empty target", id))
				continue
			}
			if _, ok := g.steps[t.Target]; !ok {
				problems = append(problems, fmt.Sprintf("step '%s' has a dangling transition to '%s'", id, t.Target))
			}
		}
	}
	if entries != 1 {
		problems = append(problems, fmt.Sprintf("graph must have exactly one entry step, found %d", entries))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: scenario '%s' v%d:\n- %s", ErrInvalidGraph, g.id, g.version, strings.Join(problems, "\n- "))
	}
	return nil
}

// ID returns the scenario identifier.
func (g *ScenarioGraph) ID() string { return g.id }

// Version returns the graph version.
func (g *ScenarioGraph) Version() int { return g.version }

// Step looks up a step by id.
func (g *ScenarioGraph) Step(id string) (Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Has reports whether the step id exists in this version.
func (g *ScenarioGraph) Has(id string) bool {
	_, ok := g.steps[id]
	return ok
}

// Steps returns all steps in declaration order.
func (g *ScenarioGraph) Steps() []Step {
	out := make([]Step, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.steps[id])
	}
	return out
}

// EntryStep returns the unique entry step.
func (g *ScenarioGraph) EntryStep() Step {
	for _, id := range g.order {
		if g.steps[id].IsEntry {
			return g.steps[id]
		}
	}
	// Unreachable on a validated graph.
	return Step{}
}

// TransitionsFrom returns the outbound transitions of a step, highest
// priority first. The slice is a copy and safe to mutate.
func (g *ScenarioGraph) TransitionsFrom(id string) []Transition {
	s, ok := g.steps[id]
	if !ok {
		return nil
	}
	out := make([]Transition, len(s.Transitions))
	copy(out, s.Transitions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Predecessors returns the ids of steps with a transition into id. Used for
// upstream-fork analysis during plan generation.
func (g *ScenarioGraph) Predecessors(id string) []string {
	src := g.preds[id]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// FindNearestAnchor walks breadth-first backward from fromID through THIS
// graph's structure and returns the nearest step that still exists in next.
// fromID itself may already be deleted here; in that case the search starts
// from the ids recorded as its predecessors. Returns false when no
// predecessor chain reaches a surviving step.
func (g *ScenarioGraph) FindNearestAnchor(fromID string, next *ScenarioGraph) (string, bool) {
	visited := map[string]bool{fromID: true}
	queue := append([]string{}, g.preds[fromID]...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		if next.Has(id) {
			return id, true
		}
		queue = append(queue, g.preds[id]...)
	}
	return "", false
}

// StepsWithinHops returns the ids of steps reachable from fromID within
// maxHops edges, treating edges as undirected. fromID is excluded. Used to
// bound the re-localization candidate search.
func (g *ScenarioGraph) StepsWithinHops(fromID string, maxHops int) []string {
	if !g.Has(fromID) || maxHops <= 0 {
		return nil
	}

	dist := map[string]int{fromID: 0}
	queue := []string{fromID}
	var out []string

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if dist[id] >= maxHops {
			continue
		}

		neighbors := append(g.Predecessors(id), targetsOf(g.steps[id])...)
		for _, n := range neighbors {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[id] + 1
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	return out
}

// CheckpointsBetween returns the checkpoint steps lying on any path from
// fromID to toID, endpoints excluded. A session that already passed one of
// these must not be teleported to fromID.
func (g *ScenarioGraph) CheckpointsBetween(fromID, toID string) []CheckpointRef {
	// Steps that can reach toID, via reverse BFS.
	reachesTarget := map[string]bool{toID: true}
	queue := []string{toID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, p := range g.preds[id] {
			if !reachesTarget[p] {
				reachesTarget[p] = true
				queue = append(queue, p)
			}
		}
	}

	// Forward BFS from fromID, collecting checkpoints that can still reach
	// the target.
	var out []CheckpointRef
	visited := map[string]bool{fromID: true}
	queue = targetsOf(g.steps[fromID])
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] || id == toID {
			continue
		}
		visited[id] = true
		if !reachesTarget[id] {
			continue
		}
		if s := g.steps[id]; s.IsCheckpoint {
			out = append(out, CheckpointRef{StepID: s.ID, Description: s.CheckpointDescription})
		}
		queue = append(queue, targetsOf(g.steps[id])...)
	}
	return out
}

// FieldsNeededAt returns the set of field names still relevant at a step:
// the step's own collects_fields, the fields its outbound conditions depend
// on, and the collects_fields of its immediate successors. This is the
// reachability check composite migration uses to prune fields that only
// intermediate versions cared about.
func (g *ScenarioGraph) FieldsNeededAt(id string) map[string]struct{} {
	needed := make(map[string]struct{})
	s, ok := g.steps[id]
	if !ok {
		return needed
	}

	for _, f := range s.CollectsFields {
		needed[f] = struct{}{}
	}
	for _, t := range s.Transitions {
		for _, f := range t.ConditionFields {
			needed[f] = struct{}{}
		}
		if succ, ok := g.steps[t.Target]; ok {
			for _, f := range succ.CollectsFields {
				needed[f] = struct{}{}
			}
		}
	}
	return needed
}

func targetsOf(s Step) []string {
	out := make([]string, 0, len(s.Transitions))
	for _, t := range s.Transitions {
		out = append(out, t.Target)
	}
	return out
}
