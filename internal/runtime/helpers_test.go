package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

func mustGraph(t *testing.T, id string, version int, steps []domain.Step) *domain.ScenarioGraph {
	t.Helper()
	g, err := domain.NewScenarioGraph(id, version, steps)
	require.NoError(t, err)
	return g
}

func runtimeKey() domain.SessionKey {
	return domain.SessionKey{Tenant: "acme", Agent: "bot", Interlocutor: "u1", Channel: "web"}
}

// sessionAt returns a session positioned at a step of a scenario version.
func sessionAt(scenarioID, stepID string, version int) *domain.SessionState {
	s := domain.NewSession(runtimeKey())
	s.EnterScenario(scenarioID, stepID, version)
	return s
}

// stubScorer returns fixed step scores.
type stubScorer struct {
	scores map[string]float64
	err    error
}

func (s *stubScorer) ScoreSteps(_ context.Context, _ []string) (map[string]float64, error) {
	return s.scores, s.err
}

// stubAdjudicator always picks the candidate with the given target.
type stubAdjudicator struct {
	pick string
	err  error
}

func (a *stubAdjudicator) BreakTie(_ context.Context, candidates []domain.TransitionCandidate) (domain.TransitionCandidate, error) {
	if a.err != nil {
		return domain.TransitionCandidate{}, a.err
	}
	for _, c := range candidates {
		if c.Transition.Target == a.pick {
			return c, nil
		}
	}
	return candidates[0], nil
}

var (
	_ ports.StepScorer  = (*stubScorer)(nil)
	_ ports.Adjudicator = (*stubAdjudicator)(nil)
)
