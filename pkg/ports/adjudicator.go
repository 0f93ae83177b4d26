package ports

import (
	"context"

	"github.com/mroche14/flowline/pkg/domain"
)

// Adjudicator breaks ties between transition candidates whose scores are too
// close to call. Implementations may be rule-based or LLM-backed; the
// navigator depends only on this interface and falls back to the
// highest-scoring candidate on error or timeout.
type Adjudicator interface {
	BreakTie(ctx context.Context, candidates []domain.TransitionCandidate) (domain.TransitionCandidate, error)
}

// StepScorer scores candidate steps against the current turn, used when the
// navigator searches for a re-localization target.
type StepScorer interface {
	ScoreSteps(ctx context.Context, stepIDs []string) (map[string]float64, error)
}

// AdjudicateByScore is the default rule-based adjudicator: highest score
// wins, declaration order breaks exact ties.
type AdjudicateByScore struct{}

// BreakTie returns the highest-scoring candidate.
func (AdjudicateByScore) BreakTie(_ context.Context, candidates []domain.TransitionCandidate) (domain.TransitionCandidate, error) {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, nil
}
