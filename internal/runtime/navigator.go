package runtime

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// Navigator evaluates ordinary step transitions within one graph version.
// Scores per outbound transition are supplied externally; the navigator only
// decides whether the winner is trustworthy, breaks ties through the
// adjudicator, and recovers from drift via re-localization.
type Navigator struct {
	cfg         Config
	adjudicator ports.Adjudicator
	scorer      ports.StepScorer
	logger      *slog.Logger
}

// NavigatorOption configures the navigator.
type NavigatorOption func(*Navigator)

// WithAdjudicator sets the tie-break strategy.
func WithAdjudicator(a ports.Adjudicator) NavigatorOption {
	return func(n *Navigator) { n.adjudicator = a }
}

// WithStepScorer sets the scorer used for re-localization candidates.
func WithStepScorer(s ports.StepScorer) NavigatorOption {
	return func(n *Navigator) { n.scorer = s }
}

// WithNavigatorLogger sets the navigator's logger.
func WithNavigatorLogger(logger *slog.Logger) NavigatorOption {
	return func(n *Navigator) { n.logger = logger }
}

// NewNavigator creates a navigator with the given tuning.
func NewNavigator(cfg Config, opts ...NavigatorOption) *Navigator {
	n := &Navigator{
		cfg:         cfg,
		adjudicator: ports.AdjudicateByScore{},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Navigate evaluates one turn's transition candidates for a session already
// positioned in g. It mutates the session position and history; persisting
// the session stays with the caller so the write commits atomically with the
// turn's other side effects.
//
// scores is keyed by transition target step id; transitions without a score
// count as zero.
func (n *Navigator) Navigate(ctx context.Context, g *domain.ScenarioGraph, session *domain.SessionState, scores map[string]float64) domain.ReconciliationResult {
	current, ok := g.Step(session.ActiveStepID)
	if !ok {
		// Plan/graph drift: the step vanished without a plan covering it.
		// Self-heals through re-localization rather than corrupting the
		// conversation.
		n.logger.Warn("session step absent from graph, relocalizing",
			"session", session.Key.String(), "step", session.ActiveStepID)
		return n.relocalize(ctx, g, session)
	}

	if current.IsTerminal {
		session.ExitScenario()
		return domain.ReconciliationResult{Type: domain.ResultExitScenario, Reason: "terminal step reached"}
	}

	candidates := n.viableCandidates(g, session.ActiveStepID, scores)
	if len(candidates) == 0 {
		// Everything scored below the sanity floor. Stay put this turn.
		return domain.Continue()
	}

	chosen, decided := n.pickWinner(candidates)
	if !decided {
		adjudicated, err := n.adjudicator.BreakTie(ctx, candidates)
		if err != nil {
			// Bounded fallback: highest score wins when the adjudicator is
			// unavailable.
			n.logger.Warn("adjudication failed, falling back to top score", "err", err)
		} else {
			chosen = adjudicated
		}
	}

	if chosen.Score <= n.cfg.TransitionThreshold {
		return domain.Continue()
	}

	// Loop detection: revisiting the target too often within the window is
	// drift, not progress.
	if session.VisitCount(chosen.Transition.Target, n.cfg.LoopDetectionWindow) >= n.cfg.MaxLoopIterations {
		session.RecordVisit(chosen.Transition.Target, domain.ReasonLoopDetected, chosen.Score)
		n.logger.Info("loop detected, forcing re-localization",
			"session", session.Key.String(), "step", chosen.Transition.Target)
		return n.relocalize(ctx, g, session)
	}

	reason := domain.ReasonTransitionPrefix + chosen.Transition.Condition
	session.MoveTo(chosen.Transition.Target, reason, chosen.Score)
	return domain.ReconciliationResult{
		Type:   domain.ResultContinue,
		Target: chosen.Transition.Target,
		Reason: reason,
	}
}

// viableCandidates joins outbound transitions with their scores and drops
// everything under the sanity threshold.
func (n *Navigator) viableCandidates(g *domain.ScenarioGraph, stepID string, scores map[string]float64) []domain.TransitionCandidate {
	var out []domain.TransitionCandidate
	for _, t := range g.TransitionsFrom(stepID) {
		score := scores[t.Target]
		if score < n.cfg.SanityThreshold {
			continue
		}
		out = append(out, domain.TransitionCandidate{Transition: t, Score: score})
	}
	return out
}

// pickWinner returns the top candidate and whether it won outright: strictly
// above the transition threshold and clear of the runner-up by more than
// MinMargin.
func (n *Navigator) pickWinner(candidates []domain.TransitionCandidate) (domain.TransitionCandidate, bool) {
	sorted := make([]domain.TransitionCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Transition.Priority > sorted[j].Transition.Priority
	})

	best := sorted[0]
	if best.Score <= n.cfg.TransitionThreshold {
		return best, false
	}
	if len(sorted) > 1 && best.Score-sorted[1].Score <= n.cfg.MinMargin {
		return best, false
	}
	return best, true
}

// relocalize searches reachable_from_anywhere steps near the last known-good
// position and moves the session to the best-scoring one, or exits the
// scenario when nothing clears the threshold.
func (n *Navigator) relocalize(ctx context.Context, g *domain.ScenarioGraph, session *domain.SessionState) domain.ReconciliationResult {
	anchor := session.LastKnownGood()
	candidateIDs := g.StepsWithinHops(anchor, n.cfg.MaxRelocalizationHops)

	var targets []string
	for _, id := range candidateIDs {
		if s, ok := g.Step(id); ok && s.ReachableFromAnywhere {
			targets = append(targets, id)
		}
	}
	if len(targets) > n.cfg.MaxRelocalizationCandidates {
		targets = targets[:n.cfg.MaxRelocalizationCandidates]
	}

	bestID, bestScore := "", 0.0
	if len(targets) > 0 && n.scorer != nil {
		stepScores, err := n.scorer.ScoreSteps(ctx, targets)
		if err != nil {
			n.logger.Warn("re-localization scoring failed", "err", err)
		} else {
			for _, id := range targets {
				if s := stepScores[id]; s > bestScore {
					bestID, bestScore = id, s
				}
			}
		}
	}

	if bestID != "" && bestScore >= n.cfg.RelocalizationThreshold {
		session.RelocalizationCount++
		session.MoveTo(bestID, domain.ReasonRelocalize, bestScore)
		return domain.ReconciliationResult{
			Type:   domain.ResultContinue,
			Target: bestID,
			Reason: domain.ReasonRelocalize,
		}
	}

	session.ExitScenario()
	return domain.ReconciliationResult{
		Type:    domain.ResultExitScenario,
		Reason:  "relocalization failed",
		Message: "Let's start over - what can I help you with?",
	}
}
