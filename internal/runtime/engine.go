package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/internal/observability"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// TurnInput is one logical turn's worth of externally derived signal. Turn
// boundary detection and candidate scoring both happen upstream; the engine
// only consumes the results.
type TurnInput struct {
	// TransitionScores is keyed by the target step id of each outbound
	// transition of the session's current step.
	TransitionScores map[string]float64

	// EntryCandidates is keyed by scenario id, for sessions not currently
	// inside any scenario.
	EntryCandidates map[string]float64

	// RecentTurns is the conversation tail handed to gap-fill extraction.
	RecentTurns []string
}

// Engine is the turn-level entry point: it decides, per session per turn,
// whether migration is due and runs either the migration path or ordinary
// navigation. All durable state is re-read from the stores on every call; no
// engine state survives across turns.
type Engine struct {
	graphs ports.GraphStore

	cfg        Config
	navigator  *Navigator
	applicator *Applicator
	composite  *Composite
	gapfill    *GapFill

	metrics *observability.Metrics
	logger  *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger, shared with subcomponents unless they
// were injected explicitly.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithConfig overrides the default tuning.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithGapFill injects a preconfigured gap-fill resolver.
func WithGapFill(g *GapFill) EngineOption {
	return func(e *Engine) { e.gapfill = g }
}

// WithNavigator injects a preconfigured navigator.
func WithNavigator(n *Navigator) EngineOption {
	return func(e *Engine) { e.navigator = n }
}

// NewEngine wires the reconciliation core. facts and extractor may be nil;
// gap fill then degrades to session variables only.
func NewEngine(graphs ports.GraphStore, facts ports.FactStore, extractor ports.FieldExtractor, opts ...EngineOption) *Engine {
	e := &Engine{
		graphs: graphs,
		cfg:    DefaultConfig(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gapfill == nil {
		e.gapfill = NewGapFill(facts, extractor, e.cfg, WithGapFillLogger(e.logger))
	}
	if e.navigator == nil {
		e.navigator = NewNavigator(e.cfg, WithNavigatorLogger(e.logger))
	}
	e.applicator = NewApplicator(e.gapfill, e.cfg, e.logger)
	e.composite = NewComposite(graphs, e.gapfill, e.cfg, e.logger)
	return e
}

// ProcessTurn handles one logical turn for one session. The session is
// mutated in place; persisting it is the caller's job so the write commits
// atomically with the turn's other side effects.
//
// When the session's recorded version trails the current graph, the
// migration path runs first. A migration that nets out to a plain continue
// falls through to ordinary navigation within the same turn; any other
// reconciliation outcome is returned as the pre-turn result.
func (e *Engine) ProcessTurn(ctx context.Context, session *domain.SessionState, turn TurnInput) (domain.ReconciliationResult, error) {
	session.Turn++

	if !session.InScenario() {
		return e.tryEnter(ctx, session, turn), nil
	}

	current, err := e.graphs.LatestVersion(ctx, session.ActiveScenarioID)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("resolve current version of '%s': %w", session.ActiveScenarioID, err)
	}

	if session.ActiveScenarioVersion < current {
		result, err := e.migrate(ctx, session, current, turn)
		if err != nil {
			return domain.ReconciliationResult{}, err
		}
		e.observe(result)

		if !plainContinue(result) || !session.InScenario() {
			return result, nil
		}
		// Fully reconciled with no visible effect: the turn proceeds.
	}

	return e.navigate(ctx, session, turn)
}

// tryEnter checks scored entry candidates for sessions outside any scenario.
// Equal scores resolve to the lexicographically first scenario id.
func (e *Engine) tryEnter(ctx context.Context, session *domain.SessionState, turn TurnInput) domain.ReconciliationResult {
	ids := make([]string, 0, len(turn.EntryCandidates))
	for id := range turn.EntryCandidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestID, bestScore := "", 0.0
	for _, id := range ids {
		if score := turn.EntryCandidates[id]; score > bestScore {
			bestID, bestScore = id, score
		}
	}
	if bestID == "" || bestScore < e.cfg.EntryThreshold {
		return domain.Continue()
	}

	g, err := e.graphs.GetScenario(ctx, bestID, ports.CurrentVersion)
	if err != nil {
		e.logger.Warn("entry candidate scenario unavailable", "scenario", bestID, "err", err)
		return domain.Continue()
	}

	session.EnterScenario(g.ID(), g.EntryStep().ID, g.Version())
	return domain.ReconciliationResult{
		Type:   domain.ResultContinue,
		Target: g.EntryStep().ID,
		Reason: domain.ReasonEntry,
	}
}

// migrate runs the single-plan or composite path depending on the gap size.
func (e *Engine) migrate(ctx context.Context, session *domain.SessionState, current int, turn TurnInput) (domain.ReconciliationResult, error) {
	start := time.Now()
	gap := current - session.ActiveScenarioVersion

	if gap == 1 {
		plan, err := e.graphs.GetMigrationPlan(ctx, session.ActiveScenarioID, session.ActiveScenarioVersion, current)
		if err == nil {
			result := e.applicator.Apply(ctx, plan, session, turn.RecentTurns)
			e.observeDuration("migrate", start)
			return result, nil
		}
		e.logger.Warn("single-step plan missing, degrading to composite path",
			"scenario", session.ActiveScenarioID,
			"from", session.ActiveScenarioVersion, "to", current, "err", err)
	}

	finalG, err := e.graphs.GetScenario(ctx, session.ActiveScenarioID, current)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("load current graph of '%s': %w", session.ActiveScenarioID, err)
	}
	result := e.composite.Execute(ctx, session, finalG, turn.RecentTurns)
	e.observeDuration("composite", start)
	return result, nil
}

// navigate runs the ordinary in-version path.
func (e *Engine) navigate(ctx context.Context, session *domain.SessionState, turn TurnInput) (domain.ReconciliationResult, error) {
	start := time.Now()
	g, err := e.graphs.GetScenario(ctx, session.ActiveScenarioID, session.ActiveScenarioVersion)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("load graph '%s' v%d: %w", session.ActiveScenarioID, session.ActiveScenarioVersion, err)
	}

	result := e.navigator.Navigate(ctx, g, session, turn.TransitionScores)
	e.observeDuration("navigate", start)
	e.observe(result)
	return result, nil
}

func plainContinue(r domain.ReconciliationResult) bool {
	return r.Type == domain.ResultContinue && !r.BlockedByCheckpoint && r.Target == ""
}

func (e *Engine) observe(r domain.ReconciliationResult) {
	if e.metrics == nil {
		return
	}
	e.metrics.Reconciliations.WithLabelValues(string(r.Type)).Inc()
	if r.BlockedByCheckpoint {
		e.metrics.CheckpointBlocks.Inc()
	}
	if r.Reason == domain.ReasonRelocalize {
		e.metrics.Relocalizations.Inc()
	}
	if r.Type == domain.ResultExitScenario {
		e.metrics.ScenarioExits.Inc()
	}
}

func (e *Engine) observeDuration(path string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.TurnDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
}
