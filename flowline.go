package flowline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	httpAdapter "github.com/mroche14/flowline/internal/adapters/http"
	"github.com/mroche14/flowline/internal/adapters/memory"
	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/internal/observability"
	"github.com/mroche14/flowline/internal/planner"
	"github.com/mroche14/flowline/internal/runtime"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
	"github.com/mroche14/flowline/pkg/schema"
	"github.com/mroche14/flowline/pkg/session"
)

// TurnInput re-exports the engine's per-turn input for host convenience.
type TurnInput = runtime.TurnInput

// Engine is the high-level entry point for the flowline library. It wraps the
// internal runtime with wired stores, a per-session lock manager and the
// offline plan generator, and provides a simplified API for hosts.
type Engine struct {
	runtime  *runtime.Engine
	sessions *session.Manager
	planner  *planner.Generator

	graphs    ports.GraphStore
	facts     ports.FactStore
	store     ports.SessionStore
	extractor ports.FieldExtractor
	locker    ports.DistributedLocker

	cfg      runtime.Config
	registry *prometheus.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithGraphStore injects the scenario/plan store (default: in-memory).
func WithGraphStore(s ports.GraphStore) Option {
	return func(e *Engine) { e.graphs = s }
}

// WithSessionStore injects the session store (default: in-memory).
func WithSessionStore(s ports.SessionStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithFactStore injects the profile fact store (default: in-memory).
func WithFactStore(s ports.FactStore) Option {
	return func(e *Engine) { e.facts = s }
}

// WithExtractor enables LLM-backed gap-fill extraction.
func WithExtractor(x ports.FieldExtractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithLocker enables distributed per-session locking across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithConfig overrides the default engine tuning.
func WithConfig(cfg runtime.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets a structured logger for the whole stack.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetricsRegistry enables prometheus instrumentation on the registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// New wires a flowline Engine. With no options everything runs in memory,
// which is the test and CLI configuration.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    runtime.DefaultConfig(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.graphs == nil {
		e.graphs = memory.NewGraphStore()
	}
	if e.store == nil {
		e.store = memory.NewSessionStore()
	}
	if e.facts == nil {
		e.facts = memory.NewFactStore()
	}

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(e.store, sessionOpts...)

	runtimeOpts := []runtime.EngineOption{
		runtime.WithConfig(e.cfg),
		runtime.WithLogger(e.logger),
	}
	if e.registry != nil {
		e.metrics = observability.New(e.registry)
		runtimeOpts = append(runtimeOpts, runtime.WithMetrics(e.metrics))
	}
	e.runtime = runtime.NewEngine(e.graphs, e.facts, e.extractor, runtimeOpts...)
	e.planner = planner.NewGenerator(planner.WithLogger(e.logger))

	return e, nil
}

// ProcessTurn runs one logical turn for one conversation: load or start the
// session, reconcile and navigate, and persist the session, all under the
// per-session lock.
func (e *Engine) ProcessTurn(ctx context.Context, key domain.SessionKey, turn TurnInput) (domain.ReconciliationResult, *domain.SessionState, error) {
	var (
		result domain.ReconciliationResult
		state  *domain.SessionState
	)
	err := e.sessions.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		state, err = e.store.Load(ctx, key)
		if errors.Is(err, domain.ErrSessionNotFound) {
			state = domain.NewSession(key)
			err = nil
		}
		if err != nil {
			return err
		}

		result, err = e.runtime.ProcessTurn(ctx, state, turn)
		if err != nil {
			return err
		}
		return e.store.Save(ctx, state)
	})
	if err != nil {
		return domain.ReconciliationResult{}, nil, err
	}
	return result, state, nil
}

// PublishFile loads a scenario YAML file, validates it, publishes it, and
// when an older version exists, generates and stores the migration plan. The
// returned plan is nil for a first version.
func (e *Engine) PublishFile(ctx context.Context, path string) (*domain.MigrationPlan, error) {
	sc, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	g, err := sc.ToGraph()
	if err != nil {
		return nil, err
	}
	return e.Publish(ctx, g)
}

// Publish stores a validated graph version, diffing it against the currently
// published one when present.
func (e *Engine) Publish(ctx context.Context, g *domain.ScenarioGraph) (*domain.MigrationPlan, error) {
	var plan *domain.MigrationPlan

	prev, err := e.graphs.GetScenario(ctx, g.ID(), ports.CurrentVersion)
	switch {
	case err == nil && prev.Version() >= g.Version():
		return nil, fmt.Errorf("scenario '%s': version %d is not newer than published %d", g.ID(), g.Version(), prev.Version())
	case err == nil:
		plan, err = e.planner.Generate(ctx, prev, g)
		if err != nil {
			return nil, err
		}
		if err := e.graphs.SaveMigrationPlan(ctx, plan); err != nil {
			return nil, fmt.Errorf("failed to store migration plan: %w", err)
		}
	case !errors.Is(err, domain.ErrScenarioNotFound):
		return nil, err
	}

	if err := e.graphs.PublishScenario(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to publish scenario: %w", err)
	}
	if plan != nil {
		if e.metrics != nil {
			e.metrics.PlansGenerated.Inc()
		}
		if err := e.graphs.ArchivePreviousVersion(ctx, g.ID(), plan.FromVersion); err != nil {
			e.logger.Warn("failed to archive previous version", "scenario", g.ID(), "version", plan.FromVersion, "err", err)
		}
	}

	e.logger.Info("scenario published", "scenario", g.ID(), "version", g.Version())
	return plan, nil
}

// Diff generates a migration plan between two graphs without publishing
// anything, for offline review.
func (e *Engine) Diff(ctx context.Context, oldG, newG *domain.ScenarioGraph) (*domain.MigrationPlan, error) {
	return e.planner.Generate(ctx, oldG, newG)
}

// Handler returns the JSON API handler for this engine.
func (e *Engine) Handler() http.Handler {
	serverOpts := []httpAdapter.ServerOption{httpAdapter.WithLogger(e.logger)}
	if e.registry != nil {
		serverOpts = append(serverOpts, httpAdapter.WithMetricsRegistry(e.registry))
	}
	return httpAdapter.NewHandler(httpAdapter.NewServer(e.runtime, e.sessions, e.graphs, serverOpts...))
}

// Sessions returns the per-session lock manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Graphs returns the underlying graph/plan store.
func (e *Engine) Graphs() ports.GraphStore {
	return e.graphs
}
