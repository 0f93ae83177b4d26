// Package memory provides in-memory adapters for every store port. They are
// used by tests and the CLI; production deployments use the redis and
// postgres adapters.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

type planKey struct {
	scenarioID string
	from, to   int
}

// GraphStore keeps scenario versions and migration plans in process memory.
type GraphStore struct {
	mu       sync.RWMutex
	graphs   map[string]map[int]*domain.ScenarioGraph
	latest   map[string]int
	plans    map[planKey]*domain.MigrationPlan
	archived map[string]map[int]bool
}

// NewGraphStore creates an empty in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		graphs:   make(map[string]map[int]*domain.ScenarioGraph),
		latest:   make(map[string]int),
		plans:    make(map[planKey]*domain.MigrationPlan),
		archived: make(map[string]map[int]bool),
	}
}

var _ ports.GraphStore = (*GraphStore)(nil)

// GetScenario returns the requested version, or the latest when version is
// ports.CurrentVersion.
func (s *GraphStore) GetScenario(ctx context.Context, id string, version int) (*domain.ScenarioGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.graphs[id]
	if !ok {
		return nil, fmt.Errorf("scenario '%s': %w", id, domain.ErrScenarioNotFound)
	}
	if version == ports.CurrentVersion {
		version = s.latest[id]
	}
	g, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("scenario '%s' v%d: %w", id, version, domain.ErrScenarioNotFound)
	}
	return g, nil
}

// LatestVersion returns the currently active version number.
func (s *GraphStore) LatestVersion(ctx context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.latest[id]
	if !ok {
		return 0, fmt.Errorf("scenario '%s': %w", id, domain.ErrScenarioNotFound)
	}
	return v, nil
}

// GetMigrationPlan returns the plan for one version pair.
func (s *GraphStore) GetMigrationPlan(ctx context.Context, scenarioID string, from, to int) (*domain.MigrationPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[planKey{scenarioID, from, to}]
	if !ok {
		return nil, fmt.Errorf("plan %s %d->%d: %w", scenarioID, from, to, domain.ErrPlanNotFound)
	}
	return plan, nil
}

// SaveMigrationPlan stores a plan.
func (s *GraphStore) SaveMigrationPlan(ctx context.Context, plan *domain.MigrationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[planKey{plan.ScenarioID, plan.FromVersion, plan.ToVersion}] = plan
	return nil
}

// PublishScenario stores a graph version and makes it current when newer.
func (s *GraphStore) PublishScenario(ctx context.Context, g *domain.ScenarioGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graphs[g.ID()] == nil {
		s.graphs[g.ID()] = make(map[int]*domain.ScenarioGraph)
	}
	s.graphs[g.ID()][g.Version()] = g
	if g.Version() > s.latest[g.ID()] {
		s.latest[g.ID()] = g.Version()
	}
	return nil
}

// ArchivePreviousVersion marks a version as archived. Archived versions stay
// readable here; a production store may expire them.
func (s *GraphStore) ArchivePreviousVersion(ctx context.Context, scenarioID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.archived[scenarioID] == nil {
		s.archived[scenarioID] = make(map[int]bool)
	}
	s.archived[scenarioID][version] = true
	return nil
}
