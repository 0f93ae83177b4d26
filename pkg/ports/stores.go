package ports

import (
	"context"
	"time"

	"github.com/mroche14/flowline/pkg/domain"
)

// CurrentVersion is the sentinel passed to GraphStore.GetScenario to request
// whatever version is currently active.
const CurrentVersion = 0

// GraphStore provides read access to published scenario versions and storage
// for their migration plans. Graphs are read-only configuration; the only
// write path is the administrative plan/version publication.
type GraphStore interface {
	// GetScenario returns a scenario graph. version == CurrentVersion
	// resolves to the newest published version. Returns
	// domain.ErrScenarioNotFound for unknown ids or versions.
	GetScenario(ctx context.Context, id string, version int) (*domain.ScenarioGraph, error)

	// LatestVersion returns the currently active version number of a scenario.
	LatestVersion(ctx context.Context, id string) (int, error)

	// GetMigrationPlan returns the plan for one version pair, or
	// domain.ErrPlanNotFound when the link is missing or archived.
	GetMigrationPlan(ctx context.Context, scenarioID string, from, to int) (*domain.MigrationPlan, error)

	// SaveMigrationPlan stores a reviewed plan.
	SaveMigrationPlan(ctx context.Context, plan *domain.MigrationPlan) error

	// PublishScenario stores a new graph version and makes it current.
	PublishScenario(ctx context.Context, g *domain.ScenarioGraph) error

	// ArchivePreviousVersion marks an old version as archived; its plans may
	// expire afterwards.
	ArchivePreviousVersion(ctx context.Context, scenarioID string, version int) error
}

// SessionStore persists per-conversation state. Save must be atomic per
// session; partial writes would break migration resumability.
type SessionStore interface {
	Load(ctx context.Context, key domain.SessionKey) (*domain.SessionState, error)
	Save(ctx context.Context, state *domain.SessionState) error
	Delete(ctx context.Context, key domain.SessionKey) error
}

// Fact is one structured profile value with provenance and expiry.
type Fact struct {
	Name       string    `json:"name"`
	Value      any       `json:"value"`
	Source     string    `json:"source,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"` // zero = never expires
}

// Expired reports whether the fact is past its expiry at the given instant.
func (f Fact) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

// FactStore is the cross-session structured profile. Implementations must
// treat expired facts as absent.
type FactStore interface {
	// GetField returns domain.ErrFactNotFound when the field is missing or
	// expired.
	GetField(ctx context.Context, key domain.SessionKey, name string) (Fact, error)
	SetField(ctx context.Context, key domain.SessionKey, fact Fact) error
}
