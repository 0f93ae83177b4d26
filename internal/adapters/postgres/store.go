// Package postgres implements the graph/plan store on PostgreSQL. Graph
// versions and migration plans are rows with JSONB payloads; the schema is
// bootstrapped on connect.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// GraphStore implements ports.GraphStore on PostgreSQL.
type GraphStore struct {
	db *sql.DB
}

// New opens a connection using the standard PG* environment variables as
// defaults, pings it, and creates the schema if needed.
func New() (*GraphStore, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "flowline")
	dbname := getEnv("PGDATABASE", "flowline")
	password := os.Getenv("PGPASSWORD")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", host, port, user, dbname)
	if password != "" {
		connStr += " password=" + password
	}
	return NewFromDSN(connStr)
}

// NewFromDSN opens a connection with an explicit connection string.
func NewFromDSN(dsn string) (*GraphStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &GraphStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return store, nil
}

var _ ports.GraphStore = (*GraphStore)(nil)

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (s *GraphStore) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS scenario_versions (
			scenario_id TEXT        NOT NULL,
			version     INT         NOT NULL,
			steps       JSONB       NOT NULL,
			archived    BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (scenario_id, version)
		);
		CREATE TABLE IF NOT EXISTS migration_plans (
			scenario_id  TEXT        NOT NULL,
			from_version INT         NOT NULL,
			to_version   INT         NOT NULL,
			plan         JSONB       NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (scenario_id, from_version, to_version)
		);
		CREATE INDEX IF NOT EXISTS idx_scenario_versions_id ON scenario_versions(scenario_id);
	`
	_, err := s.db.Exec(query)
	return err
}

// GetScenario loads one version, or the latest when version is
// ports.CurrentVersion.
func (s *GraphStore) GetScenario(ctx context.Context, id string, version int) (*domain.ScenarioGraph, error) {
	var (
		raw []byte
		v   int
		err error
	)
	if version == ports.CurrentVersion {
		err = s.db.QueryRowContext(ctx,
			`SELECT version, steps FROM scenario_versions WHERE scenario_id = $1 ORDER BY version DESC LIMIT 1`,
			id).Scan(&v, &raw)
	} else {
		v = version
		err = s.db.QueryRowContext(ctx,
			`SELECT version, steps FROM scenario_versions WHERE scenario_id = $1 AND version = $2`,
			id, version).Scan(&v, &raw)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario '%s' v%d: %w", id, version, domain.ErrScenarioNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scenario: %w", err)
	}

	var steps []domain.Step
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	return domain.NewScenarioGraph(id, v, steps)
}

// LatestVersion returns the highest published version.
func (s *GraphStore) LatestVersion(ctx context.Context, id string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM scenario_versions WHERE scenario_id = $1`, id).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest version: %w", err)
	}
	if v == 0 {
		return 0, fmt.Errorf("scenario '%s': %w", id, domain.ErrScenarioNotFound)
	}
	return v, nil
}

// GetMigrationPlan loads one plan.
func (s *GraphStore) GetMigrationPlan(ctx context.Context, scenarioID string, from, to int) (*domain.MigrationPlan, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT plan FROM migration_plans WHERE scenario_id = $1 AND from_version = $2 AND to_version = $3`,
		scenarioID, from, to).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s %d->%d: %w", scenarioID, from, to, domain.ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}

	var plan domain.MigrationPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return &plan, nil
}

// SaveMigrationPlan upserts a plan.
func (s *GraphStore) SaveMigrationPlan(ctx context.Context, plan *domain.MigrationPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO migration_plans (scenario_id, from_version, to_version, plan, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scenario_id, from_version, to_version) DO UPDATE SET plan = EXCLUDED.plan
	`, plan.ScenarioID, plan.FromVersion, plan.ToVersion, raw, plan.CreatedAt)
	return err
}

// PublishScenario stores a graph version.
func (s *GraphStore) PublishScenario(ctx context.Context, g *domain.ScenarioGraph) error {
	raw, err := json.Marshal(g.Steps())
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scenario_versions (scenario_id, version, steps)
		VALUES ($1, $2, $3)
		ON CONFLICT (scenario_id, version) DO UPDATE SET steps = EXCLUDED.steps
	`, g.ID(), g.Version(), raw)
	return err
}

// ArchivePreviousVersion flags a version as archived. Archived versions stay
// readable until pruned by an operator job.
func (s *GraphStore) ArchivePreviousVersion(ctx context.Context, scenarioID string, version int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scenario_versions SET archived = TRUE WHERE scenario_id = $1 AND version = $2`,
		scenarioID, version)
	return err
}

// Close closes the database handle.
func (s *GraphStore) Close() error {
	return s.db.Close()
}
