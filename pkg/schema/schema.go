/*
Package schema defines the YAML authoring format for scenarios and its
conversion into domain graphs.

Operators edit one file per scenario version; publication of a parsed file
is what triggers migration plan generation for sessions already inside the
previous version.
*/
package schema

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/mroche14/flowline/pkg/domain"
)

// Scenario is the root of a scenario definition file.
type Scenario struct {
	Scenario string `yaml:"scenario"`
	Version  int    `yaml:"version"`
	Steps    []Step `yaml:"steps"`
}

// Step mirrors domain.Step in authoring-friendly YAML.
type Step struct {
	ID          string       `yaml:"id"`
	Description string       `yaml:"description,omitempty"`
	Transitions []Transition `yaml:"transitions,omitempty"`

	IsEntry               bool `yaml:"is_entry,omitempty"`
	IsTerminal            bool `yaml:"is_terminal,omitempty"`
	CanSkip               bool `yaml:"can_skip,omitempty"`
	ReachableFromAnywhere bool `yaml:"reachable_from_anywhere,omitempty"`

	CollectsFields   []string `yaml:"collects_fields,omitempty"`
	IsRequiredAction bool     `yaml:"is_required_action,omitempty"`

	IsCheckpoint          bool   `yaml:"is_checkpoint,omitempty"`
	CheckpointDescription string `yaml:"checkpoint_description,omitempty"`

	// Metadata is free-form in YAML; values are weakly decoded to strings.
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// Transition mirrors domain.Transition.
type Transition struct {
	Target          string   `yaml:"target"`
	Condition       string   `yaml:"condition,omitempty"`
	ConditionFields []string `yaml:"condition_fields,omitempty"`
	Priority        int      `yaml:"priority,omitempty"`
}

// Parse decodes a scenario definition from YAML bytes.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario yaml: %w", err)
	}
	if err := sc.check(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads and parses a scenario definition file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// check enforces file-level constraints before graph validation takes over.
func (s *Scenario) check() error {
	if s.Scenario == "" {
		return fmt.Errorf("%w: missing 'scenario' id", domain.ErrInvalidGraph)
	}
	if s.Version <= 0 {
		return fmt.Errorf("%w: 'version' must be a positive integer, got %d", domain.ErrInvalidGraph, s.Version)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: scenario '%s' has no steps", domain.ErrInvalidGraph, s.Scenario)
	}
	for i, step := range s.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w: step %d has no id", domain.ErrInvalidGraph, i)
		}
	}
	return nil
}

// ToGraph converts the parsed file into a validated domain graph. All
// structural validation (entry step, dangling targets) happens here, at load
// time, never per turn.
func (s *Scenario) ToGraph() (*domain.ScenarioGraph, error) {
	steps := make([]domain.Step, 0, len(s.Steps))
	for _, src := range s.Steps {
		step := domain.Step{
			ID:                    src.ID,
			Description:           src.Description,
			IsEntry:               src.IsEntry,
			IsTerminal:            src.IsTerminal,
			CanSkip:               src.CanSkip,
			ReachableFromAnywhere: src.ReachableFromAnywhere,
			CollectsFields:        src.CollectsFields,
			IsRequiredAction:      src.IsRequiredAction,
			IsCheckpoint:          src.IsCheckpoint,
			CheckpointDescription: src.CheckpointDescription,
		}
		for _, t := range src.Transitions {
			step.Transitions = append(step.Transitions, domain.Transition{
				Target:          t.Target,
				Condition:       t.Condition,
				ConditionFields: t.ConditionFields,
				Priority:        t.Priority,
			})
		}
		if len(src.Metadata) > 0 {
			meta := make(map[string]string, len(src.Metadata))
			if err := mapstructure.WeakDecode(src.Metadata, &meta); err != nil {
				return nil, fmt.Errorf("step '%s': failed to decode metadata: %w", src.ID, err)
			}
			step.Metadata = meta
		}
		steps = append(steps, step)
	}
	return domain.NewScenarioGraph(s.Scenario, s.Version, steps)
}
