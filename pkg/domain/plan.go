package domain

import "time"

// ActionType enumerates the migration actions a plan can assign to a step.
type ActionType string

const (
	ActionContinue ActionType = "continue"
	ActionCollect  ActionType = "collect"
	ActionTeleport ActionType = "teleport"
	ActionRelocate ActionType = "relocate"
	ActionExecute  ActionType = "execute"

	// ActionExit is assigned when a deleted step has no surviving anchor;
	// at runtime the session leaves the scenario.
	ActionExit ActionType = "exit"
)

// StepAction is the migration instruction for one step of the old version.
type StepAction struct {
	Type ActionType `json:"type"`

	// Collect payload.
	Fields []string `json:"fields,omitempty"`
	Reason string   `json:"reason,omitempty"`

	// Teleport / relocate payload.
	Target          string     `json:"target,omitempty"`
	Condition       string     `json:"condition,omitempty"`
	ConditionFields []string   `json:"condition_fields,omitempty"`
	Fallback        ActionType `json:"fallback,omitempty"`

	// Checkpoints that, if already passed by the session, block a teleport.
	Checkpoints []CheckpointRef `json:"checkpoints,omitempty"`

	// Execute payload.
	RequiredActionIDs []string `json:"required_action_ids,omitempty"`
}

// MigrationPlan maps every step id of the old graph version to its action.
// Plans are generated once per graph edit, reviewed, and never regenerated
// at runtime.
type MigrationPlan struct {
	ScenarioID  string                `json:"scenario_id"`
	FromVersion int                   `json:"from_version"`
	ToVersion   int                   `json:"to_version"`
	StepActions map[string]StepAction `json:"step_actions"`
	Summary     MigrationSummary      `json:"summary"`
	CreatedAt   time.Time             `json:"created_at"`
}

// MigrationSummary is the operator-facing digest reviewed before a plan is
// activated.
type MigrationSummary struct {
	Counts           map[ActionType]int `json:"counts"`
	AffectedSessions int                `json:"affected_sessions,omitempty"`
	Warnings         []string           `json:"warnings,omitempty"`
}
