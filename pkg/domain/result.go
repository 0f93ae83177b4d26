package domain

// ResultType enumerates the engine's per-turn verdicts.
type ResultType string

const (
	ResultContinue      ResultType = "continue"
	ResultTeleport      ResultType = "teleport"
	ResultCollect       ResultType = "collect"
	ResultExecuteAction ResultType = "execute_action"
	ResultExitScenario  ResultType = "exit_scenario"
)

// ReconciliationResult is what the engine returns to the turn orchestrator
// for one logical turn.
type ReconciliationResult struct {
	Type ResultType `json:"type"`

	// Target and Reason describe a teleport or an in-version transition.
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Fields and Prompt describe a collect: fields still missing and the
	// reason the user is being asked.
	Fields []string `json:"fields,omitempty"`
	Prompt string   `json:"prompt,omitempty"`

	// ActionIDs lists required actions the orchestrator must execute.
	ActionIDs []string `json:"action_ids,omitempty"`

	// Message is a user-facing note for exit_scenario ("starting fresh").
	Message string `json:"message,omitempty"`

	// Advisory flags. A checkpoint conflict is never a hard failure; the
	// teleport downgrades to continue and these carry the warning.
	BlockedByCheckpoint bool   `json:"blocked_by_checkpoint,omitempty"`
	CheckpointWarning   string `json:"checkpoint_warning,omitempty"`
}

// Continue is the zero-effect result.
func Continue() ReconciliationResult {
	return ReconciliationResult{Type: ResultContinue}
}
