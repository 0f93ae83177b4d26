package domain

// Step represents a single node in a scenario graph.
type Step struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Transitions defines the possible paths out of this step, in declared
	// order. Priority breaks ties when several conditions score equally.
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`

	// Graph role flags.
	IsEntry    bool `json:"is_entry,omitempty" yaml:"is_entry,omitempty"`
	IsTerminal bool `json:"is_terminal,omitempty" yaml:"is_terminal,omitempty"`
	CanSkip    bool `json:"can_skip,omitempty" yaml:"can_skip,omitempty"`

	// ReachableFromAnywhere marks the step as a valid re-localization target
	// when the navigator detects drift or loops.
	ReachableFromAnywhere bool `json:"reachable_from_anywhere,omitempty" yaml:"reachable_from_anywhere,omitempty"`

	// CollectsFields lists the field names this step is expected to gather
	// from the user.
	CollectsFields []string `json:"collects_fields,omitempty" yaml:"collects_fields,omitempty"`

	// IsRequiredAction marks a step whose side effect must run for every
	// session that passes it, including sessions migrated past it.
	IsRequiredAction bool `json:"is_required_action,omitempty" yaml:"is_required_action,omitempty"`

	// IsCheckpoint marks a completed irreversible real-world action.
	// Sessions are never teleported backward across a passed checkpoint.
	IsCheckpoint          bool   `json:"is_checkpoint,omitempty" yaml:"is_checkpoint,omitempty"`
	CheckpointDescription string `json:"checkpoint_description,omitempty" yaml:"checkpoint_description,omitempty"`

	// Metadata allows for extensible key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Transition defines a rule to move from one step to another.
type Transition struct {
	Target string `json:"target" yaml:"target"`

	// Condition is the natural-language condition text attached to this
	// edge. Scoring it against user input happens outside this engine; the
	// migration path additionally evaluates it as an expression over the
	// fields listed in ConditionFields once those are resolved.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// ConditionFields declares which fields the condition depends on.
	ConditionFields []string `json:"condition_fields,omitempty" yaml:"condition_fields,omitempty"`

	// Priority breaks ties between transitions; higher wins.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// TransitionCandidate pairs a transition with an externally supplied score
// for the current turn.
type TransitionCandidate struct {
	Transition Transition
	Score      float64
}

// CheckpointRef identifies a checkpoint step inside a migration plan.
type CheckpointRef struct {
	StepID      string `json:"step_id"`
	Description string `json:"description,omitempty"`
}
