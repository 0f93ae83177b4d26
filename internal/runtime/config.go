package runtime

// Config holds the tuning knobs for turn-time navigation and migration.
type Config struct {
	// Score thresholds for transition selection.
	EntryThreshold      float64 `yaml:"entry_threshold"`
	TransitionThreshold float64 `yaml:"transition_threshold"`
	// SanityThreshold rejects candidates outright; everything scoring below
	// it is treated as drift signal, not as a viable transition.
	SanityThreshold float64 `yaml:"sanity_threshold"`
	// MinMargin is the lead the best candidate needs over the runner-up
	// before the engine decides without adjudication.
	MinMargin float64 `yaml:"min_margin"`

	// Loop detection.
	LoopDetectionWindow int `yaml:"loop_detection_window"`
	MaxLoopIterations   int `yaml:"max_loop_iterations"`

	// Re-localization.
	MaxRelocalizationHops       int     `yaml:"max_relocalization_hops"`
	MaxRelocalizationCandidates int     `yaml:"max_relocalization_candidates"`
	RelocalizationThreshold     float64 `yaml:"relocalization_threshold"`

	// Gap fill extraction confidence: values at or above AcceptThreshold are
	// used as-is, values between ConfirmThreshold and AcceptThreshold are
	// used but flagged for confirmation.
	AcceptThreshold  float64 `yaml:"accept_threshold"`
	ConfirmThreshold float64 `yaml:"confirm_threshold"`

	// MaxChainLength bounds how many single-step plans a composite migration
	// will squash before falling back to anchor relocation.
	MaxChainLength int `yaml:"max_chain_length"`

	// CheckpointBlockEscalation emits an escalation log/metric after this
	// many consecutive checkpoint-blocked teleports for one session.
	// 0 disables escalation (warn-only).
	CheckpointBlockEscalation int `yaml:"checkpoint_block_escalation"`
}

// DefaultConfig returns the tuning used when the host does not override.
func DefaultConfig() Config {
	return Config{
		EntryThreshold:              0.65,
		TransitionThreshold:         0.55,
		SanityThreshold:             0.25,
		MinMargin:                   0.10,
		LoopDetectionWindow:         10,
		MaxLoopIterations:           5,
		MaxRelocalizationHops:       3,
		MaxRelocalizationCandidates: 5,
		RelocalizationThreshold:     0.50,
		AcceptThreshold:             0.80,
		ConfirmThreshold:            0.60,
		MaxChainLength:              10,
		CheckpointBlockEscalation:   0,
	}
}
