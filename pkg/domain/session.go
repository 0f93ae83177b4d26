package domain

import "fmt"

// DefaultHistoryLimit caps the step history when the session does not
// specify its own limit.
const DefaultHistoryLimit = 50

// SessionKey identifies one conversation. Upstream guarantees at most one
// in-flight turn per key.
type SessionKey struct {
	Tenant       string `json:"tenant"`
	Agent        string `json:"agent"`
	Interlocutor string `json:"interlocutor"`
	Channel      string `json:"channel"`
}

// String renders the key in its canonical colon-joined form.
func (k SessionKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Tenant, k.Agent, k.Interlocutor, k.Channel)
}

// StepVisit is one entry in the bounded step history.
type StepVisit struct {
	StepID     string  `json:"step_id"`
	Turn       int     `json:"turn"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence,omitempty"`
}

// History reason tags.
const (
	ReasonTransitionPrefix = "transition:"
	ReasonRelocalize       = "relocalize"
	ReasonLoopDetected     = "loop_detected"
	ReasonMigration        = "migration"
	ReasonEntry            = "entry"
)

// SessionState is the durable per-conversation state owned by the engine.
// Core invariant: ActiveScenarioID and ActiveStepID are either both empty or
// both set, never one without the other.
type SessionState struct {
	Key SessionKey `json:"key"`

	ActiveScenarioID      string `json:"active_scenario_id,omitempty"`
	ActiveStepID          string `json:"active_step_id,omitempty"`
	ActiveScenarioVersion int    `json:"active_scenario_version,omitempty"`

	// Turn is the number of logical turns processed so far.
	Turn int `json:"turn"`

	StepHistory  []StepVisit `json:"step_history,omitempty"`
	HistoryLimit int         `json:"history_limit,omitempty"`

	RelocalizationCount int `json:"relocalization_count,omitempty"`

	// BlockedTeleports counts consecutive checkpoint-blocked teleports, for
	// the escalation policy knob.
	BlockedTeleports int `json:"blocked_teleports,omitempty"`

	// Variables holds current-session values, consulted by gap fill before
	// any extraction is attempted.
	Variables map[string]any `json:"variables,omitempty"`
}

// NewSession creates an empty session for the given key.
func NewSession(key SessionKey) *SessionState {
	return &SessionState{
		Key:          key,
		HistoryLimit: DefaultHistoryLimit,
		Variables:    make(map[string]any),
	}
}

// InScenario reports whether the session is currently positioned inside a
// scenario.
func (s *SessionState) InScenario() bool {
	return s.ActiveScenarioID != "" && s.ActiveStepID != ""
}

// EnterScenario positions the session at a step of a scenario version. Both
// position fields are set together to preserve the core invariant.
func (s *SessionState) EnterScenario(scenarioID, stepID string, version int) {
	s.ActiveScenarioID = scenarioID
	s.ActiveStepID = stepID
	s.ActiveScenarioVersion = version
	s.RecordVisit(stepID, ReasonEntry, 1.0)
}

// ExitScenario clears the session position. Both fields are cleared together.
func (s *SessionState) ExitScenario() {
	s.ActiveScenarioID = ""
	s.ActiveStepID = ""
	s.ActiveScenarioVersion = 0
}

// MoveTo advances the position within the active scenario and records the
// visit with the given reason tag.
func (s *SessionState) MoveTo(stepID, reason string, confidence float64) {
	s.ActiveStepID = stepID
	s.RecordVisit(stepID, reason, confidence)
}

// RecordVisit appends to the step history, evicting the oldest entry once
// the cap is reached. History is append-only per turn and trimmed, never
// rewritten.
func (s *SessionState) RecordVisit(stepID, reason string, confidence float64) {
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.StepHistory = append(s.StepHistory, StepVisit{
		StepID:     stepID,
		Turn:       s.Turn,
		Reason:     reason,
		Confidence: confidence,
	})
	if len(s.StepHistory) > limit {
		s.StepHistory = s.StepHistory[len(s.StepHistory)-limit:]
	}
}

// HasPassedCheckpoint reports whether the session's history contains the
// given checkpoint step.
func (s *SessionState) HasPassedCheckpoint(stepID string) bool {
	for _, v := range s.StepHistory {
		if v.StepID == stepID {
			return true
		}
	}
	return false
}

// VisitCount returns how often stepID appears in the last window turns of
// history. Used by the navigator's loop detection.
func (s *SessionState) VisitCount(stepID string, window int) int {
	count := 0
	minTurn := s.Turn - window
	for _, v := range s.StepHistory {
		if v.StepID == stepID && v.Turn > minTurn {
			count++
		}
	}
	return count
}

// LastKnownGood returns the most recent history entry that was a normal
// transition or entry, i.e. not the product of drift recovery. Falls back to
// the current step when history is empty.
func (s *SessionState) LastKnownGood() string {
	for i := len(s.StepHistory) - 1; i >= 0; i-- {
		v := s.StepHistory[i]
		if v.Reason == ReasonLoopDetected {
			continue
		}
		return v.StepID
	}
	return s.ActiveStepID
}

// Clone returns a deep copy safe for speculative mutation.
func (s *SessionState) Clone() *SessionState {
	next := *s
	next.StepHistory = make([]StepVisit, len(s.StepHistory))
	copy(next.StepHistory, s.StepHistory)
	next.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		next.Variables[k] = v
	}
	return &next
}
