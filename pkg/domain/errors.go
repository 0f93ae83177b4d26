package domain

import "errors"

// ErrSessionNotFound is returned when a session key cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrScenarioNotFound is returned when a scenario id/version is unknown to the graph store.
var ErrScenarioNotFound = errors.New("scenario not found")

// ErrPlanNotFound is returned when no migration plan exists for a version pair.
var ErrPlanNotFound = errors.New("migration plan not found")

// ErrFactNotFound is returned when a profile field is absent or expired.
var ErrFactNotFound = errors.New("fact not found")

// ErrInvalidGraph is returned at load time for malformed scenario graphs.
var ErrInvalidGraph = errors.New("invalid scenario graph")
