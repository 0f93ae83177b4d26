/*
Package domain contains the core domain models for the Flowline engine.

It defines the fundamental entities of the scenario state machine: the
versioned ScenarioGraph of Steps and Transitions, the per-conversation
SessionState, the precomputed MigrationPlan that reconciles live sessions
with edited graphs, and the ReconciliationResult the engine hands back to
the turn orchestrator. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Step / Transition: a node/edge in a scenario graph. Transitions carry
    condition text plus the field names that condition depends on.
  - ScenarioGraph: an immutable, versioned snapshot of a scenario.
  - SessionState: the runtime position of one conversation (scenario, step,
    version, bounded step history).
  - MigrationPlan: per-step instructions for moving sessions from one graph
    version to the next.
  - ReconciliationResult: the engine's per-turn verdict (continue, teleport,
    collect, execute, exit).
*/
package domain
