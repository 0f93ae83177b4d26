/*
Package ports defines the driven ports (interfaces) for the Flowline engine.

These interfaces decouple the reconciliation core from external
implementations: graph and plan storage, session persistence, the structured
fact/profile store, the LLM-backed field extractor, the tie-break
adjudicator, and distributed locking. The engine never implements these; it
only consumes them.

# Key Interfaces

  - GraphStore: versioned scenario graphs and their migration plans.
  - SessionStore: durable per-conversation state, atomic per session.
  - FactStore: cross-session profile fields with expiry.
  - FieldExtractor: confidence-scored extraction of a field from recent turns.
  - Adjudicator: breaks ties between transition candidates.
  - StepScorer: scores re-localization candidate steps against the turn.
  - DistributedLocker: cross-replica session serialization.
*/
package ports
