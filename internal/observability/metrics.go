// Package observability wires prometheus instrumentation for the engine.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	TurnDuration     *prometheus.HistogramVec
	Reconciliations  *prometheus.CounterVec
	CheckpointBlocks prometheus.Counter
	Relocalizations  prometheus.Counter
	ScenarioExits    prometheus.Counter
	PlansGenerated   prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "flowline_turn_duration_seconds",
				Help: "Duration of one engine turn, by processing path",
			},
			[]string{"path"},
		),
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowline_reconciliations_total",
				Help: "Reconciliation results, by result type",
			},
			[]string{"result"},
		),
		CheckpointBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowline_checkpoint_blocks_total",
			Help: "Teleports downgraded to continue by a passed checkpoint",
		}),
		Relocalizations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowline_relocalizations_total",
			Help: "Sessions re-localized after drift or loops",
		}),
		ScenarioExits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowline_scenario_exits_total",
			Help: "Sessions that exited a scenario",
		}),
		PlansGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowline_plans_generated_total",
			Help: "Migration plans generated",
		}),
	}
	reg.MustRegister(
		m.TurnDuration,
		m.Reconciliations,
		m.CheckpointBlocks,
		m.Relocalizations,
		m.ScenarioExits,
		m.PlansGenerated,
	)
	return m
}
