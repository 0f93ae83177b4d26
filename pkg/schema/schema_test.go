package schema

import (
	"testing"

	"github.com/mroche14/flowline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
scenario: order-support
version: 2
steps:
  - id: welcome
    is_entry: true
    description: Greet and triage
    collects_fields: [name]
    metadata:
      owner: support-team
      sla: 30
    transitions:
      - target: refund
        condition: age < 18
        condition_fields: [age]
        priority: 2
      - target: done
        priority: 1
  - id: refund
    is_checkpoint: true
    checkpoint_description: Refund Issued
    transitions:
      - target: done
  - id: done
    is_terminal: true
`

func TestParse_Valid(t *testing.T) {
	sc, err := Parse([]byte(validScenario))
	require.NoError(t, err)

	assert.Equal(t, "order-support", sc.Scenario)
	assert.Equal(t, 2, sc.Version)
	require.Len(t, sc.Steps, 3)
	assert.True(t, sc.Steps[0].IsEntry)
	assert.Equal(t, []string{"age"}, sc.Steps[0].Transitions[0].ConditionFields)
}

func TestToGraph(t *testing.T) {
	sc, err := Parse([]byte(validScenario))
	require.NoError(t, err)

	g, err := sc.ToGraph()
	require.NoError(t, err)

	assert.Equal(t, "order-support", g.ID())
	assert.Equal(t, 2, g.Version())
	assert.Equal(t, "welcome", g.EntryStep().ID)

	refund, ok := g.Step("refund")
	require.True(t, ok)
	assert.True(t, refund.IsCheckpoint)
	assert.Equal(t, "Refund Issued", refund.CheckpointDescription)

	// Weakly decoded metadata: numbers become strings.
	welcome, _ := g.Step("welcome")
	assert.Equal(t, "support-team", welcome.Metadata["owner"])
	assert.Equal(t, "30", welcome.Metadata["sla"])

	// Priority ordering survives conversion.
	ts := g.TransitionsFrom("welcome")
	assert.Equal(t, "refund", ts[0].Target)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing scenario id", "version: 1\nsteps:\n  - id: a\n    is_entry: true\n    is_terminal: true\n"},
		{"missing version", "scenario: s\nsteps:\n  - id: a\n    is_entry: true\n    is_terminal: true\n"},
		{"no steps", "scenario: s\nversion: 1\n"},
		{"step without id", "scenario: s\nversion: 1\nsteps:\n  - is_entry: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			assert.ErrorIs(t, err, domain.ErrInvalidGraph)
		})
	}
}

func TestToGraph_DanglingTarget(t *testing.T) {
	sc, err := Parse([]byte(`
scenario: s
version: 1
steps:
  - id: a
    is_entry: true
    transitions:
      - target: ghost
`))
	require.NoError(t, err)

	_, err = sc.ToGraph()
	assert.ErrorIs(t, err, domain.ErrInvalidGraph)
}
