package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mroche14/flowline/internal/adapters/memory"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// stubExtractor returns canned results per field.
type stubExtractor struct {
	results map[string]ports.ExtractionResult
	err     error
	calls   int
}

func (s *stubExtractor) Extract(_ context.Context, req ports.ExtractionRequest) (ports.ExtractionResult, error) {
	s.calls++
	if s.err != nil {
		return ports.ExtractionResult{}, s.err
	}
	return s.results[req.Field], nil
}

func gapfillKey() domain.SessionKey {
	return domain.SessionKey{Tenant: "acme", Agent: "bot", Interlocutor: "u1", Channel: "web"}
}

func TestGapFill_ProfileFactWinsFirst(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewFactStore()
	require.NoError(t, facts.SetField(ctx, gapfillKey(), ports.Fact{Name: "email", Value: "a@b.c", Confidence: 0.95}))

	extractor := &stubExtractor{}
	g := NewGapFill(facts, extractor, DefaultConfig())

	session := domain.NewSession(gapfillKey())
	session.Variables["email"] = "shadowed@example.com"

	res := g.Resolve(ctx, session, "email", "", []string{"my email is a@b.c"})
	assert.True(t, res.Filled)
	assert.Equal(t, SourceProfile, res.Source)
	assert.Equal(t, "a@b.c", res.Value)
	assert.Zero(t, extractor.calls, "extraction must not run when a profile fact exists")
}

func TestGapFill_SessionVariableSecond(t *testing.T) {
	g := NewGapFill(memory.NewFactStore(), &stubExtractor{}, DefaultConfig())

	session := domain.NewSession(gapfillKey())
	session.Variables["order_id"] = "ORD-42"

	res := g.Resolve(context.Background(), session, "order_id", "", nil)
	assert.True(t, res.Filled)
	assert.Equal(t, SourceSession, res.Source)
	assert.Equal(t, "ORD-42", res.Value)
}

func TestGapFill_ExtractionConfidenceBands(t *testing.T) {
	cfg := DefaultConfig() // accept 0.80, confirm 0.60
	turns := []string{"I'm 16 years old"}

	tests := []struct {
		name        string
		confidence  float64
		wantFilled  bool
		wantConfirm bool
	}{
		{"above accept", 0.90, true, false},
		{"between confirm and accept", 0.70, true, true},
		{"below confirm", 0.40, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := &stubExtractor{results: map[string]ports.ExtractionResult{
				"age": {Found: true, Value: 16, Confidence: tt.confidence},
			}}
			g := NewGapFill(memory.NewFactStore(), extractor, cfg)

			res := g.Resolve(context.Background(), domain.NewSession(gapfillKey()), "age", "int", turns)
			assert.Equal(t, tt.wantFilled, res.Filled)
			assert.Equal(t, tt.wantConfirm, res.NeedsConfirmation)
		})
	}
}

func TestGapFill_ExtractionPersistsBack(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewFactStore()
	extractor := &stubExtractor{results: map[string]ports.ExtractionResult{
		"phone": {Found: true, Value: "+33600000000", Confidence: 0.92},
	}}
	g := NewGapFill(facts, extractor, DefaultConfig())

	res := g.Resolve(ctx, domain.NewSession(gapfillKey()), "phone", "", []string{"call me at +33600000000"})
	require.True(t, res.Filled)

	// The second resolution hits the profile without re-extracting.
	res = g.Resolve(ctx, domain.NewSession(gapfillKey()), "phone", "", []string{"call me at +33600000000"})
	assert.Equal(t, SourceProfile, res.Source)
	assert.Equal(t, 1, extractor.calls)
}

func TestGapFill_ExtractorFailureFallsThrough(t *testing.T) {
	extractor := &stubExtractor{err: errors.New("model unavailable")}
	g := NewGapFill(memory.NewFactStore(), extractor, DefaultConfig())

	res := g.Resolve(context.Background(), domain.NewSession(gapfillKey()), "age", "", []string{"I'm 16"})
	assert.False(t, res.Filled, "an extraction error means asking the user, never an error to the turn")
}

func TestGapFill_NilExtractorSkipsTier2(t *testing.T) {
	g := NewGapFill(memory.NewFactStore(), nil, DefaultConfig())
	res := g.Resolve(context.Background(), domain.NewSession(gapfillKey()), "age", "", []string{"I'm 16"})
	assert.False(t, res.Filled)
}

func TestGapFill_ResolveAll(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewFactStore()
	require.NoError(t, facts.SetField(ctx, gapfillKey(), ports.Fact{Name: "email", Value: "a@b.c"}))
	g := NewGapFill(facts, nil, DefaultConfig())

	session := domain.NewSession(gapfillKey())
	session.Variables["name"] = "Ana"

	resolved, missing := g.ResolveAll(ctx, session, []string{"email", "name", "phone", "age"}, nil)
	assert.Equal(t, map[string]any{"email": "a@b.c", "name": "Ana"}, resolved)
	assert.Equal(t, []string{"phone", "age"}, missing, "missing names keep input order")
}
