package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
)

// Resolution sources, in tier order.
const (
	SourceProfile    = "profile"
	SourceSession    = "session"
	SourceExtraction = "extraction"
)

// Resolution is the outcome of resolving one field.
type Resolution struct {
	Filled            bool
	Value             any
	Source            string
	Confidence        float64
	NeedsConfirmation bool
}

// GapFill resolves a named field from known state before anyone asks the
// user: structured profile facts first, then session variables, then
// LLM-backed extraction over recent turns. First success wins.
type GapFill struct {
	facts     ports.FactStore
	extractor ports.FieldExtractor

	accept         float64
	confirm        float64
	extractTimeout time.Duration

	logger *slog.Logger
}

// GapFillOption configures the resolver.
type GapFillOption func(*GapFill)

// WithGapFillLogger sets the resolver's logger.
func WithGapFillLogger(logger *slog.Logger) GapFillOption {
	return func(g *GapFill) { g.logger = logger }
}

// WithExtractTimeout bounds how long one extraction call may take before it
// is treated as "not filled".
func WithExtractTimeout(d time.Duration) GapFillOption {
	return func(g *GapFill) { g.extractTimeout = d }
}

// NewGapFill creates a resolver. extractor may be nil, in which case tier 2
// is skipped entirely.
func NewGapFill(facts ports.FactStore, extractor ports.FieldExtractor, cfg Config, opts ...GapFillOption) *GapFill {
	g := &GapFill{
		facts:          facts,
		extractor:      extractor,
		accept:         cfg.AcceptThreshold,
		confirm:        cfg.ConfirmThreshold,
		extractTimeout: 5 * time.Second,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve tries the tiers in order for a single field. A zero Resolution
// (Filled == false) means the caller should fall back to asking the user.
func (g *GapFill) Resolve(ctx context.Context, session *domain.SessionState, field, typeHint string, recentTurns []string) Resolution {
	// Tier 1a: cross-session profile, expiry enforced by the store.
	if g.facts != nil {
		fact, err := g.facts.GetField(ctx, session.Key, field)
		if err == nil {
			return Resolution{Filled: true, Value: fact.Value, Source: SourceProfile, Confidence: fact.Confidence}
		}
		if !errors.Is(err, domain.ErrFactNotFound) {
			g.logger.Warn("fact store lookup failed", "field", field, "err", err)
		}
	}

	// Tier 1b: current-session variables.
	if v, ok := session.Variables[field]; ok && v != nil {
		return Resolution{Filled: true, Value: v, Source: SourceSession, Confidence: 1.0}
	}

	// Tier 2: extraction over recent history.
	if g.extractor != nil && len(recentTurns) > 0 {
		if res, ok := g.extract(ctx, session, field, typeHint, recentTurns); ok {
			return res
		}
	}

	// Tier 3: not filled; caller asks the user.
	return Resolution{}
}

func (g *GapFill) extract(ctx context.Context, session *domain.SessionState, field, typeHint string, recentTurns []string) (Resolution, bool) {
	extractCtx := ctx
	if g.extractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, g.extractTimeout)
		defer cancel()
	}

	result, err := g.extractor.Extract(extractCtx, ports.ExtractionRequest{
		Field:       field,
		TypeHint:    typeHint,
		RecentTurns: recentTurns,
	})
	if err != nil {
		// Timeouts and failures cascade to tier 3; never block the turn.
		g.logger.Warn("extraction failed", "field", field, "err", err)
		return Resolution{}, false
	}
	if !result.Found || result.Confidence < g.confirm {
		return Resolution{}, false
	}

	res := Resolution{
		Filled:            true,
		Value:             result.Value,
		Source:            SourceExtraction,
		Confidence:        result.Confidence,
		NeedsConfirmation: result.Confidence < g.accept,
	}

	// Persist for future reuse; a write failure costs a re-extraction later,
	// nothing more.
	if g.facts != nil {
		err := g.facts.SetField(ctx, session.Key, ports.Fact{
			Name:       field,
			Value:      result.Value,
			Source:     SourceExtraction,
			Confidence: result.Confidence,
		})
		if err != nil {
			g.logger.Warn("fact store write failed", "field", field, "err", err)
		}
	}

	return res, true
}

// ResolveAll resolves a field list, returning the resolved values and the
// names still missing, in input order.
func (g *GapFill) ResolveAll(ctx context.Context, session *domain.SessionState, fields []string, recentTurns []string) (map[string]any, []string) {
	resolved := make(map[string]any, len(fields))
	var missing []string
	for _, f := range fields {
		res := g.Resolve(ctx, session, f, "", recentTurns)
		if res.Filled {
			resolved[f] = res.Value
		} else {
			missing = append(missing, f)
		}
	}
	return resolved, missing
}
