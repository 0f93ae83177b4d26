package ports

import "context"

// ExtractionRequest asks the extractor to find one field in recent
// conversation history.
type ExtractionRequest struct {
	Field       string   `json:"field"`
	TypeHint    string   `json:"type_hint,omitempty"`
	RecentTurns []string `json:"recent_turns,omitempty"`
}

// ExtractionResult carries the found value and the extractor's confidence.
type ExtractionResult struct {
	Found      bool    `json:"found"`
	Value      any     `json:"value,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// FieldExtractor is the only place an LLM is invoked from within this core.
// Implementations must honor ctx cancellation; the caller treats a timeout
// or error as "not filled" and moves on.
type FieldExtractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (ExtractionResult, error)
}
