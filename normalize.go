package prompttrace

import (
	"encoding/json"
)

// Normalizer converts one provider's raw response payload into the canonical
// NormalizedResponse. Implementations own all extraction logic for their
// format; no downstream consumer re-parses the raw payload for standard
// fields.
//
// Missing or malformed nested fields degrade to empty defaults. Only a
// payload with no recognizable content at all (no choices, no candidates, no
// assistant message) surfaces ErrNoContent.
type Normalizer interface {
	Normalize(raw json.RawMessage) (*NormalizedResponse, error)
}

// parseToolArguments parses a provider tool-call argument string into a map.
// Parse failures yield an empty map, never an error: argument strings are
// model output and malformed JSON must not abort normalization.
func parseToolArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// sumTotalTokens computes a total when the provider does not report one
// directly.
func sumTotalTokens(u Usage) Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}
