package trace

import (
	"time"

	"github.com/google/uuid"
)

// Generation is a single LLM call record. It optionally references one Trace
// and at most one Span; both references are independent and nullable. A
// generation is not owned by either: deleting a trace or span nullifies the
// reference instead of deleting the generation.
type Generation struct {
	ID       string  `json:"id"`
	TraceID  *string `json:"trace_id,omitempty"`
	SpanID   *string `json:"span_id,omitempty"`
	Provider string  `json:"provider,omitempty"`
	API      string  `json:"api,omitempty"`
	Model    string  `json:"model"`
	Input    string  `json:"input,omitempty"`
	Output   string  `json:"output,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	DurationMS *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// GenerationOption configures optional fields of a new Generation.
type GenerationOption func(*Generation)

// WithGenerationTrace attaches the generation to a trace.
func WithGenerationTrace(traceID string) GenerationOption {
	return func(g *Generation) {
		g.TraceID = &traceID
	}
}

// WithGenerationSpan attaches the generation to a span within a trace.
func WithGenerationSpan(traceID, spanID string) GenerationOption {
	return func(g *Generation) {
		g.TraceID = &traceID
		g.SpanID = &spanID
	}
}

// WithGenerationProvider records which provider and API served the call.
func WithGenerationProvider(provider, api string) GenerationOption {
	return func(g *Generation) {
		g.Provider = provider
		g.API = api
	}
}

// WithGenerationIO sets the prompt and response text.
func WithGenerationIO(input, output string) GenerationOption {
	return func(g *Generation) {
		g.Input = input
		g.Output = output
	}
}

// WithGenerationUsage sets the token counters.
func WithGenerationUsage(promptTokens, completionTokens, totalTokens int) GenerationOption {
	return func(g *Generation) {
		g.PromptTokens = promptTokens
		g.CompletionTokens = completionTokens
		g.TotalTokens = totalTokens
	}
}

// WithGenerationDuration records the call latency.
func WithGenerationDuration(durationMS int64) GenerationOption {
	return func(g *Generation) {
		g.DurationMS = &durationMS
	}
}

// WithGenerationMetadata merges the given key/value into the generation
// metadata.
func WithGenerationMetadata(key string, value any) GenerationOption {
	return func(g *Generation) {
		if g.Metadata == nil {
			g.Metadata = map[string]any{}
		}
		g.Metadata[key] = value
	}
}

// NewGeneration creates a generation record for the given model.
func NewGeneration(model string, opts ...GenerationOption) *Generation {
	g := &Generation{
		ID:        uuid.New().String(),
		Model:     model,
		CreatedAt: now(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}
