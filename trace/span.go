package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// SpanType categorizes what a span did. Empty means uncategorized.
type SpanType string

const (
	SpanTypeFunction  SpanType = "function"
	SpanTypeTool      SpanType = "tool"
	SpanTypeRetrieval SpanType = "retrieval"
	SpanTypeDatabase  SpanType = "database"
	SpanTypeHTTP      SpanType = "http"
)

// Span is one step within a Trace. Spans may nest via ParentSpanID; children
// always belong to the same trace as their parent.
type Span struct {
	mu sync.Mutex

	ID           string         `json:"id"`
	TraceID      string         `json:"trace_id"`
	ParentSpanID *string        `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	SpanType     SpanType       `json:"span_type,omitempty"`
	Input        string         `json:"input,omitempty"`
	Output       string         `json:"output,omitempty"`
	Status       Status         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	DurationMS   *int64         `json:"duration_ms,omitempty"`
	Metadata     map[string]any `json:"metadata"`
}

// SpanOption configures optional fields of a new Span.
type SpanOption func(*Span)

// WithSpanType categorizes the span.
func WithSpanType(spanType SpanType) SpanOption {
	return func(s *Span) {
		s.SpanType = spanType
	}
}

// WithSpanInput sets the span input text.
func WithSpanInput(input string) SpanOption {
	return func(s *Span) {
		s.Input = input
	}
}

// WithSpanMetadata merges the given key/value into the span metadata.
func WithSpanMetadata(key string, value any) SpanOption {
	return func(s *Span) {
		s.Metadata[key] = value
	}
}

func newSpan(traceID string, parentSpanID *string, name string, opts ...SpanOption) (*Span, error) {
	if name == "" {
		return nil, goerr.Wrap(ErrNameRequired, "span name")
	}

	s := &Span{
		ID:           uuid.New().String(),
		TraceID:      traceID,
		ParentSpanID: parentSpanID,
		Name:         name,
		Status:       StatusRunning,
		StartedAt:    now(),
		Metadata:     map[string]any{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// StartChild creates a running child span. The child's trace id is copied
// from the receiver unconditionally, so the same-trace invariant holds by
// construction.
func (s *Span) StartChild(name string, opts ...SpanOption) (*Span, error) {
	parentID := s.ID
	return newSpan(s.TraceID, &parentID, name, opts...)
}

// Complete transitions the span to completed, setting the output when given.
// Valid only while running; the check and the transition are atomic.
func (s *Span) Complete(output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusRunning {
		return goerr.Wrap(ErrInvalidTransition, "span is not running",
			goerr.V("span_id", s.ID),
			goerr.V("status", s.Status))
	}

	s.Status = StatusCompleted
	if output != "" {
		s.Output = output
	}
	s.finish()
	return nil
}

// Fail transitions the span to error, merging the message into metadata under
// "error" without clobbering existing keys. Valid only while running.
func (s *Span) Fail(errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusRunning {
		return goerr.Wrap(ErrInvalidTransition, "span is not running",
			goerr.V("span_id", s.ID),
			goerr.V("status", s.Status))
	}

	s.Status = StatusError
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	s.Metadata["error"] = errMessage
	s.finish()
	return nil
}

func (s *Span) finish() {
	endedAt := now()
	s.EndedAt = &endedAt
	d := durationMS(s.StartedAt, endedAt)
	s.DurationMS = &d
}
