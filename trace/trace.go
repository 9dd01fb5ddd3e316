// Package trace records workflow executions as a hierarchy of traces, spans
// and generations. A Trace is one top-level execution, a Span is one step
// within it (possibly nested), and a Generation is a single LLM call record
// optionally attached to either.
package trace

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Status is the lifecycle state of a Trace or Span.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

var (
	// ErrInvalidTransition is returned when completing or failing an entity
	// that is no longer running. Terminal states are final; silently
	// overwriting them would mask double-completion races.
	ErrInvalidTransition = goerr.New("invalid status transition")

	// ErrNotFound is returned by lookups for unknown ids.
	ErrNotFound = goerr.New("not found")

	// ErrSpanTraceMismatch is returned when a span's references violate the
	// trace hierarchy.
	ErrSpanTraceMismatch = goerr.New("span does not belong to the expected trace")

	// ErrNameRequired is returned when a trace or span is created without a
	// name.
	ErrNameRequired = goerr.New("name is required")
)

// Trace is one top-level workflow execution. It owns its spans; generations
// only reference it.
type Trace struct {
	mu sync.Mutex

	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Input      string         `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// TraceOption configures optional fields of a new Trace.
type TraceOption func(*Trace)

// WithInput sets the trace input text.
func WithInput(input string) TraceOption {
	return func(t *Trace) {
		t.Input = input
	}
}

// WithSessionID groups the trace under a session key. It is a plain string,
// not a reference to another entity.
func WithSessionID(sessionID string) TraceOption {
	return func(t *Trace) {
		t.SessionID = sessionID
	}
}

// WithUserID attributes the trace to a user.
func WithUserID(userID string) TraceOption {
	return func(t *Trace) {
		t.UserID = userID
	}
}

// WithMetadata merges the given key/value into the trace metadata.
func WithMetadata(key string, value any) TraceOption {
	return func(t *Trace) {
		t.Metadata[key] = value
	}
}

// New creates a running Trace. Trace ids are UUID v7 so they sort by start
// time.
func New(name string, opts ...TraceOption) (*Trace, error) {
	if name == "" {
		return nil, goerr.Wrap(ErrNameRequired, "trace name")
	}

	t := &Trace{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Status:    StatusRunning,
		StartedAt: now(),
		Metadata:  map[string]any{},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Complete transitions the trace to completed, setting the output when given.
// Valid only while running; the check and the transition are atomic so two
// racing callers cannot both succeed.
func (t *Trace) Complete(output string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status != StatusRunning {
		return goerr.Wrap(ErrInvalidTransition, "trace is not running",
			goerr.V("trace_id", t.ID),
			goerr.V("status", t.Status))
	}

	t.Status = StatusCompleted
	if output != "" {
		t.Output = output
	}
	t.finish()
	return nil
}

// Fail transitions the trace to error, merging the message into metadata
// under "error" without clobbering existing keys. Valid only while running.
func (t *Trace) Fail(errMessage string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status != StatusRunning {
		return goerr.Wrap(ErrInvalidTransition, "trace is not running",
			goerr.V("trace_id", t.ID),
			goerr.V("status", t.Status))
	}

	t.Status = StatusError
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	t.Metadata["error"] = errMessage
	t.finish()
	return nil
}

func (t *Trace) finish() {
	endedAt := now()
	t.EndedAt = &endedAt
	d := durationMS(t.StartedAt, endedAt)
	t.DurationMS = &d
}

// StartSpan creates a running root-level span within this trace.
func (t *Trace) StartSpan(name string, opts ...SpanOption) (*Span, error) {
	return newSpan(t.ID, nil, name, opts...)
}

// durationMS derives the duration invariant: round((ended-started)*1000).
func durationMS(started, ended time.Time) int64 {
	return int64(math.Round(ended.Sub(started).Seconds() * 1000))
}

// now is swapped out in tests.
var now = time.Now
