package trace

import (
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// Store is an in-memory collection of traces, spans and generations that
// enforces the referential rules of the hierarchy: spans must belong to an
// existing trace and share it with their parent, span-attached generations
// must carry the span's trace, deleting a trace cascades to its spans, and
// deleting either nullifies generation references instead of removing them.
//
// Durable persistence lives behind Repository; the store is the working set
// of in-flight executions.
type Store struct {
	mu          sync.RWMutex
	traces      map[string]*Trace
	spans       map[string]*Span
	generations map[string]*Generation
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		traces:      map[string]*Trace{},
		spans:       map[string]*Span{},
		generations: map[string]*Generation{},
	}
}

// PutTrace inserts or replaces a trace.
func (s *Store) PutTrace(t *Trace) error {
	if t == nil || t.ID == "" {
		return goerr.New("trace is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[t.ID] = t
	return nil
}

// Trace finds a trace by id.
func (s *Store) Trace(id string) (*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.traces[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "trace", goerr.V("id", id))
	}
	return t, nil
}

// PutSpan inserts or replaces a span. The span's trace must exist, and a
// nested span must share its parent's trace.
func (s *Store) PutSpan(span *Span) error {
	if span == nil || span.ID == "" {
		return goerr.New("span is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.traces[span.TraceID]; !ok {
		return goerr.Wrap(ErrNotFound, "span trace", goerr.V("trace_id", span.TraceID))
	}

	if span.ParentSpanID != nil {
		parent, ok := s.spans[*span.ParentSpanID]
		if !ok {
			return goerr.Wrap(ErrNotFound, "parent span",
				goerr.V("parent_span_id", *span.ParentSpanID))
		}
		if parent.TraceID != span.TraceID {
			return goerr.Wrap(ErrSpanTraceMismatch, "child span must share the parent's trace",
				goerr.V("span_trace_id", span.TraceID),
				goerr.V("parent_trace_id", parent.TraceID))
		}
	}

	s.spans[span.ID] = span
	return nil
}

// Span finds a span by id.
func (s *Store) Span(id string) (*Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	span, ok := s.spans[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "span", goerr.V("id", id))
	}
	return span, nil
}

// PutGeneration inserts or replaces a generation. Its trace and span
// references, when set, must resolve, and a span reference requires a
// matching trace reference.
func (s *Store) PutGeneration(g *Generation) error {
	if g == nil || g.ID == "" {
		return goerr.New("generation is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if g.TraceID != nil {
		if _, ok := s.traces[*g.TraceID]; !ok {
			return goerr.Wrap(ErrNotFound, "generation trace",
				goerr.V("trace_id", *g.TraceID))
		}
	}

	if g.SpanID != nil {
		span, ok := s.spans[*g.SpanID]
		if !ok {
			return goerr.Wrap(ErrNotFound, "generation span",
				goerr.V("span_id", *g.SpanID))
		}
		if g.TraceID == nil || span.TraceID != *g.TraceID {
			return goerr.Wrap(ErrSpanTraceMismatch, "generation span must belong to its trace",
				goerr.V("span_trace_id", span.TraceID))
		}
	}

	s.generations[g.ID] = g
	return nil
}

// Generation finds a generation by id.
func (s *Store) Generation(id string) (*Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.generations[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "generation", goerr.V("id", id))
	}
	return g, nil
}

// RootSpans lists the trace's spans with no parent, ordered by start time.
func (s *Store) RootSpans(traceID string) []*Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var spans []*Span
	for _, span := range s.spans {
		if span.TraceID == traceID && span.ParentSpanID == nil {
			spans = append(spans, span)
		}
	}
	sortSpans(spans)
	return spans
}

// ChildSpans lists the direct children of a span, ordered by start time.
func (s *Store) ChildSpans(parentSpanID string) []*Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var spans []*Span
	for _, span := range s.spans {
		if span.ParentSpanID != nil && *span.ParentSpanID == parentSpanID {
			spans = append(spans, span)
		}
	}
	sortSpans(spans)
	return spans
}

// Spans lists every span of a trace, ordered by start time.
func (s *Store) Spans(traceID string) []*Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var spans []*Span
	for _, span := range s.spans {
		if span.TraceID == traceID {
			spans = append(spans, span)
		}
	}
	sortSpans(spans)
	return spans
}

// Generations lists every generation attached to a trace, ordered by creation
// time.
func (s *Store) Generations(traceID string) []*Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var gens []*Generation
	for _, g := range s.generations {
		if g.TraceID != nil && *g.TraceID == traceID {
			gens = append(gens, g)
		}
	}
	sortGenerations(gens)
	return gens
}

// SpanGenerations lists the generations attached to a span, ordered by
// creation time.
func (s *Store) SpanGenerations(spanID string) []*Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var gens []*Generation
	for _, g := range s.generations {
		if g.SpanID != nil && *g.SpanID == spanID {
			gens = append(gens, g)
		}
	}
	sortGenerations(gens)
	return gens
}

// OrphanGenerations lists generations attached to the trace but to no span,
// ordered by creation time.
func (s *Store) OrphanGenerations(traceID string) []*Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var gens []*Generation
	for _, g := range s.generations {
		if g.TraceID != nil && *g.TraceID == traceID && g.SpanID == nil {
			gens = append(gens, g)
		}
	}
	sortGenerations(gens)
	return gens
}

// Traces lists the traces grouped under a session key, ordered by start time.
func (s *Store) Traces(sessionID string) []*Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var traces []*Trace
	for _, t := range s.traces {
		if t.SessionID == sessionID {
			traces = append(traces, t)
		}
	}
	sort.Slice(traces, func(i, j int) bool {
		if traces[i].StartedAt.Equal(traces[j].StartedAt) {
			return traces[i].ID < traces[j].ID
		}
		return traces[i].StartedAt.Before(traces[j].StartedAt)
	})
	return traces
}

// DeleteTrace removes a trace and all its spans. Generations referencing the
// trace or its spans have their references nullified, not deleted.
func (s *Store) DeleteTrace(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.traces[id]; !ok {
		return goerr.Wrap(ErrNotFound, "trace", goerr.V("id", id))
	}
	delete(s.traces, id)

	for spanID, span := range s.spans {
		if span.TraceID == id {
			delete(s.spans, spanID)
		}
	}

	for _, g := range s.generations {
		if g.TraceID != nil && *g.TraceID == id {
			g.TraceID = nil
			g.SpanID = nil
		}
	}
	return nil
}

// DeleteSpan removes a span and its descendants. Generations referencing any
// removed span keep their trace reference and lose only the span one.
func (s *Store) DeleteSpan(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spans[id]; !ok {
		return goerr.Wrap(ErrNotFound, "span", goerr.V("id", id))
	}

	removed := map[string]bool{id: true}
	delete(s.spans, id)

	// Children may nest arbitrarily deep; sweep until no descendant remains.
	for {
		found := false
		for spanID, span := range s.spans {
			if span.ParentSpanID != nil && removed[*span.ParentSpanID] {
				removed[spanID] = true
				delete(s.spans, spanID)
				found = true
			}
		}
		if !found {
			break
		}
	}

	for _, g := range s.generations {
		if g.SpanID != nil && removed[*g.SpanID] {
			g.SpanID = nil
		}
	}
	return nil
}

// Archive bundles a trace with its spans and generations for persistence.
func (s *Store) Archive(traceID string) (*Archive, error) {
	t, err := s.Trace(traceID)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Trace:       t,
		Spans:       s.Spans(traceID),
		Generations: s.Generations(traceID),
	}, nil
}

func sortSpans(spans []*Span) {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].StartedAt.Equal(spans[j].StartedAt) {
			return spans[i].ID < spans[j].ID
		}
		return spans[i].StartedAt.Before(spans[j].StartedAt)
	})
}

func sortGenerations(gens []*Generation) {
	sort.Slice(gens, func(i, j int) bool {
		if gens[i].CreatedAt.Equal(gens[j].CreatedAt) {
			return gens[i].ID < gens[j].ID
		}
		return gens[i].CreatedAt.Before(gens[j].CreatedAt)
	})
}
