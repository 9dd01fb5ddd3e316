package prompttrace

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MaxToolIterations is the default cap on tool resolution rounds. The loop is
// the only built-in runaway prevention; provider call timeouts belong to the
// transport layer and arrive here as ordinary errors.
const MaxToolIterations = 10

// FunctionCallOutput is one resolved tool call, keyed by the call's id, that
// is fed back to the model on the next invocation.
type FunctionCallOutput struct {
	CallID string         `json:"call_id"`
	Output map[string]any `json:"output"`
}

// ToolExecutor resolves a single tool call. Implementations may call real
// services or return canned outputs for tests.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) (map[string]any, error)
}

// ModelInvoker re-invokes the model with the outputs of the previous round.
// previousResponseID carries the continuation token for APIs that keep
// server-side conversation state; it may be empty.
type ModelInvoker interface {
	Invoke(ctx context.Context, previousResponseID string, outputs []FunctionCallOutput) (*NormalizedResponse, error)
}

// ToolLoopResult is the outcome of one loop run. AllResponses holds every
// response seen, initial included, so callers can rebuild the full per-turn
// history. Unresolved is set when the iteration cap was reached with tool
// calls still pending; the final response is returned anyway.
type ToolLoopResult struct {
	FinalResponse *NormalizedResponse
	AllToolCalls  []ToolCall
	AllResponses  []*NormalizedResponse
	Unresolved    bool
}

// ToolLoop drives multi-turn tool-call resolution: execute the pending calls,
// re-invoke the model with their outputs, and repeat until the model stops
// requesting tools or the iteration cap is hit.
type ToolLoop struct {
	invoker       ModelInvoker
	executor      ToolExecutor
	maxIterations int
	schemas       map[string]*jsonschema.Schema
	logger        *slog.Logger
}

// ToolLoopOption configures a ToolLoop.
type ToolLoopOption func(*ToolLoop)

// WithMaxIterations overrides the iteration cap. See MaxToolIterations.
func WithMaxIterations(n int) ToolLoopOption {
	return func(l *ToolLoop) {
		l.maxIterations = n
	}
}

// WithLoopLogger sets the logger. Default discards everything.
func WithLoopLogger(logger *slog.Logger) ToolLoopOption {
	return func(l *ToolLoop) {
		l.logger = logger
	}
}

// WithToolSchemas sets compiled argument schemas keyed by function name.
// Arguments of a call whose function has a schema are validated before
// execution; a failure becomes an error-shaped output for that call instead
// of aborting the loop. See CompileToolSchemas.
func WithToolSchemas(schemas map[string]*jsonschema.Schema) ToolLoopOption {
	return func(l *ToolLoop) {
		l.schemas = schemas
	}
}

// CompileToolSchemas compiles JSON schema documents keyed by function name
// for use with WithToolSchemas.
func CompileToolSchemas(raw map[string]string) (map[string]*jsonschema.Schema, error) {
	compiled := make(map[string]*jsonschema.Schema, len(raw))
	for name, schemaJSON := range raw {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse tool schema", goerr.V("tool", name))
		}

		compiler := jsonschema.NewCompiler()
		resource := name + ".schema.json"
		if err := compiler.AddResource(resource, doc); err != nil {
			return nil, goerr.Wrap(err, "failed to add tool schema resource", goerr.V("tool", name))
		}

		schema, err := compiler.Compile(resource)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to compile tool schema", goerr.V("tool", name))
		}
		compiled[name] = schema
	}
	return compiled, nil
}

// NewToolLoop creates a loop over the given model invoker and tool executor.
func NewToolLoop(invoker ModelInvoker, executor ToolExecutor, opts ...ToolLoopOption) *ToolLoop {
	l := &ToolLoop{
		invoker:       invoker,
		executor:      executor,
		maxIterations: MaxToolIterations,
		logger:        slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run resolves the tool calls of the initial response. A response with no
// tool calls returns immediately with zero re-invocations. When the iteration
// cap is exhausted the last response is still returned, its pending tool
// calls folded into AllToolCalls and Unresolved set, so nothing is silently
// dropped.
func (l *ToolLoop) Run(ctx context.Context, initial *NormalizedResponse) (*ToolLoopResult, error) {
	result := &ToolLoopResult{
		FinalResponse: initial,
		AllToolCalls:  []ToolCall{},
		AllResponses:  []*NormalizedResponse{initial},
	}

	if !initial.HasToolCalls() {
		return result, nil
	}

	current := initial
	for i := 0; i < l.maxIterations; i++ {
		pending := current.ToolCalls()
		result.AllToolCalls = append(result.AllToolCalls, pending...)

		outputs := make([]FunctionCallOutput, 0, len(pending))
		for _, call := range pending {
			output, err := l.executeCall(ctx, call)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, FunctionCallOutput{
				CallID: call.ID,
				Output: output,
			})
		}

		next, err := l.invoker.Invoke(ctx, current.ResponseID(), outputs)
		if err != nil {
			return nil, goerr.Wrap(err, "model re-invocation failed",
				goerr.V("iteration", i+1),
				goerr.V("function_outputs", len(outputs)))
		}

		result.AllResponses = append(result.AllResponses, next)
		result.FinalResponse = next
		current = next

		if !next.HasToolCalls() {
			return result, nil
		}
	}

	// Degraded termination: the cap is a safety valve, not an error. Pending
	// calls of the last response are folded in so callers see everything.
	result.AllToolCalls = append(result.AllToolCalls, current.ToolCalls()...)
	result.Unresolved = true
	l.logger.Warn("tool call loop reached iteration limit with unresolved tool calls",
		"iterations", l.maxIterations,
		"pending_tool_calls", len(current.ToolCalls()),
	)

	return result, nil
}

func (l *ToolLoop) executeCall(ctx context.Context, call ToolCall) (map[string]any, error) {
	if schema, ok := l.schemas[call.FunctionName]; ok {
		if err := schema.Validate(toJSONValue(call.Arguments)); err != nil {
			l.logger.Warn("tool call arguments failed schema validation",
				"function", call.FunctionName,
				"call_id", call.ID,
			)
			return map[string]any{
				"error": goerr.Wrap(ErrInvalidToolArguments, err.Error(),
					goerr.V("function", call.FunctionName)).Error(),
			}, nil
		}
	}

	output, err := l.executor.Execute(ctx, call)
	if err != nil {
		return nil, goerr.Wrap(err, "tool execution failed",
			goerr.V("function", call.FunctionName),
			goerr.V("call_id", call.ID))
	}
	if output == nil {
		output = map[string]any{}
	}
	return output, nil
}

// toJSONValue normalizes argument maps to the generic value shape the schema
// validator expects (numbers as float64 and so on).
func toJSONValue(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return anyToJSON(args)
}

func anyToJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = anyToJSON(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = anyToJSON(val)
		}
		return s
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// StubExecutor resolves tool calls from canned outputs keyed by function
// name. It is the resolution path used when a handler is built with
// useRealLLM false.
type StubExecutor struct {
	// Outputs maps function name to the output returned for its calls.
	Outputs map[string]map[string]any
}

// Execute returns the canned output for the call's function, or an empty map
// when none is registered.
func (e *StubExecutor) Execute(_ context.Context, call ToolCall) (map[string]any, error) {
	if output, ok := e.Outputs[call.FunctionName]; ok {
		return output, nil
	}
	return map[string]any{}, nil
}
