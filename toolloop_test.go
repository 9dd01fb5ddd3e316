package prompttrace_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/prompttrace"
)

type mockInvoker struct {
	responses []*prompttrace.NormalizedResponse
	calls     int
	lastID    string
	outputs   [][]prompttrace.FunctionCallOutput
}

func (m *mockInvoker) Invoke(_ context.Context, previousResponseID string, outputs []prompttrace.FunctionCallOutput) (*prompttrace.NormalizedResponse, error) {
	m.lastID = previousResponseID
	m.outputs = append(m.outputs, outputs)
	if m.calls >= len(m.responses) {
		return nil, errors.New("no more responses")
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func responseWithCall(t *testing.T, callID string) *prompttrace.NormalizedResponse {
	t.Helper()
	resp, err := prompttrace.NewResponse("working on it", "gpt-4o", nil,
		prompttrace.WithToolCalls(prompttrace.ToolCall{
			ID:           callID,
			Type:         "function",
			FunctionName: "lookup",
			Arguments:    map[string]any{"q": "x"},
		}),
	)
	gt.NoError(t, err)
	return resp
}

func plainResponse(t *testing.T, text string) *prompttrace.NormalizedResponse {
	t.Helper()
	resp, err := prompttrace.NewResponse(text, "gpt-4o", nil)
	gt.NoError(t, err)
	return resp
}

func TestToolLoopShortCircuit(t *testing.T) {
	invoker := &mockInvoker{}
	loop := prompttrace.NewToolLoop(invoker, &prompttrace.StubExecutor{})

	initial := plainResponse(t, "nothing to do")
	result, err := loop.Run(context.Background(), initial)
	gt.NoError(t, err)

	gt.Equal(t, result.FinalResponse, initial)
	gt.A(t, result.AllToolCalls).Length(0)
	gt.A(t, result.AllResponses).Length(1)
	gt.Equal(t, result.AllResponses[0], initial)
	gt.False(t, result.Unresolved)

	// Zero re-invocations happened.
	gt.Equal(t, invoker.calls, 0)
}

func TestToolLoopSingleRound(t *testing.T) {
	final := plainResponse(t, "the answer")
	invoker := &mockInvoker{responses: []*prompttrace.NormalizedResponse{final}}

	executor := &prompttrace.StubExecutor{
		Outputs: map[string]map[string]any{
			"lookup": {"result": "found"},
		},
	}
	loop := prompttrace.NewToolLoop(invoker, executor)

	result, err := loop.Run(context.Background(), responseWithCall(t, "call_1"))
	gt.NoError(t, err)

	gt.Equal(t, result.FinalResponse, final)
	gt.A(t, result.AllToolCalls).Length(1)
	gt.A(t, result.AllResponses).Length(2)
	gt.False(t, result.Unresolved)

	// The tool output was threaded back keyed by call id.
	gt.A(t, invoker.outputs).Length(1)
	gt.Equal(t, invoker.outputs[0][0].CallID, "call_1")
	gt.Equal(t, invoker.outputs[0][0].Output, map[string]any{"result": "found"})
}

func TestToolLoopIterationLimit(t *testing.T) {
	// Every re-invocation returns yet another pending tool call.
	responses := make([]*prompttrace.NormalizedResponse, prompttrace.MaxToolIterations)
	for i := range responses {
		responses[i] = responseWithCall(t, fmt.Sprintf("call_%d", i+1))
	}
	invoker := &mockInvoker{responses: responses}

	var logBuf bytes.Buffer
	loop := prompttrace.NewToolLoop(invoker, &prompttrace.StubExecutor{},
		prompttrace.WithLoopLogger(slog.New(slog.NewTextHandler(&logBuf, nil))),
	)

	result, err := loop.Run(context.Background(), responseWithCall(t, "call_0"))
	gt.NoError(t, err)

	gt.True(t, result.Unresolved)
	gt.A(t, result.AllResponses).Length(prompttrace.MaxToolIterations + 1)

	// One call per round plus the still-pending call of the last response.
	gt.A(t, result.AllToolCalls).Length(prompttrace.MaxToolIterations + 1)
	gt.Equal(t, invoker.calls, prompttrace.MaxToolIterations)

	gt.S(t, logBuf.String()).Contains("iteration limit")
}

func TestToolLoopPreviousResponseID(t *testing.T) {
	withID, err := prompttrace.NewResponse("continuing", "gpt-4o", nil,
		prompttrace.WithMetadata(prompttrace.MetadataResponseID, "resp_cont"),
		prompttrace.WithToolCalls(prompttrace.ToolCall{
			ID: "call_a", Type: "function", FunctionName: "lookup", Arguments: map[string]any{},
		}),
	)
	gt.NoError(t, err)

	invoker := &mockInvoker{responses: []*prompttrace.NormalizedResponse{plainResponse(t, "done")}}
	loop := prompttrace.NewToolLoop(invoker, &prompttrace.StubExecutor{})

	_, err = loop.Run(context.Background(), withID)
	gt.NoError(t, err)
	gt.Equal(t, invoker.lastID, "resp_cont")
}

func TestToolLoopExecutorError(t *testing.T) {
	invoker := &mockInvoker{}
	loop := prompttrace.NewToolLoop(invoker, &failingExecutor{})

	_, err := loop.Run(context.Background(), responseWithCall(t, "call_1"))
	gt.Error(t, err)
}

type failingExecutor struct{}

func (e *failingExecutor) Execute(_ context.Context, _ prompttrace.ToolCall) (map[string]any, error) {
	return nil, errors.New("tool backend unreachable")
}

func TestToolLoopSchemaValidation(t *testing.T) {
	schemas, err := prompttrace.CompileToolSchemas(map[string]string{
		"lookup": `{
			"type": "object",
			"properties": {"q": {"type": "string"}},
			"required": ["q"],
			"additionalProperties": false
		}`,
	})
	gt.NoError(t, err)

	final := plainResponse(t, "done")
	invoker := &mockInvoker{responses: []*prompttrace.NormalizedResponse{final}}
	loop := prompttrace.NewToolLoop(invoker, &prompttrace.StubExecutor{
		Outputs: map[string]map[string]any{"lookup": {"result": "found"}},
	}, prompttrace.WithToolSchemas(schemas))

	t.Run("valid arguments pass through", func(t *testing.T) {
		invoker.calls, invoker.outputs = 0, nil
		result, err := loop.Run(context.Background(), responseWithCall(t, "call_ok"))
		gt.NoError(t, err)
		gt.False(t, result.Unresolved)
		gt.Equal(t, invoker.outputs[0][0].Output, map[string]any{"result": "found"})
	})

	t.Run("invalid arguments become error output", func(t *testing.T) {
		invoker.calls, invoker.outputs = 0, nil

		bad, err := prompttrace.NewResponse("hm", "gpt-4o", nil,
			prompttrace.WithToolCalls(prompttrace.ToolCall{
				ID:           "call_bad",
				Type:         "function",
				FunctionName: "lookup",
				Arguments:    map[string]any{"wrong": 1},
			}),
		)
		gt.NoError(t, err)

		result, runErr := loop.Run(context.Background(), bad)
		gt.NoError(t, runErr)
		gt.False(t, result.Unresolved)

		output := invoker.outputs[0][0].Output
		gt.NotNil(t, output["error"])
	})
}

func TestCompileToolSchemasInvalid(t *testing.T) {
	_, err := prompttrace.CompileToolSchemas(map[string]string{"broken": `{`})
	gt.Error(t, err)
}
