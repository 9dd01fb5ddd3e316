package prompttrace_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/prompttrace"
)

func TestAssistantsNormalize(t *testing.T) {
	raw := json.RawMessage(`{
		"run": {
			"id": "run_1",
			"thread_id": "thread_1",
			"status": "completed",
			"model": "gpt-4o",
			"usage": {"prompt_tokens": 100, "completion_tokens": 40, "total_tokens": 140}
		},
		"messages": [
			{
				"id": "msg_u",
				"thread_id": "thread_1",
				"role": "user",
				"content": [{"type": "text", "text": {"value": "Summarize the report"}}]
			},
			{
				"id": "msg_a",
				"thread_id": "thread_1",
				"role": "assistant",
				"content": [{"type": "text", "text": {"value": "The report shows growth."}}]
			}
		],
		"run_steps": [
			{
				"id": "step_1",
				"run_id": "run_1",
				"type": "message_creation",
				"status": "completed",
				"step_details": {"type": "message_creation", "message_creation": {"message_id": "msg_a"}}
			}
		]
	}`)

	resp, err := prompttrace.AssistantsNormalizer{}.Normalize(raw)
	gt.NoError(t, err)

	gt.Equal(t, resp.Text(), "The report shows growth.")
	gt.Equal(t, resp.Model(), "gpt-4o")
	gt.Equal(t, resp.Usage(), prompttrace.Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140})
	gt.Equal(t, resp.ThreadID(), "thread_1")
	gt.Equal(t, resp.RunID(), "run_1")
	gt.NotNil(t, resp.APIMetadata()["run_steps"])
}

func TestAssistantsNormalizeToolCallsAndFileSearch(t *testing.T) {
	raw := json.RawMessage(`{
		"run": {
			"id": "run_2",
			"thread_id": "thread_2",
			"status": "completed",
			"model": "gpt-4o",
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		},
		"messages": [
			{
				"id": "msg_a2",
				"thread_id": "thread_2",
				"role": "assistant",
				"content": [{"type": "text", "text": {"value": "Done searching."}}]
			}
		],
		"run_steps": [
			{
				"id": "step_fn",
				"run_id": "run_2",
				"type": "tool_calls",
				"status": "completed",
				"step_details": {
					"type": "tool_calls",
					"tool_calls": [
						{
							"id": "call_1",
							"type": "function",
							"function": {"name": "lookup", "arguments": "{\"q\":\"growth\"}"}
						}
					]
				}
			},
			{
				"id": "step_fs",
				"run_id": "run_2",
				"type": "tool_calls",
				"status": "completed",
				"step_details": {
					"type": "tool_calls",
					"tool_calls": [
						{
							"id": "fs_call_1",
							"type": "file_search",
							"file_search": {"results": [{"file_id": "file_9", "score": 0.8}]}
						}
					]
				}
			}
		]
	}`)

	resp, err := prompttrace.AssistantsNormalizer{}.Normalize(raw)
	gt.NoError(t, err)

	calls := resp.ToolCalls()
	gt.A(t, calls).Length(1)
	gt.Equal(t, calls[0].ID, "call_1")
	gt.Equal(t, calls[0].FunctionName, "lookup")
	gt.Equal(t, calls[0].Arguments, map[string]any{"q": "growth"})

	fs := resp.FileSearchResults()
	gt.A(t, fs).Length(1)
	gt.Equal(t, fs[0].ID, "fs_call_1")
	gt.Equal(t, fs[0].Status, "completed")
	gt.A(t, fs[0].Results).Length(1)
}

func TestAssistantsNormalizeNoAssistantMessage(t *testing.T) {
	raw := json.RawMessage(`{
		"run": {"id": "run_3", "thread_id": "thread_3", "status": "completed", "model": "gpt-4o"},
		"messages": [
			{
				"id": "msg_u3",
				"thread_id": "thread_3",
				"role": "user",
				"content": [{"type": "text", "text": {"value": "hello?"}}]
			}
		],
		"run_steps": []
	}`)

	_, err := prompttrace.AssistantsNormalizer{}.Normalize(raw)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, prompttrace.ErrNoContent))
}

func TestAssistantsNormalizeLastAssistantMessageWins(t *testing.T) {
	raw := json.RawMessage(`{
		"run": {"id": "run_4", "thread_id": "thread_4", "status": "completed", "model": "gpt-4o"},
		"messages": [
			{
				"id": "msg_a1",
				"role": "assistant",
				"content": [{"type": "text", "text": {"value": "First draft."}}]
			},
			{
				"id": "msg_a2",
				"role": "assistant",
				"content": [{"type": "text", "text": {"value": "Final answer."}}]
			}
		],
		"run_steps": []
	}`)

	resp, err := prompttrace.AssistantsNormalizer{}.Normalize(raw)
	gt.NoError(t, err)
	gt.Equal(t, resp.Text(), "Final answer.")
}
