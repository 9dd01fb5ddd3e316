package prompttrace

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

// AssistantsNormalizer converts Assistants API (thread/run based) payloads.
// A single run produces no single response object, so the raw payload here is
// the composite the caller assembles after the run settles: the run, the
// thread messages, and the run steps.
type AssistantsNormalizer struct{}

type assistantsPayload struct {
	Run      openai.Run        `json:"run"`
	Messages []openai.Message  `json:"messages"`
	RunSteps []json.RawMessage `json:"run_steps"`
}

// fileSearchStep extracts file search details that the SDK's run step type
// does not surface.
type fileSearchStep struct {
	StepDetails struct {
		ToolCalls []struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			FileSearch struct {
				Results []map[string]any `json:"results"`
			} `json:"file_search"`
		} `json:"tool_calls"`
	} `json:"step_details"`
}

// Normalize decodes a composite run payload and normalizes it. The text is
// the last assistant message's content; a run that settled with no assistant
// message at all is a structural violation.
func (AssistantsNormalizer) Normalize(raw json.RawMessage) (*NormalizedResponse, error) {
	var p assistantsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to decode assistants payload")
	}

	var text string
	var annotations []any
	found := false
	for i := len(p.Messages) - 1; i >= 0 && !found; i-- {
		msg := p.Messages[i]
		if msg.Role != "assistant" {
			continue
		}
		for _, content := range msg.Content {
			if content.Text == nil {
				continue
			}
			if text != "" {
				text += "\n"
			}
			text += content.Text.Value
			annotations = append(annotations, content.Text.Annotations...)
			found = true
		}
	}
	if !found {
		return nil, goerr.Wrap(ErrNoContent, "run has no assistant message",
			goerr.V("run_id", p.Run.ID),
			goerr.V("thread_id", p.Run.ThreadID),
			goerr.V("run_status", p.Run.Status))
	}

	opts := []ResponseOption{
		WithMetadata(MetadataThreadID, p.Run.ThreadID),
		WithMetadata(MetadataRunID, p.Run.ID),
		WithRawResponse(raw),
	}
	if len(p.RunSteps) > 0 {
		opts = append(opts, WithMetadata(MetadataRunSteps, p.RunSteps))
	}
	if len(annotations) > 0 {
		opts = append(opts, WithMetadata(MetadataAnnotation, annotations))
	}

	for _, rawStep := range p.RunSteps {
		var step openai.RunStep
		if err := json.Unmarshal(rawStep, &step); err != nil {
			continue
		}
		if step.Type != openai.RunStepTypeToolCalls {
			continue
		}

		for _, tc := range step.StepDetails.ToolCalls {
			if string(tc.Type) == "function" && tc.Function.Name != "" {
				opts = append(opts, WithToolCalls(ToolCall{
					ID:           tc.ID,
					Type:         "function",
					FunctionName: tc.Function.Name,
					Arguments:    parseToolArguments(tc.Function.Arguments),
				}))
			}
		}

		var fs fileSearchStep
		if err := json.Unmarshal(rawStep, &fs); err != nil {
			continue
		}
		for _, tc := range fs.StepDetails.ToolCalls {
			if tc.Type != "file_search" {
				continue
			}
			opts = append(opts, WithFileSearchResults(FileSearchResult{
				ID:      tc.ID,
				Status:  string(step.Status),
				Results: tc.FileSearch.Results,
			}))
		}
	}

	usage := sumTotalTokens(Usage{
		PromptTokens:     p.Run.Usage.PromptTokens,
		CompletionTokens: p.Run.Usage.CompletionTokens,
		TotalTokens:      p.Run.Usage.TotalTokens,
	})

	return NewResponse(text, p.Run.Model, &usage, opts...)
}
