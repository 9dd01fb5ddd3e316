package prompttrace

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

// ChatCompletionNormalizer converts OpenAI Chat Completions payloads. It is
// also the generic fallback shape for chat-style providers.
type ChatCompletionNormalizer struct{}

// Normalize decodes a raw Chat Completions payload and normalizes it.
func (n ChatCompletionNormalizer) Normalize(raw json.RawMessage) (*NormalizedResponse, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to decode chat completion payload")
	}

	normalized, err := n.NormalizeChatCompletion(&resp)
	if err != nil {
		return nil, err
	}
	WithRawResponse(raw)(normalized)
	return normalized, nil
}

// NormalizeChatCompletion normalizes an already decoded response, for callers
// holding the SDK object.
func (ChatCompletionNormalizer) NormalizeChatCompletion(resp *openai.ChatCompletionResponse) (*NormalizedResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, goerr.Wrap(ErrNoContent, "chat completion has no choices",
			goerr.V("id", resp.ID))
	}

	choice := resp.Choices[0]

	usage := sumTotalTokens(Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	})

	opts := []ResponseOption{
		WithMetadata(MetadataMessageID, resp.ID),
		WithMetadata(MetadataStopReason, string(choice.FinishReason)),
	}

	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		opts = append(opts, WithToolCalls(ToolCall{
			ID:           tc.ID,
			Type:         "function",
			FunctionName: tc.Function.Name,
			Arguments:    parseToolArguments(tc.Function.Arguments),
		}))
	}

	return NewResponse(choice.Message.Content, resp.Model, &usage, opts...)
}
