package prompttrace

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/goerr/v2"
)

// ClaudeNormalizer converts Anthropic Messages API payloads.
type ClaudeNormalizer struct{}

// Normalize decodes a raw Messages API payload and normalizes it.
func (n ClaudeNormalizer) Normalize(raw json.RawMessage) (*NormalizedResponse, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, goerr.Wrap(err, "failed to decode anthropic message payload")
	}

	normalized, err := n.NormalizeMessage(&msg)
	if err != nil {
		return nil, err
	}
	WithRawResponse(raw)(normalized)
	return normalized, nil
}

// NormalizeMessage normalizes an already decoded message, for callers holding
// the SDK object.
func (ClaudeNormalizer) NormalizeMessage(msg *anthropic.Message) (*NormalizedResponse, error) {
	if len(msg.Content) == 0 {
		return nil, goerr.Wrap(ErrNoContent, "anthropic message has no content blocks",
			goerr.V("id", msg.ID))
	}

	var texts []string
	var toolCalls []ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err != nil || args == nil {
				args = map[string]any{}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:           block.ID,
				Type:         "function",
				FunctionName: block.Name,
				Arguments:    args,
			})
		}
	}

	usage := sumTotalTokens(Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	})

	opts := []ResponseOption{
		WithMetadata(MetadataMessageID, msg.ID),
		WithMetadata(MetadataStopReason, string(msg.StopReason)),
		WithToolCalls(toolCalls...),
	}

	return NewResponse(strings.Join(texts, "\n"), string(msg.Model), &usage, opts...)
}
