package prompttrace

import (
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// GeminiNormalizer converts Gemini generateContent payloads.
type GeminiNormalizer struct{}

// Normalize decodes a raw generateContent payload and normalizes it.
func (n GeminiNormalizer) Normalize(raw json.RawMessage) (*NormalizedResponse, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to decode gemini payload")
	}

	normalized, err := n.NormalizeContentResponse(&resp)
	if err != nil {
		return nil, err
	}
	WithRawResponse(raw)(normalized)
	return normalized, nil
}

// NormalizeContentResponse normalizes an already decoded response, for
// callers holding the SDK object.
func (GeminiNormalizer) NormalizeContentResponse(resp *genai.GenerateContentResponse) (*NormalizedResponse, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, goerr.Wrap(ErrNoContent, "gemini response has no candidates")
	}

	candidate := resp.Candidates[0]

	var text string
	var toolCalls []ToolCall
	for i, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			if text != "" {
				text += "\n"
			}
			text += part.Text
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("%s_%d", part.FunctionCall.Name, i)
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:           id,
				Type:         "function",
				FunctionName: part.FunctionCall.Name,
				Arguments:    args,
			})
		}
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	usage = sumTotalTokens(usage)

	opts := []ResponseOption{
		WithMetadata(MetadataStopReason, string(candidate.FinishReason)),
		WithToolCalls(toolCalls...),
	}
	if resp.ResponseID != "" {
		opts = append(opts, WithMetadata(MetadataResponseID, resp.ResponseID))
	}

	return NewResponse(text, resp.ModelVersion, &usage, opts...)
}
