package prompttrace

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// ResponsesNormalizer converts OpenAI Responses API payloads: stateful
// continuation responses whose content is an ordered list of typed output
// items. Function calls become tool calls; web search, file search and code
// interpreter calls populate their own dedicated result lists instead.
type ResponsesNormalizer struct{}

// Wire shapes for the Responses API. The SDK in use does not model this API,
// so the fields consumed here are declared locally.
type responsesPayload struct {
	ID     string                `json:"id"`
	Model  string                `json:"model"`
	Status string                `json:"status"`
	Output []responsesOutputItem `json:"output"`
	Usage  *responsesUsage       `json:"usage"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type responsesOutputItem struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Status string `json:"status"`

	// message
	Role    string             `json:"role,omitempty"`
	Content []responsesContent `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// web_search_call
	Action *responsesSearchAction `json:"action,omitempty"`

	// file_search_call
	Queries []string         `json:"queries,omitempty"`
	Results []map[string]any `json:"results,omitempty"`

	// code_interpreter_call
	Code    string           `json:"code,omitempty"`
	Outputs []map[string]any `json:"outputs,omitempty"`
}

type responsesContent struct {
	Type        string                `json:"type"`
	Text        string                `json:"text,omitempty"`
	Annotations []responsesAnnotation `json:"annotations,omitempty"`
}

type responsesAnnotation struct {
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

type responsesSearchAction struct {
	Type    string `json:"type"`
	Query   string `json:"query,omitempty"`
	Sources []struct {
		URL   string `json:"url"`
		Title string `json:"title,omitempty"`
	} `json:"sources,omitempty"`
}

// Normalize decodes a raw Responses API payload and normalizes it.
func (ResponsesNormalizer) Normalize(raw json.RawMessage) (*NormalizedResponse, error) {
	var p responsesPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to decode responses payload")
	}

	if len(p.Output) == 0 {
		return nil, goerr.Wrap(ErrNoContent, "responses payload has no output items",
			goerr.V("id", p.ID))
	}

	// Text comes from the first message item. Citations found in any message
	// text are attached to the web search results below.
	var text string
	var citations []Citation
	var annotations []responsesAnnotation
	foundMessage := false

	for _, item := range p.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" || content.Type == "text" {
				if !foundMessage {
					text = content.Text
					foundMessage = true
				}
				for _, ann := range content.Annotations {
					annotations = append(annotations, ann)
					if ann.Type == "url_citation" {
						citations = append(citations, Citation{
							URL:        ann.URL,
							Title:      ann.Title,
							StartIndex: ann.StartIndex,
							EndIndex:   ann.EndIndex,
						})
					}
				}
			}
		}
	}

	opts := []ResponseOption{
		WithMetadata(MetadataResponseID, p.ID),
		WithRawResponse(raw),
	}
	if len(annotations) > 0 {
		opts = append(opts, WithMetadata(MetadataAnnotation, annotations))
	}

	for _, item := range p.Output {
		switch item.Type {
		case "function_call":
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			opts = append(opts, WithToolCalls(ToolCall{
				ID:           id,
				Type:         "function",
				FunctionName: item.Name,
				Arguments:    parseToolArguments(item.Arguments),
			}))

		case "web_search_call":
			result := WebSearchResult{
				ID:        item.ID,
				Status:    item.Status,
				Sources:   []WebSearchSource{},
				Citations: citations,
			}
			if item.Action != nil {
				result.Query = item.Action.Query
				for _, src := range item.Action.Sources {
					result.Sources = append(result.Sources, WebSearchSource{
						URL:   src.URL,
						Title: src.Title,
					})
				}
			}
			if result.Citations == nil {
				result.Citations = []Citation{}
			}
			opts = append(opts, WithWebSearchResults(result))

		case "file_search_call":
			opts = append(opts, WithFileSearchResults(FileSearchResult{
				ID:      item.ID,
				Status:  item.Status,
				Queries: item.Queries,
				Results: item.Results,
			}))

		case "code_interpreter_call":
			opts = append(opts, WithCodeInterpreterResults(CodeInterpreterResult{
				ID:      item.ID,
				Status:  item.Status,
				Code:    item.Code,
				Outputs: item.Outputs,
			}))
		}
	}

	var usage Usage
	if p.Usage != nil {
		usage = sumTotalTokens(Usage{
			PromptTokens:     p.Usage.InputTokens,
			CompletionTokens: p.Usage.OutputTokens,
			TotalTokens:      p.Usage.TotalTokens,
		})
	}

	return NewResponse(text, p.Model, &usage, opts...)
}
