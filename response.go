// Package prompttrace normalizes heterogeneous LLM provider responses into a
// single canonical shape and threads conversation state across the turns of an
// interactive session. It pairs with the trace package, which records the
// resulting calls as hierarchical trace/span/generation entities.
package prompttrace

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// Metadata keys used in NormalizedResponse.APIMetadata. Normalizers populate
// only the keys their API reports.
const (
	MetadataThreadID   = "thread_id"
	MetadataRunID      = "run_id"
	MetadataResponseID = "response_id"
	MetadataMessageID  = "message_id"
	MetadataStopReason = "stop_reason"
	MetadataAnnotation = "annotations"
	MetadataRunSteps   = "run_steps"
)

// Usage holds token accounting for a single LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ZeroUsage returns a Usage with all counters at zero. It is the default when
// a provider reports no usage at all.
func ZeroUsage() Usage {
	return Usage{}
}

// ToolCall is a model-requested invocation of an external capability.
// Arguments are already parsed from the provider's JSON string form.
type ToolCall struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	FunctionName string         `json:"function_name"`
	Arguments    map[string]any `json:"arguments"`
}

// WebSearchSource is one source consulted by a web search tool call.
type WebSearchSource struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Citation is an inline URL citation annotation found in message text.
type Citation struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// WebSearchResult combines a web search tool call with the citation
// annotations the model attached to its answer text.
type WebSearchResult struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Query     string            `json:"query"`
	Sources   []WebSearchSource `json:"sources"`
	Citations []Citation        `json:"citations"`
}

// FileSearchResult is the outcome of one file search tool call.
type FileSearchResult struct {
	ID      string           `json:"id"`
	Status  string           `json:"status"`
	Queries []string         `json:"queries,omitempty"`
	Results []map[string]any `json:"results,omitempty"`
}

// CodeInterpreterResult is the outcome of one code interpreter tool call.
type CodeInterpreterResult struct {
	ID      string           `json:"id"`
	Status  string           `json:"status"`
	Code    string           `json:"code,omitempty"`
	Outputs []map[string]any `json:"outputs,omitempty"`
}

// NormalizedResponse is the canonical shape every provider response is
// converted into. Text, Usage and Model are mandatory; everything else
// defaults to a safe empty value. The struct is immutable after construction:
// all slice and map fields are copied in by the constructor and copied out by
// the accessors.
type NormalizedResponse struct {
	text  string
	usage Usage
	model string

	toolCalls              []ToolCall
	fileSearchResults      []FileSearchResult
	webSearchResults       []WebSearchResult
	codeInterpreterResults []CodeInterpreterResult

	apiMetadata map[string]any
	rawResponse json.RawMessage
}

// ResponseOption configures optional fields of a NormalizedResponse.
type ResponseOption func(*NormalizedResponse)

// WithToolCalls sets the tool calls requested by the model.
func WithToolCalls(calls ...ToolCall) ResponseOption {
	return func(r *NormalizedResponse) {
		r.toolCalls = append(r.toolCalls, calls...)
	}
}

// WithWebSearchResults sets the web search results.
func WithWebSearchResults(results ...WebSearchResult) ResponseOption {
	return func(r *NormalizedResponse) {
		r.webSearchResults = append(r.webSearchResults, results...)
	}
}

// WithFileSearchResults sets the file search results.
func WithFileSearchResults(results ...FileSearchResult) ResponseOption {
	return func(r *NormalizedResponse) {
		r.fileSearchResults = append(r.fileSearchResults, results...)
	}
}

// WithCodeInterpreterResults sets the code interpreter results.
func WithCodeInterpreterResults(results ...CodeInterpreterResult) ResponseOption {
	return func(r *NormalizedResponse) {
		r.codeInterpreterResults = append(r.codeInterpreterResults, results...)
	}
}

// WithMetadata merges the given key/value into APIMetadata.
func WithMetadata(key string, value any) ResponseOption {
	return func(r *NormalizedResponse) {
		r.apiMetadata[key] = value
	}
}

// WithRawResponse retains the original payload for debugging. It is never
// parsed downstream.
func WithRawResponse(raw json.RawMessage) ResponseOption {
	return func(r *NormalizedResponse) {
		r.rawResponse = raw
	}
}

// NewResponse builds a NormalizedResponse. Model must be non-empty. A nil
// usage means the provider reported none and defaults to all-zero counters;
// a usage with negative counters is rejected. Validation failures return
// ErrInvalidResponse immediately, they are never silently repaired.
func NewResponse(text, model string, usage *Usage, opts ...ResponseOption) (*NormalizedResponse, error) {
	if model == "" {
		return nil, goerr.Wrap(ErrInvalidResponse, "model is required")
	}

	u := ZeroUsage()
	if usage != nil {
		if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.TotalTokens < 0 {
			return nil, goerr.Wrap(ErrInvalidResponse, "usage counters must not be negative",
				goerr.V("usage", *usage))
		}
		u = *usage
	}

	r := &NormalizedResponse{
		text:        text,
		usage:       u,
		model:       model,
		apiMetadata: map[string]any{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Text returns the primary text content. Empty string when the provider
// produced none.
func (r *NormalizedResponse) Text() string { return r.text }

// Usage returns the token usage. Never nil semantics: all-zero when absent.
func (r *NormalizedResponse) Usage() Usage { return r.usage }

// Model returns the model identifier reported by the provider.
func (r *NormalizedResponse) Model() string { return r.model }

// ToolCalls returns the tool calls requested by the model. Never nil.
func (r *NormalizedResponse) ToolCalls() []ToolCall {
	calls := make([]ToolCall, len(r.toolCalls))
	copy(calls, r.toolCalls)
	return calls
}

// HasToolCalls reports whether the model requested any tool call.
func (r *NormalizedResponse) HasToolCalls() bool { return len(r.toolCalls) > 0 }

// WebSearchResults returns the web search results. Never nil.
func (r *NormalizedResponse) WebSearchResults() []WebSearchResult {
	results := make([]WebSearchResult, len(r.webSearchResults))
	copy(results, r.webSearchResults)
	return results
}

// FileSearchResults returns the file search results. Never nil.
func (r *NormalizedResponse) FileSearchResults() []FileSearchResult {
	results := make([]FileSearchResult, len(r.fileSearchResults))
	copy(results, r.fileSearchResults)
	return results
}

// CodeInterpreterResults returns the code interpreter results. Never nil.
func (r *NormalizedResponse) CodeInterpreterResults() []CodeInterpreterResult {
	results := make([]CodeInterpreterResult, len(r.codeInterpreterResults))
	copy(results, r.codeInterpreterResults)
	return results
}

// APIMetadata returns a copy of the provider-specific metadata map. Never nil.
func (r *NormalizedResponse) APIMetadata() map[string]any {
	meta := make(map[string]any, len(r.apiMetadata))
	for k, v := range r.apiMetadata {
		meta[k] = v
	}
	return meta
}

// RawResponse returns the original payload, if retained.
func (r *NormalizedResponse) RawResponse() json.RawMessage { return r.rawResponse }

// ThreadID returns api_metadata["thread_id"], or "" if absent.
func (r *NormalizedResponse) ThreadID() string { return r.metadataString(MetadataThreadID) }

// RunID returns api_metadata["run_id"], or "" if absent.
func (r *NormalizedResponse) RunID() string { return r.metadataString(MetadataRunID) }

// ResponseID returns api_metadata["response_id"], or "" if absent.
func (r *NormalizedResponse) ResponseID() string { return r.metadataString(MetadataResponseID) }

// StopReason returns api_metadata["stop_reason"], or "" if absent.
func (r *NormalizedResponse) StopReason() string { return r.metadataString(MetadataStopReason) }

func (r *NormalizedResponse) metadataString(key string) string {
	s, _ := r.apiMetadata[key].(string)
	return s
}

type responseJSON struct {
	Text                   string                  `json:"text"`
	Usage                  Usage                   `json:"usage"`
	Model                  string                  `json:"model"`
	ToolCalls              []ToolCall              `json:"tool_calls"`
	FileSearchResults      []FileSearchResult      `json:"file_search_results"`
	WebSearchResults       []WebSearchResult       `json:"web_search_results"`
	CodeInterpreterResults []CodeInterpreterResult `json:"code_interpreter_results"`
	APIMetadata            map[string]any          `json:"api_metadata"`
	RawResponse            json.RawMessage         `json:"raw_response,omitempty"`
}

// MarshalJSON serializes the response with all fields present, empty defaults
// included.
func (r *NormalizedResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(responseJSON{
		Text:                   r.text,
		Usage:                  r.usage,
		Model:                  r.model,
		ToolCalls:              r.ToolCalls(),
		FileSearchResults:      r.FileSearchResults(),
		WebSearchResults:       r.WebSearchResults(),
		CodeInterpreterResults: r.CodeInterpreterResults(),
		APIMetadata:            r.APIMetadata(),
		RawResponse:            r.rawResponse,
	})
}
