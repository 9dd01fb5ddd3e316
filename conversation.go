package prompttrace

import (
	"time"
)

// Message roles used in conversation state.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolUse is the reduced record of a tool invocation on an assistant message.
// Only the type survives; the full tool call objects live on the response.
type ToolUse struct {
	Type string `json:"type"`
}

// TurnMessage is one message within a conversation.
type TurnMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolsUsed []ToolUse `json:"tools_used,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationState is the running state of one interactive session: the
// ordered message list plus the provider continuation token for APIs that
// keep server-side conversation state.
type ConversationState struct {
	Messages           []TurnMessage `json:"messages"`
	PreviousResponseID string        `json:"previous_response_id,omitempty"`
	StartedAt          time.Time     `json:"started_at,omitempty"`
}

// NewConversationState returns an empty conversation state.
func NewConversationState() *ConversationState {
	return &ConversationState{Messages: []TurnMessage{}}
}

// Advance appends one turn (the user message and the assistant's normalized
// response) and returns a new state. The receiver is never mutated: callers
// may keep references to earlier states for logging or audit. A nil receiver
// is treated as an empty state.
//
// StartedAt is set on the first turn and preserved afterwards.
// PreviousResponseID always reflects the latest response, empty when the API
// did not report one.
func (s *ConversationState) Advance(userMessage string, resp *NormalizedResponse) *ConversationState {
	return s.advance(userMessage, resp, timeNow())
}

func (s *ConversationState) advance(userMessage string, resp *NormalizedResponse, now time.Time) *ConversationState {
	var prev []TurnMessage
	startedAt := now
	if s != nil {
		prev = s.Messages
		if !s.StartedAt.IsZero() {
			startedAt = s.StartedAt
		}
	}

	toolsUsed := make([]ToolUse, 0, len(resp.ToolCalls()))
	for _, call := range resp.ToolCalls() {
		toolsUsed = append(toolsUsed, ToolUse{Type: call.Type})
	}

	messages := make([]TurnMessage, 0, len(prev)+2)
	for _, msg := range prev {
		messages = append(messages, copyTurnMessage(msg))
	}
	messages = append(messages,
		TurnMessage{
			Role:      RoleUser,
			Content:   userMessage,
			CreatedAt: now,
		},
		TurnMessage{
			Role:      RoleAssistant,
			Content:   resp.Text(),
			ToolsUsed: toolsUsed,
			CreatedAt: now,
		},
	)

	return &ConversationState{
		Messages:           messages,
		PreviousResponseID: resp.ResponseID(),
		StartedAt:          startedAt,
	}
}

func copyTurnMessage(msg TurnMessage) TurnMessage {
	cp := msg
	if msg.ToolsUsed != nil {
		cp.ToolsUsed = make([]ToolUse, len(msg.ToolsUsed))
		copy(cp.ToolsUsed, msg.ToolsUsed)
	}
	return cp
}

// timeNow is swapped out in tests.
var timeNow = time.Now
