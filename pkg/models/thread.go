package models

import "encoding/json"

// Role is the author type of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"

	// Responses-paradigm items carried inline in the thread.
	RoleFunctionCall       Role = "function_call"
	RoleFunctionCallOutput Role = "function_call_output"
)

// Message is one entry in a conversation thread. Plain chat messages use
// Role/Content; Responses-paradigm tool items use CallID with Name/Arguments
// (function_call) or Output (function_call_output); chat-paradigm tool
// results use ToolCallID.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// function_call fields
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// function_call_output field
	Output string `json:"output,omitempty"`

	// chat-paradigm tool result pairing
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Thread is an ordered conversation. Append-only within a turn; across
// turns it is reconstructed from the journal.
type Thread []Message

// UserMessage returns a user message with the given content.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant message with the given content.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage returns a framing message injected by execution strategies.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// LastUserIndex returns the index of the final user message, or -1.
func (t Thread) LastUserIndex() int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// Clone returns a copy safe to append to without aliasing the original.
func (t Thread) Clone() Thread {
	out := make(Thread, len(t))
	copy(out, t)
	return out
}
