package models

import "encoding/json"

// FinishReason explains why an execution stopped.
type FinishReason string

const (
	FinishComplete     FinishReason = "complete"
	FinishToolUse      FinishReason = "tool_use"   // chat paradigm continuation
	FinishToolCalls    FinishReason = "tool_calls" // responses paradigm continuation
	FinishMaxTokens    FinishReason = "max_tokens"
	FinishMaxCycles    FinishReason = "max_cycles"
	FinishMaxToolCalls FinishReason = "max_tool_calls"
	FinishTimeout      FinishReason = "timeout"
)

// IsContinuation reports whether the reason asks the task loop to keep going.
func (r FinishReason) IsContinuation() bool {
	switch r {
	case FinishToolUse, FinishToolCalls, FinishMaxTokens:
		return true
	}
	return false
}

// Usage counts tokens for one or more provider calls.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}

// Add accumulates another usage record.
func (u *Usage) Add(other Usage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
}

// Total returns prompt + completion tokens.
func (u Usage) Total() int {
	return u.Prompt + u.Completion
}

// ToolCall is a provider request to invoke one tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Args parses the call arguments into a map, returning an empty map for
// absent or empty arguments.
func (c ToolCall) Args() (map[string]any, error) {
	if len(c.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(c.Arguments, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// Response is the result of one execution strategy or provider call.
type Response struct {
	Output       string         `json:"output"`
	Usage        Usage          `json:"usage"`
	Model        string         `json:"model,omitempty"`
	FinishReason FinishReason   `json:"finishReason"`
	OutputItems  []Message      `json:"outputItems,omitempty"`
	ToolCalls    []ToolCall     `json:"toolCalls,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SetMeta sets one metadata key, allocating the map on first use.
func (r *Response) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}
