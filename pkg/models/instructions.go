package models

// Instructions is the composed prompt bundle handed to an execution
// strategy. All string fields are always present, possibly empty;
// MaxTokens is a positive integer.
type Instructions struct {
	System           string              `json:"system"`
	Primary          string              `json:"primary"`
	Adaptations      string              `json:"adaptations"`
	LengthGuidance   string              `json:"lengthGuidance"`
	ToolInstructions string              `json:"toolInstructions"`
	MaxTokens        int                 `json:"maxTokens"`
	Metadata         InstructionMetadata `json:"metadata"`
}

// InstructionMetadata explains how the instructions were derived. Strategy
// and ToolsAvailable are enriched by the pipeline after composition.
type InstructionMetadata struct {
	Role            string   `json:"role"`
	BaseTokens      int      `json:"baseTokens"`
	TokenMultiplier float64  `json:"tokenMultiplier"`
	LengthLevel     string   `json:"lengthLevel"`
	AdaptationKeys  []string `json:"adaptationKeys,omitempty"`
	Strategy        Strategy `json:"strategy,omitempty"`
	ToolsAvailable  []string `json:"toolsAvailable,omitempty"`
}
