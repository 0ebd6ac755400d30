package models

import (
	"encoding/json"
	"fmt"
)

// Strategy discriminates execution plans.
type Strategy string

const (
	StrategyDirect     Strategy = "direct"
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyTask       Strategy = "task"
	StrategyFallback   Strategy = "fallback"
)

// ResultStrategy selects how multi-part results collapse into one output.
type ResultStrategy string

const (
	ResultLast      ResultStrategy = "last"
	ResultConcat    ResultStrategy = "concat"
	ResultLabel     ResultStrategy = "label"
	ResultFormatted ResultStrategy = "formatted"
)

// Resolution bounds a task loop.
type Resolution struct {
	MaxCycles    int   `json:"maxCycles,omitempty"`
	MaxTokens    int   `json:"maxTokens,omitempty"`
	MaxToolCalls int   `json:"maxToolCalls,omitempty"`
	TimeoutMs    int64 `json:"timeoutMs,omitempty"`
}

// DefaultResolution is the task-loop budget applied when a plan carries
// none. Policy enforcement and the task executor both resolve against it
// so capping sees the same numbers the loop would run with.
func DefaultResolution() *Resolution {
	return &Resolution{
		MaxCycles:    5,
		MaxTokens:    8000,
		MaxToolCalls: 10,
		TimeoutMs:    120000,
	}
}

// WithDefaults fills every unset budget from DefaultResolution. Plans may
// carry a partial resolution; the loop always runs against complete
// limits. Nil-safe.
func (r *Resolution) WithDefaults() *Resolution {
	def := DefaultResolution()
	if r == nil {
		return def
	}
	out := *r
	if out.MaxCycles <= 0 {
		out.MaxCycles = def.MaxCycles
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = def.MaxTokens
	}
	if out.MaxToolCalls <= 0 {
		out.MaxToolCalls = def.MaxToolCalls
	}
	if out.TimeoutMs <= 0 {
		out.TimeoutMs = def.TimeoutMs
	}
	return &out
}

// PlanStep is one entry of a sequential plan. In JSON a step may be a bare
// role string or an object overriding strategy and tools.
type PlanStep struct {
	Role     string   `json:"role"`
	Strategy Strategy `json:"strategy,omitempty"`
	Tools    []string `json:"tools,omitempty"`
}

// UnmarshalJSON accepts either "explorer" or {"role":"explorer",...}.
func (s *PlanStep) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var role string
		if err := json.Unmarshal(data, &role); err != nil {
			return err
		}
		*s = PlanStep{Role: role}
		return nil
	}
	type alias PlanStep
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("plan step: %w", err)
	}
	*s = PlanStep(obj)
	return nil
}

// TaskContext is attached to the direct sub-plans a task loop issues so the
// composer can frame each cycle.
type TaskContext struct {
	Cycle     int  `json:"cycle"`
	MaxCycles int  `json:"maxCycles"`
	IsTask    bool `json:"isTask"`
	Synthesis bool `json:"synthesis,omitempty"`
}

// Plan describes one execution. Strategy decides which of the optional
// fields apply: Sequence for sequential, Roles for parallel, Tools and
// Resolution for task.
type Plan struct {
	Strategy       Strategy       `json:"strategy"`
	Role           string         `json:"role,omitempty"`
	Tools          []string       `json:"tools,omitempty"`
	Resolution     *Resolution    `json:"resolution,omitempty"`
	Sequence       []PlanStep     `json:"sequence,omitempty"`
	Roles          []string       `json:"roles,omitempty"`
	ResultStrategy ResultStrategy `json:"resultStrategy,omitempty"`

	// Sequential thread modes. BuildThread wins when both are set.
	ThreadAccumulation bool `json:"threadAccumulation,omitempty"`
	BuildThread        bool `json:"buildThread,omitempty"`

	// MaxTokens caps a single direct call; the task loop also uses it as the
	// per-cycle ceiling before budget clamping.
	MaxTokens int `json:"maxTokens,omitempty"`

	// TaskContext is set only on the sub-plans a task loop issues.
	TaskContext *TaskContext `json:"taskContext,omitempty"`
}

// HasTools reports whether the plan grants tool access.
func (p *Plan) HasTools() bool {
	return p != nil && len(p.Tools) > 0
}

// DefaultPlan is the synthesized fallback when rules select nothing.
func DefaultPlan() *Plan {
	return &Plan{Strategy: StrategyDirect, Role: "assistant"}
}
